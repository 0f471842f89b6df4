// Package qlab talks to QLab workspaces over OSC/UDP.
//
// Requests are OSC messages sent to the workspace host. QLab answers each one
// on /reply/<request address> with a JSON document, and pushes change
// notifications on /update/... once a client has subscribed.
package qlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/logging"
)

// DefaultReplyTimeout bounds how long a request waits for its reply.
const DefaultReplyTimeout = 10 * time.Second

const (
	replyPrefix  = "/reply"
	updatePrefix = "/update"
	maxPacket    = 65535
)

var (
	// ErrClosed is returned for requests on a closed client.
	ErrClosed = errors.New("qlab: client closed")

	// ErrTimeout is returned when QLab does not answer in time.
	ErrTimeout = errors.New("qlab: timed out waiting for reply")

	// ErrStatus is returned when QLab answers with a non-ok status.
	ErrStatus = errors.New("qlab: error status")
)

// Reply is QLab's JSON answer to a request.
type Reply struct {
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Address     string          `json:"address"`
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// DataString returns Data when it is a JSON string.
func (r Reply) DataString() string {
	var s string
	if err := json.Unmarshal(r.Data, &s); err != nil {
		return ""
	}
	return s
}

// Decode unmarshals Data into v.
func (r Reply) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("qlab: empty reply data for %s", r.Address)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("qlab: decode reply for %s: %w", r.Address, err)
	}
	return nil
}

// UpdateHandler receives pushed /update messages.
type UpdateHandler func(address string, args []any)

// Client is one UDP socket to a QLab host. Replies and updates arrive on the
// same socket the requests leave from.
type Client struct {
	conn    net.PacketConn
	remote  net.Addr
	timeout time.Duration
	log     *logging.Logger

	mu       sync.Mutex
	waiters  map[string][]chan Reply
	onUpdate UpdateHandler
	closed   bool

	done chan struct{}
}

// Dial opens a client for host:port. timeout bounds each request; zero uses
// DefaultReplyTimeout.
func Dial(host string, port int, timeout time.Duration, logger *logging.Logger) (*Client, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("qlab: resolve %s:%d: %w", host, port, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("qlab: open socket: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}

	c := &Client{
		conn:    conn,
		remote:  remote,
		timeout: timeout,
		log:     logger.Named("qlab"),
		waiters: make(map[string][]chan Reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SetUpdateHandler installs the handler for pushed updates.
func (c *Client) SetUpdateHandler(fn UpdateHandler) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Send sends a message without waiting for a reply.
func (c *Client) Send(address string, args ...any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := osc.NewMessage(address, args...).MarshalBinary()
	if err != nil {
		return fmt.Errorf("qlab: encode %s: %w", address, err)
	}
	if _, err := c.conn.WriteTo(data, c.remote); err != nil {
		return fmt.Errorf("qlab: send %s: %w", address, err)
	}
	return nil
}

// Request sends a message and waits for its reply.
func (c *Client) Request(ctx context.Context, address string, args ...any) (Reply, error) {
	ch := make(chan Reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Reply{}, ErrClosed
	}
	c.waiters[address] = append(c.waiters[address], ch)
	c.mu.Unlock()

	if err := c.Send(address, args...); err != nil {
		c.dropWaiter(address, ch)
		return Reply{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		if reply.Status != "" && reply.Status != "ok" {
			return reply, fmt.Errorf("%w %q for %s", ErrStatus, reply.Status, address)
		}
		return reply, nil
	case <-timer.C:
		c.dropWaiter(address, ch)
		return Reply{}, fmt.Errorf("%w: %s", ErrTimeout, address)
	case <-ctx.Done():
		c.dropWaiter(address, ch)
		return Reply{}, ctx.Err()
	case <-c.done:
		return Reply{}, ErrClosed
	}
}

// Close releases the socket. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.waiters = make(map[string][]chan Reply)
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}

func (c *Client) dropWaiter(address string, ch chan Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.waiters[address]
	for i, w := range queue {
		if w == ch {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(c.waiters, address)
	} else {
		c.waiters[address] = queue
	}
}

func (c *Client) readLoop() {
	buf := make([]byte, maxPacket)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			c.log.Debug("dropping malformed packet", zap.Error(err))
			continue
		}
		msg, ok := packet.(*osc.Message)
		if !ok {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *osc.Message) {
	switch {
	case strings.HasPrefix(msg.Address, replyPrefix+"/"):
		c.deliverReply(msg)
	case strings.HasPrefix(msg.Address, updatePrefix+"/"):
		c.mu.Lock()
		handler := c.onUpdate
		c.mu.Unlock()
		if handler != nil {
			handler(msg.Address, msg.Arguments)
		}
	default:
		c.log.Debug("ignoring message", zap.String("address", msg.Address))
	}
}

func (c *Client) deliverReply(msg *osc.Message) {
	address := strings.TrimPrefix(msg.Address, replyPrefix)

	var reply Reply
	if len(msg.Arguments) > 0 {
		if body, ok := msg.Arguments[0].(string); ok {
			if err := json.Unmarshal([]byte(body), &reply); err != nil {
				c.log.Debug("malformed reply body", zap.String("address", address), zap.Error(err))
			}
		}
	}
	if reply.Address == "" {
		reply.Address = address
	}

	c.mu.Lock()
	queue := c.waiters[address]
	if len(queue) == 0 {
		c.mu.Unlock()
		return
	}
	ch := queue[0]
	if len(queue) == 1 {
		delete(c.waiters, address)
	} else {
		c.waiters[address] = queue[1:]
	}
	c.mu.Unlock()

	ch <- reply
}
