package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// sendQueue is how many frames may wait for a slow operator before it is dropped.
const sendQueue = 256

var errClientGone = errors.New("client detached")

// Client is one attached operator.
type Client struct {
	conn *websocket.Conn
	id   string

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

// NewClient wraps conn. A nil conn is allowed for clients that are drained directly.
func NewClient(conn *websocket.Conn, id string) *Client {
	return &Client{
		conn: conn,
		id:   id,
		out:  make(chan []byte, sendQueue),
	}
}

// Send queues data for the write pump and reports whether it was queued.
// A client whose queue is full is closed.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		c.shutdown()
		return false
	}
}

// SendMessage encodes msg and queues it.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !c.Send(data) {
		return errClientGone
	}
	return nil
}

// Close ends the outbound queue. The write pump then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	c.shutdown()
	c.mu.Unlock()
}

func (c *Client) shutdown() {
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID identifies the client in logs.
func (c *Client) ID() string {
	return c.id
}

// SendChan is the outbound queue. It is closed when the client is.
func (c *Client) SendChan() <-chan []byte {
	return c.out
}

// Hub is the set of attached operators.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	onEmpty func()
}

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// SetOnEmpty sets fn to run whenever the last client leaves.
func (h *Hub) SetOnEmpty(fn func()) {
	h.mu.Lock()
	h.onEmpty = fn
	h.mu.Unlock()
}

// Register attaches client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

// Unregister detaches and closes client. Unknown clients are only closed.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, attached := h.clients[client]
	delete(h.clients, client)
	emptied := attached && len(h.clients) == 0
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()
	if emptied && onEmpty != nil {
		onEmpty()
	}
}

// Broadcast queues data for every client and returns how many accepted it.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		if client.Send(data) {
			sent++
		}
	}
	return sent
}

// Publish encodes msg once and broadcasts it.
func (h *Hub) Publish(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClients reports whether any operator is attached.
func (h *Hub) HasClients() bool {
	return h.ClientCount() > 0
}

// Close detaches and closes every client without running the empty callback.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.Close()
	}
}
