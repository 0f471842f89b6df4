package qlab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/session"
)

const badPasscode = "badpass"

type cueInfo struct {
	UniqueID string    `json:"uniqueID"`
	Number   string    `json:"number"`
	Name     string    `json:"name"`
	ListName string    `json:"listName"`
	Type     string    `json:"type"`
	Cues     []cueInfo `json:"cues,omitempty"`
}

// Workspace is a connection to one QLab workspace. Commands are fire and
// forget; Connect and QueryValue report through their callbacks on a
// separate goroutine.
type Workspace struct {
	workspace    *model.Workspace
	dial         func() (*Client, error)
	onCueUpdated func()
	log          *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	client *Client
	cues   []*model.Cue
	closed bool

	refresh singleflight.Group
}

func newWorkspace(ws *model.Workspace, dial func() (*Client, error), onCueUpdated func(), logger *logging.Logger) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	if onCueUpdated == nil {
		onCueUpdated = func() {}
	}
	return &Workspace{
		workspace:    ws,
		dial:         dial,
		onCueUpdated: onCueUpdated,
		log:          logger.With(zap.String("workspace", ws.FullName())),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Connect opens the workspace, subscribes to updates and loads its cues.
func (w *Workspace) Connect(passcode string, onComplete func(error)) {
	go func() {
		onComplete(w.connect(passcode))
	}()
}

func (w *Workspace) connect(passcode string) error {
	client, err := w.dial()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrConnectionFailed, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		client.Close()
		return fmt.Errorf("%w: %w", model.ErrConnectionFailed, ErrClosed)
	}
	w.client = client
	w.mu.Unlock()

	client.SetUpdateHandler(w.handleUpdate)

	var args []any
	if passcode != "" {
		args = append(args, passcode)
	}

	reply, err := client.Request(w.ctx, w.address("connect"), args...)
	if reply.DataString() == badPasscode {
		return fmt.Errorf("%w: %w", model.ErrConnectionFailed, model.ErrBadPasscode)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrConnectionFailed, err)
	}

	if err := client.Send(w.address("updates"), int32(1)); err != nil {
		w.log.Warn("subscribing to updates failed", zap.Error(err))
	}

	if _, err := w.loadCues(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrConnectionFailed, err)
	}
	return nil
}

// Disconnect unsubscribes and closes the socket. Safe to call repeatedly.
func (w *Workspace) Disconnect() {
	w.cancel()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	client := w.client
	w.client = nil
	w.mu.Unlock()

	if client == nil {
		return
	}
	_ = client.Send(w.address("updates"), int32(0))
	_ = client.Send(w.address("disconnect"))
	client.Close()
}

// Start fires cue.
func (w *Workspace) Start(cue *model.Cue) {
	w.send(w.cueAddress(cue, "start"))
}

// Stop stops cue.
func (w *Workspace) Stop(cue *model.Cue) {
	w.send(w.cueAddress(cue, "stop"))
}

// StopAll stops everything in the workspace.
func (w *Workspace) StopAll() {
	w.send(w.address("stop"))
}

// QueryValue reads a cue property. Numbers arrive as float64.
func (w *Workspace) QueryValue(cue *model.Cue, key string, onResult func(any, error)) {
	go func() {
		client := w.currentClient()
		if client == nil {
			onResult(nil, model.ErrNotConnected)
			return
		}

		reply, err := client.Request(w.ctx, w.cueAddress(cue, key))
		if err != nil {
			onResult(nil, err)
			return
		}

		var value any
		if err := reply.Decode(&value); err != nil {
			onResult(nil, err)
			return
		}
		onResult(value, nil)
	}()
}

// Cues returns the top-level cues of the workspace's first cue list.
func (w *Workspace) Cues() []*model.Cue {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*model.Cue(nil), w.cues...)
}

func (w *Workspace) handleUpdate(address string, _ []any) {
	prefix := updatePrefix + w.address("")
	if !strings.HasPrefix(address+"/", prefix) {
		return
	}

	switch rest := strings.TrimPrefix(address, strings.TrimSuffix(prefix, "/")); {
	case rest == "/disconnect":
		w.log.Info("workspace closed by host")
	case rest == "" || strings.HasPrefix(rest, "/cue_id/") || strings.HasPrefix(rest, "/cueList"):
		go w.refreshCues()
	}
}

func (w *Workspace) refreshCues() {
	_, err, _ := w.refresh.Do("cues", func() (any, error) {
		return w.loadCues()
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
			w.log.Warn("refreshing cues failed", zap.Error(err))
		}
		return
	}
	w.onCueUpdated()
}

func (w *Workspace) loadCues() ([]*model.Cue, error) {
	client := w.currentClient()
	if client == nil {
		return nil, ErrClosed
	}

	reply, err := client.Request(w.ctx, w.address("cueLists"))
	if err != nil {
		return nil, fmt.Errorf("load cue lists: %w", err)
	}

	var lists []cueInfo
	if err := reply.Decode(&lists); err != nil {
		return nil, err
	}

	var cues []*model.Cue
	if len(lists) > 0 {
		for _, info := range lists[0].Cues {
			cues = append(cues, &model.Cue{
				ID:       info.UniqueID,
				Number:   info.Number,
				Name:     info.Name,
				ListName: info.ListName,
				Type:     info.Type,
			})
		}
	}

	w.mu.Lock()
	w.cues = cues
	w.mu.Unlock()
	return cues, nil
}

func (w *Workspace) send(address string) {
	client := w.currentClient()
	if client == nil {
		w.log.Debug("dropping command while disconnected", zap.String("address", address))
		return
	}
	if err := client.Send(address); err != nil {
		w.log.Warn("command failed", zap.String("address", address), zap.Error(err))
	}
}

func (w *Workspace) currentClient() *Client {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.client
}

func (w *Workspace) address(suffix string) string {
	return "/workspace/" + w.workspace.ID + "/" + suffix
}

func (w *Workspace) cueAddress(cue *model.Cue, action string) string {
	return w.address("cue_id/" + cue.ID + "/" + action)
}

// Dialer creates QLab workspace connections.
type Dialer struct {
	timeout time.Duration
	log     *logging.Logger
}

// NewDialer creates a dialer whose requests wait up to timeout.
func NewDialer(timeout time.Duration, logger *logging.Logger) *Dialer {
	return &Dialer{timeout: timeout, log: logger.Named("workspace")}
}

var _ session.Dialer = (*Dialer)(nil)

// Dial returns an unconnected workspace. The socket opens on Connect.
func (d *Dialer) Dial(ws *model.Workspace, onCueUpdated func()) session.WorkspaceConn {
	return newWorkspace(ws, func() (*Client, error) {
		return Dial(ws.Host, ws.Port, d.timeout, d.log)
	}, onCueUpdated, d.log)
}
