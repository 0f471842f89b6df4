package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/monitoring"
)

const (
	writeWait = 10 * time.Second

	// A client silent for pongWait is dropped. Pings go out often enough
	// that a live client always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Operator frames are small commands.
	maxMessageSize = 8192

	// Longest an intent may wait for the controller loop.
	intentTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Intents are the operator actions the controller accepts.
type Intents interface {
	SelectServerRow(ctx context.Context, index int) error
	SelectCueRow(ctx context.Context, index int) error
	PressGo(ctx context.Context) error
	PressStopAll(ctx context.Context) error
	PressStopSelected(ctx context.Context) error
	PressStopCurrent(ctx context.Context) error
	PressRefresh(ctx context.Context) error
	PressDisconnect(ctx context.Context) error
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

// Handler handles operator WebSocket connections.
type Handler struct {
	hub       *Hub
	presenter *Presenter
	intents   Intents
	metrics   *monitoring.Metrics
	log       *logging.Logger

	mu sync.RWMutex
}

// NewHandler creates a handler that routes client messages to intents.
func NewHandler(hub *Hub, presenter *Presenter, intents Intents, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		hub:       hub,
		presenter: presenter,
		intents:   intents,
		metrics:   metrics,
		log:       logger.Named("ws"),
	}
}

// SetIntents attaches the controller the handler routes intents to.
func (h *Handler) SetIntents(intents Intents) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.intents = intents
}

func (h *Handler) currentIntents() Intents {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.intents
}

// HandleConnection upgrades the request and attaches the client to the hub.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, uuid.NewString())
	h.hub.Register(client)
	h.metrics.RecordWSConnection(1)
	h.log.Debug("operator attached", zap.String("client", client.ID()))

	// Send the current state so a reconnecting operator sees the same screen.
	h.sendState(r.Context(), client)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// sendState sends the controller snapshot and recent activity to one client.
func (h *Handler) sendState(ctx context.Context, client *Client) {
	ctx, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()

	intents := h.currentIntents()
	if intents == nil {
		return
	}
	snap, err := intents.Snapshot(ctx)
	if err != nil {
		h.log.Warn("snapshot failed", zap.Error(err))
		return
	}
	if payload, err := json.Marshal(snap); err == nil {
		client.SendMessage(&Message{Type: MessageTypeState, Payload: payload})
	}

	// One message however long the log is, so replay never fills the send buffer.
	entries := h.presenter.Activity()
	if entries == nil {
		entries = []Activity{}
	}
	if payload, err := json.Marshal(entries); err == nil {
		client.SendMessage(&Message{Type: MessageTypeActivityLog, Payload: payload})
	}
}

// handleMessage processes incoming messages from clients.
func (h *Handler) handleMessage(client *Client, msg *Message) {
	h.metrics.RecordWSMessage("in", string(msg.Type))

	switch msg.Type {
	case MessageTypePing:
		client.SendMessage(&Message{Type: MessageTypePong})
		return
	case MessageTypeConfirmReply:
		if !h.presenter.Resolve(msg.ID, msg.Confirmed) {
			client.SendMessage(&Message{Type: MessageTypeError, Code: "UNKNOWN_CONFIRMATION", Error: "confirmation already answered"})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	if err := h.dispatch(ctx, msg); err != nil {
		client.SendMessage(&Message{
			Type:  MessageTypeError,
			ID:    msg.ID,
			Code:  ErrorCode(err),
			Error: err.Error(),
		})
	}
}

func (h *Handler) dispatch(ctx context.Context, msg *Message) error {
	intents := h.currentIntents()
	if intents == nil {
		return errNoController
	}

	switch msg.Type {
	case MessageTypeSelectServer, MessageTypeSelectCue:
		if msg.Index == nil {
			return errMissingIndex
		}
		if msg.Type == MessageTypeSelectServer {
			return intents.SelectServerRow(ctx, *msg.Index)
		}
		return intents.SelectCueRow(ctx, *msg.Index)
	case MessageTypeGo:
		return intents.PressGo(ctx)
	case MessageTypeStopAll:
		return intents.PressStopAll(ctx)
	case MessageTypeStopSelected:
		return intents.PressStopSelected(ctx)
	case MessageTypeStopCurrent:
		return intents.PressStopCurrent(ctx)
	case MessageTypeRefresh:
		return intents.PressRefresh(ctx)
	case MessageTypeDisconnect:
		return intents.PressDisconnect(ctx)
	default:
		return errUnknownMessage
	}
}

var (
	errMissingIndex   = errors.New("index is required")
	errUnknownMessage = errors.New("unknown message type")
	errNoController   = errors.New("controller not attached")
)

// ErrorCode maps an intent error to a stable code for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrEmptyServerList):
		return "EMPTY_SERVER_LIST"
	case errors.Is(err, model.ErrEmptyCueList):
		return "EMPTY_CUE_LIST"
	case errors.Is(err, model.ErrNotConnected):
		return "NOT_CONNECTED"
	case errors.Is(err, model.ErrConnectionFailed):
		return "CONNECTION_FAILED"
	case errors.Is(err, model.ErrIndexOutOfRange):
		return "INDEX_OUT_OF_RANGE"
	case errors.Is(err, errMissingIndex), errors.Is(err, errUnknownMessage):
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// readPump handles client frames in arrival order until the socket fails,
// then detaches the client.
func (h *Handler) readPump(client *Client) {
	conn := client.conn
	defer func() {
		h.hub.Unregister(client)
		h.metrics.RecordWSConnection(-1)
		conn.Close()
		h.log.Debug("operator detached", zap.String("client", client.ID()))
	}()

	extend := func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	conn.SetReadLimit(maxMessageSize)
	extend("")
	conn.SetPongHandler(extend)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", zap.String("client", client.ID()), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			h.log.Debug("dropping malformed frame", zap.String("client", client.ID()), zap.Error(err))
			continue
		}
		h.handleMessage(client, &msg)
	}
}

// writePump writes queued frames, one JSON document per frame, and pings
// the client while idle. It closes the socket once the queue is closed.
func (h *Handler) writePump(client *Client) {
	conn := client.conn
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		conn.Close()
	}()

	write := func(kind int, data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-client.SendChan():
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				h.log.Debug("websocket write failed", zap.String("client", client.ID()), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
