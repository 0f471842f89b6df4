package ws

import (
	"sync"
	"time"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/monitoring"
)

// Service ties the hub, the presenter and the connection handler together.
// The presenter is handed to the controller before the controller exists to
// accept intents, so intents are attached afterwards with SetIntents.
type Service struct {
	hub       *Hub
	presenter *Presenter
	handler   *Handler

	mu     sync.Mutex
	closed bool
}

// NewService creates a WebSocket service.
func NewService(activitySize int, confirmTimeout time.Duration, metrics *monitoring.Metrics, logger *logging.Logger) *Service {
	hub := NewHub()
	presenter := NewPresenter(hub, activitySize, confirmTimeout, metrics, logger)
	handler := NewHandler(hub, presenter, nil, metrics, logger)

	// Nobody is left to answer once the last operator leaves.
	hub.SetOnEmpty(presenter.DeclineAll)

	return &Service{
		hub:       hub,
		presenter: presenter,
		handler:   handler,
	}
}

// SetIntents attaches the controller. Call it before serving connections.
func (s *Service) SetIntents(intents Intents) {
	s.handler.SetIntents(intents)
}

// Presenter returns the presenter to hand to the controller.
func (s *Service) Presenter() *Presenter {
	return s.presenter
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// ClientCount returns the number of attached operators.
func (s *Service) ClientCount() int {
	return s.hub.ClientCount()
}

// Close declines pending confirmations and disconnects every client.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.presenter.DeclineAll()
	s.hub.Close()
}
