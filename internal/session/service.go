package session

import (
	"context"

	"github.com/remote-cue-control/backend/internal/model"
)

// Service runs a Controller on a Loop and exposes its operations to other
// goroutines. Intents block until the loop has handled them.
type Service struct {
	loop *Loop
	ctrl *Controller
}

// NewService creates a service. The controller must dispatch onto loop.
func NewService(loop *Loop, ctrl *Controller) *Service {
	return &Service{loop: loop, ctrl: ctrl}
}

// Run drains the loop until ctx is cancelled, then releases the controller.
func (s *Service) Run(ctx context.Context) {
	s.loop.Run(ctx)
	s.ctrl.Close()
}

// OnServersChanged queues a full discovery update.
func (s *Service) OnServersChanged(servers []*model.Server) {
	s.loop.Post(func() { s.ctrl.OnServersChanged(servers) })
}

// OnServersRefreshed queues an unchanged discovery result.
func (s *Service) OnServersRefreshed(servers []*model.Server) {
	s.loop.Post(func() { s.ctrl.OnServersRefreshed(servers) })
}

// OnWorkspacesChanged queues a single-server discovery update.
func (s *Service) OnWorkspacesChanged(server *model.Server) {
	s.loop.Post(func() { s.ctrl.OnWorkspacesChanged(server) })
}

// SelectServerRow selects the workspace at index, waiting for the loop.
func (s *Service) SelectServerRow(ctx context.Context, index int) error {
	return s.call(ctx, func() error { return s.ctrl.SelectServerRow(index) })
}

// SelectCueRow selects the cue at index.
func (s *Service) SelectCueRow(ctx context.Context, index int) error {
	return s.call(ctx, func() error { return s.ctrl.SelectCueRow(index) })
}

// PressGo starts the selected cue.
func (s *Service) PressGo(ctx context.Context) error {
	return s.call(ctx, s.ctrl.PressGo)
}

// PressStopAll stops every cue in the workspace.
func (s *Service) PressStopAll(ctx context.Context) error {
	return s.call(ctx, s.ctrl.PressStopAll)
}

// PressStopSelected stops the selected cue.
func (s *Service) PressStopSelected(ctx context.Context) error {
	return s.call(ctx, s.ctrl.PressStopSelected)
}

// PressStopCurrent stops the playing cue.
func (s *Service) PressStopCurrent(ctx context.Context) error {
	return s.call(ctx, s.ctrl.PressStopCurrent)
}

// PressRefresh re-renders the cue list.
func (s *Service) PressRefresh(ctx context.Context) error {
	return s.call(ctx, s.ctrl.PressRefresh)
}

// PressDisconnect requests a disconnect. It returns once the confirmation
// has been raised, not when it is answered.
func (s *Service) PressDisconnect(ctx context.Context) error {
	return s.loop.Do(ctx, s.ctrl.PressDisconnect)
}

// Snapshot returns the controller's current view. When ctx expires first the
// loop may still build the snapshot later; it is discarded.
func (s *Service) Snapshot(ctx context.Context) (model.Snapshot, error) {
	result := make(chan model.Snapshot, 1)
	if err := s.loop.Do(ctx, func() { result <- s.ctrl.Snapshot() }); err != nil {
		return model.Snapshot{}, err
	}
	return <-result, nil
}

func (s *Service) call(ctx context.Context, fn func() error) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}
