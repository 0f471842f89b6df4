package session

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
	"github.com/remote-cue-control/backend/internal/monitoring"
)

// DefaultCueDebounce is the quiet period before a burst of cue updates is rendered.
const DefaultCueDebounce = 50 * time.Millisecond

// Config holds configuration for the session controller.
type Config struct {
	Dispatcher Dispatcher
	Dialer     Dialer
	Presenter  Presenter

	// Passcodes supplies the passcode for a workspace. Nil means none.
	Passcodes PasscodeFunc

	// DisableAutoConnect stops the controller from joining a sole workspace.
	DisableAutoConnect bool

	// ConnectTimeout fails a connect attempt that has not completed. Zero waits forever.
	ConnectTimeout time.Duration

	CueDebounce time.Duration

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// attempt is an in-flight connect.
type attempt struct {
	seq       uint64
	workspace *model.Workspace
	conn      WorkspaceConn
	timer     Timer
}

// Controller is the connection and playback state machine. All methods must
// be called on the dispatcher's execution context; use Service from other
// goroutines.
type Controller struct {
	dispatch    Dispatcher
	dialer      Dialer
	presenter   Presenter
	passcodes   PasscodeFunc
	autoConnect bool

	connectTimeout time.Duration
	cueDebounce    time.Duration

	log     *logging.Logger
	metrics *monitoring.Metrics

	servers    []*model.Server
	workspaces []*model.Workspace
	state      model.SessionState

	conn       WorkspaceConn
	connSeq    uint64
	pending    *attempt
	attemptSeq uint64

	status        string
	shadowVisible bool

	debounceTimer  Timer
	debounceSeq    uint64
	durationTimers map[Timer]struct{}

	closed bool
}

// NewController creates a controller in the disconnected state.
func NewController(cfg Config) *Controller {
	if cfg.CueDebounce <= 0 {
		cfg.CueDebounce = DefaultCueDebounce
	}
	if cfg.Passcodes == nil {
		cfg.Passcodes = func(*model.Workspace) string { return "" }
	}

	return &Controller{
		dispatch:       cfg.Dispatcher,
		dialer:         cfg.Dialer,
		presenter:      cfg.Presenter,
		passcodes:      cfg.Passcodes,
		autoConnect:    !cfg.DisableAutoConnect,
		connectTimeout: cfg.ConnectTimeout,
		cueDebounce:    cfg.CueDebounce,
		log:            cfg.Logger.Named("session"),
		metrics:        cfg.Metrics,
		shadowVisible:  true,
		durationTimers: make(map[Timer]struct{}),
	}
}

// State reports the connection lifecycle state.
func (c *Controller) State() model.ConnectionState {
	switch {
	case c.conn != nil:
		return model.ConnectionStateConnected
	case c.pending != nil:
		return model.ConnectionStateConnecting
	default:
		return model.ConnectionStateDisconnected
	}
}

// SessionState returns a copy of the selection state.
func (c *Controller) SessionState() model.SessionState {
	return c.state
}

// Snapshot returns the presentation view of the controller.
func (c *Controller) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		State:                    c.State(),
		Status:                   c.status,
		ShadowVisible:            c.shadowVisible,
		Workspaces:               append([]*model.Workspace(nil), c.workspaces...),
		CurrentWorkspace:         c.state.CurrentWorkspace,
		SelectedCue:              c.state.SelectedCue,
		CurrentCue:               c.state.CurrentCue,
		UserDisconnectedManually: c.state.UserDisconnectedManually,
	}
	if c.pending != nil {
		snap.PendingWorkspace = c.pending.workspace
	}
	if c.conn != nil {
		snap.Cues = append([]*model.Cue(nil), c.conn.Cues()...)
	}
	return snap
}

// OnServersChanged is the discovery entry point for a full server list.
func (c *Controller) OnServersChanged(servers []*model.Server) {
	c.OnDiscoveryUpdate(servers)
}

// OnWorkspacesChanged merges one server's workspace list into the known servers.
func (c *Controller) OnWorkspacesChanged(server *model.Server) {
	if server == nil {
		return
	}

	servers := make([]*model.Server, 0, len(c.servers)+1)
	replaced := false
	for _, s := range c.servers {
		if s.Key() == server.Key() {
			servers = append(servers, server)
			replaced = true
			continue
		}
		servers = append(servers, s)
	}
	if !replaced {
		servers = append(servers, server)
	}

	c.OnDiscoveryUpdate(servers)
}

// OnDiscoveryUpdate replaces the server list and re-evaluates auto-connect.
func (c *Controller) OnDiscoveryUpdate(servers []*model.Server) {
	if c.closed {
		return
	}

	c.servers = append([]*model.Server(nil), servers...)
	c.workspaces = model.FlattenWorkspaces(c.servers)
	c.metrics.RecordDiscovery(len(c.workspaces))

	c.clearCurrentCue()
	c.presenter.ServerListChanged(append([]*model.Workspace(nil), c.workspaces...))

	if ws := c.activeWorkspace(); ws != nil && !c.listed(ws) {
		c.log.Info("workspace no longer reported by discovery",
			zap.String("workspace", ws.FullName()))
		c.teardown("vanished")
	}

	c.autoConnectSole()
}

// OnServersRefreshed handles a discovery poll whose result matches the last
// update. Nothing is re-rendered, but auto-connect is retried so a failed
// attempt on a sole workspace is not final.
func (c *Controller) OnServersRefreshed([]*model.Server) {
	if c.closed {
		return
	}
	c.autoConnectSole()
}

func (c *Controller) autoConnectSole() {
	if !c.shouldAutoConnect() {
		return
	}
	ws := c.workspaces[0]
	c.log.Info("auto-connecting to sole workspace", zap.String("workspace", ws.FullName()))
	c.Connect(ws, c.passcodes(ws))
}

func (c *Controller) shouldAutoConnect() bool {
	return c.autoConnect &&
		len(c.workspaces) == 1 &&
		!c.state.UserDisconnectedManually &&
		c.conn == nil &&
		c.pending == nil
}

// SelectWorkspace switches to the workspace at index, confirming first when
// another workspace is connected.
func (c *Controller) SelectWorkspace(index int) error {
	if len(c.workspaces) == 0 {
		c.presenter.EmptyWorkspaceListError()
		return model.ErrEmptyServerList
	}
	if index < 0 || index >= len(c.workspaces) {
		return fmt.Errorf("%w: workspace %d of %d", model.ErrIndexOutOfRange, index, len(c.workspaces))
	}

	target := c.workspaces[index]
	if c.state.CurrentWorkspace == nil {
		c.switchTo(target)
		return nil
	}

	c.presenter.ConfirmDisconnect(c.state.CurrentWorkspace.Name, c.answerOnLoop(func(ok bool) {
		if !ok {
			c.log.Debug("workspace switch declined", zap.String("target", target.FullName()))
			return
		}
		if !c.listed(target) {
			c.log.Warn("selected workspace disappeared before confirmation",
				zap.String("target", target.FullName()))
			c.presenter.EmptyWorkspaceListError()
			return
		}
		c.switchTo(target)
	}))
	return nil
}

func (c *Controller) switchTo(target *model.Workspace) {
	c.teardown("switch")
	c.Connect(target, c.passcodes(target))
}

// Connect begins a connection attempt. The outcome is delivered on the loop.
func (c *Controller) Connect(ws *model.Workspace, passcode string) {
	if ws == nil || c.closed {
		return
	}
	if c.conn != nil || c.pending != nil {
		c.teardown("switch")
	}

	c.attemptSeq++
	seq := c.attemptSeq
	a := &attempt{
		seq:       seq,
		workspace: ws,
	}
	a.conn = c.dialer.Dial(ws, func() {
		c.dispatch.Post(func() {
			if c.conn != nil && c.connSeq == seq {
				c.OnCueUpdated()
			}
		})
	})
	c.pending = a

	c.log.Info("connecting to workspace",
		zap.String("workspace", ws.FullName()),
		zap.Bool("passcode", passcode != ""))

	if c.connectTimeout > 0 {
		timeout := c.connectTimeout
		a.timer = c.dispatch.AfterFunc(timeout, func() {
			c.onConnectComplete(seq, fmt.Errorf("%w: no answer after %s", model.ErrConnectionFailed, timeout))
		})
	}

	a.conn.Connect(passcode, func(err error) {
		c.dispatch.Post(func() {
			c.onConnectComplete(seq, err)
		})
	})
}

func (c *Controller) onConnectComplete(seq uint64, err error) {
	a := c.pending
	if a == nil || a.seq != seq {
		// Superseded attempts were disconnected when they were abandoned.
		return
	}

	c.pending = nil
	if a.timer != nil {
		a.timer.Stop()
	}

	name := a.workspace.FullName()
	if err != nil {
		a.conn.Disconnect()
		if !errors.Is(err, model.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", model.ErrConnectionFailed, err)
		}
		c.metrics.RecordConnectFailure()
		c.log.Warn("workspace connection failed", zap.String("workspace", name), zap.Error(err))
		c.presenter.ConnectionFailed(name, err)
		return
	}

	c.conn = a.conn
	c.connSeq = seq
	c.state.CurrentWorkspace = a.workspace
	c.state.UserDisconnectedManually = false
	c.metrics.RecordConnect()
	c.log.Info("connected to workspace", zap.String("workspace", name))

	c.setShadowVisible(false)
	c.setStatus("Connected: " + name)
	c.renderCues()
}

// Disconnect is the user-initiated disconnect. It suppresses auto-connect
// until the next successful connection.
func (c *Controller) Disconnect() {
	c.state.UserDisconnectedManually = true
	if c.teardown("user") {
		c.log.Info("disconnected by operator")
	}
}

// teardown drops the connection and any in-flight attempt. It reports whether
// there was anything to drop.
func (c *Controller) teardown(reason string) bool {
	if c.conn == nil && c.pending == nil && c.state.CurrentWorkspace == nil {
		c.clearCurrentCue()
		return false
	}

	c.abortPending()
	c.clearCurrentCue()
	c.state.SelectedCue = nil
	c.stopDebounce()

	if c.conn != nil {
		c.conn.Disconnect()
		c.conn = nil
		c.connSeq = 0
		c.metrics.RecordDisconnect(reason)
	}
	c.state.CurrentWorkspace = nil

	c.setStatus("")
	c.presenter.CueListChanged(nil)
	c.setShadowVisible(true)
	return true
}

func (c *Controller) abortPending() {
	a := c.pending
	if a == nil {
		return
	}
	c.pending = nil
	if a.timer != nil {
		a.timer.Stop()
	}
	a.conn.Disconnect()
	c.log.Debug("abandoned connection attempt", zap.String("workspace", a.workspace.FullName()))
}

// StartCue fires cue and arms its duration-expiry timer once the duration is known.
func (c *Controller) StartCue(cue *model.Cue) error {
	if c.conn == nil {
		return model.ErrNotConnected
	}
	if cue == nil {
		return model.ErrEmptyCueList
	}

	c.setCurrentCue(cue)
	c.conn.Start(cue)
	c.metrics.RecordCueStart()
	c.log.Debug("started cue", zap.String("cue", cue.Label()))

	c.conn.QueryValue(cue, DurationKey, func(value any, err error) {
		c.dispatch.Post(func() {
			c.onDuration(cue, value, err)
		})
	})
	return nil
}

func (c *Controller) onDuration(cue *model.Cue, value any, err error) {
	if c.closed {
		return
	}
	if err != nil {
		c.log.Debug("duration lookup failed", zap.String("cue", cue.Label()), zap.Error(err))
		return
	}

	d, ok := durationOf(value)
	if !ok {
		c.log.Debug("cue has no usable duration", zap.String("cue", cue.Label()), zap.Any("value", value))
		return
	}

	// Armed even if another cue started meanwhile; staleness is checked on fire.
	var t Timer
	t = c.dispatch.AfterFunc(d, func() {
		delete(c.durationTimers, t)
		c.OnDurationTimerFired(cue)
	})
	c.durationTimers[t] = struct{}{}
}

// durationOf converts a duration reply in seconds.
func durationOf(value any) (time.Duration, bool) {
	var secs float64
	switch v := value.(type) {
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int32:
		secs = float64(v)
	case int64:
		secs = float64(v)
	default:
		return 0, false
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, false
	}
	if secs > math.MaxInt64/float64(time.Second) {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// OnDurationTimerFired clears the current cue if it is still the one the timer was armed for.
func (c *Controller) OnDurationTimerFired(cue *model.Cue) {
	if c.state.CurrentCue == nil || !c.state.CurrentCue.Equal(cue) {
		return
	}
	c.clearCurrentCue()
	c.metrics.RecordCueFinish()
	c.log.Debug("cue finished", zap.String("cue", cue.Label()))
}

// StopSelectedCue stops the selected cue.
func (c *Controller) StopSelectedCue() error {
	if c.conn == nil {
		return model.ErrNotConnected
	}

	selected := c.state.SelectedCue
	if selected == nil {
		return nil
	}

	c.conn.Stop(selected)
	c.metrics.RecordCueStop("selected")
	if selected.Equal(c.state.CurrentCue) {
		c.clearCurrentCue()
	}
	return nil
}

// StopCurrentCue stops the playing cue and always clears it.
func (c *Controller) StopCurrentCue() error {
	current := c.state.CurrentCue
	if current == nil {
		return nil
	}
	if c.conn == nil {
		c.clearCurrentCue()
		return model.ErrNotConnected
	}

	c.conn.Stop(current)
	c.metrics.RecordCueStop("current")
	c.clearCurrentCue()
	return nil
}

// StopAll stops everything in the workspace and clears the current cue.
func (c *Controller) StopAll() error {
	if c.conn == nil {
		c.clearCurrentCue()
		return model.ErrNotConnected
	}

	c.conn.StopAll()
	c.metrics.RecordCueStop("all")
	c.clearCurrentCue()
	return nil
}

// RefreshCueList returns the workspace's authoritative cue list.
func (c *Controller) RefreshCueList() ([]*model.Cue, error) {
	if c.conn == nil {
		return nil, model.ErrNotConnected
	}
	return c.conn.Cues(), nil
}

// OnCueUpdated rearms the debounce timer. Only the last update in a burst renders.
func (c *Controller) OnCueUpdated() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}

	c.debounceSeq++
	seq := c.debounceSeq
	c.debounceTimer = c.dispatch.AfterFunc(c.cueDebounce, func() {
		if seq != c.debounceSeq {
			return
		}
		c.debounceTimer = nil
		c.renderCues()
	})
}

func (c *Controller) stopDebounce() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.debounceSeq++
}

// Close stops all timers and drops the connection without signalling the presenter.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true

	c.abortPending()
	c.stopDebounce()
	for t := range c.durationTimers {
		t.Stop()
		delete(c.durationTimers, t)
	}

	if c.conn != nil {
		c.conn.Disconnect()
		c.conn = nil
		c.metrics.RecordDisconnect("shutdown")
	}
	c.state.CurrentWorkspace = nil
	c.state.CurrentCue = nil
	c.state.SelectedCue = nil
}

func (c *Controller) renderCues() {
	if c.conn == nil {
		c.presenter.CueListChanged(nil)
		return
	}
	c.presenter.CueListChanged(c.conn.Cues())
}

func (c *Controller) setCurrentCue(cue *model.Cue) {
	c.state.CurrentCue = cue
	c.presenter.CurrentCueChanged(cue)
}

func (c *Controller) clearCurrentCue() {
	if c.state.CurrentCue == nil {
		return
	}
	c.state.CurrentCue = nil
	c.presenter.CurrentCueChanged(nil)
}

func (c *Controller) setStatus(text string) {
	c.status = text
	c.presenter.ConnectionStatusChanged(text)
}

func (c *Controller) setShadowVisible(visible bool) {
	c.shadowVisible = visible
	c.presenter.ShadowVisibilityChanged(visible)
}

// activeWorkspace is the connected workspace, or the one being connected to.
func (c *Controller) activeWorkspace() *model.Workspace {
	if c.state.CurrentWorkspace != nil {
		return c.state.CurrentWorkspace
	}
	if c.pending != nil {
		return c.pending.workspace
	}
	return nil
}

func (c *Controller) listed(ws *model.Workspace) bool {
	for _, w := range c.workspaces {
		if w.Equal(ws) {
			return true
		}
	}
	return false
}

// answerOnLoop wraps a confirmation continuation so it runs once on the loop.
func (c *Controller) answerOnLoop(fn func(ok bool)) func(ok bool) {
	answered := false
	return func(ok bool) {
		c.dispatch.Post(func() {
			if answered || c.closed {
				return
			}
			answered = true
			fn(ok)
		})
	}
}
