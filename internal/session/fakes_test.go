package session

import (
	"fmt"
	"time"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
)

// fakeDispatcher is a manually driven execution context with virtual time.
type fakeDispatcher struct {
	now    time.Duration
	queue  []func()
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (d *fakeDispatcher) Post(fn func()) {
	d.queue = append(d.queue, fn)
}

func (d *fakeDispatcher) AfterFunc(dur time.Duration, fn func()) Timer {
	t := &fakeTimer{at: d.now + dur, fn: fn}
	d.timers = append(d.timers, t)
	return t
}

// Drain runs queued closures until the queue is empty.
func (d *fakeDispatcher) Drain() {
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue = d.queue[1:]
		fn()
	}
}

// Advance moves virtual time forward, firing due timers in order.
func (d *fakeDispatcher) Advance(dur time.Duration) {
	target := d.now + dur
	for {
		d.Drain()

		var next *fakeTimer
		for _, t := range d.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}

		d.now = next.at
		next.fired = true
		next.fn()
	}
	d.now = target
	d.Drain()
}

// pendingTimers counts timers that have neither fired nor been stopped.
func (d *fakeDispatcher) pendingTimers() int {
	n := 0
	for _, t := range d.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type durationQuery struct {
	cue      *model.Cue
	key      string
	onResult func(any, error)
}

// fakeConn records commands and lets the test decide when callbacks fire.
type fakeConn struct {
	workspace    *model.Workspace
	cues         []*model.Cue
	onCueUpdated func()

	passcodes   []string
	onComplete  func(error)
	disconnects int
	started     []*model.Cue
	stopped     []*model.Cue
	stopAlls    int
	queries     []durationQuery
}

func (f *fakeConn) Connect(passcode string, onComplete func(error)) {
	f.passcodes = append(f.passcodes, passcode)
	f.onComplete = onComplete
}

func (f *fakeConn) Disconnect() { f.disconnects++ }
func (f *fakeConn) Start(cue *model.Cue) { f.started = append(f.started, cue) }
func (f *fakeConn) Stop(cue *model.Cue) { f.stopped = append(f.stopped, cue) }
func (f *fakeConn) StopAll() { f.stopAlls++ }
func (f *fakeConn) Cues() []*model.Cue { return f.cues }
func (f *fakeConn) complete(err error) { f.onComplete(err) }
func (f *fakeConn) lastQuery() durationQuery { return f.queries[len(f.queries)-1] }

func (f *fakeConn) QueryValue(cue *model.Cue, key string, onResult func(any, error)) {
	f.queries = append(f.queries, durationQuery{cue: cue, key: key, onResult: onResult})
}

// fakeDialer hands out one fakeConn per dial.
type fakeDialer struct {
	cues  []*model.Cue
	dials []*fakeConn
}

func (d *fakeDialer) Dial(ws *model.Workspace, onCueUpdated func()) WorkspaceConn {
	conn := &fakeConn{workspace: ws, cues: d.cues, onCueUpdated: onCueUpdated}
	d.dials = append(d.dials, conn)
	return conn
}

func (d *fakeDialer) last() *fakeConn {
	if len(d.dials) == 0 {
		return nil
	}
	return d.dials[len(d.dials)-1]
}

// recordingPresenter records every signal it receives.
type recordingPresenter struct {
	events        []string
	workspaces    []*model.Workspace
	cues          []*model.Cue
	cueRenders    int
	currentCue    *model.Cue
	status        string
	shadowVisible bool
	failures      []error
	confirms      []string
	answers       []func(bool)
}

func (p *recordingPresenter) record(format string, args ...any) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *recordingPresenter) ServerListChanged(ws []*model.Workspace) {
	p.workspaces = ws
	p.record("servers:%d", len(ws))
}

func (p *recordingPresenter) CueListChanged(cues []*model.Cue) {
	p.cues = cues
	p.cueRenders++
	p.record("cues:%d", len(cues))
}

func (p *recordingPresenter) CurrentCueChanged(cue *model.Cue) {
	p.currentCue = cue
}

func (p *recordingPresenter) ConnectionStatusChanged(text string) {
	p.status = text
	p.record("status:%s", text)
}

func (p *recordingPresenter) ShadowVisibilityChanged(visible bool) {
	p.shadowVisible = visible
	p.record("shadow:%t", visible)
}

func (p *recordingPresenter) EmptyWorkspaceListError() { p.record("error:empty-workspaces") }
func (p *recordingPresenter) EmptyCueListError() { p.record("error:empty-cues") }
func (p *recordingPresenter) NotConnectedError() { p.record("error:not-connected") }

func (p *recordingPresenter) ConnectionFailed(name string, err error) {
	p.failures = append(p.failures, err)
	p.record("failed:%s", name)
}

func (p *recordingPresenter) ConfirmDisconnect(name string, answer func(bool)) {
	p.confirms = append(p.confirms, name)
	p.answers = append(p.answers, answer)
}

func (p *recordingPresenter) has(event string) bool {
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

type testHarness struct {
	ctrl      *Controller
	disp      *fakeDispatcher
	dialer    *fakeDialer
	presenter *recordingPresenter
}

func setupTestController(cues []*model.Cue, mutate ...func(*Config)) *testHarness {
	h := &testHarness{
		disp:      &fakeDispatcher{},
		dialer:    &fakeDialer{cues: cues},
		presenter: &recordingPresenter{shadowVisible: true},
	}

	cfg := Config{
		Dispatcher:     h.disp,
		Dialer:         h.dialer,
		Presenter:      h.presenter,
		ConnectTimeout: 10 * time.Second,
		Logger:         logging.NewNop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	h.ctrl = NewController(cfg)
	return h
}

// connect drives a successful connection to ws and returns its connection.
func (h *testHarness) connect(ws *model.Workspace) *fakeConn {
	h.ctrl.Connect(ws, "")
	conn := h.dialer.last()
	conn.complete(nil)
	h.disp.Drain()
	return conn
}

// discover delivers a discovery update and runs everything it queued.
func (h *testHarness) discover(servers ...*model.Server) {
	h.ctrl.OnDiscoveryUpdate(servers)
	h.disp.Drain()
}

func testServer(name string, port int, workspaces ...string) *model.Server {
	s := &model.Server{Name: name, Host: "10.0.1.111", Port: port}
	for _, id := range workspaces {
		s.Workspaces = append(s.Workspaces, &model.Workspace{
			ID:         id,
			Name:       "Show " + id,
			ServerName: name,
			Host:       s.Host,
			Port:       port,
		})
	}
	return s
}

func testCues(n int) []*model.Cue {
	cues := make([]*model.Cue, n)
	for i := range cues {
		cues[i] = &model.Cue{
			ID:     fmt.Sprintf("cue-%d", i+1),
			Number: fmt.Sprintf("%d", i+1),
			Name:   fmt.Sprintf("Cue %d", i+1),
		}
	}
	return cues
}
