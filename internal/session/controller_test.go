package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/remote-cue-control/backend/internal/model"
)

func TestController_AutoConnect(t *testing.T) {
	t.Run("sole workspace is joined", func(t *testing.T) {
		h := setupTestController(testCues(2))
		h.discover(testServer("Museo", 53000, "A"))

		if len(h.dialer.dials) != 1 {
			t.Fatalf("expected 1 dial, got %d", len(h.dialer.dials))
		}
		if got := h.ctrl.State(); got != model.ConnectionStateConnecting {
			t.Errorf("expected connecting, got %s", got)
		}

		h.dialer.last().complete(nil)
		h.disp.Drain()

		if got := h.ctrl.State(); got != model.ConnectionStateConnected {
			t.Errorf("expected connected, got %s", got)
		}
		if h.presenter.status != "Connected: Show A (Museo)" {
			t.Errorf("unexpected status %q", h.presenter.status)
		}
	})

	t.Run("several workspaces are not joined", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A", "B"))

		if len(h.dialer.dials) != 0 {
			t.Errorf("expected no dial, got %d", len(h.dialer.dials))
		}
	})

	t.Run("workspaces across servers count together", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A"), testServer("Foyer", 53001, "B"))

		if len(h.dialer.dials) != 0 {
			t.Errorf("expected no dial, got %d", len(h.dialer.dials))
		}
	})

	t.Run("updates while connecting do not dial again", func(t *testing.T) {
		h := setupTestController(nil)
		for i := 0; i < 5; i++ {
			h.discover(testServer("Museo", 53000, "A"))
		}

		if len(h.dialer.dials) != 1 {
			t.Errorf("expected 1 dial, got %d", len(h.dialer.dials))
		}
	})

	t.Run("re-evaluated on each update", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A", "B"))
		h.discover(testServer("Museo", 53000, "B"))

		if len(h.dialer.dials) != 1 {
			t.Fatalf("expected 1 dial, got %d", len(h.dialer.dials))
		}
		if h.dialer.last().workspace.ID != "B" {
			t.Errorf("expected dial to B, got %s", h.dialer.last().workspace.ID)
		}
	})

	t.Run("suppressed after manual disconnect", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A"))
		h.dialer.last().complete(nil)
		h.disp.Drain()

		h.ctrl.Disconnect()
		h.discover(testServer("Museo", 53000, "A"))

		if len(h.dialer.dials) != 1 {
			t.Errorf("expected no further dial, got %d dials", len(h.dialer.dials))
		}
	})

	t.Run("disabled by config", func(t *testing.T) {
		h := setupTestController(nil, func(c *Config) { c.DisableAutoConnect = true })
		h.discover(testServer("Museo", 53000, "A"))

		if len(h.dialer.dials) != 0 {
			t.Errorf("expected no dial, got %d", len(h.dialer.dials))
		}
	})

	t.Run("uses configured passcode", func(t *testing.T) {
		h := setupTestController(nil, func(c *Config) {
			c.Passcodes = func(ws *model.Workspace) string { return "pass-" + ws.ID }
		})
		h.discover(testServer("Museo", 53000, "A"))

		conn := h.dialer.last()
		if len(conn.passcodes) != 1 || conn.passcodes[0] != "pass-A" {
			t.Errorf("unexpected passcodes %v", conn.passcodes)
		}
	})
}

func TestController_Connect(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]

	t.Run("success", func(t *testing.T) {
		h := setupTestController(testCues(3))
		h.ctrl.state.UserDisconnectedManually = true

		h.connect(ws)

		st := h.ctrl.SessionState()
		if !st.CurrentWorkspace.Equal(ws) {
			t.Errorf("expected current workspace %s, got %v", ws.Key(), st.CurrentWorkspace)
		}
		if st.UserDisconnectedManually {
			t.Error("manual flag should be reset by a successful connection")
		}
		if h.presenter.shadowVisible {
			t.Error("shadow should be hidden once connected")
		}
		if len(h.presenter.cues) != 3 {
			t.Errorf("expected 3 cues rendered, got %d", len(h.presenter.cues))
		}
		if n := h.disp.pendingTimers(); n != 0 {
			t.Errorf("connect timeout should be stopped, %d timers pending", n)
		}
	})

	t.Run("failure", func(t *testing.T) {
		h := setupTestController(nil)
		h.ctrl.Connect(ws, "wrong")
		conn := h.dialer.last()
		conn.complete(model.ErrBadPasscode)
		h.disp.Drain()

		if got := h.ctrl.State(); got != model.ConnectionStateDisconnected {
			t.Errorf("expected disconnected, got %s", got)
		}
		if conn.disconnects != 1 {
			t.Errorf("failed connection should be closed once, got %d", conn.disconnects)
		}
		if len(h.presenter.failures) != 1 {
			t.Fatalf("expected 1 failure signal, got %d", len(h.presenter.failures))
		}
		err := h.presenter.failures[0]
		if !errors.Is(err, model.ErrConnectionFailed) || !errors.Is(err, model.ErrBadPasscode) {
			t.Errorf("unexpected failure error %v", err)
		}
		if !h.presenter.has("failed:Show A (Museo)") {
			t.Errorf("expected failure event, got %v", h.presenter.events)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		h := setupTestController(nil)
		h.ctrl.Connect(ws, "")
		conn := h.dialer.last()

		h.disp.Advance(10 * time.Second)

		if got := h.ctrl.State(); got != model.ConnectionStateDisconnected {
			t.Errorf("expected disconnected after timeout, got %s", got)
		}
		if len(h.presenter.failures) != 1 || !errors.Is(h.presenter.failures[0], model.ErrConnectionFailed) {
			t.Errorf("expected a connection failure, got %v", h.presenter.failures)
		}

		// A late success must not resurrect the attempt.
		conn.complete(nil)
		h.disp.Drain()
		if got := h.ctrl.State(); got != model.ConnectionStateDisconnected {
			t.Errorf("late completion changed state to %s", got)
		}
	})

	t.Run("superseded attempt is ignored", func(t *testing.T) {
		other := testServer("Foyer", 53001, "B").Workspaces[0]
		h := setupTestController(nil)

		h.ctrl.Connect(ws, "")
		first := h.dialer.last()
		h.ctrl.Connect(other, "")
		second := h.dialer.last()

		if first.disconnects != 1 {
			t.Errorf("abandoned attempt should be disconnected, got %d", first.disconnects)
		}

		first.complete(nil)
		h.disp.Drain()
		if got := h.ctrl.State(); got != model.ConnectionStateConnecting {
			t.Errorf("stale completion changed state to %s", got)
		}

		second.complete(nil)
		h.disp.Drain()
		if cur := h.ctrl.SessionState().CurrentWorkspace; !cur.Equal(other) {
			t.Errorf("expected connection to B, got %v", cur)
		}
	})
}

func TestController_Disconnect(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]
	cues := testCues(2)

	h := setupTestController(cues)
	conn := h.connect(ws)
	if err := h.ctrl.SelectCueRow(1); err != nil {
		t.Fatalf("select cue: %v", err)
	}
	if err := h.ctrl.StartCue(cues[0]); err != nil {
		t.Fatalf("start cue: %v", err)
	}

	h.ctrl.Disconnect()

	st := h.ctrl.SessionState()
	if st.CurrentWorkspace != nil || st.CurrentCue != nil || st.SelectedCue != nil {
		t.Errorf("state not cleared: %+v", st)
	}
	if !st.UserDisconnectedManually {
		t.Error("manual flag should be set")
	}
	if conn.disconnects != 1 {
		t.Errorf("expected 1 disconnect call, got %d", conn.disconnects)
	}
	if h.presenter.status != "" || !h.presenter.shadowVisible || h.presenter.cues != nil {
		t.Errorf("presentation not reset: status=%q shadow=%t cues=%v",
			h.presenter.status, h.presenter.shadowVisible, h.presenter.cues)
	}
	if h.presenter.currentCue != nil {
		t.Error("presenter still shows a current cue")
	}

	t.Run("idempotent", func(t *testing.T) {
		events := len(h.presenter.events)
		h.ctrl.Disconnect()

		if conn.disconnects != 1 {
			t.Errorf("second disconnect called the workspace again (%d)", conn.disconnects)
		}
		if len(h.presenter.events) != events {
			t.Errorf("second disconnect emitted signals: %v", h.presenter.events[events:])
		}
	})
}

func TestController_SelectWorkspace(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover()

		err := h.ctrl.SelectWorkspace(0)
		if !errors.Is(err, model.ErrEmptyServerList) {
			t.Errorf("expected ErrEmptyServerList, got %v", err)
		}
		if !h.presenter.has("error:empty-workspaces") {
			t.Error("expected empty workspace signal")
		}
	})

	t.Run("out of range", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A", "B"))

		for _, i := range []int{-1, 2} {
			if err := h.ctrl.SelectWorkspace(i); !errors.Is(err, model.ErrIndexOutOfRange) {
				t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", i, err)
			}
		}
		if len(h.dialer.dials) != 0 {
			t.Error("out of range selection dialed")
		}
	})

	t.Run("connects directly when disconnected", func(t *testing.T) {
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A", "B"))

		if err := h.ctrl.SelectWorkspace(1); err != nil {
			t.Fatalf("select: %v", err)
		}
		if len(h.presenter.confirms) != 0 {
			t.Error("no confirmation expected while disconnected")
		}
		if h.dialer.last().workspace.ID != "B" {
			t.Errorf("expected dial to B, got %s", h.dialer.last().workspace.ID)
		}
	})

	setupConnected := func(t *testing.T) (*testHarness, *fakeConn) {
		t.Helper()
		h := setupTestController(nil)
		h.discover(testServer("Museo", 53000, "A", "B"))
		if err := h.ctrl.SelectWorkspace(0); err != nil {
			t.Fatalf("select: %v", err)
		}
		conn := h.dialer.last()
		conn.complete(nil)
		h.disp.Drain()
		return h, conn
	}

	t.Run("declined confirmation keeps connection", func(t *testing.T) {
		h, conn := setupConnected(t)

		if err := h.ctrl.SelectWorkspace(1); err != nil {
			t.Fatalf("select: %v", err)
		}
		if len(h.presenter.confirms) != 1 || h.presenter.confirms[0] != "Show A" {
			t.Fatalf("expected confirmation for Show A, got %v", h.presenter.confirms)
		}

		h.presenter.answers[0](false)
		h.disp.Drain()

		if conn.disconnects != 0 {
			t.Error("declined switch disconnected the workspace")
		}
		if len(h.dialer.dials) != 1 {
			t.Error("declined switch dialed")
		}
		if cur := h.ctrl.SessionState().CurrentWorkspace; cur == nil || cur.ID != "A" {
			t.Errorf("expected to stay on A, got %v", cur)
		}
	})

	t.Run("confirmed switch", func(t *testing.T) {
		h, conn := setupConnected(t)

		if err := h.ctrl.SelectWorkspace(1); err != nil {
			t.Fatalf("select: %v", err)
		}
		h.presenter.answers[0](true)
		h.disp.Drain()

		if conn.disconnects != 1 {
			t.Errorf("expected old connection closed, got %d", conn.disconnects)
		}
		if h.ctrl.SessionState().UserDisconnectedManually {
			t.Error("switching is not a manual disconnect")
		}
		if h.dialer.last().workspace.ID != "B" {
			t.Errorf("expected dial to B, got %s", h.dialer.last().workspace.ID)
		}

		// Answering twice has no further effect.
		h.presenter.answers[0](true)
		h.disp.Drain()
		if len(h.dialer.dials) != 2 {
			t.Errorf("expected 2 dials, got %d", len(h.dialer.dials))
		}
	})

	t.Run("target vanished before confirmation", func(t *testing.T) {
		h, conn := setupConnected(t)

		if err := h.ctrl.SelectWorkspace(1); err != nil {
			t.Fatalf("select: %v", err)
		}
		h.discover(testServer("Museo", 53000, "A", "C"))
		h.presenter.answers[0](true)
		h.disp.Drain()

		if conn.disconnects != 0 {
			t.Error("connection dropped for a vanished target")
		}
		if !h.presenter.has("error:empty-workspaces") {
			t.Error("expected a workspace alert")
		}
	})
}

func TestController_StartCue(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]
	cues := testCues(3)

	t.Run("not connected", func(t *testing.T) {
		h := setupTestController(cues)
		if err := h.ctrl.StartCue(cues[0]); !errors.Is(err, model.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("current cue set while disconnected")
		}
	})

	t.Run("duration timer clears cue", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		if err := h.ctrl.StartCue(cues[0]); err != nil {
			t.Fatalf("start: %v", err)
		}
		if len(conn.started) != 1 || !conn.started[0].Equal(cues[0]) {
			t.Errorf("expected start of cue-1, got %v", conn.started)
		}
		q := conn.lastQuery()
		if q.key != DurationKey {
			t.Errorf("expected %q query, got %q", DurationKey, q.key)
		}

		q.onResult(2.5, nil)
		h.disp.Drain()

		h.disp.Advance(2 * time.Second)
		if !h.ctrl.SessionState().CurrentCue.Equal(cues[0]) {
			t.Fatal("cue cleared before its duration")
		}
		h.disp.Advance(500 * time.Millisecond)
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("cue not cleared after its duration")
		}
	})

	t.Run("stale timer is a no-op", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.StartCue(cues[0])
		conn.lastQuery().onResult(5.0, nil)
		h.disp.Drain()

		h.ctrl.StartCue(cues[1])
		conn.lastQuery().onResult(10.0, nil)
		h.disp.Drain()

		h.disp.Advance(5 * time.Second)
		if cur := h.ctrl.SessionState().CurrentCue; !cur.Equal(cues[1]) {
			t.Fatalf("first cue's timer cleared the second cue, current=%v", cur)
		}
		h.disp.Advance(5 * time.Second)
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("second cue not cleared")
		}
	})

	t.Run("late duration reply still arms a timer", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.StartCue(cues[0])
		first := conn.lastQuery()
		h.ctrl.StartCue(cues[1])

		first.onResult(1.0, nil)
		h.disp.Drain()
		if n := h.disp.pendingTimers(); n != 1 {
			t.Fatalf("expected 1 pending timer, got %d", n)
		}

		h.disp.Advance(time.Second)
		if !h.ctrl.SessionState().CurrentCue.Equal(cues[1]) {
			t.Error("stale timer cleared the current cue")
		}
	})

	for _, tc := range []struct {
		name  string
		value any
		err   error
	}{
		{name: "non-numeric", value: "long"},
		{name: "lookup failed", err: errors.New("no reply")},
		{name: "negative", value: -1.0},
		{name: "missing", value: nil},
	} {
		t.Run("no timer when "+tc.name, func(t *testing.T) {
			h := setupTestController(cues)
			conn := h.connect(ws)

			h.ctrl.StartCue(cues[0])
			conn.lastQuery().onResult(tc.value, tc.err)
			h.disp.Drain()

			if n := h.disp.pendingTimers(); n != 0 {
				t.Errorf("expected no timers, got %d", n)
			}
			if !h.ctrl.SessionState().CurrentCue.Equal(cues[0]) {
				t.Error("current cue should stay set")
			}
		})
	}
}

func TestDurationOf(t *testing.T) {
	tests := []struct {
		value any
		want  time.Duration
		ok    bool
	}{
		{float64(1.5), 1500 * time.Millisecond, true},
		{float32(2), 2 * time.Second, true},
		{int32(3), 3 * time.Second, true},
		{0.0, 0, true},
		{-0.5, 0, false},
		{"3", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.value), func(t *testing.T) {
			got, ok := durationOf(tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("durationOf(%v) = %v, %t; want %v, %t", tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestController_Stops(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]
	cues := testCues(3)

	t.Run("stop selected clears matching current cue", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.SelectCueRow(0)
		h.ctrl.StartCue(cues[0])
		if err := h.ctrl.StopSelectedCue(); err != nil {
			t.Fatalf("stop selected: %v", err)
		}

		if len(conn.stopped) != 1 || !conn.stopped[0].Equal(cues[0]) {
			t.Errorf("expected stop of cue-1, got %v", conn.stopped)
		}
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("current cue not cleared")
		}
	})

	t.Run("stop selected keeps other current cue", func(t *testing.T) {
		h := setupTestController(cues)
		h.connect(ws)

		h.ctrl.SelectCueRow(1)
		h.ctrl.StartCue(cues[0])
		h.ctrl.StopSelectedCue()

		if !h.ctrl.SessionState().CurrentCue.Equal(cues[0]) {
			t.Error("current cue cleared by stopping a different cue")
		}
	})

	t.Run("stop current", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.StartCue(cues[2])
		if err := h.ctrl.StopCurrentCue(); err != nil {
			t.Fatalf("stop current: %v", err)
		}

		if len(conn.stopped) != 1 || !conn.stopped[0].Equal(cues[2]) {
			t.Errorf("expected stop of cue-3, got %v", conn.stopped)
		}
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("current cue not cleared")
		}
	})

	t.Run("stop all", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.StartCue(cues[1])
		if err := h.ctrl.StopAll(); err != nil {
			t.Fatalf("stop all: %v", err)
		}

		if conn.stopAlls != 1 {
			t.Errorf("expected 1 stop-all, got %d", conn.stopAlls)
		}
		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("current cue not cleared")
		}
	})

	t.Run("disconnected", func(t *testing.T) {
		h := setupTestController(cues)
		if err := h.ctrl.StopAll(); !errors.Is(err, model.ErrNotConnected) {
			t.Errorf("stop all: expected ErrNotConnected, got %v", err)
		}
		if err := h.ctrl.StopSelectedCue(); !errors.Is(err, model.ErrNotConnected) {
			t.Errorf("stop selected: expected ErrNotConnected, got %v", err)
		}
		if _, err := h.ctrl.RefreshCueList(); !errors.Is(err, model.ErrNotConnected) {
			t.Errorf("refresh: expected ErrNotConnected, got %v", err)
		}
	})
}

func TestController_CueUpdateDebounce(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]

	t.Run("burst renders once", func(t *testing.T) {
		h := setupTestController(testCues(1))
		conn := h.connect(ws)
		before := h.presenter.cueRenders

		for i := 0; i < 3; i++ {
			conn.onCueUpdated()
			h.disp.Drain()
			h.disp.Advance(4 * time.Millisecond)
		}
		if h.presenter.cueRenders != before {
			t.Fatal("rendered before the burst settled")
		}

		h.disp.Advance(DefaultCueDebounce)
		if got := h.presenter.cueRenders - before; got != 1 {
			t.Errorf("expected exactly 1 render, got %d", got)
		}
	})

	t.Run("spaced updates render each", func(t *testing.T) {
		h := setupTestController(testCues(1))
		conn := h.connect(ws)
		before := h.presenter.cueRenders

		conn.onCueUpdated()
		h.disp.Advance(60 * time.Millisecond)
		conn.onCueUpdated()
		h.disp.Advance(60 * time.Millisecond)

		if got := h.presenter.cueRenders - before; got != 2 {
			t.Errorf("expected 2 renders, got %d", got)
		}
	})

	t.Run("updates from a closed connection are ignored", func(t *testing.T) {
		h := setupTestController(testCues(1))
		conn := h.connect(ws)
		h.ctrl.Disconnect()
		before := h.presenter.cueRenders

		conn.onCueUpdated()
		h.disp.Advance(time.Second)

		if h.presenter.cueRenders != before {
			t.Error("stale connection triggered a render")
		}
	})
}

func TestController_Discovery(t *testing.T) {
	cues := testCues(2)

	t.Run("clears current cue", func(t *testing.T) {
		h := setupTestController(cues)
		h.discover(testServer("Museo", 53000, "A", "B"))
		h.ctrl.SelectWorkspace(0)
		h.dialer.last().complete(nil)
		h.disp.Drain()

		h.ctrl.StartCue(cues[0])
		h.discover(testServer("Museo", 53000, "A", "B"))

		if h.ctrl.SessionState().CurrentCue != nil {
			t.Error("discovery update should clear the current cue")
		}
		if h.ctrl.State() != model.ConnectionStateConnected {
			t.Error("listed workspace should stay connected")
		}
	})

	t.Run("vanished workspace is dropped", func(t *testing.T) {
		h := setupTestController(cues)
		h.discover(testServer("Museo", 53000, "A"))
		conn := h.dialer.last()
		conn.complete(nil)
		h.disp.Drain()

		h.discover(testServer("Museo", 53000, "B"))

		if conn.disconnects != 1 {
			t.Errorf("expected vanished workspace to be closed, got %d", conn.disconnects)
		}
		if h.ctrl.SessionState().UserDisconnectedManually {
			t.Error("vanishing is not a manual disconnect")
		}
		// The new sole workspace is joined.
		if h.dialer.last().workspace.ID != "B" {
			t.Errorf("expected auto-connect to B, got %s", h.dialer.last().workspace.ID)
		}
	})

	t.Run("workspaces changed merges by server", func(t *testing.T) {
		h := setupTestController(nil, func(c *Config) { c.DisableAutoConnect = true })
		h.discover(testServer("Museo", 53000, "A"), testServer("Foyer", 53001, "B"))

		h.ctrl.OnWorkspacesChanged(testServer("Foyer", 53001, "B", "C"))
		h.ctrl.OnWorkspacesChanged(testServer("Lab", 53002, "D"))

		var ids []string
		for _, ws := range h.presenter.workspaces {
			ids = append(ids, ws.ID)
		}
		if fmt.Sprint(ids) != "[A B C D]" {
			t.Errorf("unexpected workspace order %v", ids)
		}
	})
}

func TestController_Intents(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]
	cues := testCues(3)

	t.Run("go starts selected row", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.SelectCueRow(2)
		if err := h.ctrl.PressGo(); err != nil {
			t.Fatalf("go: %v", err)
		}
		if !conn.started[0].Equal(cues[2]) {
			t.Errorf("expected cue-3, got %v", conn.started[0])
		}
	})

	t.Run("go falls back to first cue", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		if err := h.ctrl.PressGo(); err != nil {
			t.Fatalf("go: %v", err)
		}
		if !conn.started[0].Equal(cues[0]) {
			t.Errorf("expected cue-1, got %v", conn.started[0])
		}
	})

	t.Run("go with empty cue list", func(t *testing.T) {
		h := setupTestController(nil)
		h.connect(ws)

		if err := h.ctrl.PressGo(); !errors.Is(err, model.ErrEmptyCueList) {
			t.Errorf("expected ErrEmptyCueList, got %v", err)
		}
		if !h.presenter.has("error:empty-cues") {
			t.Error("expected empty cue list signal")
		}
	})

	t.Run("go while disconnected", func(t *testing.T) {
		h := setupTestController(cues)

		if err := h.ctrl.PressGo(); !errors.Is(err, model.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if !h.presenter.has("error:not-connected") {
			t.Error("expected not connected signal")
		}
	})

	t.Run("select cue row out of range", func(t *testing.T) {
		h := setupTestController(cues)
		h.connect(ws)

		if err := h.ctrl.SelectCueRow(3); !errors.Is(err, model.ErrIndexOutOfRange) {
			t.Errorf("expected ErrIndexOutOfRange, got %v", err)
		}
	})

	t.Run("refresh renders current list", func(t *testing.T) {
		h := setupTestController(cues)
		h.connect(ws)
		before := h.presenter.cueRenders

		if err := h.ctrl.PressRefresh(); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if h.presenter.cueRenders != before+1 || len(h.presenter.cues) != 3 {
			t.Errorf("expected a render of 3 cues, got %d renders / %d cues",
				h.presenter.cueRenders-before, len(h.presenter.cues))
		}
	})

	t.Run("disconnect asks first", func(t *testing.T) {
		h := setupTestController(cues)
		conn := h.connect(ws)

		h.ctrl.PressDisconnect()
		if len(h.presenter.confirms) != 1 {
			t.Fatalf("expected a confirmation, got %d", len(h.presenter.confirms))
		}

		h.presenter.answers[0](false)
		h.disp.Drain()
		if conn.disconnects != 0 {
			t.Fatal("declined disconnect closed the connection")
		}

		h.ctrl.PressDisconnect()
		h.presenter.answers[1](true)
		h.disp.Drain()
		if conn.disconnects != 1 || !h.ctrl.SessionState().UserDisconnectedManually {
			t.Error("confirmed disconnect did not disconnect manually")
		}
	})

	t.Run("disconnect while disconnected", func(t *testing.T) {
		h := setupTestController(cues)
		h.ctrl.PressDisconnect()

		if len(h.presenter.confirms) != 0 {
			t.Error("no confirmation expected")
		}
		if !h.ctrl.SessionState().UserDisconnectedManually {
			t.Error("manual flag should be set")
		}
	})
}

func TestController_Snapshot(t *testing.T) {
	h := setupTestController(testCues(2))
	h.discover(testServer("Museo", 53000, "A"))

	snap := h.ctrl.Snapshot()
	if snap.State != model.ConnectionStateConnecting || snap.PendingWorkspace == nil {
		t.Errorf("expected connecting snapshot, got %+v", snap)
	}
	if !snap.ShadowVisible {
		t.Error("shadow should be visible before connecting")
	}

	h.dialer.last().complete(nil)
	h.disp.Drain()

	snap = h.ctrl.Snapshot()
	if snap.State != model.ConnectionStateConnected || len(snap.Cues) != 2 || len(snap.Workspaces) != 1 {
		t.Errorf("unexpected connected snapshot %+v", snap)
	}
	if snap.Status != "Connected: Show A (Museo)" {
		t.Errorf("unexpected status %q", snap.Status)
	}
}

func TestController_Close(t *testing.T) {
	ws := testServer("Museo", 53000, "A").Workspaces[0]
	cues := testCues(1)
	h := setupTestController(cues)
	conn := h.connect(ws)

	h.ctrl.StartCue(cues[0])
	conn.lastQuery().onResult(30.0, nil)
	conn.onCueUpdated()
	h.disp.Drain()

	h.ctrl.Close()

	if n := h.disp.pendingTimers(); n != 0 {
		t.Errorf("expected all timers stopped, got %d", n)
	}
	if conn.disconnects != 1 {
		t.Errorf("expected connection closed, got %d", conn.disconnects)
	}

	h.discover(testServer("Museo", 53000, "A"))
	if len(h.dialer.dials) != 1 {
		t.Error("closed controller dialed")
	}
}
