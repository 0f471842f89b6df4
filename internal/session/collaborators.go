package session

import (
	"github.com/remote-cue-control/backend/internal/model"
)

// DurationKey is the cue property queried to arm the duration-expiry timer.
const DurationKey = "duration"

// WorkspaceConn is the controller's handle on one remote workspace.
// Callbacks may fire on any goroutine; the controller re-posts them onto its
// loop.
type WorkspaceConn interface {
	// Connect opens the session. onComplete fires once with nil on success.
	Connect(passcode string, onComplete func(err error))

	// Disconnect closes the session. It must be safe to call at any time,
	// including while Connect is still in flight.
	Disconnect()

	// Start fires a cue.
	Start(cue *model.Cue)

	// Stop stops a single cue.
	Stop(cue *model.Cue)

	// StopAll stops everything playing in the workspace.
	StopAll()

	// QueryValue looks up a cue property. onResult fires once.
	QueryValue(cue *model.Cue, key string, onResult func(value any, err error))

	// Cues returns the workspace's authoritative cue list.
	Cues() []*model.Cue
}

// Dialer creates workspace connections. onCueUpdated is invoked whenever the
// remote side reports a cue change.
type Dialer interface {
	Dial(workspace *model.Workspace, onCueUpdated func()) WorkspaceConn
}

// Presenter receives the controller's outbound signals. Methods are called
// from the controller loop and must not block.
type Presenter interface {
	ServerListChanged(workspaces []*model.Workspace)
	CueListChanged(cues []*model.Cue)
	CurrentCueChanged(cue *model.Cue)
	ConnectionStatusChanged(text string)
	ShadowVisibilityChanged(visible bool)
	EmptyWorkspaceListError()
	EmptyCueListError()
	NotConnectedError()
	ConnectionFailed(workspace string, err error)

	// ConfirmDisconnect asks the operator whether to drop the named
	// workspace. answer must be called exactly once.
	ConfirmDisconnect(workspace string, answer func(ok bool))
}

// PasscodeFunc returns the passcode to present when connecting to a workspace.
type PasscodeFunc func(workspace *model.Workspace) string
