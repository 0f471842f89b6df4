package model

// ConnectionState represents where the controller is in its connection lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// SessionState is the selection and connection state owned by one controller.
type SessionState struct {
	// CurrentWorkspace is the connected workspace, nil while disconnected or connecting.
	CurrentWorkspace *Workspace

	// SelectedCue is the operator's list selection; it is not necessarily playing.
	SelectedCue *Cue

	// CurrentCue is the cue tracked as playing until its duration elapses or it is stopped.
	CurrentCue *Cue

	// UserDisconnectedManually suppresses auto-connect after a deliberate disconnect.
	UserDisconnectedManually bool
}

// Snapshot is a point-in-time view of the controller for the presentation layer.
type Snapshot struct {
	State                    ConnectionState `json:"state"`
	Status                   string          `json:"status"`
	ShadowVisible            bool            `json:"shadowVisible"`
	Workspaces               []*Workspace    `json:"workspaces"`
	Cues                     []*Cue          `json:"cues"`
	CurrentWorkspace         *Workspace      `json:"currentWorkspace,omitempty"`
	PendingWorkspace         *Workspace      `json:"pendingWorkspace,omitempty"`
	SelectedCue              *Cue            `json:"selectedCue,omitempty"`
	CurrentCue               *Cue            `json:"currentCue,omitempty"`
	UserDisconnectedManually bool            `json:"userDisconnectedManually"`
}
