package model

import "errors"

var (
	// ErrEmptyServerList is returned when a workspace is selected while discovery reports none.
	ErrEmptyServerList = errors.New("server list contains no workspaces")

	// ErrEmptyCueList is returned when a cue is started while the workspace has no cues.
	ErrEmptyCueList = errors.New("workspace contains no cues")

	// ErrNotConnected is returned when a cue operation is issued without a connected workspace.
	ErrNotConnected = errors.New("not connected to a workspace")

	// ErrConnectionFailed is returned when the remote workspace rejects or never answers a connect.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrBadPasscode is returned when the workspace refuses the supplied passcode.
	ErrBadPasscode = errors.New("incorrect passcode")

	// ErrIndexOutOfRange is returned when a row index does not reference a listed item.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrLoopClosed is returned when an intent is posted after the controller loop stopped.
	ErrLoopClosed = errors.New("controller loop closed")
)
