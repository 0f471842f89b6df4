package ws

import "encoding/json"

// MessageType names a frame of the operator protocol.
type MessageType string

// Operator requests.
const (
	MessageTypeSelectServer MessageType = "select_server"
	MessageTypeSelectCue    MessageType = "select_cue"
	MessageTypeGo           MessageType = "go"
	MessageTypeStopAll      MessageType = "stop_all"
	MessageTypeStopSelected MessageType = "stop_selected"
	MessageTypeStopCurrent  MessageType = "stop_current"
	MessageTypeRefresh      MessageType = "refresh"
	MessageTypeDisconnect   MessageType = "disconnect"
	MessageTypeConfirmReply MessageType = "confirm_reply"
	MessageTypePing         MessageType = "ping"
)

// Controller events and replies.
const (
	MessageTypeState         MessageType = "state"
	MessageTypeServers       MessageType = "servers"
	MessageTypeCues          MessageType = "cues"
	MessageTypeCurrentCue    MessageType = "current_cue"
	MessageTypeStatus        MessageType = "status"
	MessageTypeShadow        MessageType = "shadow"
	MessageTypeAlert         MessageType = "alert"
	MessageTypeConfirm       MessageType = "confirm"
	MessageTypeConfirmClosed MessageType = "confirm_closed"
	MessageTypeActivity      MessageType = "activity"
	MessageTypeActivityLog   MessageType = "activity_log"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Message is one JSON frame in either direction. Only the fields meaningful
// for Type are set.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Index     *int            `json:"index,omitempty"`
	Confirmed bool            `json:"confirmed,omitempty"`
	Title     string          `json:"title,omitempty"`
	Text      string          `json:"text,omitempty"`
	Visible   *bool           `json:"visible,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}
