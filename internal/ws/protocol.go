package ws

import (
	"github.com/camwatch/camwatch/internal/reactor"
)

type MessageType string

const (
	MsgSnapshot  MessageType = "snapshot"
	MsgStatus    MessageType = "status"
	MsgWarning   MessageType = "warning"
	MsgShortcuts MessageType = "shortcuts"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full view a client needs to render from scratch.
type SnapshotPayload struct {
	Status    reactor.Snapshot `json:"status"`
	Shortcuts []string         `json:"shortcuts"`
}

type WarningPayload struct {
	Message string `json:"message"`
}

type ShortcutsPayload struct {
	Shortcuts []string `json:"shortcuts"`
}
