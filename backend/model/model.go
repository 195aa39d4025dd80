package model

import "encoding/json"

// Frame types understood by the relay.
const (
	FrameJoin     = "join"
	FrameLeave    = "leave"
	FrameMessage  = "message"
	FramePresence = "presence"
	FrameOffer    = "offer"
	FrameAnswer   = "answer"
	FrameICE      = "ice"
)

// Chat message kinds.
const (
	KindText  = "text"
	KindVoice = "voice"
)

// Frame is the single wire record exchanged over a relay connection.
// Type is mandatory; the remaining fields are populated per frame type.
type Frame struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Username string          `json:"username,omitempty"`
	Text     string          `json:"text,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	To       string          `json:"to,omitempty"`
	From     string          `json:"from,omitempty"`
	ID       string          `json:"id,omitempty"`
	TS       int64           `json:"ts,omitempty"`
	Users    []PresenceEntry `json:"users,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"` // negotiation body, relayed verbatim
}

// PresenceEntry is one row of a room's presence list. One entry per joined
// connection; a user with two connections appears twice.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ChatMessage is the persisted unit of the per-room append-only log.
type ChatMessage struct {
	ID       string `json:"id"`
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Kind     string `json:"kind"`
	TS       int64  `json:"ts"`
}

// Wire carries outbound frames to a single connection's writer.
type Wire struct {
	TX chan Frame
}

func NewWire() Wire {
	return Wire{
		TX: make(chan Frame),
	}
}
