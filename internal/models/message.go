package models

import "time"

// Message payload kinds.
const (
	MessageKindText  = "text"
	MessageKindImage = "image"
)

// Message is an entry in a room's append-only log. Content holds the text for
// text messages and the blob URL for image messages. Entries are never
// mutated after creation; per-reader state lives in read_markers.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	RoomID    int       `db:"room_id" json:"room_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Kind      string    `db:"kind" json:"kind"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageEvent is broadcast on a room's live-tail stream.
type MessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}
