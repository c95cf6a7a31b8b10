package models

import "time"

// TypingState is an ephemeral per-room, per-user flag. Writers refresh
// UpdatedAt on every assertion; readers ignore entries older than the
// staleness window even when IsTyping is still true.
type TypingState struct {
	RoomID    int       `json:"room_id"`
	UserID    int       `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypingEvent is broadcast on a room's typing stream.
type TypingEvent struct {
	Type     string `json:"type"`
	RoomID   int    `json:"room_id"`
	UserID   int    `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}
