package models

import "time"

// Room types.
const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Room is a named conversation container.
type Room struct {
	ID        int       `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Type      string    `db:"room_type" json:"type"`
	CreatedBy int       `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership is the relation and role of a user within a room.
type Membership struct {
	RoomID   int       `db:"room_id" json:"room_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomSummary is the API-friendly view used by the room list.
type RoomSummary struct {
	RoomID    int       `db:"id" json:"room_id"`
	Title     string    `db:"title" json:"title"`
	Type      string    `db:"room_type" json:"type"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomEvent is emitted on a user's room-list stream.
type RoomEvent struct {
	Type string       `json:"type"`
	Room *RoomSummary `json:"room,omitempty"`
}
