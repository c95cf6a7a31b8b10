package models

import "time"

// ReadMarker is a user's last-read watermark in a room.
type ReadMarker struct {
	UserID     int       `db:"user_id" json:"user_id"`
	RoomID     int       `db:"room_id" json:"room_id"`
	LastReadAt time.Time `db:"last_read_at" json:"last_read_at"`
}

// MutePreference is a per-user, per-room notification preference.
type MutePreference struct {
	UserID int  `db:"user_id" json:"user_id"`
	RoomID int  `db:"room_id" json:"room_id"`
	Muted  bool `db:"muted" json:"muted"`
}
