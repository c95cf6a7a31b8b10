package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// PrefRepository holds per-user, per-room state: read markers and mute flags.
type PrefRepository interface {
	MarkRead(ctx context.Context, userID int, roomID int) (models.ReadMarker, error)
	GetReadMarker(ctx context.Context, userID int, roomID int) (*models.ReadMarker, error)
	SetMuted(ctx context.Context, userID int, roomID int, muted bool) error
	IsMuted(ctx context.Context, userID int, roomID int) (bool, error)
}

// PrefRepo is a sqlx implementation of PrefRepository.
type PrefRepo struct {
	db *sqlx.DB
}

// NewPrefRepo constructs a PrefRepo.
func NewPrefRepo(db *sqlx.DB) *PrefRepo {
	return &PrefRepo{db: db}
}

// MarkRead upserts the watermark to the current server time.
func (r *PrefRepo) MarkRead(ctx context.Context, userID int, roomID int) (models.ReadMarker, error) {
	var marker models.ReadMarker
	err := r.db.QueryRowxContext(ctx, `INSERT INTO read_markers (user_id, room_id, last_read_at) VALUES ($1, $2, NOW())
        ON CONFLICT (user_id, room_id) DO UPDATE SET last_read_at = NOW()
        RETURNING user_id, room_id, last_read_at`, userID, roomID).
		StructScan(&marker)
	return marker, err
}

// GetReadMarker returns the marker, or nil when the user never read the room.
func (r *PrefRepo) GetReadMarker(ctx context.Context, userID int, roomID int) (*models.ReadMarker, error) {
	var marker models.ReadMarker
	err := r.db.GetContext(ctx, &marker, `SELECT user_id, room_id, last_read_at FROM read_markers WHERE user_id=$1 AND room_id=$2`, userID, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &marker, nil
}

// SetMuted upserts the mute preference.
func (r *PrefRepo) SetMuted(ctx context.Context, userID int, roomID int, muted bool) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO mute_prefs (user_id, room_id, muted) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, room_id) DO UPDATE SET muted = EXCLUDED.muted`, userID, roomID, muted)
	return err
}

// IsMuted reports the preference, defaulting to false.
func (r *PrefRepo) IsMuted(ctx context.Context, userID int, roomID int) (bool, error) {
	var muted bool
	err := r.db.GetContext(ctx, &muted, `SELECT muted FROM mute_prefs WHERE user_id=$1 AND room_id=$2`, userID, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return muted, err
}
