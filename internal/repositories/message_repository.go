package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// MessageRepository defines interactions with a room's append-only log.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID int, senderID int, kind, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	// ListOlderThan returns up to limit messages older than the cursor
	// (newest page when cursor is nil), presented oldest-first.
	ListOlderThan(ctx context.Context, roomID int, cursor *Cursor, limit int) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID int, roomID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message; created_at is server-assigned.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID int, senderID int, kind, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (room_id, sender_id, kind, content) VALUES ($1, $2, $3, $4) RETURNING id, room_id, sender_id, kind, content, created_at`, roomID, senderID, kind, content).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, room_id, sender_id, kind, content, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListOlderThan fetches one backward page. Ordering and the cursor bound use
// the (created_at, id) pair so pages concatenate with no duplicates or gaps.
func (r *MessageRepo) ListOlderThan(ctx context.Context, roomID int, cursor *Cursor, limit int) ([]models.Message, error) {
	var msgs []models.Message
	var err error
	if cursor == nil {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, room_id, sender_id, kind, content, created_at
            FROM messages WHERE room_id=$1
            ORDER BY created_at DESC, id DESC LIMIT $2`, roomID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs, `SELECT id, room_id, sender_id, kind, content, created_at
            FROM messages WHERE room_id=$1 AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC LIMIT $4`, roomID, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}

	// descending fetch, ascending presentation
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// UnreadCount counts messages newer than the user's read marker. A user with
// no marker has an unread count of zero.
func (r *MessageRepo) UnreadCount(ctx context.Context, userID int, roomID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        INNER JOIN read_markers rm ON rm.room_id = m.room_id AND rm.user_id=$1
        WHERE m.room_id=$2 AND m.created_at > rm.last_read_at`, userID, roomID)
	return count, err
}
