package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chat-core/internal/logging"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            title TEXT NOT NULL CHECK (title <> ''),
            room_type TEXT NOT NULL DEFAULT 'group',
            created_by INT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS room_members (
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'text',
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages (room_id, created_at, id);`,
		`CREATE TABLE IF NOT EXISTS read_markers (
            user_id INT NOT NULL,
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            last_read_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY(user_id, room_id)
        );`,
		`CREATE TABLE IF NOT EXISTS mute_prefs (
            user_id INT NOT NULL,
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            muted BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY(user_id, room_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logging.L().Info().Msg("database migrations applied")
	return nil
}
