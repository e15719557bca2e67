package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is the durable tier backed by the conversation_sessions table.
// Writes are idempotent: a row is only replaced by a payload with an equal or
// newer updated_at, so retried write-backs cannot clobber fresher state.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the durable tier over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("cache: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM conversation_sessions WHERE key = $1`,
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Write(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		WHERE conversation_sessions.updated_at <= EXCLUDED.updated_at
	`, key, value, updatedAt)
	if err != nil {
		return fmt.Errorf("cache: failed to write %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_sessions WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("cache: failed to delete %s: %w", key, err)
	}
	return nil
}
