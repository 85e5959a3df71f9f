package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

// OpenDB opens (creating if needed) the embedded session database.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository bootstraps the sessions table. One row per
// conversation; the whole history is one JSON document replaced atomically
// on every write.
func NewSessionRepository(db *sql.DB) (*sessionRepository, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			key        TEXT PRIMARY KEY,
			chat_type  TEXT NOT NULL,
			chat_id    INTEGER NOT NULL,
			history    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating sessions table: %w", err)
	}
	return &sessionRepository{db: db}, nil
}

func (r *sessionRepository) Get(ctx context.Context, key domain.ConversationKey) ([]domain.Message, bool, error) {
	const query = `
		SELECT history
		FROM sessions
		WHERE key = $1
	`

	var raw string
	err := r.db.QueryRowContext(ctx, query, key.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetching session %s: %w", key, err)
	}

	var history []domain.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, false, fmt.Errorf("decoding session %s history: %w", key, err)
	}
	return history, true, nil
}

func (r *sessionRepository) Replace(ctx context.Context, key domain.ConversationKey, history []domain.Message) error {
	const query = `
		INSERT INTO sessions (key, chat_type, chat_id, history, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key)
		DO UPDATE SET
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`

	if history == nil {
		history = []domain.Message{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding session %s history: %w", key, err)
	}

	if _, err := r.db.ExecContext(ctx, query, key.String(), string(key.Type), key.ID, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("saving session %s: %w", key, err)
	}
	return nil
}
