package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id       INTEGER PRIMARY KEY,
	resume_token  TEXT NOT NULL DEFAULT '',
	last_activity INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore keeps sessions in a local SQLite database. Suitable when the
// state directory lives on a volume shared across restarts and the flat-file
// store's full-document rewrites become a liability.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sessions: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT resume_token, last_activity FROM sessions WHERE user_id = ?`, userID)

	var token string
	var activity int64
	if err := row.Scan(&token, &activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessions: query user %d: %w", userID, err)
	}
	return &Session{
		UserID:       userID,
		ResumeToken:  token,
		LastActivity: time.UnixMilli(activity),
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, resume_token, last_activity) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   resume_token = excluded.resume_token,
		   last_activity = excluded.last_activity`,
		session.UserID, session.ResumeToken, session.LastActivity.UnixMilli())
	if err != nil {
		return fmt.Errorf("sessions: upsert user %d: %w", session.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sessions: delete user %d: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, resume_token, last_activity FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var userID, activity int64
		var token string
		if err := rows.Scan(&userID, &token, &activity); err != nil {
			return nil, fmt.Errorf("sessions: scan: %w", err)
		}
		out = append(out, &Session{
			UserID:       userID,
			ResumeToken:  token,
			LastActivity: time.UnixMilli(activity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
