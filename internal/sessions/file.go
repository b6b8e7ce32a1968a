package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileStore persists sessions as a single JSON document, one entry per user,
// rewritten in full on every change. The file is written to a temp path and
// renamed so a crash mid-write never leaves a truncated document. A missing
// file on startup is a fresh install, not an error.
type FileStore struct {
	mu       sync.Mutex
	path     string
	sessions map[int64]*Session
}

// NewFileStore opens (or initializes) the store at path, loading any existing
// sessions. The parent directory is created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("sessions: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create state dir: %w", err)
	}

	store := &FileStore{
		path:     path,
		sessions: map[int64]*Session{},
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sessions: read %s: %w", f.path, err)
	}

	var raw map[string]*Session
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sessions: parse %s: %w", f.path, err)
	}

	for key, session := range raw {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || session == nil {
			continue
		}
		session.UserID = userID
		f.sessions[userID] = session
	}
	return nil
}

// flush rewrites the whole document. Must be called with f.mu held.
func (f *FileStore) flush() error {
	raw := make(map[string]*Session, len(f.sessions))
	for userID, session := range f.sessions {
		raw[strconv.FormatInt(userID, 10)] = session
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: encode: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("sessions: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("sessions: rename %s: %w", tmp, err)
	}
	return nil
}

func (f *FileStore) Get(ctx context.Context, userID int64) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

func (f *FileStore) Put(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[session.UserID] = session.Clone()
	return f.flush()
}

func (f *FileStore) Delete(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[userID]; !ok {
		return nil
	}
	delete(f.sessions, userID)
	return f.flush()
}

func (f *FileStore) List(ctx context.Context) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Session, 0, len(f.sessions))
	for _, session := range f.sessions {
		out = append(out, session.Clone())
	}
	return out, nil
}

func (f *FileStore) Close() error {
	return nil
}
