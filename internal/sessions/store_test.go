package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: got %v, want ErrNotFound", err)
	}

	session := &Session{UserID: 42, ResumeToken: "tok-1", LastActivity: time.Now()}
	if err := store.Put(ctx, session); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Mutating the caller's copy must not affect the stored one.
	session.ResumeToken = "mutated"

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResumeToken != "tok-1" {
		t.Errorf("ResumeToken = %q, want %q", got.ResumeToken, "tok-1")
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, 42); err != nil {
		t.Errorf("Delete of absent session: %v", err)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "sessions.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	activity := time.Now().Truncate(time.Millisecond)
	if err := store.Put(ctx, &Session{UserID: 7, ResumeToken: "tok-7", LastActivity: activity}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, &Session{UserID: 9, ResumeToken: "tok-9", LastActivity: activity}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, err := reopened.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.UserID != 7 || got.ResumeToken != "tok-7" {
		t.Errorf("got %+v, want user 7 with token tok-7", got)
	}

	all, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List returned %d sessions, want 2", len(all))
	}
}

func TestFileStoreDeleteRewritesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(ctx, &Session{UserID: 1, ResumeToken: "tok"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete and reopen: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	activity := time.Now().Truncate(time.Millisecond)
	if err := store.Put(ctx, &Session{UserID: 3, ResumeToken: "tok-3", LastActivity: activity}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Second Put is an upsert.
	if err := store.Put(ctx, &Session{UserID: 3, ResumeToken: "tok-3b", LastActivity: activity}); err != nil {
		t.Fatalf("Put (upsert): %v", err)
	}

	got, err := store.Get(ctx, 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ResumeToken != "tok-3b" {
		t.Errorf("ResumeToken = %q, want %q", got.ResumeToken, "tok-3b")
	}
	if !got.LastActivity.Equal(activity) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, activity)
	}

	if err := store.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}
}
