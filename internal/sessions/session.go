// Package sessions persists per-user conversation state. A session is the
// durable half of a user's timeline: the opaque resume token handed back by
// the agent engine and the last-activity timestamp. Run handles and interrupt
// flags are runtime state owned by the runner and are never stored here.
package sessions

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for a user.
var ErrNotFound = errors.New("session not found")

// Session is one user's durable conversation record.
type Session struct {
	// UserID is the stable identity of the human principal.
	UserID int64 `json:"-"`

	// ResumeToken identifies a resumable engine conversation. Empty means a
	// fresh conversation.
	ResumeToken string `json:"resume_token"`

	// LastActivity is when the user's last run completed or was cancelled.
	// Observability only; nothing expires on it.
	LastActivity time.Time `json:"last_activity"`
}

// Clone returns a copy so callers cannot mutate store internals.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
