package sessions

import "context"

// Store is the interface for session persistence. Implementations are
// write-through: Put and Delete make the change durable before returning.
// Persistence failures are reported but callers treat them as best-effort;
// the in-memory view of a session always wins over what is on disk.
type Store interface {
	// Get returns the session for a user, or ErrNotFound.
	Get(ctx context.Context, userID int64) (*Session, error)

	// Put creates or replaces a user's session.
	Put(ctx context.Context, session *Session) error

	// Delete removes a user's session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, userID int64) error

	// List returns all sessions, in no particular order.
	List(ctx context.Context) ([]*Session, error)

	// Close releases underlying resources.
	Close() error
}
