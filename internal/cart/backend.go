package cart

import "context"

// UpdateFunc mutates a session's cart in place. known reports whether the
// session existed before the call. Returning an error discards the change.
type UpdateFunc func(c *Cart, known bool) error

// Backend stores carts by session id. Implementations are safe for
// concurrent use; Update is the only read-modify-write path.
type Backend interface {
	// Load returns the session's cart and whether the session is known.
	// Unknown sessions return an empty cart and false.
	Load(ctx context.Context, sessionID string) (*Cart, bool, error)

	// Save replaces the session's cart, registering the session if new.
	Save(ctx context.Context, sessionID string, c *Cart) error

	// Update runs fn on the session's cart and saves the result atomically,
	// registering the session if new. Concurrent updates of one session are
	// serialized. fn's error is returned unchanged.
	Update(ctx context.Context, sessionID string, fn UpdateFunc) error

	// Sessions lists every known session with its line count.
	Sessions(ctx context.Context) ([]SessionInfo, error)
}

// SessionInfo summarizes one session for diagnostics.
type SessionInfo struct {
	ID    string
	Lines int
}
