package boxauth

import (
	"context"
)

// Session is the uniform "produce a usable access token" contract. Both
// session variants implement it; callers needing only a bearer credential
// should depend on this interface.
type Session interface {
	// AccessToken returns a currently valid access token, refreshing
	// behind a single-flight lock when the cached one is too old.
	AccessToken(ctx context.Context, opts *RequestOptions) (string, error)

	// RevokeTokens invalidates the session's credential pair.
	RevokeTokens(ctx context.Context, opts *RequestOptions) error

	// ExchangeToken downscopes the session's access token.
	ExchangeToken(ctx context.Context, scopes []string, resource string, opts *ExchangeOptions) (TokenInfo, error)

	// HandleExpiredTokensError runs the expired-credential cleanup for a
	// terminal auth failure and returns the error to raise.
	HandleExpiredTokensError(ctx context.Context, cause error) error
}

// TokenStore is the external durable store a session mirrors its token state
// to. It is the coordination point between horizontally-scaled instances
// sharing one credential; implementations must tolerate concurrent access
// from multiple processes. Keying is the implementation's concern — one
// store value per session.
type TokenStore interface {
	// Read returns the stored snapshot, with found=false when the store
	// is empty.
	Read(ctx context.Context) (info TokenInfo, found bool, err error)

	// Write replaces the stored snapshot.
	Write(ctx context.Context, info TokenInfo) error

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error
}

var (
	_ Session = (*PersistentSession)(nil)
	_ Session = (*AppAuthSession)(nil)
)

// handleExpiredTokens clears the store so no instance reuses a dead
// credential, then hands back cause for the caller to raise. A store
// failure during cleanup replaces the original error — the store needs
// operator attention before anything else matters.
func handleExpiredTokens(ctx context.Context, store TokenStore, cause error) error {
	if store == nil {
		return cause
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	return cause
}
