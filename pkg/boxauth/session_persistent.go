package boxauth

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kunal-mandalia/box-node-sdk/pkg/idx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/slogx"
)

// PersistentSession serves access tokens for a long-lived, refresh-token
// bearing credential. When a TokenStore is attached, token state is mirrored
// through it so multiple instances sharing the credential can tolerate
// concurrent refresh races.
type PersistentSession struct {
	manager *TokenManager
	store   TokenStore
	id      string

	mu        sync.RWMutex
	tokenInfo TokenInfo

	refresh singleflight.Group
}

// NewPersistentSession builds a session from a previously obtained token
// pair. info must be complete: access token, refresh token, acquisition time
// and TTL. store may be nil for single-instance deployments.
func (m *TokenManager) NewPersistentSession(info TokenInfo, store TokenStore) (*PersistentSession, error) {
	if !info.complete() {
		return nil, errors.New("boxauth: token info must include access token, refresh token, acquisition time and TTL")
	}

	return &PersistentSession{
		manager:   m,
		store:     store,
		id:        idx.New().String(),
		tokenInfo: info,
	}, nil
}

// AccessToken returns the cached access token when it is still comfortably
// valid, and otherwise refreshes. No I/O happens on the fast path.
func (s *PersistentSession) AccessToken(ctx context.Context, opts *RequestOptions) (string, error) {
	s.mu.RLock()
	info := s.tokenInfo
	s.mu.RUnlock()

	if IsAccessTokenValidAt(info, s.manager.sessionBuffer(), s.manager.now()) {
		return info.AccessToken, nil
	}

	return s.refreshTokens(ctx, opts)
}

// refreshTokens refreshes behind a single-flight lock: concurrent callers
// arriving while a refresh is outstanding all receive that refresh's
// outcome, success or failure, instead of issuing duplicate grants. The
// in-flight slot is released unconditionally once the refresh resolves.
func (s *PersistentSession) refreshTokens(ctx context.Context, opts *RequestOptions) (string, error) {
	token, err, _ := s.refresh.Do("refresh", func() (any, error) {
		return s.doRefresh(ctx, opts)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *PersistentSession) doRefresh(ctx context.Context, opts *RequestOptions) (string, error) {
	ctx = slogx.WithSession(ctx, s.id)

	s.mu.RLock()
	current := s.tokenInfo.RefreshToken
	s.mu.RUnlock()

	info, err := s.manager.TokensRefreshGrant(ctx, current, opts)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) && s.store != nil {
			token, adopted, raceErr := s.adoptFromStore(ctx, current)
			if raceErr != nil {
				return "", s.HandleExpiredTokensError(ctx, raceErr)
			}
			if adopted {
				return token, nil
			}
		}
		return "", s.HandleExpiredTokensError(ctx, err)
	}

	// Persist before updating the local cache so a crash between the two
	// never leaves the store behind the instance that refreshed.
	if s.store != nil {
		if err := s.store.Write(ctx, info); err != nil {
			return "", s.HandleExpiredTokensError(ctx, err)
		}
	}

	s.mu.Lock()
	s.tokenInfo = info
	s.mu.Unlock()

	return info.AccessToken, nil
}

// adoptFromStore resolves an invalid_grant against the shared store. A store
// holding a different refresh token means a sibling instance already
// refreshed; adopt its state. A store holding the token that just failed, or
// nothing at all, means the credential is genuinely dead.
func (s *PersistentSession) adoptFromStore(ctx context.Context, failedRefreshToken string) (string, bool, error) {
	stored, found, err := s.store.Read(ctx)
	if err != nil {
		return "", false, err
	}
	if !found || stored.RefreshToken == "" || stored.RefreshToken == failedRefreshToken {
		return "", false, nil
	}

	slogx.FromContext(ctx).Info("adopted token state refreshed by a concurrent instance")

	s.mu.Lock()
	s.tokenInfo = stored
	s.mu.Unlock()

	return stored.AccessToken, true, nil
}

// RevokeTokens revokes via the refresh token; the endpoint invalidates both
// halves of the pair.
func (s *PersistentSession) RevokeTokens(ctx context.Context, opts *RequestOptions) error {
	s.mu.RLock()
	refreshToken := s.tokenInfo.RefreshToken
	s.mu.RUnlock()

	return s.manager.RevokeTokens(ctx, refreshToken, opts)
}

// ExchangeToken ensures a valid access token, then downscopes it.
func (s *PersistentSession) ExchangeToken(ctx context.Context, scopes []string, resource string, opts *ExchangeOptions) (TokenInfo, error) {
	accessToken, err := s.AccessToken(ctx, requestOptionsOf(opts))
	if err != nil {
		return TokenInfo{}, err
	}
	return s.manager.ExchangeToken(ctx, accessToken, scopes, resource, opts)
}

// HandleExpiredTokensError clears the shared store (when present) so no
// instance reuses the dead credential, then returns cause for raising.
func (s *PersistentSession) HandleExpiredTokensError(ctx context.Context, cause error) error {
	return handleExpiredTokens(ctx, s.store, cause)
}

func requestOptionsOf(opts *ExchangeOptions) *RequestOptions {
	if opts == nil {
		return nil
	}
	return &opts.RequestOptions
}
