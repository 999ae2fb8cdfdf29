package boxauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kunal-mandalia/box-node-sdk/pkg/idx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/slogx"
)

// AppAuthSession serves access tokens for a server-authentication identity
// (an app user or an enterprise service account). Tokens are minted on
// demand via the JWT bearer grant; there is no refresh token, so "refresh"
// always means a fresh grant.
type AppAuthSession struct {
	manager     *TokenManager
	store       TokenStore
	id          string
	subjectType string
	subjectID   string

	mu        sync.RWMutex
	tokenInfo TokenInfo

	refresh singleflight.Group
}

// NewAppAuthSession builds a session for the given identity. The manager
// must have AppAuth configured. store may be nil; when present it is
// consulted before the first grant so a restarted instance reuses tokens a
// sibling already obtained.
func (m *TokenManager) NewAppAuthSession(subjectType, subjectID string, store TokenStore) (*AppAuthSession, error) {
	if m.appAuth == nil {
		return nil, errors.New("boxauth: app auth is not configured")
	}
	if subjectType != jwtx.SubTypeUser && subjectType != jwtx.SubTypeEnterprise {
		return nil, fmt.Errorf("boxauth: invalid subject type %q", subjectType)
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, errors.New("boxauth: subject ID is empty")
	}

	return &AppAuthSession{
		manager:     m,
		store:       store,
		id:          idx.New().String(),
		subjectType: subjectType,
		subjectID:   subjectID,
	}, nil
}

// AccessToken returns the cached access token when it is still comfortably
// valid, and otherwise obtains one behind a single-flight lock.
func (s *AppAuthSession) AccessToken(ctx context.Context, opts *RequestOptions) (string, error) {
	s.mu.RLock()
	info := s.tokenInfo
	s.mu.RUnlock()

	if IsAccessTokenValidAt(info, s.manager.sessionBuffer(), s.manager.now()) {
		return info.AccessToken, nil
	}

	token, err, _ := s.refresh.Do("refresh", func() (any, error) {
		return s.doRefresh(ctx, opts)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *AppAuthSession) doRefresh(ctx context.Context, opts *RequestOptions) (string, error) {
	ctx = slogx.WithSession(ctx, s.id)

	// A sibling instance may have minted tokens already; prefer those over
	// burning another grant.
	if s.store != nil {
		stored, found, err := s.store.Read(ctx)
		if err != nil {
			return "", err
		}
		if found && IsAccessTokenValidAt(stored, s.manager.sessionBuffer(), s.manager.now()) {
			slogx.FromContext(ctx).Debug("reusing stored app auth tokens")
			s.setTokenInfo(stored)
			return stored.AccessToken, nil
		}
	}

	info, err := s.manager.TokensJWTGrant(ctx, s.subjectType, s.subjectID, opts)
	if err != nil {
		return "", s.HandleExpiredTokensError(ctx, err)
	}

	if s.store != nil {
		if err := s.store.Write(ctx, info); err != nil {
			return "", s.HandleExpiredTokensError(ctx, err)
		}
	}

	s.setTokenInfo(info)
	return info.AccessToken, nil
}

func (s *AppAuthSession) setTokenInfo(info TokenInfo) {
	s.mu.Lock()
	s.tokenInfo = info
	s.mu.Unlock()
}

// RevokeTokens revokes the current access token and drops the local cache
// and store state. The next AccessToken call mints a fresh grant.
func (s *AppAuthSession) RevokeTokens(ctx context.Context, opts *RequestOptions) error {
	s.mu.RLock()
	accessToken := s.tokenInfo.AccessToken
	s.mu.RUnlock()

	if accessToken == "" {
		return nil
	}
	if err := s.manager.RevokeTokens(ctx, accessToken, opts); err != nil {
		return err
	}

	s.setTokenInfo(TokenInfo{})

	// The store must not hand the revoked token to another instance.
	if s.store != nil {
		return s.store.Clear(ctx)
	}
	return nil
}

// ExchangeToken ensures a valid access token, then downscopes it.
func (s *AppAuthSession) ExchangeToken(ctx context.Context, scopes []string, resource string, opts *ExchangeOptions) (TokenInfo, error) {
	accessToken, err := s.AccessToken(ctx, requestOptionsOf(opts))
	if err != nil {
		return TokenInfo{}, err
	}
	return s.manager.ExchangeToken(ctx, accessToken, scopes, resource, opts)
}

// HandleExpiredTokensError clears the shared store (when present) so no
// instance reuses the dead credential, then returns cause for raising.
func (s *AppAuthSession) HandleExpiredTokensError(ctx context.Context, cause error) error {
	return handleExpiredTokens(ctx, s.store, cause)
}
