package boxauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestTokensAuthorizationCodeGrant(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "/oauth2/token", r.URL.Path)
			require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			require.Equal(t, "the-code", r.PostForm.Get("code"))
			require.Equal(t, "test-client-id", r.PostForm.Get("client_id"))
			require.Equal(t, "test-client-secret", r.PostForm.Get("client_secret"))
			writeTokenJSON(t, w, "at-1", "rt-1", 3600)
		}, nil)

		info, err := m.TokensAuthorizationCodeGrant(context.Background(), "the-code", nil)
		require.NoError(t, err)
		require.Equal(t, "at-1", info.AccessToken)
		require.Equal(t, "rt-1", info.RefreshToken)
		require.Equal(t, time.Hour, info.AccessTokenTTL)
		require.WithinDuration(t, time.Now(), info.AcquiredAt, 5*time.Second)
	})

	t.Run("empty code fails without a request", func(t *testing.T) {
		m := newTestManager(t, rejectCalls(t), nil)

		_, err := m.TokensAuthorizationCodeGrant(context.Background(), "  ", nil)
		require.Error(t, err)
	})

	t.Run("missing refresh token is a protocol violation", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			writeTokenJSON(t, w, "at-1", "", 3600)
		}, nil)

		_, err := m.TokensAuthorizationCodeGrant(context.Background(), "the-code", nil)
		var respErr *UnexpectedResponseError
		require.ErrorAs(t, err, &respErr)
		require.Equal(t, http.StatusOK, respErr.StatusCode)
	})
}

func TestTokensClientCredentialsGrant(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		writeTokenJSON(t, w, "svc-at", "", 3600)
	}, nil)

	info, err := m.TokensClientCredentialsGrant(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "svc-at", info.AccessToken)
	require.Empty(t, info.RefreshToken)
}

func TestTokensRefreshGrant(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			require.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
			writeTokenJSON(t, w, "at-new", "rt-new", 3600)
		}, nil)

		info, err := m.TokensRefreshGrant(context.Background(), "rt-old", nil)
		require.NoError(t, err)
		require.Equal(t, "at-new", info.AccessToken)
		require.Equal(t, "rt-new", info.RefreshToken)
	})

	t.Run("empty refresh token fails without a request", func(t *testing.T) {
		m := newTestManager(t, rejectCalls(t), nil)

		_, err := m.TokensRefreshGrant(context.Background(), "", nil)
		require.Error(t, err)
	})

	t.Run("invalid_grant surfaces as AuthError", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			writeOAuthError(t, w, http.StatusBadRequest, "invalid_grant", "Refresh token has expired")
		}, nil)

		_, err := m.TokensRefreshGrant(context.Background(), "rt-old", nil)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, "invalid_grant", authErr.Code)
		require.Equal(t, "Refresh token has expired", authErr.Description)
		require.False(t, authErr.MaxRetriesExceeded)
	})

	t.Run("non-JSON body surfaces as UnexpectedResponseError", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}, nil)

		_, err := m.TokensRefreshGrant(context.Background(), "rt-old", nil)
		var respErr *UnexpectedResponseError
		require.ErrorAs(t, err, &respErr)
		require.Equal(t, http.StatusBadGateway, respErr.StatusCode)
	})
}

func TestRequestOptionsForwardIP(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "203.0.113.7", r.Header.Get("X-Forwarded-For"))
		writeTokenJSON(t, w, "at", "", 3600)
	}, nil)

	_, err := m.TokensClientCredentialsGrant(context.Background(), &RequestOptions{IP: "203.0.113.7"})
	require.NoError(t, err)
}

func TestMissingAccessTokenRejected(t *testing.T) {
	t.Parallel()

	// A 200 body without access_token is malformed for every grant type.
	noAccessToken := func(w http.ResponseWriter, r *http.Request) {
		writeTokenJSON(t, w, "", "rt-1", 3600)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		call   func(m *TokenManager) error
	}{
		{
			name: "authorization code",
			call: func(m *TokenManager) error {
				_, err := m.TokensAuthorizationCodeGrant(context.Background(), "the-code", nil)
				return err
			},
		},
		{
			name: "client credentials",
			call: func(m *TokenManager) error {
				_, err := m.TokensClientCredentialsGrant(context.Background(), nil)
				return err
			},
		},
		{
			name: "refresh",
			call: func(m *TokenManager) error {
				_, err := m.TokensRefreshGrant(context.Background(), "rt-old", nil)
				return err
			},
		},
		{
			name:   "jwt bearer",
			mutate: withAppAuth(t),
			call: func(m *TokenManager) error {
				_, err := m.TokensJWTGrant(context.Background(), "user", "u-1", nil)
				return err
			},
		},
		{
			name: "token exchange",
			call: func(m *TokenManager) error {
				_, err := m.ExchangeToken(context.Background(), "parent-at", []string{"item_preview"}, "", nil)
				return err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t, noAccessToken, tc.mutate)

			err := tc.call(m)
			var respErr *UnexpectedResponseError
			require.ErrorAs(t, err, &respErr)
			require.Equal(t, http.StatusOK, respErr.StatusCode)
		})
	}
}

func TestTokenRateLimit(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		writeTokenJSON(t, w, "at", "", 3600)
	}, func(cfg *Config) {
		cfg.Limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	})

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := m.TokensClientCredentialsGrant(context.Background(), nil)
		require.NoError(t, err)
	}
	// The second call must wait out the limiter interval.
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestExchangeToken(t *testing.T) {
	t.Parallel()

	t.Run("scopes, resource and shared link", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "urn:ietf:params:oauth:grant-type:token-exchange", r.PostForm.Get("grant_type"))
			require.Equal(t, "parent-at", r.PostForm.Get("subject_token"))
			require.Equal(t, "urn:ietf:params:oauth:token-type:access_token", r.PostForm.Get("subject_token_type"))
			require.Equal(t, "item_preview item_download", r.PostForm.Get("scope"))
			require.Equal(t, "https://api.example.com/2.0/files/123", r.PostForm.Get("resource"))
			require.Equal(t, "https://example.com/s/abc", r.PostForm.Get("box_shared_link"))
			writeTokenJSON(t, w, "scoped-at", "", 900)
		}, nil)

		info, err := m.ExchangeToken(context.Background(), "parent-at",
			[]string{"item_preview", "item_download"},
			"https://api.example.com/2.0/files/123",
			&ExchangeOptions{SharedLink: "https://example.com/s/abc"})
		require.NoError(t, err)
		require.Equal(t, "scoped-at", info.AccessToken)
		require.Equal(t, 15*time.Minute, info.AccessTokenTTL)
	})

	t.Run("actor token is an unsigned assertion", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "urn:ietf:params:oauth:token-type:id_token", r.PostForm.Get("actor_token_type"))

			token, _, err := jwt.NewParser().ParseUnverified(r.PostForm.Get("actor_token"), jwt.MapClaims{})
			require.NoError(t, err)
			require.Equal(t, "none", token.Header["alg"])

			claims := token.Claims.(jwt.MapClaims)
			require.Equal(t, "ext-user-9", claims["sub"])
			require.Equal(t, "external", claims["box_sub_type"])
			require.Equal(t, "External Example", claims["name"])
			require.Equal(t, "test-client-id", claims["iss"])

			writeTokenJSON(t, w, "scoped-at", "", 900)
		}, nil)

		_, err := m.ExchangeToken(context.Background(), "parent-at", []string{"item_preview"}, "",
			&ExchangeOptions{Actor: &ActorParams{ID: "ext-user-9", Name: "External Example"}})
		require.NoError(t, err)
	})

	t.Run("validation failures skip the network", func(t *testing.T) {
		m := newTestManager(t, rejectCalls(t), nil)

		_, err := m.ExchangeToken(context.Background(), "", []string{"item_preview"}, "", nil)
		require.Error(t, err)

		_, err = m.ExchangeToken(context.Background(), "parent-at", nil, "", nil)
		require.Error(t, err)

		_, err = m.ExchangeToken(context.Background(), "parent-at", []string{"item_preview"}, "",
			&ExchangeOptions{Actor: &ActorParams{ID: "ext-user-9"}})
		require.Error(t, err)
	})
}

func TestRevokeTokens(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, "/oauth2/revoke", r.URL.Path)
			require.Equal(t, "the-token", r.PostForm.Get("token"))
			require.Equal(t, "test-client-id", r.PostForm.Get("client_id"))
			require.Equal(t, "test-client-secret", r.PostForm.Get("client_secret"))
			w.WriteHeader(http.StatusOK)
		}, nil)

		require.NoError(t, m.RevokeTokens(context.Background(), "the-token", nil))
	})

	t.Run("non-200 surfaces as error", func(t *testing.T) {
		m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
			writeOAuthError(t, w, http.StatusBadRequest, "invalid_request", "missing token")
		}, nil)

		err := m.RevokeTokens(context.Background(), "the-token", nil)
		var respErr *UnexpectedResponseError
		require.ErrorAs(t, err, &respErr)
		require.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	})

	t.Run("empty token fails without a request", func(t *testing.T) {
		m := newTestManager(t, rejectCalls(t), nil)
		require.Error(t, m.RevokeTokens(context.Background(), "", nil))
	})
}
