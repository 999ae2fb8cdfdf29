package boxauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
)

const (
	tokenPath  = "/oauth2/token"
	revokePath = "/oauth2/revoke"

	headerForwardedFor = "X-Forwarded-For"
)

// AppAuthConfig holds the server-authentication signing setup used by the
// JWT bearer grant.
type AppAuthConfig struct {
	// Signer produces the signed bearer assertion.
	Signer jwtx.Signer

	// ExpirationWindow is how far in the future assertion exp claims are
	// set. Defaults to jwtx.DefaultAssertionTTL.
	ExpirationWindow time.Duration

	// Audience overrides the aud claim. Defaults to the token endpoint URL.
	Audience string

	// OmitIssuedAt suppresses the iat claim for authorization servers with
	// strict clock-skew handling.
	OmitIssuedAt bool
}

func (c *AppAuthConfig) expirationWindow() time.Duration {
	if c.ExpirationWindow > 0 {
		return c.ExpirationWindow
	}
	return jwtx.DefaultAssertionTTL
}

// Config configures a TokenManager.
type Config struct {
	// APIRootURL is the API root, e.g. "https://api.box.com".
	APIRootURL string

	ClientID     string
	ClientSecret string

	// AppAuth enables the JWT bearer grant. Optional.
	AppAuth *AppAuthConfig

	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client

	// Limiter gates outbound token endpoint calls. Optional; nil imposes
	// no client-side limit.
	Limiter *rate.Limiter

	// Retry tunes the JWT grant retry policy. Zero values use defaults.
	Retry RetryPolicy

	// ExpiredBuffer and StaleBuffer tune session refresh thresholds.
	// Zero values use DefaultExpiredBuffer / DefaultStaleBuffer.
	ExpiredBuffer time.Duration
	StaleBuffer   time.Duration
}

// TokenManager performs grant and revoke calls against the token endpoint,
// validates responses, and owns the JWT assertion retry policy. It holds no
// token state itself; sessions do the caching.
type TokenManager struct {
	baseURL      string
	clientID     string
	clientSecret string
	appAuth      *AppAuthConfig
	httpClient   *http.Client
	limiter      *rate.Limiter
	retry        RetryPolicy

	expiredBuffer time.Duration
	staleBuffer   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewTokenManager validates cfg and returns a ready TokenManager.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if cfg.APIRootURL == "" {
		return nil, errors.New("boxauth: APIRootURL is empty")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("boxauth: ClientID is empty")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("boxauth: ClientSecret is empty")
	}
	if cfg.AppAuth != nil {
		if cfg.AppAuth.Signer == nil {
			return nil, errors.New("boxauth: AppAuth.Signer is nil")
		}
		if err := cfg.AppAuth.Signer.Validate(); err != nil {
			return nil, fmt.Errorf("boxauth: app auth signer: %w", err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	expired := cfg.ExpiredBuffer
	if expired <= 0 {
		expired = DefaultExpiredBuffer
	}
	stale := cfg.StaleBuffer
	if stale <= 0 {
		stale = DefaultStaleBuffer
	}

	return &TokenManager{
		baseURL:       strings.TrimSuffix(cfg.APIRootURL, "/"),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		appAuth:       cfg.AppAuth,
		httpClient:    httpClient,
		limiter:       cfg.Limiter,
		retry:         cfg.Retry.withDefaults(),
		expiredBuffer: expired,
		staleBuffer:   stale,
		now:           time.Now,
	}, nil
}

func (m *TokenManager) tokenURL() string  { return m.baseURL + tokenPath }
func (m *TokenManager) revokeURL() string { return m.baseURL + revokePath }

// assertionAudience is the aud claim for bearer and actor assertions.
func (m *TokenManager) assertionAudience() string {
	if m.appAuth != nil && m.appAuth.Audience != "" {
		return m.appAuth.Audience
	}
	return m.tokenURL()
}

// sessionBuffer is the combined validity buffer sessions refresh against.
func (m *TokenManager) sessionBuffer() time.Duration {
	return refreshBuffer(m.expiredBuffer, m.staleBuffer)
}

// RequestOptions carries per-request parameters forwarded to the endpoint.
type RequestOptions struct {
	// IP is reflected as the X-Forwarded-For header, letting a backend
	// attribute the grant to the end user's address.
	IP string
}

// ActorParams identifies an external user impersonated via an actor token
// during token exchange.
type ActorParams struct {
	ID   string
	Name string
}

// ExchangeOptions carries the optional parameters of a token exchange.
type ExchangeOptions struct {
	RequestOptions

	// SharedLink scopes the downscoped token to a shared item.
	SharedLink string

	// Actor attaches an unsigned actor assertion to the exchange.
	Actor *ActorParams
}
