package boxauth

import "time"

// Refresh buffer tiers. The expired buffer is the hard margin before real
// expiry; the stale buffer is the larger window in which a token should be
// proactively replaced. Sessions refresh against the max of the two.
const (
	DefaultExpiredBuffer = 30 * time.Second
	DefaultStaleBuffer   = 10 * time.Minute
)

// TokenInfo is an immutable snapshot of a credential pair as returned by the
// token endpoint.
type TokenInfo struct {
	// AccessToken is the opaque bearer credential for API calls.
	AccessToken string `json:"access_token"`

	// RefreshToken is empty for grants with no refresh capability
	// (client credentials, JWT bearer, token exchange).
	RefreshToken string `json:"refresh_token,omitempty"`

	// AcquiredAt is when the grant response was received.
	AcquiredAt time.Time `json:"acquired_at"`

	// AccessTokenTTL is the validity duration reported by the endpoint.
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
}

// complete reports whether every field a persistent session needs is set.
func (t TokenInfo) complete() bool {
	return t.AccessToken != "" && t.RefreshToken != "" &&
		!t.AcquiredAt.IsZero() && t.AccessTokenTTL > 0
}

// IsAccessTokenValid reports whether the token is usable right now, with the
// given safety buffer subtracted from its lifetime.
func IsAccessTokenValid(info TokenInfo, buffer time.Duration) bool {
	return IsAccessTokenValidAt(info, buffer, time.Now())
}

// IsAccessTokenValidAt is the pure form of IsAccessTokenValid: valid iff
// acquiredAt + ttl - buffer > now. A token with either timing field absent
// is never valid.
func IsAccessTokenValidAt(info TokenInfo, buffer time.Duration, now time.Time) bool {
	if info.AcquiredAt.IsZero() || info.AccessTokenTTL <= 0 {
		return false
	}
	return info.AcquiredAt.Add(info.AccessTokenTTL - buffer).After(now)
}

// refreshBuffer is the combined buffer sessions judge validity against.
func refreshBuffer(expired, stale time.Duration) time.Duration {
	return max(expired, stale)
}
