package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kunal-mandalia/box-node-sdk/pkg/idx"
)

// Subject types accepted by the token endpoint in the box_sub_type claim.
const (
	SubTypeUser       = "user"
	SubTypeEnterprise = "enterprise"
	SubTypeExternal   = "external"
)

// DefaultAssertionTTL is the default lifetime for a bearer assertion. Kept
// short because an assertion is single-use; the endpoint rejects replays.
const DefaultAssertionTTL = 30 * time.Second

// AssertionClaims is the claim set presented to the token endpoint for
// JWT-bearer grants and actor token exchange. On top of the registered
// claims it carries the box_sub_type discriminator and, for actor
// assertions, a display name.
type AssertionClaims struct {
	jwt.RegisteredClaims

	// BoxSubType is "user", "enterprise" or "external".
	BoxSubType string `json:"box_sub_type,omitempty"`

	// Name is the display name for external actor assertions.
	Name string `json:"name,omitempty"`
}

// NewAssertionClaims builds minimally-correct assertion claims. The jti is a
// fresh ULID so consecutive assertions never collide even within the same
// millisecond. Set omitIssuedAt when the authorization server's clock skew
// handling chokes on iat.
func NewAssertionClaims(
	issuer, subject, subType string,
	audience string,
	ttl time.Duration,
	now time.Time,
	omitIssuedAt bool,
) AssertionClaims {
	claims := AssertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.New().String(),
		},
		BoxSubType: subType,
	}

	if !omitIssuedAt {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}

	return claims
}

// Reissue returns a copy of the claims with a fresh jti and a new expiry.
// Used by the grant retry loop, which must re-mint rather than replay.
func (c AssertionClaims) Reissue(expiresAt time.Time) AssertionClaims {
	c.ID = idx.New().String()
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
	return c
}

// SignUnsecured serializes claims as an unsigned ("none" algorithm) JWT.
// Only actor assertions embedded in a token-exchange request use this; they
// are vouched for by the outer, properly-authenticated request.
func SignUnsecured(claims AssertionClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	return t.SignedString(jwt.UnsafeAllowNoneSignatureType)
}
