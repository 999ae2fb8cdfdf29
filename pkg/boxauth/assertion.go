package boxauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
)

// actorAssertionTTL bounds the lifetime of unsigned actor assertions. They
// only need to survive the single exchange request carrying them.
const actorAssertionTTL = 60 * time.Second

// newBearerAssertionClaims builds the claim set for a JWT bearer grant.
// Validation failures here are local errors; nothing reaches the network.
func (m *TokenManager) newBearerAssertionClaims(subjectType, subjectID string) (jwtx.AssertionClaims, error) {
	if subjectType != jwtx.SubTypeUser && subjectType != jwtx.SubTypeEnterprise {
		return jwtx.AssertionClaims{}, fmt.Errorf("boxauth: invalid subject type %q", subjectType)
	}
	if strings.TrimSpace(subjectID) == "" {
		return jwtx.AssertionClaims{}, errors.New("boxauth: subject ID is empty")
	}

	return jwtx.NewAssertionClaims(
		m.clientID,
		subjectID,
		subjectType,
		m.assertionAudience(),
		m.appAuth.expirationWindow(),
		m.now(),
		m.appAuth.OmitIssuedAt,
	), nil
}

// newActorAssertion builds the short-lived unsigned assertion embedded in a
// token exchange to impersonate an external user. The outer request is
// authenticated, so alg "none" is acceptable here and only here.
func (m *TokenManager) newActorAssertion(actor ActorParams) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", errors.New("boxauth: actor ID is empty")
	}
	if strings.TrimSpace(actor.Name) == "" {
		return "", errors.New("boxauth: actor name is empty")
	}

	claims := jwtx.NewAssertionClaims(
		m.clientID,
		actor.ID,
		jwtx.SubTypeExternal,
		m.assertionAudience(),
		actorAssertionTTL,
		m.now(),
		false,
	)
	claims.Name = actor.Name

	token, err := jwtx.SignUnsecured(claims)
	if err != nil {
		return "", fmt.Errorf("boxauth: build actor assertion: %w", err)
	}
	return token, nil
}
