package boxauth

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/slogx"
)

// JWT grant retry defaults. Attempts counts the initial request, so 5
// attempts means at most 4 waits.
const (
	DefaultMaxAttempts  = 5
	DefaultBaseInterval = 2 * time.Second
)

// RetryContext is handed to a RetryStrategy after each retryable failure.
type RetryContext struct {
	// Err is the failure being considered for retry.
	Err error

	// Attempt is the 1-based attempt that just failed.
	Attempt int

	// MaxAttempts is the configured attempt budget.
	MaxAttempts int

	// BaseInterval is the configured backoff base.
	BaseInterval time.Duration

	// TotalElapsed is the time since the first attempt of this grant
	// invocation. It is carried per invocation, never shared.
	TotalElapsed time.Duration
}

// RetryStrategy lets a caller override retry delays. Returning a non-nil
// error aborts immediately with that error; returning a non-positive delay
// propagates the original failure. Otherwise the returned delay is used
// as-is.
type RetryStrategy func(RetryContext) (time.Duration, error)

// RetryPolicy tunes the JWT grant retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget. Defaults to 5.
	MaxAttempts int

	// BaseInterval seeds the exponential backoff. Defaults to 2s.
	BaseInterval time.Duration

	// Strategy, when set, takes priority over the Retry-After header and
	// the default backoff.
	Strategy RetryStrategy
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseInterval <= 0 {
		p.BaseInterval = DefaultBaseInterval
	}
	return p
}

// maxBackoffShift bounds the exponential growth so a large configured
// attempt budget cannot overflow the shift into a negative delay.
const maxBackoffShift = 16

// backoffDelay computes the attempt's exponential backoff with full jitter:
// base doubling per attempt, scaled by a random factor in [0.5, 1.5).
func backoffDelay(attempt int, base time.Duration) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := base << shift
	if d <= 0 {
		d = base
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

// classifyJWTFailure decides whether a grant failure is worth retrying.
// Retryable means either a rate-limit/server-side status (429, 5xx) or a
// clock-skew rejection: the server stamped its Date header and the error
// description points at the exp or jti claim.
func classifyJWTFailure(err error) (serverDate time.Time, retryAfter time.Duration, retryable bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.StatusCode == 429 || authErr.StatusCode >= 500 {
			return authErr.ServerDate, 0, true
		}
		retryable = !authErr.ServerDate.IsZero() && clockSkewHint(authErr.Description)
		return authErr.ServerDate, 0, retryable
	}

	var respErr *UnexpectedResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == 429 || respErr.StatusCode >= 500 {
			return respErr.ServerDate, respErr.RetryAfter, true
		}
		retryable = !respErr.ServerDate.IsZero() && clockSkewHint(respErr.Description)
		return respErr.ServerDate, respErr.RetryAfter, retryable
	}

	return time.Time{}, 0, false
}

func clockSkewHint(description string) bool {
	return strings.Contains(description, "exp") || strings.Contains(description, "jti")
}

// markRetriesExhausted flags the final error so callers can tell "gave up
// after retries" from "failed immediately". The error is otherwise unchanged.
func markRetriesExhausted(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		authErr.MaxRetriesExceeded = true
		return err
	}
	var respErr *UnexpectedResponseError
	if errors.As(err, &respErr) {
		respErr.MaxRetriesExceeded = true
		return err
	}
	return err
}

// jwtGrantWithRetry runs the bearer-assertion grant under the retry policy.
// Each retry re-mints the assertion: a fresh jti, and an exp recomputed from
// the server's reported time (falling back to the wall clock) plus the
// expiration window plus the chosen delay, so the assertion is still live
// when the retried request lands.
func (m *TokenManager) jwtGrantWithRetry(ctx context.Context, claims jwtx.AssertionClaims, opts *RequestOptions) (TokenInfo, error) {
	log := slogx.FromContext(ctx)
	policy := m.retry

	assertion, err := m.appAuth.Signer.Sign(claims)
	if err != nil {
		return TokenInfo{}, err
	}

	start := time.Now()

	for attempt := 1; ; attempt++ {
		info, err := m.requestTokens(ctx, jwtGrantForm(assertion), opts, false)
		if err == nil {
			return info, nil
		}

		serverDate, retryAfter, retryable := classifyJWTFailure(err)
		if !retryable {
			return TokenInfo{}, err
		}
		if attempt >= policy.MaxAttempts {
			return TokenInfo{}, markRetriesExhausted(err)
		}

		delay, strategyErr := chooseDelay(policy, RetryContext{
			Err:          err,
			Attempt:      attempt,
			MaxAttempts:  policy.MaxAttempts,
			BaseInterval: policy.BaseInterval,
			TotalElapsed: time.Since(start),
		}, retryAfter)
		if strategyErr != nil {
			return TokenInfo{}, strategyErr
		}
		if delay < 0 {
			// Strategy declined; propagate the original failure.
			return TokenInfo{}, err
		}

		// Anchor the new exp to the server's clock when it told us one.
		expBase := serverDate
		if expBase.IsZero() {
			expBase = m.now()
		}
		claims = claims.Reissue(expBase.Add(m.appAuth.expirationWindow()).Add(delay))
		assertion, err = m.appAuth.Signer.Sign(claims)
		if err != nil {
			return TokenInfo{}, err
		}

		log.Debug("retrying jwt grant",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return TokenInfo{}, ctx.Err()
		}
	}
}

// chooseDelay picks the wait before the next attempt, in priority order:
// caller strategy, server Retry-After hint, default exponential backoff.
// A negative return (with nil error) means the strategy declined the retry.
func chooseDelay(policy RetryPolicy, rc RetryContext, retryAfter time.Duration) (time.Duration, error) {
	if policy.Strategy != nil {
		delay, err := policy.Strategy(rc)
		if err != nil {
			return 0, err
		}
		if delay <= 0 {
			return -1, nil
		}
		return delay, nil
	}
	if retryAfter > 0 {
		return retryAfter, nil
	}
	return backoffDelay(rc.Attempt, policy.BaseInterval), nil
}

func jwtGrantForm(assertion string) url.Values {
	return url.Values{
		"grant_type": {grantJWTBearer},
		"assertion":  {assertion},
	}
}
