package boxauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kunal-mandalia/box-node-sdk/pkg/slogx"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	grantClientCredentials = "client_credentials"
	grantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	grantTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"

	subjectTokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"
	actorTokenTypeIDToken       = "urn:ietf:params:oauth:token-type:id_token"
)

// tokenResponse is the token endpoint's success body. Error fields are
// included so a single decode handles both shapes.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokensAuthorizationCodeGrant exchanges an authorization code for a token
// pair. The response must include a refresh token.
func (m *TokenManager) TokensAuthorizationCodeGrant(ctx context.Context, code string, opts *RequestOptions) (TokenInfo, error) {
	if strings.TrimSpace(code) == "" {
		return TokenInfo{}, errors.New("boxauth: authorization code is empty")
	}

	form := url.Values{
		"grant_type": {grantAuthorizationCode},
		"code":       {code},
	}
	return m.requestTokens(ctx, form, opts, true)
}

// TokensClientCredentialsGrant obtains a service-account token pair for the
// client itself. No refresh token is issued.
func (m *TokenManager) TokensClientCredentialsGrant(ctx context.Context, opts *RequestOptions) (TokenInfo, error) {
	form := url.Values{
		"grant_type": {grantClientCredentials},
	}
	return m.requestTokens(ctx, form, opts, false)
}

// TokensRefreshGrant mints a new token pair from a refresh token. The
// response must include a replacement refresh token.
func (m *TokenManager) TokensRefreshGrant(ctx context.Context, refreshToken string, opts *RequestOptions) (TokenInfo, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenInfo{}, errors.New("boxauth: refresh token is empty")
	}

	form := url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
	}
	return m.requestTokens(ctx, form, opts, true)
}

// TokensJWTGrant obtains tokens for an app user or enterprise identity via a
// signed bearer assertion, applying the JWT retry policy on retryable
// failures. subjectType must be jwtx.SubTypeUser or jwtx.SubTypeEnterprise.
func (m *TokenManager) TokensJWTGrant(ctx context.Context, subjectType, subjectID string, opts *RequestOptions) (TokenInfo, error) {
	if m.appAuth == nil {
		return TokenInfo{}, errors.New("boxauth: app auth is not configured")
	}
	claims, err := m.newBearerAssertionClaims(subjectType, subjectID)
	if err != nil {
		return TokenInfo{}, err
	}

	return m.jwtGrantWithRetry(ctx, claims, opts)
}

// ExchangeToken downscopes an access token via the token exchange grant,
// optionally restricted to a resource URL, a shared link, or acting on
// behalf of an external user.
func (m *TokenManager) ExchangeToken(ctx context.Context, accessToken string, scopes []string, resource string, opts *ExchangeOptions) (TokenInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return TokenInfo{}, errors.New("boxauth: subject access token is empty")
	}
	if len(scopes) == 0 {
		return TokenInfo{}, errors.New("boxauth: exchange requires at least one scope")
	}

	form := url.Values{
		"grant_type":         {grantTokenExchange},
		"subject_token":      {accessToken},
		"subject_token_type": {subjectTokenTypeAccessToken},
		"scope":              {strings.Join(scopes, " ")},
	}
	if resource != "" {
		form.Set("resource", resource)
	}

	var reqOpts *RequestOptions
	if opts != nil {
		reqOpts = &opts.RequestOptions
		if opts.SharedLink != "" {
			form.Set("box_shared_link", opts.SharedLink)
		}
		if opts.Actor != nil {
			actorToken, err := m.newActorAssertion(*opts.Actor)
			if err != nil {
				return TokenInfo{}, err
			}
			form.Set("actor_token", actorToken)
			form.Set("actor_token_type", actorTokenTypeIDToken)
		}
	}

	return m.requestTokens(ctx, form, reqOpts, false)
}

// RevokeTokens invalidates a token pair. Either half of the pair works; the
// endpoint revokes both. Only transport-level success is checked.
func (m *TokenManager) RevokeTokens(ctx context.Context, token string, opts *RequestOptions) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("boxauth: token to revoke is empty")
	}

	form := url.Values{
		"token":         {token},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}

	resp, err := m.postForm(ctx, m.revokeURL(), form, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var parsed errorResponse
		jsonOK := json.Unmarshal(body, &parsed) == nil
		return newResponseError(resp, parsed, jsonOK)
	}

	return nil
}

// requestTokens injects client credentials, POSTs the grant, and classifies
// the response. requireRefreshToken is set for the authorization-code and
// refresh grants, whose responses must carry a refresh token.
func (m *TokenManager) requestTokens(ctx context.Context, form url.Values, opts *RequestOptions, requireRefreshToken bool) (TokenInfo, error) {
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	slogx.FromContext(ctx).Debug("requesting tokens",
		"grant_type", form.Get("grant_type"),
	)

	resp, err := m.postForm(ctx, m.tokenURL(), form, opts)
	if err != nil {
		return TokenInfo{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed tokenResponse
	jsonOK := json.Unmarshal(body, &parsed) == nil

	if !jsonOK || resp.StatusCode != http.StatusOK || parsed.Error != "" {
		return TokenInfo{}, newResponseError(resp, errorResponse{
			Error:            parsed.Error,
			ErrorDescription: parsed.ErrorDescription,
		}, jsonOK)
	}

	if parsed.AccessToken == "" || (requireRefreshToken && parsed.RefreshToken == "") {
		return TokenInfo{}, &UnexpectedResponseError{
			StatusCode:  resp.StatusCode,
			Description: "token response is missing required fields",
			ServerDate:  parseServerDate(resp),
		}
	}

	return TokenInfo{
		AccessToken:    parsed.AccessToken,
		RefreshToken:   parsed.RefreshToken,
		AcquiredAt:     m.now(),
		AccessTokenTTL: time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}

// postForm sends one form-encoded POST, honoring the client-side rate limit
// and the forwarded-IP option.
func (m *TokenManager) postForm(ctx context.Context, endpoint string, form url.Values, opts *RequestOptions) (*http.Response, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if opts != nil && opts.IP != "" {
		req.Header.Set(headerForwardedFor, opts.IP)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}
