package boxauth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// OAuth2 error codes per RFC 6749 that the token endpoint is known to return.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidClient  = "invalid_client"
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeInvalidScope   = "invalid_scope"
	ErrorCodeServerError    = "server_error"
)

// errorResponse is the JSON error body returned by the token endpoint.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AuthError reports that the credential is permanently unusable: the grant
// (auth code, refresh token, or assertion) was rejected with invalid_grant
// and no recoverable store state exists. The caller must re-authenticate.
type AuthError struct {
	// Code is the OAuth2 error code, always "invalid_grant" in practice.
	Code string

	// StatusCode is the HTTP status of the rejecting response. The JWT
	// grant retry policy treats 429 and 5xx as retryable even here.
	StatusCode int

	// Description is the server's error_description, when present.
	Description string

	// ServerDate is the response Date header. The JWT grant retry policy
	// uses it to detect clock-skew rejections of the exp claim.
	ServerDate time.Time

	// MaxRetriesExceeded is set when the JWT grant retry budget ran out
	// and this was the final error.
	MaxRetriesExceeded bool
}

func (e *AuthError) Error() string {
	msg := "expired auth: unable to obtain new tokens"
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.MaxRetriesExceeded {
		msg += " (max retries exceeded)"
	}
	return msg
}

// UnexpectedResponseError reports that transport succeeded but the response
// violated the token endpoint protocol: a non-200 status, a non-JSON body,
// or a 200 body missing required fields.
type UnexpectedResponseError struct {
	// StatusCode is the HTTP status of the offending response.
	StatusCode int

	// Code and Description are populated when the body parsed as a
	// standard OAuth2 error object.
	Code        string
	Description string

	// ServerDate is the response Date header, zero when absent.
	ServerDate time.Time

	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration

	// MaxRetriesExceeded is set when the JWT grant retry budget ran out
	// and this was the final error.
	MaxRetriesExceeded bool
}

func (e *UnexpectedResponseError) Error() string {
	msg := fmt.Sprintf("unexpected response from token endpoint: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	if e.MaxRetriesExceeded {
		msg += " (max retries exceeded)"
	}
	return msg
}

// newResponseError classifies a token endpoint failure per the wire
// contract. A body carrying error == "invalid_grant" means the credential
// itself is dead regardless of status code; anything else is a protocol
// violation the caller may or may not retry.
func newResponseError(resp *http.Response, parsed errorResponse, jsonOK bool) error {
	serverDate := parseServerDate(resp)

	if jsonOK && parsed.Error == ErrorCodeInvalidGrant {
		return &AuthError{
			Code:        parsed.Error,
			StatusCode:  resp.StatusCode,
			Description: parsed.ErrorDescription,
			ServerDate:  serverDate,
		}
	}

	return &UnexpectedResponseError{
		StatusCode:  resp.StatusCode,
		Code:        parsed.Error,
		Description: parsed.ErrorDescription,
		ServerDate:  serverDate,
		RetryAfter:  parseRetryAfter(resp),
	}
}

func parseServerDate(resp *http.Response) time.Time {
	raw := resp.Header.Get("Date")
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
