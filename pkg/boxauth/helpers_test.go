package boxauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
)

// newTestManager spins up a token endpoint stub and a manager pointed at it.
func newTestManager(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *TokenManager {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIRootURL:   srv.URL,
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := NewTokenManager(cfg)
	require.NoError(t, err)
	return m
}

func testSignerRS256(t *testing.T) jwtx.Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	signer, err := jwtx.NewSignerRS256("test-kid", pemKey)
	require.NoError(t, err)
	return signer
}

// writeTokenJSON writes a minimal success body for the token endpoint.
func writeTokenJSON(t *testing.T, w http.ResponseWriter, accessToken, refreshToken string, expiresIn int64) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"token_type":    "bearer",
	})
	require.NoError(t, err)
}

func writeOAuthError(t *testing.T, w http.ResponseWriter, status int, code, description string) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
	require.NoError(t, err)
}

// rejectCalls fails the test if the endpoint is ever reached.
func rejectCalls(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// fakeStore is an in-memory TokenStore that records its call counts.
type fakeStore struct {
	mu sync.Mutex

	info  TokenInfo
	found bool

	reads  int
	writes int
	clears int

	readErr  error
	writeErr error
	clearErr error
}

func (s *fakeStore) Read(context.Context) (TokenInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return TokenInfo{}, false, s.readErr
	}
	return s.info, s.found, nil
}

func (s *fakeStore) Write(_ context.Context, info TokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.info = info
	s.found = true
	return nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.info = TokenInfo{}
	s.found = false
	return nil
}

func (s *fakeStore) snapshot() (TokenInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.found
}

func (s *fakeStore) counts() (reads, writes, clears int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes, s.clears
}
