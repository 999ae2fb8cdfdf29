package tokenstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kunal-mandalia/box-node-sdk/pkg/boxauth"
)

func newTestSQLite(t *testing.T, key string) *SQLite {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tokens.db")
	store, err := NewSQLite(dsn, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.ApplyMigrations())
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestSQLite(t, "session-1")

	_, found, err := store.Read(ctx)
	require.NoError(t, err)
	require.False(t, found)

	info := boxauth.TokenInfo{
		AccessToken:    "at",
		RefreshToken:   "rt",
		AcquiredAt:     time.Now().UTC(),
		AccessTokenTTL: time.Hour,
	}
	require.NoError(t, store.Write(ctx, info))

	got, found, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, info.AccessToken, got.AccessToken)
	require.Equal(t, info.RefreshToken, got.RefreshToken)
	require.Equal(t, info.AccessTokenTTL, got.AccessTokenTTL)
	require.WithinDuration(t, info.AcquiredAt, got.AcquiredAt, time.Second)
}

func TestSQLiteOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestSQLite(t, "session-1")

	first := boxauth.TokenInfo{
		AccessToken:    "at-1",
		RefreshToken:   "rt-1",
		AcquiredAt:     time.Now().UTC(),
		AccessTokenTTL: time.Hour,
	}
	require.NoError(t, store.Write(ctx, first))

	second := first
	second.AccessToken = "at-2"
	second.RefreshToken = "rt-2"
	require.NoError(t, store.Write(ctx, second))

	got, found, err := store.Read(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "at-2", got.AccessToken)
	require.Equal(t, "rt-2", got.RefreshToken)
}

func TestSQLiteClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestSQLite(t, "session-1")

	// Clearing an empty store is fine.
	require.NoError(t, store.Clear(ctx))

	info := boxauth.TokenInfo{
		AccessToken:    "at",
		RefreshToken:   "rt",
		AcquiredAt:     time.Now().UTC(),
		AccessTokenTTL: time.Hour,
	}
	require.NoError(t, store.Write(ctx, info))
	require.NoError(t, store.Clear(ctx))

	_, found, err := store.Read(ctx)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSQLiteKeysAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tokens.db")

	a, err := NewSQLite(dsn, "session-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.ApplyMigrations())

	b, err := NewSQLite(dsn, "session-b")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	info := boxauth.TokenInfo{
		AccessToken:    "at-a",
		RefreshToken:   "rt-a",
		AcquiredAt:     time.Now().UTC(),
		AccessTokenTTL: time.Hour,
	}
	require.NoError(t, a.Write(ctx, info))

	_, found, err := b.Read(ctx)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, b.Clear(ctx))

	got, found, err := a.Read(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "at-a", got.AccessToken)
}

func TestNewSQLiteRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewSQLite(filepath.Join(t.TempDir(), "tokens.db"), "")
	require.Error(t, err)
}
