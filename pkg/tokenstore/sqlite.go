package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/kunal-mandalia/box-node-sdk/pkg/boxauth"
	"github.com/kunal-mandalia/box-node-sdk/pkg/tokenstore/migrations"
)

// SQLite is a TokenStore backed by a SQLite database, usable as the
// coordination point between processes sharing one credential. Each store
// value is one row keyed by the store key, so independent credentials can
// share a database file.
type SQLite struct {
	db  *sql.DB
	key string
}

var _ boxauth.TokenStore = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at dsn and scopes the store to
// key. The caller owns Close.
func NewSQLite(dsn, key string) (*SQLite, error) {
	if key == "" {
		return nil, errors.New("tokenstore: store key is empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Writers from other processes hold the file lock briefly; wait rather
	// than surfacing SQLITE_BUSY.
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, key: key}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ApplyMigrations applies any pending schema migrations using the embedded
// migration files.
func (s *SQLite) ApplyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", src, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context) (boxauth.TokenInfo, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, acquired_at, ttl_ms
		FROM token_state
		WHERE store_key = ?`, s.key)

	var (
		info  boxauth.TokenInfo
		ttlMS int64
	)
	err := row.Scan(&info.AccessToken, &info.RefreshToken, &info.AcquiredAt, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return boxauth.TokenInfo{}, false, nil
	}
	if err != nil {
		return boxauth.TokenInfo{}, false, err
	}

	info.AccessTokenTTL = time.Duration(ttlMS) * time.Millisecond
	return info, true, nil
}

func (s *SQLite) Write(ctx context.Context, info boxauth.TokenInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_state (store_key, access_token, refresh_token, acquired_at, ttl_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(store_key) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			acquired_at   = excluded.acquired_at,
			ttl_ms        = excluded.ttl_ms,
			updated_at    = CURRENT_TIMESTAMP`,
		s.key,
		info.AccessToken,
		info.RefreshToken,
		info.AcquiredAt,
		info.AccessTokenTTL.Milliseconds(),
	)
	return err
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM token_state WHERE store_key = ?`, s.key)
	return err
}
