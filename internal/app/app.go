package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/kunal-mandalia/box-node-sdk/pkg/boxauth"
	"github.com/kunal-mandalia/box-node-sdk/pkg/jwtx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/slogx"
	"github.com/kunal-mandalia/box-node-sdk/pkg/tokenstore"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the token manager, optional store and session for the
// boxauth CLI.
type Application struct {
	cfg    Config
	logger *slog.Logger

	manager *boxauth.TokenManager
	store   *tokenstore.SQLite
	session boxauth.Session
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "boxauth-cli",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("app: BOX_CLIENT_ID and BOX_CLIENT_SECRET are required")
	}

	appAuth, err := buildAppAuth(cfg)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.TokenRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TokenRateLimit), 1)
	}

	app.manager, err = boxauth.NewTokenManager(boxauth.Config{
		APIRootURL:   cfg.APIRootURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AppAuth:      appAuth,
		Limiter:      limiter,
		Retry: boxauth.RetryPolicy{
			MaxAttempts:  cfg.RetryMaxAttempts,
			BaseInterval: cfg.RetryBaseInterval,
		},
		ExpiredBuffer: cfg.ExpiredBuffer,
		StaleBuffer:   cfg.StaleBuffer,
	})
	if err != nil {
		return nil, err
	}

	if cfg.StoreFile != "" {
		app.store, err = tokenstore.NewSQLite(cfg.StoreFile, cfg.StoreKey)
		if err != nil {
			return nil, fmt.Errorf("app: open token store: %w", err)
		}
		if err := app.store.ApplyMigrations(); err != nil {
			return nil, fmt.Errorf("app: migrate token store: %w", err)
		}
	}

	if appAuth != nil && cfg.SubjectID != "" {
		var store boxauth.TokenStore
		if app.store != nil {
			store = app.store
		}
		app.session, err = app.manager.NewAppAuthSession(cfg.SubjectType, cfg.SubjectID, store)
		if err != nil {
			return nil, err
		}
	}

	return app, nil
}

func buildAppAuth(cfg Config) (*boxauth.AppAuthConfig, error) {
	if cfg.PrivateKeyPath == "" {
		return nil, nil
	}

	pemKey, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("app: read private key: %w", err)
	}

	var signer jwtx.Signer
	switch cfg.KeyAlgorithm {
	case "RS256":
		signer, err = jwtx.NewSignerRS256(cfg.KeyID, pemKey)
	case "ES256":
		signer, err = jwtx.NewSignerES256(cfg.KeyID, pemKey)
	default:
		return nil, fmt.Errorf("app: unsupported key algorithm %q", cfg.KeyAlgorithm)
	}
	if err != nil {
		return nil, err
	}

	return &boxauth.AppAuthConfig{
		Signer:           signer,
		ExpirationWindow: cfg.AssertionWindow,
	}, nil
}

// Run obtains an access token for the configured identity, prints it to
// stdout, and logs the grant metadata. Without app auth it falls back to the
// client credentials grant.
func (app *Application) Run(ctx context.Context) error {
	defer app.close()

	ctx = slogx.WithContext(ctx, app.logger)

	if app.session != nil {
		token, err := app.session.AccessToken(ctx, nil)
		if err != nil {
			return err
		}

		app.logger.Info("obtained access token",
			"grant", "jwt-bearer",
			"subject_type", app.cfg.SubjectType,
			"subject_id", app.cfg.SubjectID,
		)
		fmt.Println(token)
		return nil
	}

	info, err := app.manager.TokensClientCredentialsGrant(ctx, nil)
	if err != nil {
		return err
	}

	app.logger.Info("obtained access token",
		"grant", "client-credentials",
		"acquired_at", info.AcquiredAt,
		"ttl", info.AccessTokenTTL,
	)
	fmt.Println(info.AccessToken)
	return nil
}

func (app *Application) close() {
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn("closing token store", "error", err)
		}
	}
}
