package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/orders"
	"github.com/aussiebroadwan/shopauth/internal/shop/service"
	"github.com/aussiebroadwan/shopauth/internal/shop/store"
	"github.com/aussiebroadwan/shopauth/internal/shop/store/drivers/file"
	"github.com/aussiebroadwan/shopauth/internal/shop/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires one shop's token store, token manager and signed client.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	tokens *shopsdk.TokenManager
	client *shopsdk.Client
	orders *orders.Searcher
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "shopauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New validates cfg and initializes all dependencies. Extra options are
// applied after the ones derived from cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...shopsdk.Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = NewLogger(cfg)
	}

	app := &Application{cfg: cfg, logger: logger}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	if err := app.initClient(ctx, opts); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// initStore opens the configured token store and applies migrations.
func (app *Application) initStore() error {
	db, err := OpenStore(app.cfg)
	if err != nil {
		return err
	}
	app.db = db

	if sq, ok := db.(*sqlite.Store); ok {
		if err := sq.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.logger.Debug("database migrations applied successfully")
	}
	return nil
}

func (app *Application) initClient(ctx context.Context, extra []shopsdk.Option) error {
	scheme, err := signx.ParseScheme(app.cfg.SignScheme)
	if err != nil {
		return err
	}

	opts := []shopsdk.Option{
		shopsdk.WithHTTPClient(NewHTTPClient(app.cfg)),
		shopsdk.WithLogger(app.logger),
		shopsdk.WithRefreshURL(app.cfg.AuthURL),
		shopsdk.WithBootstrap(app.cfg.AccessToken, app.cfg.RefreshToken),
	}
	opts = append(opts, extra...)

	app.tokens, err = shopsdk.NewTokenManager(ctx,
		shopsdk.Credentials{AppKey: app.cfg.AppKey, AppSecret: app.cfg.AppSecret},
		app.db,
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	app.client, err = shopsdk.NewClient(shopsdk.ClientConfig{
		BaseURL:     app.cfg.BaseURL,
		AppKey:      app.cfg.AppKey,
		AppSecret:   app.cfg.AppSecret,
		ShopCipher:  app.cfg.ShopCipher,
		ShopID:      app.cfg.ShopID,
		Version:     app.cfg.APIVersion,
		TokenHeader: app.cfg.TokenHeader,
		Scheme:      scheme,
	}, app.tokens, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	app.orders = orders.NewSearcher(app.client, app.logger)
	return nil
}

// OpenStore opens the token store selected by cfg.
func OpenStore(cfg Config) (store.Store, error) {
	switch store.Kind(cfg.TokenStore) {
	case store.KindSQLite:
		db, err := sqlite.NewStore(cfg.TokenState)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	case store.KindFile, "":
		var sealer *cryptox.Sealer
		if cfg.StateKey != "" {
			s, err := cryptox.NewSealer([]byte(cfg.StateKey))
			if err != nil {
				return nil, fmt.Errorf("failed to initialize state encryption: %w", err)
			}
			sealer = s
		}
		return file.New(cfg.TokenState, sealer), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// NewHTTPClient returns the client used for all outbound calls, rate limited
// when cfg sets a QPS.
func NewHTTPClient(cfg Config) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.RateLimitQPS > 0 {
		transport = httpx.NewRateLimitedTransport(transport, httpx.RateLimitConfig{
			RequestsPerWindow: int(cfg.RateLimitQPS * 1000),
			Window:            1000 * time.Second,
			Burst:             cfg.RateLimitBurst,
		})
	}
	return &http.Client{Timeout: cfg.HTTPTimeout, Transport: transport}
}

// Config returns the configuration the application was built from.
func (app *Application) Config() Config { return app.cfg }

// Logger returns the process logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Tokens returns the shop's token manager.
func (app *Application) Tokens() *shopsdk.TokenManager { return app.tokens }

// Client returns the signed API client.
func (app *Application) Client() *shopsdk.Client { return app.client }

// Orders returns the order searcher.
func (app *Application) Orders() *orders.Searcher { return app.orders }

// Store returns the token store.
func (app *Application) Store() store.Store { return app.db }

// RunKeeper keeps the access token fresh until ctx is done.
func (app *Application) RunKeeper(ctx context.Context) error {
	keeper := service.NewKeeperService(app.tokens.TokenSource(ctx), app.logger, app.cfg.KeepaliveInterval)
	keeper.Start()
	<-ctx.Done()
	keeper.Stop()
	return nil
}

// Close releases the token store.
func (app *Application) Close() error {
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing token store", "error", err)
		return err
	}
	return nil
}
