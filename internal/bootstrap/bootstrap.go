// Package bootstrap assembles the service from configuration. Both the API
// server and the admin CLI build their dependencies through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/authgate/internal/api/http"
	"github.com/spec-kit/authgate/internal/api/http/handlers"
	"github.com/spec-kit/authgate/internal/auth"
	"github.com/spec-kit/authgate/internal/clock"
	"github.com/spec-kit/authgate/internal/config"
	"github.com/spec-kit/authgate/internal/events"
	"github.com/spec-kit/authgate/internal/featuregate"
	"github.com/spec-kit/authgate/internal/observability"
	"github.com/spec-kit/authgate/internal/persistence"
	"github.com/spec-kit/authgate/internal/repository"
	"github.com/spec-kit/authgate/internal/repository/memstore"
	"github.com/spec-kit/authgate/internal/securetoken"
	"github.com/spec-kit/authgate/internal/service"
	"github.com/spec-kit/authgate/internal/worker"
)

// App holds the wired service.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Store    repository.UnitOfWork

	Tokens        *securetoken.Engine
	Auth          *service.AuthService
	Notifications *service.NotificationService
	Worker        *worker.NotificationWorker
	Gates         *featuregate.Cache
	GateAdmin     *featuregate.Admin
}

// Option customizes Build.
type Option func(*options)

type options struct {
	clock clock.Clock
	store repository.UnitOfWork
}

// WithClock replaces the real clock for token minting and validation.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore uses store instead of connecting to Postgres.
func WithStore(store repository.UnitOfWork) Option {
	return func(o *options) { o.store = store }
}

// Build connects to the configured backends and wires every service. Without
// a Postgres DSN the in-memory store is used, which is only allowed in
// development. Without a Redis address bridge snapshots are shared only
// within the process.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	if o.store != nil {
		a.Store = o.store
	} else {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Postgres = pg
		store, err := a.openStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = store
	}

	a.Redis = persistence.NewRedis(cfg.Redis, logger)
	var shared featuregate.SharedCache
	if a.Redis.Client != nil {
		shared = featuregate.NewRedisSharedCache(a.Redis.Client, a.Redis.Prefix())
	} else {
		shared = featuregate.NewMemorySharedCache()
	}

	nonces := service.NewNonceStore(a.Store)
	a.Tokens = securetoken.NewEngine(
		securetoken.StaticSecret(cfg.Auth.TokenSecret),
		nonces,
		securetoken.WithClock(o.clock),
		securetoken.WithTTL(securetoken.Auth, cfg.Auth.AuthTokenTTL),
		securetoken.WithTTL(securetoken.Transfer, cfg.Auth.TransferTokenTTL),
		securetoken.WithTTL(securetoken.PasswordReset, cfg.Auth.ResetTokenTTL),
	)

	dispatcher := events.NewInMemoryDispatcher()
	a.Notifications = service.NewNotificationService(dispatcher, logger, cfg.Notification)
	a.Worker = worker.StartNotificationWorker(a.Notifications, dispatcher, logger, 0)

	credentials := service.NewCredentialService(a.Store, auth.NewArgon2Hasher(cfg.Auth), logger)
	a.Auth = service.NewAuthService(service.AuthDependencies{
		UnitOfWork:  a.Store,
		Tokens:      a.Tokens,
		Nonces:      nonces,
		Credentials: credentials,
		Dispatcher:  a.Worker,
		Metrics:     a.Metrics,
		Logger:      logger,
		Clock:       o.clock,
	})
	a.Gates = featuregate.NewCache(a.Store.Bridges(), shared, logger.Named("featuregate"), featuregate.Options{
		CacheKey:       cfg.FeatureGate.CacheKey,
		SharedTTL:      cfg.FeatureGate.SharedCacheTTL,
		RecheckOnFlush: cfg.FeatureGate.RecheckOnFlush,
		Development:    cfg.App.IsDevelopment(),
		Recorder:       a.Metrics,
	})
	a.GateAdmin = featuregate.NewAdmin(a.Store.Bridges(), a.Gates)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.UnitOfWork, error) {
	cfg := a.Config
	if !a.Postgres.Enabled() {
		if !cfg.App.IsDevelopment() {
			return nil, errors.New("POSTGRES_DSN is required outside development")
		}
		a.Logger.Warn("using in-memory store; data is lost on restart")
		if cfg.Postgres.BulkMode {
			return memstore.New(memstore.WithBulkMode()), nil
		}
		return memstore.New(), nil
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, a.Postgres.Pool, a.Logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return repository.NewPostgresUnitOfWork(a.Postgres.Pool, repository.UnitOfWorkOptions{
		BulkMode: cfg.Postgres.BulkMode,
		Nested:   repository.NestedTxMode(cfg.Postgres.NestedTx),
	}), nil
}

// HTTP builds the fiber application serving the API.
func (a *App) HTTP() *fiber.App {
	cfg := a.Config
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, a.Logger, a.Metrics, cfg.App.RequestTimeout(), a.Gates)

	deps := map[string]handlers.Pinger{}
	if a.Postgres.Enabled() {
		deps["postgres"] = a.Postgres
	}
	if a.Redis.Client != nil {
		deps["redis"] = a.Redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, a.Gates),
		Users:          handlers.NewUsersHandler(a.Auth, cfg.Auth),
		Password:       handlers.NewPasswordHandler(a.Auth, cfg.Auth),
		Transfer:       handlers.NewTransferHandler(a.Auth, cfg.Auth),
		Gates:          handlers.NewGatesHandler(a.Gates, a.GateAdmin, a.Metrics),
		AuthMiddleware: auth.NewAuthMiddleware(a.Auth, cfg.Auth.CookieName),
		AdminAPIKey:    cfg.App.AdminAPIKey,
	})
	return app
}

// Close drains pending notifications and releases backend connections.
func (a *App) Close() {
	if a.Worker != nil {
		a.Worker.Stop()
	}
	a.Redis.Close()
	a.Postgres.Close()
}
