// Package app assembles the service graph shared by the API server and the
// operator CLI.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/api/handlers"
	"github.com/zawnaing-2024/vmaster/internal/auth"
	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/expiry"
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
	"github.com/zawnaing-2024/vmaster/internal/notify"
	"github.com/zawnaing-2024/vmaster/internal/pool"
	"github.com/zawnaing-2024/vmaster/internal/provisioning"
	"github.com/zawnaing-2024/vmaster/pkg/radius"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB

	Repo      *db.Repository
	Pool      *pool.Store
	Radius    *radius.Store
	Registry  *backends.Registry
	Notifier  *notify.Service
	Engine    *provisioning.Engine
	Lifecycle *lifecycle.Controller
	Auth      *auth.Service
	Metrics   *metrics.Collector
}

// New connects to the database and wires every service. Radius is nil
// when no RADIUS store is configured.
func New(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      conn,
		Repo:    db.NewRepository(conn),
		Metrics: metrics.NewCollector(reg),
	}
	a.Pool = pool.NewStore(a.Repo, logger)

	// The adapter needs a nil interface, not a typed nil, when RADIUS is off
	var authStore backends.AuthStore
	if cfg.Radius.DatabaseURL != "" {
		a.Radius, err = radius.Open(cfg.Radius.Driver, cfg.Radius.DatabaseURL, cfg.Radius.Timeout)
		if err != nil {
			conn.Close()
			return nil, err
		}
		authStore = a.Radius
	} else {
		logger.Warn("No RADIUS store configured, auth-tunnel accounts will not be managed remotely")
	}

	a.Registry = backends.NewRegistry(cfg.Backends.ConnectionCacheTTL,
		backends.NewProxyAdapter(cfg.Backends.RequestTimeout, a.Metrics, logger),
		backends.NewRadiusAdapter(authStore, a.Pool, a.Metrics, logger),
		backends.NewRelayAdapter(a.Pool, cfg.Backends.RequestTimeout, a.Metrics, logger),
	)
	a.Notifier = notify.NewService(a.Repo, a.Metrics, logger)
	a.Engine = provisioning.NewEngine(a.Repo, a.Registry, a.Notifier, expiry.NewCalculator(loc), a.Metrics, logger)
	a.Lifecycle = lifecycle.NewController(a.Repo, a.Engine, a.Registry, a.Notifier, a.Metrics, logger)
	a.Auth = auth.NewService(a.Repo, auth.NewIssuer(cfg.Auth), cfg.Auth, logger)

	return a, nil
}

func (a *App) HandlerDeps() handlers.Deps {
	return handlers.Deps{
		Repo:      a.Repo,
		Auth:      a.Auth,
		Engine:    a.Engine,
		Lifecycle: a.Lifecycle,
		Registry:  a.Registry,
		Pool:      a.Pool,
		Notifier:  a.Notifier,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	}
}

func (a *App) Close() {
	if a.Radius != nil {
		if err := a.Radius.Close(); err != nil {
			a.Logger.Warn("Failed to close RADIUS store", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("Failed to close database", zap.Error(err))
	}
}
