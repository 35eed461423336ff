// Package bootstrap wires configuration, storage, services, and the HTTP
// server into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/artpar/tokengate/adapters/clock"
	tghttp "github.com/artpar/tokengate/adapters/http"
	"github.com/artpar/tokengate/adapters/idgen"
	"github.com/artpar/tokengate/adapters/metrics"
	"github.com/artpar/tokengate/adapters/openai"
	redisledger "github.com/artpar/tokengate/adapters/redis"
	"github.com/artpar/tokengate/adapters/sqlite"
	"github.com/artpar/tokengate/app"
	"github.com/artpar/tokengate/config"
	"github.com/artpar/tokengate/domain/quota"
	"github.com/artpar/tokengate/ports"
)

// App is the assembled application.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Admission *app.AdmissionService
	Sweeper   *app.SweeperService
	Metrics   *metrics.Collector

	httpServer  *http.Server
	ledger      ports.LedgerStore
	recorder    ports.UsageRecorder
	db          *sqlite.DB
	redisClient *goredis.Client
	sweepCancel context.CancelFunc
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initLedger(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	admission, err := app.NewAdmissionService(
		app.AdmissionDeps{Ledger: a.ledger, Clock: clock.Real{}, Metrics: a.Metrics},
		app.AdmissionConfig{
			Policy:   quota.Policy{Limit: cfg.Quota.Limit, Window: cfg.Quota.Window},
			FailOpen: cfg.Quota.FailOpen,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("admission service: %w", err)
	}
	a.Admission = admission

	sweeper, err := app.NewSweeperService(
		app.SweeperDeps{Ledger: a.ledger, Clock: clock.Real{}, Metrics: a.Metrics},
		app.SweeperConfig{
			Retention: cfg.Retention.Horizon,
			Interval:  cfg.Retention.SweepInterval,
			Window:    cfg.Quota.Window,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("sweeper service: %w", err)
	}
	a.Sweeper = sweeper

	a.recorder = NewBufferedRecorder(a.ledger, cfg.Usage.BatchSize, cfg.Usage.FlushInterval, logger, a.Metrics)

	caller := openai.NewClient(openai.Config{
		BaseURL:           cfg.Upstream.URL,
		APIKey:            cfg.Upstream.APIKey,
		Model:             cfg.Upstream.Model,
		Timeout:           cfg.Upstream.Timeout,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	}, logger)

	handler := tghttp.NewHandler(tghttp.HandlerDeps{
		Admission: admission,
		Caller:    caller,
		Recorder:  a.recorder,
		IDs:       idgen.UUID{},
		Clock:     clock.Real{},
		Metrics:   a.Metrics,
	}, logger)

	router := tghttp.NewRouter(handler, logger, tghttp.RouterConfig{
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// Ledger exposes the configured ledger store, for the CLI subcommands.
func (a *App) Ledger() ports.LedgerStore {
	return a.ledger
}

func (a *App) initLedger() error {
	switch a.Config.Database.Driver {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     a.Config.Database.Redis.Addr,
			Password: a.Config.Database.Redis.Password,
			DB:       a.Config.Database.Redis.DB,
		})
		a.redisClient = rdb
		a.ledger = redisledger.NewLedgerStore(rdb,
			redisledger.WithPrefix(a.Config.Database.Redis.Prefix),
			redisledger.WithTTL(a.Config.Retention.Horizon),
		)
		a.Logger.Info().Str("addr", a.Config.Database.Redis.Addr).Msg("using redis ledger")
	default:
		db, err := sqlite.Open(a.Config.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
		a.db = db
		a.ledger = sqlite.NewLedgerStore(db)
		a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("using sqlite ledger")
	}
	return nil
}

// Run starts the HTTP server and the retention sweeper, then blocks
// until interrupted or a server error occurs.
func (a *App) Run() error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.Sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.httpServer.Addr).
			Int64("quota_limit", a.Config.Quota.Limit).
			Dur("quota_window", a.Config.Quota.Window).
			Msg("starting http server")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.sweepCancel != nil {
		a.sweepCancel()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Flush buffered usage before closing storage.
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
