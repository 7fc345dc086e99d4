// Package app wires the reconciler's services from a loaded config. Both
// binaries build on it: the web server adds the HTTP surface, the consumer
// runs the watcher headless. Bus subscribers are attached by the binaries.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/audit"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/config"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/dedup"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/health"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/notification"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/recovery"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/signature"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/statussync"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/webhook"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const healthTTL = 2 * time.Second

type App struct {
	Config  *config.Config
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Bus     *broker.Bus
	History *db.Store
	Audit   *audit.Service
	Store   payment.RepositoryContract
	Claimer dedup.Claimer

	Gateway *gateway.CircuitBreakerGateway
	// Fake is set when the gateway runs against the in-memory fake.
	Fake *gateway.FakeGateway

	Processor *processing.Processor
	Router    *processing.Router
	Webhook   *webhook.Service
	Payments  *payment.Service
	Recovery  *recovery.Service
	// Watcher is nil when reconciliation is disabled.
	Watcher *recovery.Watcher
	Health  *health.Service

	closers []func() error
}

// New builds every service. On error whatever was opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (a *App, err error) {
	a = &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.Bus = broker.New(logger)

	a.History, err = db.NewWithFile(cfg.HistoryPath, logger)
	if err != nil {
		logger.Error("history init error", "layer", "app", "path", cfg.HistoryPath, "err", err)
		return a, err
	}
	a.closers = append(a.closers, a.History.Close)

	a.Audit, err = audit.NewServiceWithFile(logger, cfg.AuditPath)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Audit.Close)

	checks := map[string]health.CheckFunc{}
	var source recovery.ChangeSource

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pg, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres init error", "layer", "app", "err", err)
			return a, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(payment.Migrations, payment.MigrationsDir); err != nil {
			logger.Error("migration error", "layer", "app", "err", err)
			return a, err
		}
		repo := payment.NewSQLRepository(pg, logger)
		a.Store = repo
		checks["store"] = health.PingCheck(repo)
		source = recovery.NewPollingSource(repo, cfg.PollInterval, logger)
	default:
		repo, err := payment.NewFileRepository(cfg.StorageDir, logger)
		if err != nil {
			logger.Error("storage init error", "layer", "app", "dir", cfg.StorageDir, "err", err)
			return a, err
		}
		a.Store = repo
		checks["store"] = health.PingCheck(repo)
		if cfg.WatcherEnabled {
			fs, err := recovery.NewFSNotifySource(repo.Dir(), logger)
			if err != nil {
				logger.Warn("fsnotify unavailable, polling instead", "layer", "app", "dir", repo.Dir(), "err", err)
				source = recovery.NewPollingSource(repo, cfg.PollInterval, logger)
			} else {
				a.closers = append(a.closers, fs.Close)
				source = fs
			}
		}
	}

	if cfg.RedisURL != "" {
		rc, err := dedup.NewRedisClaimer(cfg.RedisURL, cfg.RedisPrefix, logger)
		if err != nil {
			logger.Error("redis init error", "layer", "app", "err", err)
			return a, err
		}
		a.Claimer = rc
		checks["redis"] = health.PingCheck(rc)
	} else {
		a.Claimer = dedup.NewMemoryClaimer(time.Minute, logger)
	}
	a.closers = append(a.closers, a.Claimer.Close)

	var next gateway.Gateway
	if cfg.UseFakeGateway {
		a.Fake = gateway.NewFakeGateway()
		next = a.Fake
	} else {
		next = gateway.NewMercadoPagoClient(gateway.MercadoPagoConfig{
			BaseURL:     cfg.MercadoPagoBaseURL,
			AccessToken: cfg.MercadoPagoAccessToken,
			Timeout:     cfg.GatewayTimeout,
		}, logger)
	}
	a.Gateway = gateway.NewCircuitBreakerGateway(next, gateway.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
	}, logger)
	checks["gateway"] = health.CircuitCheck(func() bool { return a.Gateway.State() == gateway.StateOpen })

	syncer := statussync.NewClient(statussync.Config{
		URL:     cfg.EventosAPIURL,
		Token:   cfg.EventosAPIToken,
		Timeout: cfg.SyncTimeout,
	}, logger)
	if !syncer.Configured() {
		logger.Warn("downstream sync not configured; approved payments will stay incomplete", "layer", "app")
	}

	a.Processor = processing.NewProcessor(processing.ProcessorDeps{
		Store:       a.Store,
		Activator:   activation.NewDispatcher(logger),
		Syncer:      syncer,
		Notifier:    notification.NewService(cfg.AppBaseURL, nil, logger),
		History:     a.History,
		Bus:         a.Bus,
		Metrics:     a.Metrics,
		Logger:      logger,
		SyncTimeout: cfg.SyncTimeout,
	})
	a.Router = processing.NewRouter(processing.RouterDeps{
		Store:     a.Store,
		Claimer:   a.Claimer,
		Processor: a.Processor,
		History:   a.History,
		Bus:       a.Bus,
		Metrics:   a.Metrics,
		Logger:    logger,
		ClaimTTL:  cfg.DedupTTL,
	})
	a.Webhook = webhook.NewService(webhook.Deps{
		Verifier: signature.NewVerifier(signature.Config{
			Secret:           cfg.MercadoPagoWebhookSecret,
			Tolerance:        cfg.SignatureTolerance,
			EnforceFreshness: cfg.EnforceFreshness,
		}, logger),
		Fetcher:      a.Gateway,
		Router:       a.Router,
		Bus:          a.Bus,
		Metrics:      a.Metrics,
		Logger:       logger,
		FetchTimeout: cfg.GatewayTimeout,
	})
	a.Payments = payment.NewService(a.Store, a.History, a.Bus, a.Gateway, payment.PreferenceDefaults{
		NotificationURL: cfg.WebhookURL,
		SuccessURL:      cfg.SuccessURL,
		FailureURL:      cfg.FailureURL,
		PendingURL:      cfg.PendingURL,
	}, logger)
	a.Recovery = recovery.NewService(a.Store, a.Processor, cfg.ReprocessConcurrency, logger)

	if cfg.WatcherEnabled && source != nil {
		a.Watcher = recovery.NewWatcher(recovery.WatcherDeps{
			Store:      a.Store,
			Claimer:    a.Claimer,
			Processor:  a.Processor,
			Source:     source,
			DeadLetter: a.Recovery,
			Metrics:    a.Metrics,
			Logger:     logger,
		}, recovery.WatcherConfig{
			SettleDelay:   cfg.SettleDelay,
			RetryBackoff:  cfg.RetryBackoff,
			SweepInterval: cfg.SweepInterval,
			ClaimTTL:      cfg.DedupTTL,
			MaxAttempts:   cfg.MaxAttempts,
		})
		checks["watcher"] = health.WatcherCheck(func() bool { return a.Watcher.Status().Active })
	}

	a.Health = health.NewService(healthTTL, checks)
	return a, nil
}

// Start launches the watcher when one is configured.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher == nil {
		return nil
	}
	return a.Watcher.Start(ctx)
}

// Close stops the watcher and releases resources in reverse opening order.
func (a *App) Close() error {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
