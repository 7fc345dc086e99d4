package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	consumerhandlers "github.com/ReimaoHenrique/api-mercadolivre/cmd/consumers/handlers"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/app"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/config"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

// The consumer runs reconciliation without the HTTP surface, for deployments
// where the web tier is scaled separately from the watcher.
func main() {
	boot := observability.NewLogger()
	cfg, errs := config.Load(os.Getenv("CONFIG_FILE"))
	if len(errs) > 0 {
		for _, err := range errs {
			boot.Error("config error", "error", err.Error())
		}
		os.Exit(1)
	}
	cfg.WatcherEnabled = true

	logger, err := observability.New(observability.LoggerOptions{
		Service:     cfg.Name + "-consumer",
		Development: !cfg.IsProduction(),
		Level:       cfg.LogLevel,
	})
	if err != nil {
		boot.Error("logger init error", "error", err.Error())
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("app init error", "error", err.Error())
		return
	}
	defer func() { _ = a.Close() }()

	consumerhandlers.SubscribeAll(a.Bus, events.Names(),
		consumerhandlers.NewAuditEvent(a.Audit),
		consumerhandlers.NewMetricsEvent(a.Metrics))

	if err := a.Start(ctx); err != nil {
		logger.Error("watcher start error", "error", err.Error())
		return
	}
	logger.Info("consumer started", "storage", cfg.StorageBackend)

	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("consumer stopping")
			return
		case <-t.C:
			st := a.Watcher.Status()
			logger.Info("watcher snapshot",
				"source", st.Source,
				"in_flight", st.InFlight,
				"processed", st.ProcessedCount,
				"failed", st.FailedCount)
		}
	}
}
