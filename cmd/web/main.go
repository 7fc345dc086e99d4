package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	consumerhandlers "github.com/ReimaoHenrique/api-mercadolivre/cmd/consumers/handlers"
	"github.com/ReimaoHenrique/api-mercadolivre/cmd/web/handlers"
	"github.com/ReimaoHenrique/api-mercadolivre/cmd/web/validator"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/app"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/config"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/events"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

func main() {
	boot := observability.NewLogger()
	cfg, errs := config.Load(os.Getenv("CONFIG_FILE"))
	if len(errs) > 0 {
		for _, err := range errs {
			boot.Error("config error", "error", err.Error())
		}
		os.Exit(1)
	}

	logger, err := observability.New(observability.LoggerOptions{
		Service:     cfg.Name,
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	jsonV := validator.NewJSON()
	routes := handlers.Routes{
		Webhook: handlers.NewWebhook(jsonV, a.Webhook, logger),
		Payment: handlers.NewPayment(jsonV, a.Payments, logger),
		Monitor: handlers.NewMonitor(a.Recovery, nil, logger),
		Health:  handlers.NewHealth(a.Health),
		Metrics: a.Metrics.Handler(),
		Logger:  logger,
	}
	if a.Watcher != nil {
		routes.Monitor = handlers.NewMonitor(a.Recovery, a.Watcher, logger)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handlers.NewRouter(routes),
		ReadHeaderTimeout: 2 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web server started", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.StorageBackend, "watcher", a.Watcher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("web server error", "error", err.Error())
	}
	logger.Info("web server stopped")
}
