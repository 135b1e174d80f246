package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ovenbook/internal/api"
	"ovenbook/internal/config"
	"ovenbook/internal/db"
	"ovenbook/internal/metrics"
	"ovenbook/internal/mq"
	"ovenbook/internal/notify"
	"ovenbook/internal/telemetry"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg, opts.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = shutdownTracer(ctxShutdown)
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	watcher := config.NewOvensWatcher(cfg.Ovens.ConfigPath, cfg.OvensWatchInterval(), a.syncOvens, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Ovens.ConfigPath).Msg("ovens config not loaded")
	}

	if cfg.Notifications.Enabled {
		notifier := notify.NewNotifier(notify.NewLogSender(logger), a.access, a.ovens, notify.Config{
			From:     cfg.Notifications.From,
			Interval: cfg.NotificationInterval(),
		}, logger)
		notifier.Subscribe(a.bus)
		go notifier.Run(ctx)
	}

	if cfg.Events.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.Events.RabbitURL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		} else {
			defer pub.Close()
			pub.Subscribe(a.bus)
		}
	}

	if a.sqlDB != nil {
		backup := db.NewBackupService(a.sqlDB, cfg.Backup, cfg.BackupInterval(), logger)
		go backup.Start(ctx)
	}

	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()

	deps := api.Deps{
		Engine:  a.engine,
		Access:  a.access,
		Ovens:   a.ovens,
		Sweeper: a.sweeper,
		Clock:   a.clock,
		APIKey:  cfg.HTTP.APIKey,
	}
	if exp := a.exporter(); exp != nil {
		deps.Exporter = exp
	}
	if a.sqlDB != nil {
		deps.Health = a.sqlDB
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewServer(deps, logger).Router(),
		ReadTimeout:  cfg.HTTPReadTimeout(),
		WriteTimeout: cfg.HTTPWriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("address", cfg.HTTP.Address).Str("driver", cfg.Database.Driver).Msg("ovenbook started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info().Msg("ovenbook stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
