package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/brightsteps/progression/internal/app"
	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close(10 * time.Second)

	// Leaderboard snapshots
	if err := svc.Refresher.Refresh(ctx); err != nil {
		logger.Warn("initial leaderboard refresh failed", "error", err)
	}
	if err := svc.Refresher.Start(cfg.LeaderboardRefreshSpec); err != nil {
		return fmt.Errorf("schedule leaderboard refresh: %w", err)
	}

	// Outbox -> Kafka
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if producer.Enabled() {
		infra.NewOutboxPoller(svc.Local, producer, cfg.KafkaTopicPrefix, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger).
			WithRetention(cfg.OutboxRetention).
			Start(ctx)
	}

	r := app.NewRouter(app.RouterDeps{
		Engine:             svc.Engine,
		Limiter:            guard.NewRateLimiter(cfg.RateLimitSubmissions, cfg.RateLimitWindow),
		Logger:             logger,
		LocalCheck:         svc.Local.Ping,
		RemoteCheck:        svc.RemoteCheck(),
		Mirror:             svc.Mirror,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
