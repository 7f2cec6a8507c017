package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightsteps/progression/db"
	"github.com/brightsteps/progression/internal/badge"
	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/infra"
	"github.com/brightsteps/progression/internal/mirror"
	"github.com/brightsteps/progression/internal/progress"
	"github.com/brightsteps/progression/internal/ranking"
	"github.com/brightsteps/progression/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Services is the assembled progression engine with the stores behind it.
type Services struct {
	Engine    *progress.Engine
	Local     *repository.SQLiteStore
	Pool      *pgxpool.Pool
	Mirror    *mirror.Mirror
	Refresher *ranking.Refresher

	logger *slog.Logger
}

// Open connects the local store and, when enabled, the remote mirror, then
// wires the engine. The remote mirror failing to connect is fatal only at
// startup; afterwards the engine keeps serving locally while it is down.
func Open(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (*Services, error) {
	zone, err := cfg.StreakLocation()
	if err != nil {
		return nil, err
	}

	gdb, err := infra.OpenLocalDB(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	if err := repository.AutoMigrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate local db: %w", err)
	}
	local := repository.NewSQLiteStore(gdb)
	logger.Info("local store ready", "path", cfg.LocalDBPath)

	s := &Services{Local: local, logger: logger}

	var remote repository.RemoteStore
	var remoteSource ranking.Source
	if cfg.RemoteMirrorEnabled {
		if err := infra.RunMigrations(db.Migrations, "migrations", cfg.DSN(), logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.Pool = pool
		pg := repository.NewPgMirrorStore(pool)
		remote, remoteSource = pg, pg
		logger.Info("connected to remote mirror")
	} else {
		logger.Info("remote mirror disabled")
	}

	breaker := guard.NewCircuitBreaker(cfg.BreakerFailThreshold, cfg.BreakerResetTimeout)
	s.Mirror = mirror.New(remote, breaker, mirror.Config{
		MaxAttempts:    cfg.MirrorMaxAttempts,
		InitialBackoff: cfg.MirrorInitialBackoff,
		MaxBackoff:     cfg.MirrorMaxBackoff,
		AttemptTimeout: cfg.MirrorAttemptTimeout,
	}, logger)

	s.Refresher = ranking.NewRefresher(
		ranking.NewMergedSource(local, remoteSource, logger),
		local,
		ranking.RefresherConfig{Buckets: cfg.LeaderboardFriendlyBuckets, StaleAfter: cfg.LeaderboardStaleAfter, Zone: zone},
		logger,
	)

	s.Engine = progress.NewEngine(progress.Deps{
		Aggregator:   progress.NewAggregator(badge.DefaultCatalog(), zone),
		Local:        local,
		Remote:       remote,
		Mirror:       s.Mirror,
		Leaderboards: s.Refresher,
		Logger:       logger,
	})
	return s, nil
}

// RemoteCheck returns a health probe for the remote mirror, or nil when it
// is disabled.
func (s *Services) RemoteCheck() func(context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return func(ctx context.Context) error { return infra.HealthCheck(ctx, s.Pool) }
}

// Close drains the mirror within timeout and releases connections.
func (s *Services) Close(timeout time.Duration) {
	s.Refresher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Mirror.Close(ctx); err != nil {
		s.logger.Warn("mirror jobs cancelled on shutdown", "error", err)
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if err := s.Local.Close(); err != nil {
		s.logger.Warn("close local db", "error", err)
	}
}
