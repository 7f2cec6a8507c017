//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brightsteps/progression/db"
	"github.com/brightsteps/progression/internal/app"
	"github.com/brightsteps/progression/internal/infra"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestDBHost = "localhost"
	TestDBPort = 5435
	TestDBUser = "progress"
	TestDBPass = "progress"
	TestDBName = "progress_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	Services *app.Services
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func dsn(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, database)
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the main database to create the test database
	bPool, err := pgxpool.New(ctx, dsn(TestDBUser))
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

// SharedPool returns a pool on the migrated test database.
func SharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := infra.RunMigrations(db.Migrations, "migrations", dsn(TestDBName), Logger()); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sharedPool, poolErr = pgxpool.New(ctx, dsn(TestDBName))
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// Logger discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Config returns a config pointing at the test database and a fresh local
// store under dir.
func Config(dir string) *infra.Config {
	return &infra.Config{
		LocalDBPath:                filepath.Join(dir, "progress.db"),
		RemoteMirrorEnabled:        true,
		DatabaseURL:                dsn(TestDBName),
		MirrorMaxAttempts:          3,
		MirrorInitialBackoff:       10 * time.Millisecond,
		MirrorMaxBackoff:           50 * time.Millisecond,
		MirrorAttemptTimeout:       2 * time.Second,
		BreakerFailThreshold:       5,
		BreakerResetTimeout:        time.Second,
		StreakTimezone:             "UTC",
		LeaderboardRefreshSpec:     "@every 1m",
		LeaderboardFriendlyBuckets: 4,
	}
}

// NewTestEnv serves the real router over a fresh local store, mirrored to
// the test database. Pass the same dir to simulate a second session on one
// device, or a new t.TempDir() for another device.
func NewTestEnv(t *testing.T, dir string) *TestEnv {
	t.Helper()
	pool := SharedPool(t)

	svc, err := app.Open(context.Background(), Config(dir), Logger())
	if err != nil {
		t.Fatalf("open services: %v", err)
	}

	router := app.NewRouter(app.RouterDeps{
		Engine:             svc.Engine,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		LocalCheck:         svc.Local.Ping,
		RemoteCheck:        svc.RemoteCheck(),
		Mirror:             svc.Mirror,
		CORSAllowedOrigins: "*",
	})
	server := httptest.NewServer(router)

	env := &TestEnv{Server: server, Pool: pool, Services: svc, t: t}
	t.Cleanup(func() {
		server.Close()
		svc.Close(5 * time.Second)
	})
	return env
}
