// Package mirror copies committed stats to the remote store in the
// background. Each user has at most one job in flight; enqueuing newer
// state cancels the older job so a stale retry never lands last.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/repository"
)

const breakerKey = "remote_mirror"

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("mirror closed")

// Config controls retry behaviour.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// Metrics are cumulative job outcomes.
type Metrics struct {
	Synced     int64 `json:"synced"`
	Stale      int64 `json:"stale"`
	Superseded int64 `json:"superseded"`
	Abandoned  int64 `json:"abandoned"`
	InFlight   int   `json:"in_flight"`
}

// Mirror is the asynchronous remote writer.
type Mirror struct {
	remote  repository.RemoteStore
	breaker *guard.CircuitBreaker
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool

	synced     atomic.Int64
	stale      atomic.Int64
	superseded atomic.Int64
	abandoned  atomic.Int64
}

type job struct {
	version int64
	cancel  context.CancelFunc
}

// New creates a mirror. A nil remote yields a disabled mirror whose
// Enqueue is a no-op.
func New(remote repository.RemoteStore, breaker *guard.CircuitBreaker, cfg Config, logger *slog.Logger) *Mirror {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if breaker == nil {
		breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		remote:  remote,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}
}

// Enabled reports whether a remote store is configured.
func (m *Mirror) Enabled() bool { return m.remote != nil }

// Enqueue schedules stats for mirroring and returns immediately. An older
// version than the one already in flight is dropped.
func (m *Mirror) Enqueue(stats domain.UserStats) error {
	if m.remote == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if cur, ok := m.jobs[stats.UserID]; ok {
		if cur.version >= stats.Version {
			return nil
		}
		cur.cancel()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{version: stats.Version, cancel: cancel}
	m.jobs[stats.UserID] = j

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, stats.Clone())

		m.mu.Lock()
		if m.jobs[stats.UserID] == j {
			delete(m.jobs, stats.UserID)
		}
		m.mu.Unlock()
	}()
	return nil
}

func (m *Mirror) run(ctx context.Context, stats domain.UserStats) {
	log := m.logger.With("user_id", stats.UserID, "version", stats.Version)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			m.superseded.Add(1)
			log.Debug("remote mirror superseded")
			return
		}

		err := m.attempt(ctx, stats)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			m.superseded.Add(1)
			log.Debug("remote mirror superseded")
			return
		}
		if attempt >= m.cfg.MaxAttempts {
			m.abandoned.Add(1)
			log.Error("remote mirror abandoned", "attempts", attempt, "error", err)
			return
		}

		wait := Backoff(m.cfg.InitialBackoff, m.cfg.MaxBackoff, attempt)
		log.Warn("remote mirror failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Mirror) attempt(ctx context.Context, stats domain.UserStats) error {
	if res := m.breaker.Check(ctx, breakerKey); !res.Allowed {
		return errors.New(res.Reason)
	}

	actx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	defer cancel()

	applied, err := m.remote.Upsert(actx, stats)
	if err != nil {
		if ctx.Err() == nil {
			m.breaker.RecordFailure(breakerKey)
		}
		return err
	}
	m.breaker.RecordSuccess(breakerKey)
	if applied {
		m.synced.Add(1)
	} else {
		m.stale.Add(1)
		m.logger.Warn("remote mirror holds a newer version, local write skipped", "user_id", stats.UserID, "version", stats.Version)
	}
	return nil
}

// Backoff returns the wait after the given failed attempt: initial doubled
// per attempt and capped at limit.
func Backoff(initial, limit time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Metrics returns a snapshot of job outcomes.
func (m *Mirror) Metrics() Metrics {
	m.mu.Lock()
	inFlight := len(m.jobs)
	m.mu.Unlock()
	return Metrics{
		Synced:     m.synced.Load(),
		Stale:      m.stale.Load(),
		Superseded: m.superseded.Load(),
		Abandoned:  m.abandoned.Load(),
		InFlight:   inFlight,
	}
}

// BreakerState reports the remote circuit state.
func (m *Mirror) BreakerState() guard.CircuitState {
	return m.breaker.State(breakerKey)
}

// Close stops accepting jobs and waits for in-flight ones until ctx is
// done, after which remaining jobs are cancelled.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
