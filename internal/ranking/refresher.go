package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/projection"
	"github.com/robfig/cron/v3"
)

// RefresherConfig controls snapshot cadence and staleness. Zone sets the
// day boundary lapsed streaks are judged against; nil means UTC.
type RefresherConfig struct {
	Buckets    int
	StaleAfter time.Duration
	Zone       *time.Location
}

// Refresher recomputes every scope's leaderboard from a stats snapshot and
// stores the results in the projection store. Each pass fully replaces the
// previous snapshots.
type Refresher struct {
	source Source
	store  projection.Store
	cfg    RefresherConfig
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewRefresher(source Source, store projection.Store, cfg RefresherConfig, logger *slog.Logger) *Refresher {
	if cfg.Buckets < 1 {
		cfg.Buckets = 1
	}
	return &Refresher{source: source, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Buckets returns the number of friendly scopes.
func (r *Refresher) Buckets() int { return r.cfg.Buckets }

// Refresh runs one ranking pass over all scopes.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.source.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load ranking snapshot: %w", err)
	}
	generated := r.now().UTC()
	today := domain.DateIn(generated, r.cfg.Zone)

	groups := make([][]domain.UserStats, r.cfg.Buckets)
	for _, s := range all {
		b := BucketFor(s.UserID, r.cfg.Buckets)
		groups[b] = append(groups[b], s)
	}

	for _, sc := range AllScopes(r.cfg.Buckets) {
		users := all
		if !sc.Global {
			users = groups[sc.Bucket]
		}
		lb := domain.Leaderboard{
			Scope:       sc.Name,
			Entries:     RankAsOf(users, today),
			TotalUsers:  len(users),
			GeneratedAt: generated,
		}
		if err := projection.PutLeaderboard(ctx, r.store, lb); err != nil {
			return fmt.Errorf("store leaderboard %s: %w", sc.Name, err)
		}
	}

	r.logger.Debug("leaderboards refreshed", "users", len(all), "scopes", r.cfg.Buckets+1)
	return nil
}

// Leaderboard returns the top limit entries of a scope's latest snapshot,
// running a pass first if none exists. limit <= 0 returns every entry.
// Snapshots older than StaleAfter are returned flagged as stale.
func (r *Refresher) Leaderboard(ctx context.Context, scope string, limit int) (domain.Leaderboard, error) {
	sc, err := ParseScope(scope, r.cfg.Buckets)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	lb, err := projection.GetLeaderboard(ctx, r.store, sc.Name)
	if errors.Is(err, projection.ErrMissing) {
		if err := r.Refresh(ctx); err != nil {
			return domain.Leaderboard{}, err
		}
		lb, err = projection.GetLeaderboard(ctx, r.store, sc.Name)
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard %s: %w", sc.Name, err)
	}

	if limit > 0 && len(lb.Entries) > limit {
		lb.Entries = lb.Entries[:limit]
	}
	if age := r.now().Sub(lb.GeneratedAt); r.cfg.StaleAfter > 0 && age > r.cfg.StaleAfter {
		lb.Stale = true
		r.logger.Warn("serving stale leaderboard", "scope", sc.Name, "age", age.Round(time.Second))
	}
	return *lb, nil
}

// Start schedules Refresh on the given cron spec.
func (r *Refresher) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			r.logger.Error("leaderboard refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule leaderboard refresh %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("leaderboard refresher started", "spec", spec, "buckets", r.cfg.Buckets)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("leaderboard refresher stopped")
}
