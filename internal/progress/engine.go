package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/guard"
	"github.com/brightsteps/progression/internal/ranking"
	"github.com/brightsteps/progression/internal/repository"
	"github.com/google/uuid"
)

// Mirror receives committed state for asynchronous remote sync.
type Mirror interface {
	Enqueue(stats domain.UserStats) error
}

// Leaderboards serves ranked snapshots.
type Leaderboards interface {
	Leaderboard(ctx context.Context, scope string, limit int) (domain.Leaderboard, error)
	Buckets() int
}

// SubmitResult is returned for every committed transition.
type SubmitResult struct {
	Stats         domain.UserStats `json:"stats"`
	NewlyUnlocked []domain.BadgeID `json:"newly_unlocked"`
	RankScore     int64            `json:"rank_score"`
	Anomalies     []domain.Anomaly `json:"anomalies,omitempty"`
}

// Deps wires an Engine. Remote and Mirror may be nil.
type Deps struct {
	Aggregator   *Aggregator
	Local        repository.LocalStore
	Remote       repository.RemoteStore
	Mirror       Mirror
	Leaderboards Leaderboards
	Logger       *slog.Logger
}

// Engine is the progression service. Transitions for one user are
// serialized; different users proceed in parallel.
type Engine struct {
	agg    *Aggregator
	local  repository.LocalStore
	remote repository.RemoteStore
	mirror Mirror
	boards Leaderboards
	logger *slog.Logger
	locks  *guard.KeyedMutex
	now    func() time.Time

	// pending holds undrained unlocks per user. A badge unlocks at most once
	// per user, so each slice is bounded by the catalog size. It is not
	// persisted; badge.unlocked outbox events are the durable record.
	pendingMu sync.Mutex
	pending   map[string][]domain.BadgeID
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		agg:     d.Aggregator,
		local:   d.Local,
		remote:  d.Remote,
		mirror:  d.Mirror,
		boards:  d.Leaderboards,
		logger:  d.Logger,
		locks:   guard.NewKeyedMutex(),
		now:     time.Now,
		pending: make(map[string][]domain.BadgeID),
	}
}

// SubmitActivity validates ev and applies it to the user's stats as one
// atomic transition. Nothing is changed, and no unlock is reported, unless
// the local commit succeeds.
func (e *Engine) SubmitActivity(ctx context.Context, userID string, ev domain.ActivityEvent) (*SubmitResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := domain.ValidateActivity(ev); err != nil {
		return nil, err
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	cur, err := e.current(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateScoreCeiling(cur.stats.TotalScore, int64(ev.CorrectAnswers)); err != nil {
		return nil, err
	}

	tr := e.agg.ApplyActivity(cur.stats, ev)
	for _, a := range tr.Anomalies {
		e.logger.Warn("activity anomaly", "user_id", userID, "activity_id", ev.ID, "kind", a.Kind, "detail", a.Detail)
	}

	now := e.now().UTC()
	entry := domain.LogEntry{UserID: userID, Kind: domain.LogActivity, EventID: ev.ID, Activity: &ev, RecordedAt: now}
	events := []domain.OutboxDraft{domain.NewActivityRecordedEvent(userID, ev, tr.Next, now)}
	if err := e.commit(ctx, cur, tr, entry, events, now); err != nil {
		return nil, err
	}
	return e.result(tr, now), nil
}

// GrantBonus adds amount points outside of any activity.
func (e *Engine) GrantBonus(ctx context.Context, userID string, amount int64) (*SubmitResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	cur, err := e.current(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateScoreCeiling(cur.stats.TotalScore, amount); err != nil {
		return nil, err
	}

	tr := e.agg.ApplyBonus(cur.stats, amount)
	now := e.now().UTC()
	entry := domain.LogEntry{UserID: userID, Kind: domain.LogBonus, EventID: uuid.New(), Amount: amount, RecordedAt: now}
	events := []domain.OutboxDraft{domain.NewBonusGrantedEvent(userID, amount, tr.Next, now)}
	if err := e.commit(ctx, cur, tr, entry, events, now); err != nil {
		return nil, err
	}
	return e.result(tr, now), nil
}

// GetStats returns the user's committed stats. Users the engine has never
// seen get the remote copy when one exists, else cold-start stats. A read
// while the remote is unreachable also falls back to cold-start stats; it
// persists nothing.
func (e *Engine) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	cur, err := e.current(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return &cur.stats, nil
}

// EffectiveStreak is the streak a user still holds today: the stored run
// when the last active day was today or yesterday, otherwise zero.
func (e *Engine) EffectiveStreak(stats domain.UserStats) int {
	return EffectiveStreak(StreakOf(stats), e.agg.Today(e.now()))
}

// GetNewlyUnlocked drains the badges unlocked since the previous call.
func (e *Engine) GetNewlyUnlocked(userID string) []domain.BadgeID {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	out := e.pending[userID]
	delete(e.pending, userID)
	if out == nil {
		return []domain.BadgeID{}
	}
	return out
}

// GetLeaderboard returns the top limit entries for scope.
func (e *Engine) GetLeaderboard(ctx context.Context, limit int, scope string) (domain.Leaderboard, error) {
	if limit < 0 {
		return domain.Leaderboard{}, domain.ErrValidation(fmt.Sprintf("limit must not be negative, got %d", limit))
	}
	return e.boards.Leaderboard(ctx, scope, limit)
}

// ScopeForUser names the friendly leaderboard scope userID ranks in.
func (e *Engine) ScopeForUser(userID string) string {
	return ranking.FriendlyScope(userID, e.boards.Buckets())
}

type loaded struct {
	stats    domain.UserStats
	exists   bool
	hydrated bool
}

// current loads the committed stats, falling back to the remote mirror and
// then to cold-start stats for users absent locally. When the remote cannot
// be read and forWrite is set, the load fails with a retryable persistence
// error instead of starting cold.
func (e *Engine) current(ctx context.Context, userID string, forWrite bool) (loaded, error) {
	st, err := e.local.GetStats(ctx, userID)
	if err == nil {
		return loaded{stats: *st, exists: true}, nil
	}
	if !domain.HasCode(err, domain.CodeNotFound) {
		return loaded{}, domain.ErrPersistence("load stats", err)
	}

	if e.remote != nil {
		remote, rerr := e.remote.Get(ctx, userID)
		switch {
		case rerr != nil && forWrite:
			e.logger.Warn("remote hydration failed, rejecting write", "user_id", userID, "error", rerr)
			return loaded{}, domain.ErrPersistence("remote progress unavailable, retry later", rerr)
		case rerr != nil:
			e.logger.Warn("remote hydration failed, serving cold-start stats", "user_id", userID, "error", rerr)
		case remote != nil:
			remote.UserID = userID
			if remote.UnlockedBadgeIDs == nil {
				remote.UnlockedBadgeIDs = []domain.BadgeID{}
			}
			return loaded{stats: *remote, hydrated: true}, nil
		}
	}
	return loaded{stats: domain.NewUserStats(userID)}, nil
}

func (e *Engine) commit(ctx context.Context, cur loaded, tr Transition, entry domain.LogEntry, events []domain.OutboxDraft, now time.Time) error {
	var entries []domain.LogEntry
	if cur.hydrated {
		base := cur.stats.Clone()
		entries = append(entries, domain.LogEntry{
			UserID:     entry.UserID,
			Kind:       domain.LogBaseline,
			EventID:    uuid.New(),
			Baseline:   &base,
			RecordedAt: now,
		})
	}
	entries = append(entries, entry)

	for _, b := range tr.NewlyUnlocked {
		events = append(events, domain.NewBadgeUnlockedEvent(entry.UserID, b, tr.Next.Version, now))
	}

	var expected int64
	if cur.exists {
		expected = cur.stats.Version
	}

	err := e.local.Commit(ctx, repository.Commit{
		Stats:           tr.Next,
		ExpectedVersion: expected,
		Entries:         entries,
		Events:          events,
	})
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		e.logger.Error("local commit failed", "user_id", entry.UserID, "kind", entry.Kind, "error", err)
		return domain.ErrPersistence("commit stats", err)
	}

	if len(tr.NewlyUnlocked) > 0 {
		e.pendingMu.Lock()
		e.pending[entry.UserID] = append(e.pending[entry.UserID], tr.NewlyUnlocked...)
		e.pendingMu.Unlock()
		e.logger.Info("badges unlocked", "user_id", entry.UserID, "badges", tr.NewlyUnlocked)
	}

	if e.mirror != nil {
		if err := e.mirror.Enqueue(tr.Next); err != nil {
			e.logger.Warn("remote mirror not scheduled", "user_id", entry.UserID, "error", err)
		}
	}
	return nil
}

func (e *Engine) result(tr Transition, now time.Time) *SubmitResult {
	unlocked := tr.NewlyUnlocked
	if unlocked == nil {
		unlocked = []domain.BadgeID{}
	}
	return &SubmitResult{
		Stats:         tr.Next,
		NewlyUnlocked: unlocked,
		RankScore:     ranking.ScoreAsOf(tr.Next, e.agg.Today(now)),
		Anomalies:     tr.Anomalies,
	}
}

// ReplayReport compares a user's stored stats with a rebuild from the log.
type ReplayReport struct {
	UserID  string           `json:"user_id"`
	Entries int              `json:"entries"`
	Stored  domain.UserStats `json:"stored"`
	Rebuilt domain.UserStats `json:"rebuilt"`
	Match   bool             `json:"match"`
}

// Replay rebuilds userID's stats from the activity log and reports whether
// they equal the stored document. Versions are not compared.
func (e *Engine) Replay(ctx context.Context, userID string) (*ReplayReport, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.replay(ctx, userID)
}

func (e *Engine) replay(ctx context.Context, userID string) (*ReplayReport, error) {
	stored, err := e.local.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	log, err := e.local.ListLog(ctx, userID)
	if err != nil {
		return nil, domain.ErrPersistence("load activity log", err)
	}
	rebuilt := e.agg.Replay(userID, log)
	match, err := sameStats(*stored, rebuilt)
	if err != nil {
		return nil, err
	}
	return &ReplayReport{UserID: userID, Entries: len(log), Stored: *stored, Rebuilt: rebuilt, Match: match}, nil
}

// RepairFromLog replaces a drifted stats document with the log rebuild,
// committed as a new version and mirrored like any other transition.
func (e *Engine) RepairFromLog(ctx context.Context, userID string) (*ReplayReport, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rep, err := e.replay(ctx, userID)
	if err != nil || rep.Match {
		return rep, err
	}

	fixed := rep.Rebuilt.Clone()
	fixed.Version = rep.Stored.Version + 1
	if err := e.local.Commit(ctx, repository.Commit{Stats: fixed, ExpectedVersion: rep.Stored.Version}); err != nil {
		if domain.HasCode(err, domain.CodeConflict) {
			return nil, err
		}
		return nil, domain.ErrPersistence("commit repaired stats", err)
	}
	e.logger.Warn("stats repaired from activity log", "user_id", userID, "entries", rep.Entries, "version", fixed.Version)
	if e.mirror != nil {
		_ = e.mirror.Enqueue(fixed)
	}
	rep.Stored = fixed
	rep.Match = true
	return rep, nil
}

func sameStats(a, b domain.UserStats) (bool, error) {
	norm := func(s domain.UserStats) ([]byte, error) {
		s.Version = 0
		if s.UnlockedBadgeIDs == nil {
			s.UnlockedBadgeIDs = []domain.BadgeID{}
		}
		if len(s.CategoryCounts) == 0 {
			s.CategoryCounts = nil
		}
		return json.Marshal(s)
	}
	ja, err := norm(a)
	if err != nil {
		return false, err
	}
	jb, err := norm(b)
	if err != nil {
		return false, err
	}
	return string(ja) == string(jb), nil
}
