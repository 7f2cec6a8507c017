// Package progress folds activity events and bonus grants into per-user
// stats and runs the engine that commits those transitions.
package progress

import (
	"time"

	"github.com/brightsteps/progression/internal/badge"
	"github.com/brightsteps/progression/internal/domain"
)

// Outcome carries the non-state results of applying one activity.
type Outcome struct {
	Anomalies []domain.Anomaly
}

// Apply folds one validated activity into stats and returns the next state.
// loc decides the calendar day the activity counts towards. The input is
// never modified.
func Apply(stats domain.UserStats, ev domain.ActivityEvent, loc *time.Location) (domain.UserStats, Outcome) {
	next := stats.Clone()
	var out Outcome

	next.GamesPlayed++
	next.TotalScore += int64(ev.CorrectAnswers)
	if ev.PlayerName != "" {
		next.DisplayName = ev.PlayerName
	}
	if next.CategoryCounts == nil {
		next.CategoryCounts = make(map[domain.Category]int)
	}
	next.CategoryCounts[ev.Category]++

	streak, anomaly := AdvanceStreak(StreakOf(next), domain.DateIn(ev.CompletedAt, loc))
	if anomaly != nil {
		out.Anomalies = append(out.Anomalies, *anomaly)
	}
	next.StreakDays = streak.Days
	next.LastActivityDate = streak.Last
	if next.StreakDays > next.LongestStreak {
		next.LongestStreak = next.StreakDays
	}
	return next, out
}

// AddBonus adds externally granted points. Bonus points do not touch the
// streak or the games counter.
func AddBonus(stats domain.UserStats, amount int64) domain.UserStats {
	next := stats.Clone()
	next.TotalScore += amount
	return next
}

// Transition is a proposed, not yet committed, state change.
type Transition struct {
	Prev          domain.UserStats
	Next          domain.UserStats
	NewlyUnlocked []domain.BadgeID
	Anomalies     []domain.Anomaly
}

// Aggregator combines the stats fold with badge evaluation. Live processing
// and log replay both go through it so they cannot drift apart.
type Aggregator struct {
	catalog     *badge.Catalog
	defaultZone *time.Location
}

// NewAggregator creates an aggregator. defaultZone is used for events that
// carry no time zone of their own; nil means UTC.
func NewAggregator(catalog *badge.Catalog, defaultZone *time.Location) *Aggregator {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	return &Aggregator{catalog: catalog, defaultZone: defaultZone}
}

// Catalog returns the badge catalog in use.
func (a *Aggregator) Catalog() *badge.Catalog { return a.catalog }

// Location returns the zone whose calendar day ev counts towards.
func (a *Aggregator) Location(ev domain.ActivityEvent) *time.Location {
	if ev.TimeZone != "" {
		if loc, err := time.LoadLocation(ev.TimeZone); err == nil {
			return loc
		}
	}
	return a.defaultZone
}

// Today returns the current calendar day in the default zone.
func (a *Aggregator) Today(now time.Time) domain.Date {
	return domain.DateIn(now, a.defaultZone)
}

// ApplyActivity computes the transition for one activity: counters, streak,
// badge evaluation against the proposed state, and the version bump.
func (a *Aggregator) ApplyActivity(stats domain.UserStats, ev domain.ActivityEvent) Transition {
	next, out := Apply(stats, ev, a.Location(ev))
	score := ev.Score()
	return a.finish(stats, next, &score, out.Anomalies)
}

// ApplyBonus computes the transition for a bonus grant.
func (a *Aggregator) ApplyBonus(stats domain.UserStats, amount int64) Transition {
	return a.finish(stats, AddBonus(stats, amount), nil, nil)
}

func (a *Aggregator) finish(prev, next domain.UserStats, activity *domain.ActivityScore, anomalies []domain.Anomaly) Transition {
	unlocked := badge.Merge(&next, a.catalog.NewlyUnlocked(next, activity))
	next.Version = prev.Version + 1
	return Transition{
		Prev:          prev,
		Next:          next,
		NewlyUnlocked: unlocked,
		Anomalies:     anomalies,
	}
}

// Replay folds a user's log from a cold start. The result equals the state
// produced by applying the same entries one at a time during live play.
func (a *Aggregator) Replay(userID string, entries []domain.LogEntry) domain.UserStats {
	stats := domain.NewUserStats(userID)
	for _, e := range entries {
		switch e.Kind {
		case domain.LogActivity:
			if e.Activity == nil {
				continue
			}
			stats = a.ApplyActivity(stats, *e.Activity).Next
		case domain.LogBonus:
			stats = a.ApplyBonus(stats, e.Amount).Next
		case domain.LogBaseline:
			if e.Baseline != nil {
				stats = e.Baseline.Clone()
				stats.UserID = userID
			}
		}
	}
	return stats
}
