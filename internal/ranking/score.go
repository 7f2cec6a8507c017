// Package ranking turns a snapshot of user stats into ordered leaderboards.
package ranking

import (
	"sort"

	"github.com/brightsteps/progression/internal/domain"
)

// Rank score weights.
const (
	BadgeWeight  = 25
	StreakWeight = 10
)

// Score is the single comparable value a user is ranked by, using the
// streak as stored.
func Score(s domain.UserStats) int64 {
	return score(s, s.StreakDays)
}

// ScoreAsOf ranks s with the streak it still holds on today. A streak whose
// last active day is before yesterday contributes nothing. A zero today
// falls back to the stored streak.
func ScoreAsOf(s domain.UserStats, today domain.Date) int64 {
	return score(s, s.StreakAsOf(today))
}

func score(s domain.UserStats, streak int) int64 {
	return s.TotalScore + BadgeWeight*int64(s.BadgeCount()) + StreakWeight*int64(streak)
}

// Entry builds the unranked leaderboard row for s.
func Entry(s domain.UserStats) domain.LeaderboardEntry {
	return EntryAsOf(s, domain.Date{})
}

// EntryAsOf builds the unranked row for s, reporting the streak s still
// holds on today.
func EntryAsOf(s domain.UserStats, today domain.Date) domain.LeaderboardEntry {
	name := s.DisplayName
	if name == "" {
		name = s.UserID
	}
	streak := s.StreakAsOf(today)
	return domain.LeaderboardEntry{
		UserID:      s.UserID,
		DisplayName: name,
		RankScore:   score(s, streak),
		TotalScore:  s.TotalScore,
		StreakDays:  streak,
		BadgeCount:  s.BadgeCount(),
	}
}

// Less orders a before b: higher rank score, then higher streak, then more
// badges, then user ID ascending.
func Less(a, b domain.LeaderboardEntry) bool {
	if a.RankScore != b.RankScore {
		return a.RankScore > b.RankScore
	}
	if a.StreakDays != b.StreakDays {
		return a.StreakDays > b.StreakDays
	}
	if a.BadgeCount != b.BadgeCount {
		return a.BadgeCount > b.BadgeCount
	}
	return a.UserID < b.UserID
}

// Rank returns the fully ordered leaderboard for users using stored
// streaks. Ranks are 1-based positions. The input slice is not modified.
func Rank(users []domain.UserStats) []domain.LeaderboardEntry {
	return RankAsOf(users, domain.Date{})
}

// RankAsOf is Rank with every streak evaluated as of today.
func RankAsOf(users []domain.UserStats, today domain.Date) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = EntryAsOf(u, today)
	}
	sort.Slice(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
