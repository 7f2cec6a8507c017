package domain

import "sort"

// BadgeID identifies a badge in the catalog.
type BadgeID string

// UserStats is the per-user aggregate owned by the progression engine.
// One document per user, persisted after every mutation.
type UserStats struct {
	UserID           string           `json:"user_id"`
	DisplayName      string           `json:"display_name,omitempty"`
	GamesPlayed      int              `json:"games_played"`
	TotalScore       int64            `json:"total_score"`
	StreakDays       int              `json:"streak_days"`
	LongestStreak    int              `json:"longest_streak"`
	LastActivityDate Date             `json:"last_activity_date"`
	UnlockedBadgeIDs []BadgeID        `json:"unlocked_badge_ids"`
	CategoryCounts   map[Category]int `json:"category_counts,omitempty"`
	// Version increases by one with every committed transition. The remote
	// mirror uses it to reject stale writes.
	Version int64 `json:"version"`
}

// NewUserStats returns the cold-start state for a user.
func NewUserStats(userID string) UserStats {
	return UserStats{UserID: userID, UnlockedBadgeIDs: []BadgeID{}}
}

// StreakAsOf returns the streak s still holds on today: the stored run when
// the last active day is today or yesterday, otherwise zero. A zero today
// returns the stored run.
func (s UserStats) StreakAsOf(today Date) int {
	if today.IsZero() {
		return s.StreakDays
	}
	if s.LastActivityDate.IsZero() || today.DaysSince(s.LastActivityDate) > 1 {
		return 0
	}
	return s.StreakDays
}

// Clone returns a deep copy so that a proposed transition never aliases committed state.
func (s UserStats) Clone() UserStats {
	out := s
	out.UnlockedBadgeIDs = append([]BadgeID{}, s.UnlockedBadgeIDs...)
	if s.CategoryCounts != nil {
		out.CategoryCounts = make(map[Category]int, len(s.CategoryCounts))
		for k, v := range s.CategoryCounts {
			out.CategoryCounts[k] = v
		}
	}
	return out
}

// HasBadge reports whether id is already unlocked.
func (s UserStats) HasBadge(id BadgeID) bool {
	for _, b := range s.UnlockedBadgeIDs {
		if b == id {
			return true
		}
	}
	return false
}

// BadgeCount returns the number of unlocked badges.
func (s UserStats) BadgeCount() int { return len(s.UnlockedBadgeIDs) }

// AddBadges unions ids into the unlocked set and returns the ones that were new.
// The set only grows and is kept sorted.
func (s *UserStats) AddBadges(ids ...BadgeID) []BadgeID {
	var added []BadgeID
	for _, id := range ids {
		if id == "" || s.HasBadge(id) {
			continue
		}
		s.UnlockedBadgeIDs = append(s.UnlockedBadgeIDs, id)
		added = append(added, id)
	}
	sort.Slice(s.UnlockedBadgeIDs, func(i, j int) bool { return s.UnlockedBadgeIDs[i] < s.UnlockedBadgeIDs[j] })
	return added
}

// CategoryCount returns how many activities of category c were recorded.
func (s UserStats) CategoryCount(c Category) int {
	return s.CategoryCounts[c]
}
