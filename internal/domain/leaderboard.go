package domain

import "time"

// LeaderboardEntry is one row of a ranking pass. Entries are a read-model and
// are regenerated on every pass.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	RankScore   int64  `json:"rank_score"`
	TotalScore  int64  `json:"total_score"`
	StreakDays  int    `json:"streak_days"`
	BadgeCount  int    `json:"badge_count"`
}

// Leaderboard is a ranked snapshot for one scope.
type Leaderboard struct {
	Scope       string             `json:"scope"`
	Entries     []LeaderboardEntry `json:"entries"`
	TotalUsers  int                `json:"total_users"`
	GeneratedAt time.Time          `json:"generated_at"`
	// Stale is set when the snapshot is older than the refresh interval allows.
	Stale bool `json:"stale"`
}

// AnomalyKind classifies non-fatal irregularities seen while applying an event.
type AnomalyKind string

const (
	AnomalyOutOfOrder AnomalyKind = "out_of_order_event"
)

// Anomaly is reported alongside a successful transition.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Detail string      `json:"detail"`
}
