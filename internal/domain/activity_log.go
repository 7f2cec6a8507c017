package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogKind distinguishes the two kinds of recorded transitions.
type LogKind string

const (
	LogActivity LogKind = "activity"
	LogBonus    LogKind = "bonus"
	// LogBaseline seeds the fold with stats hydrated from the remote mirror
	// for a user whose earlier history lives on another device.
	LogBaseline LogKind = "baseline"
)

// LogEntry is one committed transition in a user's activity log, in commit
// order. Folding a user's entries from a cold start reproduces their stats.
type LogEntry struct {
	Seq        int64          `json:"seq"`
	UserID     string         `json:"user_id"`
	Kind       LogKind        `json:"kind"`
	EventID    uuid.UUID      `json:"event_id"`
	Activity   *ActivityEvent `json:"activity,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	Baseline   *UserStats     `json:"baseline,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}
