package repository

import (
	"context"
	"time"

	"github.com/brightsteps/progression/internal/domain"
)

// Commit is one atomic local write: the new stats document together with
// the log entries and outbox events that describe the transition.
type Commit struct {
	Stats domain.UserStats
	// ExpectedVersion is the version the stored document must still have.
	// Zero means the user must not exist yet.
	ExpectedVersion int64
	Entries         []domain.LogEntry
	Events          []domain.OutboxDraft
}

// LocalStore is the authoritative durable store. A read after a successful
// Commit observes the committed document.
type LocalStore interface {
	// GetStats returns a NOT_FOUND AppError when the user has no document.
	GetStats(ctx context.Context, userID string) (*domain.UserStats, error)

	// Commit applies c in a single transaction. A log entry whose event ID
	// was already recorded fails with CONFLICT and nothing is written.
	Commit(ctx context.Context, c Commit) error

	// ListAll returns every stored document.
	ListAll(ctx context.Context) ([]domain.UserStats, error)

	// ListLog returns a user's log entries in commit order.
	ListLog(ctx context.Context, userID string) ([]domain.LogEntry, error)
}

// OutboxStore is the local outbox drained by the outbox poller.
type OutboxStore interface {
	// FetchUnpublished returns the oldest unpublished events.
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)

	// MarkPublished records that the given outbox rows were delivered.
	MarkPublished(ctx context.Context, ids []int64) error

	// PurgePublished deletes delivered rows published before the cutoff.
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

// OutboxRecord is an unpublished outbox event with its row id.
type OutboxRecord struct {
	ID    int64
	Draft domain.OutboxDraft
}

// RemoteStore is the eventually consistent mirror used for cross-device
// continuity and other users' leaderboard data.
type RemoteStore interface {
	// Get returns nil and no error when the user is not mirrored.
	Get(ctx context.Context, userID string) (*domain.UserStats, error)

	// Upsert writes stats unless the mirror already holds the same or a
	// newer version. applied is false when the write was rejected as stale.
	Upsert(ctx context.Context, stats domain.UserStats) (applied bool, err error)

	// ListAll returns every mirrored document.
	ListAll(ctx context.Context) ([]domain.UserStats, error)
}
