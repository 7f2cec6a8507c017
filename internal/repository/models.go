package repository

import (
	"time"

	"gorm.io/gorm"
)

// userStatsRow holds one user's stats document. Score columns are
// denormalized for ordering; document is the source of truth.
type userStatsRow struct {
	UserID     string `gorm:"primaryKey;column:user_id"`
	Version    int64  `gorm:"not null"`
	TotalScore int64  `gorm:"not null;index"`
	Document   []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (userStatsRow) TableName() string { return "user_stats" }

type activityLogRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	UserID     string    `gorm:"not null;index:idx_activity_log_user"`
	Kind       string    `gorm:"not null"`
	EventID    string    `gorm:"not null;uniqueIndex"`
	Body       []byte    `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null"`
}

func (activityLogRow) TableName() string { return "activity_log" }

type outboxRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"not null;uniqueIndex"`
	AggregateType string `gorm:"not null"`
	AggregateID   string `gorm:"not null"`
	EventType     string `gorm:"not null"`
	PartitionKey  string
	Payload       []byte
	OccurredAt    time.Time  `gorm:"not null"`
	PublishedAt   *time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "outbox_events" }

type projectionRow struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

func (projectionRow) TableName() string { return "projections" }

// AutoMigrate creates or updates the local tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userStatsRow{},
		&activityLogRow{},
		&outboxRow{},
		&projectionRow{},
	)
}
