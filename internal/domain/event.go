package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventActivityRecorded EventType = "activity.recorded"
	EventBonusGranted     EventType = "bonus.granted"
	EventBadgeUnlocked    EventType = "badge.unlocked"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateLearner AggregateType = "learner"
)

// OutboxDraft is the payload written to the local outbox in the same
// transaction as the stats document it describes.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Topic returns the broker topic for the draft under prefix.
func (d OutboxDraft) Topic(prefix string) string {
	return Topic(prefix, d.AggregateType, d.EventType)
}

// Topic names the broker topic carrying events of type t for aggregate a.
func Topic(prefix string, a AggregateType, t EventType) string {
	return prefix + "." + string(a) + "." + string(t)
}
