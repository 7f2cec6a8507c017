package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewActivityRecordedEvent describes a committed activity transition.
func NewActivityRecordedEvent(userID string, ev ActivityEvent, stats UserStats, at time.Time) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":         userID,
		"activity_id":     ev.ID,
		"game_id":         ev.GameID,
		"category":        ev.Category,
		"correct_answers": ev.CorrectAnswers,
		"total_questions": ev.TotalQuestions,
		"games_played":    stats.GamesPlayed,
		"total_score":     stats.TotalScore,
		"streak_days":     stats.StreakDays,
		"version":         stats.Version,
	})
	return newLearnerEvent(userID, EventActivityRecorded, payload, at)
}

// NewBonusGrantedEvent describes a committed bonus grant.
func NewBonusGrantedEvent(userID string, amount int64, stats UserStats, at time.Time) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":     userID,
		"amount":      amount,
		"total_score": stats.TotalScore,
		"version":     stats.Version,
	})
	return newLearnerEvent(userID, EventBonusGranted, payload, at)
}

// BadgeUnlockedPayload is the body of a badge.unlocked event.
type BadgeUnlockedPayload struct {
	UserID  string  `json:"user_id"`
	BadgeID BadgeID `json:"badge_id"`
	Version int64   `json:"version"`
}

// NewBadgeUnlockedEvent describes a single one-way badge unlock.
func NewBadgeUnlockedEvent(userID string, badge BadgeID, version int64, at time.Time) OutboxDraft {
	payload, _ := json.Marshal(BadgeUnlockedPayload{UserID: userID, BadgeID: badge, Version: version})
	return newLearnerEvent(userID, EventBadgeUnlocked, payload, at)
}

func newLearnerEvent(userID string, evtType EventType, payload json.RawMessage, at time.Time) OutboxDraft {
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateLearner,
		AggregateID:   userID,
		EventType:     evtType,
		PartitionKey:  userID,
		Payload:       payload,
		OccurredAt:    at,
	}
}
