package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Activity validation ---

func validActivity() ActivityEvent {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return ActivityEvent{
		ID:             uuid.New(),
		GameID:         "counting-stars",
		GameName:       "Counting Stars",
		Category:       CategoryMath,
		StartedAt:      start,
		CompletedAt:    start.Add(4 * time.Minute),
		CorrectAnswers: 9,
		TotalQuestions: 10,
	}
}

func TestValidateActivity(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *ActivityEvent)
		wantErr string
	}{
		{"valid", func(e *ActivityEvent) {}, ""},
		{"zero questions", func(e *ActivityEvent) { e.CorrectAnswers, e.TotalQuestions = 0, 0 }, ""},
		{"missing start time", func(e *ActivityEvent) { e.StartedAt = time.Time{} }, ""},
		{"known time zone", func(e *ActivityEvent) { e.TimeZone = "Europe/Berlin" }, ""},
		{"score exceeds total", func(e *ActivityEvent) { e.CorrectAnswers = 11 }, "exceeds total_questions"},
		{"negative total", func(e *ActivityEvent) { e.TotalQuestions = -1; e.CorrectAnswers = -2 }, "total_questions must not be negative"},
		{"too many questions", func(e *ActivityEvent) { e.TotalQuestions = MaxQuestions + 1 }, "must not exceed"},
		{"negative correct", func(e *ActivityEvent) { e.CorrectAnswers = -1 }, "correct_answers must not be negative"},
		{"completed before started", func(e *ActivityEvent) { e.CompletedAt = e.StartedAt.Add(-time.Second) }, "before started_at"},
		{"unknown category", func(e *ActivityEvent) { e.Category = "astrology" }, "unknown category"},
		{"missing game id", func(e *ActivityEvent) { e.GameID = "" }, "game_id is required"},
		{"missing completion", func(e *ActivityEvent) { e.CompletedAt = time.Time{}; e.StartedAt = time.Time{} }, "completed_at is required"},
		{"bad time zone", func(e *ActivityEvent) { e.TimeZone = "Mars/Olympus" }, "unknown time zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validActivity()
			tt.mutate(&ev)
			err := ValidateActivity(ev)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, HasCode(err, CodeValidation))
		})
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Category("").Valid())
	assert.False(t, Category("Math").Valid())
}

func TestActivityAccuracy(t *testing.T) {
	ev := validActivity()
	assert.InDelta(t, 0.9, ev.Accuracy(), 1e-9)
	assert.InDelta(t, 0.9, ev.Score().Accuracy(), 1e-9)

	ev.TotalQuestions, ev.CorrectAnswers = 0, 0
	assert.Zero(t, ev.Accuracy())
	assert.Zero(t, ActivityScore{}.Accuracy())
}

func TestValidateUserID(t *testing.T) {
	require.NoError(t, ValidateUserID("kid-42"))
	require.NoError(t, ValidateUserID("user@example.com"))
	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID("has space"))
	assert.Error(t, ValidateUserID("slash/inside"))
}

func TestValidatePositiveAmount(t *testing.T) {
	require.NoError(t, ValidatePositiveAmount(1))
	assert.Error(t, ValidatePositiveAmount(0))
	assert.Error(t, ValidatePositiveAmount(-5))
	require.NoError(t, ValidatePositiveAmount(MaxBonus))
	err := ValidatePositiveAmount(math.MaxInt64)
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeValidation))
}

func TestValidateScoreCeiling(t *testing.T) {
	require.NoError(t, ValidateScoreCeiling(0, MaxBonus))
	require.NoError(t, ValidateScoreCeiling(MaxTotalScore-10, 10))
	assert.Error(t, ValidateScoreCeiling(MaxTotalScore-10, 11))
	assert.Error(t, ValidateScoreCeiling(MaxTotalScore, 1))
	require.NoError(t, ValidateScoreCeiling(MaxTotalScore, 0))
}

// --- Date ---

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2026, Month: time.February, Day: 28}

	assert.Equal(t, Date{Year: 2026, Month: time.March, Day: 1}, d.AddDays(1))
	assert.Equal(t, Date{Year: 2026, Month: time.February, Day: 27}, d.AddDays(-1))
	assert.Equal(t, 2, d.AddDays(2).DaysSince(d))
	assert.Equal(t, -1, d.AddDays(-1).DaysSince(d))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, "2026-02-28", d.String())
}

func TestDateInUsesLocation(t *testing.T) {
	// 23:30 UTC on March 1st is already March 2nd in Tokyo.
	ts := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	assert.Equal(t, Date{2026, time.March, 1}, DateIn(ts, time.UTC))
	assert.Equal(t, Date{2026, time.March, 2}, DateIn(ts, tokyo))
	assert.Equal(t, Date{2026, time.March, 1}, DateIn(ts, nil))
}

func TestDateJSON(t *testing.T) {
	t.Run("set date", func(t *testing.T) {
		data, err := json.Marshal(Date{2026, time.March, 5})
		require.NoError(t, err)
		assert.JSONEq(t, `"2026-03-05"`, string(data))

		var back Date
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, Date{2026, time.March, 5}, back)
	})

	t.Run("zero date is null", func(t *testing.T) {
		data, err := json.Marshal(Date{})
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))

		back := Date{2020, time.January, 1}
		require.NoError(t, json.Unmarshal([]byte("null"), &back))
		assert.True(t, back.IsZero())
	})

	t.Run("garbage rejected", func(t *testing.T) {
		var d Date
		assert.Error(t, json.Unmarshal([]byte(`"March 5th"`), &d))
	})
}

// --- UserStats ---

func TestUserStatsAddBadges(t *testing.T) {
	s := NewUserStats("kid-1")

	added := s.AddBadges("streak-3", "quiz-master")
	assert.ElementsMatch(t, []BadgeID{"streak-3", "quiz-master"}, added)
	assert.Equal(t, []BadgeID{"quiz-master", "streak-3"}, s.UnlockedBadgeIDs)

	added = s.AddBadges("quiz-master", "", "curious-mind")
	assert.Equal(t, []BadgeID{"curious-mind"}, added)
	assert.Equal(t, 3, s.BadgeCount())
	assert.True(t, s.HasBadge("streak-3"))
}

func TestUserStatsStreakAsOf(t *testing.T) {
	last := Date{Year: 2026, Month: time.March, Day: 10}
	s := NewUserStats("kid-1")
	s.StreakDays = 5
	s.LastActivityDate = last

	assert.Equal(t, 5, s.StreakAsOf(last))
	assert.Equal(t, 5, s.StreakAsOf(last.AddDays(1)))
	assert.Zero(t, s.StreakAsOf(last.AddDays(2)))
	assert.Equal(t, 5, s.StreakAsOf(Date{}))
	assert.Zero(t, NewUserStats("new").StreakAsOf(last))
}

func TestUserStatsCloneIsDeep(t *testing.T) {
	s := NewUserStats("kid-1")
	s.AddBadges("quiz-master")
	s.CategoryCounts = map[Category]int{CategoryMath: 2}

	c := s.Clone()
	c.AddBadges("streak-3")
	c.CategoryCounts[CategoryMath] = 7

	assert.Equal(t, 1, s.BadgeCount())
	assert.Equal(t, 2, s.CategoryCount(CategoryMath))
}

// --- Errors ---

func TestAppError(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrPersistence("commit stats", cause)

	assert.Equal(t, "PERSISTENCE_FAILURE: commit stats: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(fmt.Errorf("wrapped: %w", err), CodePersistence))
	assert.False(t, HasCode(cause, CodePersistence))
	assert.Equal(t, 404, ErrNotFound("user", "x").Status)
	assert.Equal(t, 409, ErrConflict("dup").Status)
	assert.Equal(t, 429, ErrRateLimited("slow down").Status)
}

// --- Outbox events ---

func TestNewBadgeUnlockedEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	evt := NewBadgeUnlockedEvent("kid-1", "quiz-master", 3, at)

	assert.Equal(t, AggregateLearner, evt.AggregateType)
	assert.Equal(t, EventBadgeUnlocked, evt.EventType)
	assert.Equal(t, "kid-1", evt.PartitionKey)
	assert.Equal(t, "progress.learner.badge.unlocked", evt.Topic("progress"))
	assert.NotEqual(t, uuid.Nil, evt.EventID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "quiz-master", payload["badge_id"])
	assert.Equal(t, float64(3), payload["version"])
}
