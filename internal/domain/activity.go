package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category is the learning area an activity belongs to.
type Category string

const (
	CategoryMath             Category = "math"
	CategoryLanguage         Category = "language"
	CategoryScience          Category = "science"
	CategoryComputerScience  Category = "computer-science"
	CategoryGeneralKnowledge Category = "general-knowledge"
	CategorySocialStudies    Category = "social-studies"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryMath,
	CategoryLanguage,
	CategoryScience,
	CategoryComputerScience,
	CategoryGeneralKnowledge,
	CategorySocialStudies,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ActivityEvent is the immutable fact that one game, quiz or quest step was
// finished. It is produced once by the activity and consumed once by the engine.
type ActivityEvent struct {
	ID             uuid.UUID `json:"id"`
	GameID         string    `json:"game_id"`
	GameName       string    `json:"game_name"`
	Category       Category  `json:"category"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	// TimeZone is the producer's IANA zone; it decides which calendar day the
	// activity counts towards. Empty means the engine default.
	TimeZone   string `json:"time_zone,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
}

// Accuracy returns the fraction of correct answers, or 0 when there were no questions.
func (e ActivityEvent) Accuracy() float64 {
	if e.TotalQuestions <= 0 {
		return 0
	}
	return float64(e.CorrectAnswers) / float64(e.TotalQuestions)
}

// Score returns the triggering-activity score used by single-activity badge rules.
func (e ActivityEvent) Score() ActivityScore {
	return ActivityScore{Correct: e.CorrectAnswers, Total: e.TotalQuestions}
}

// ActivityScore is the result of the activity that triggered an evaluation.
type ActivityScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy returns Correct/Total, or 0 when Total is zero.
func (s ActivityScore) Accuracy() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// ValidateActivity rejects malformed events. It has no side effects.
func ValidateActivity(e ActivityEvent) error {
	if e.GameID == "" {
		return ErrValidation("game_id is required")
	}
	if !e.Category.Valid() {
		return ErrValidation(fmt.Sprintf("unknown category %q", e.Category))
	}
	if e.TotalQuestions < 0 {
		return ErrValidation(fmt.Sprintf("total_questions must not be negative, got %d", e.TotalQuestions))
	}
	if e.CorrectAnswers < 0 {
		return ErrValidation(fmt.Sprintf("correct_answers must not be negative, got %d", e.CorrectAnswers))
	}
	if e.TotalQuestions > MaxQuestions {
		return ErrValidation(fmt.Sprintf("total_questions must not exceed %d, got %d", MaxQuestions, e.TotalQuestions))
	}
	if e.CorrectAnswers > e.TotalQuestions {
		return ErrValidation(fmt.Sprintf("correct_answers %d exceeds total_questions %d", e.CorrectAnswers, e.TotalQuestions))
	}
	if e.CompletedAt.IsZero() {
		return ErrValidation("completed_at is required")
	}
	if !e.StartedAt.IsZero() && e.CompletedAt.Before(e.StartedAt) {
		return ErrValidation("completed_at is before started_at")
	}
	if e.TimeZone != "" {
		if _, err := time.LoadLocation(e.TimeZone); err != nil {
			return ErrValidation(fmt.Sprintf("unknown time zone %q", e.TimeZone))
		}
	}
	return nil
}
