package domain

import (
	"fmt"
	"regexp"
)

// Score limits. MaxTotalScore keeps every rank score well inside int64 and
// exactly representable as a JSON number.
const (
	MaxBonus      int64 = 1_000_000
	MaxQuestions  int   = 10_000
	MaxTotalScore int64 = 1 << 53
)

var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:@\-]{1,128}$`)

// ValidateUserID checks that a user identifier is usable as a storage key.
func ValidateUserID(userID string) error {
	if userID == "" {
		return ErrValidation("user id is required")
	}
	if !userIDRegex.MatchString(userID) {
		return ErrValidation(fmt.Sprintf("invalid user id %q", userID))
	}
	return nil
}

// ValidatePositiveAmount checks that a point amount is in 1..MaxBonus.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %d", amount))
	}
	if amount > MaxBonus {
		return ErrValidation(fmt.Sprintf("amount must not exceed %d, got %d", MaxBonus, amount))
	}
	return nil
}

// ValidateScoreCeiling rejects a transition that would push a total score
// past MaxTotalScore.
func ValidateScoreCeiling(current, added int64) error {
	if added > 0 && current > MaxTotalScore-added {
		return ErrValidation(fmt.Sprintf("total score would exceed %d", MaxTotalScore))
	}
	return nil
}
