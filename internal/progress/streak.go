package progress

import (
	"fmt"

	"github.com/brightsteps/progression/internal/domain"
)

// Streak is the pair of fields the streak calculator reads and writes.
type Streak struct {
	Days int
	Last domain.Date
}

// StreakOf extracts the streak fields from stats.
func StreakOf(s domain.UserStats) Streak {
	return Streak{Days: s.StreakDays, Last: s.LastActivityDate}
}

// AdvanceStreak credits eventDate to the streak. A day already credited
// leaves the streak unchanged, the following day extends it, and any larger
// gap (or a first-ever activity) restarts it at 1. A date before the last
// credited day is a no-op reported as an out-of-order anomaly.
func AdvanceStreak(s Streak, eventDate domain.Date) (Streak, *domain.Anomaly) {
	if s.Last.IsZero() {
		return Streak{Days: 1, Last: eventDate}, nil
	}
	if eventDate.Before(s.Last) {
		return s, &domain.Anomaly{
			Kind:   domain.AnomalyOutOfOrder,
			Detail: fmt.Sprintf("activity day %s precedes last activity day %s", eventDate, s.Last),
		}
	}
	switch eventDate.DaysSince(s.Last) {
	case 0:
		if s.Days < 1 {
			s.Days = 1
		}
		return s, nil
	case 1:
		return Streak{Days: s.Days + 1, Last: eventDate}, nil
	default:
		return Streak{Days: 1, Last: eventDate}, nil
	}
}

// EffectiveStreak is the streak length as of today: the stored count while
// it can still be extended (last activity today or yesterday), otherwise 0.
func EffectiveStreak(s Streak, today domain.Date) int {
	if s.Last.IsZero() {
		return 0
	}
	if today.DaysSince(s.Last) <= 1 {
		return s.Days
	}
	return 0
}
