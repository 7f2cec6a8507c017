package badge

import "github.com/brightsteps/progression/internal/domain"

// QuizMasterAccuracy is the triggering-activity accuracy that unlocks quiz-master.
const QuizMasterAccuracy = 0.8

// categoryThreshold is the number of activities in one category needed for
// that category's badge.
const categoryThreshold = 5

func gamesAtLeast(n int) Predicate {
	return func(s domain.UserStats, _ *domain.ActivityScore) bool { return s.GamesPlayed >= n }
}

func streakAtLeast(n int) Predicate {
	return func(s domain.UserStats, _ *domain.ActivityScore) bool { return s.StreakDays >= n }
}

func scoreAtLeast(n int64) Predicate {
	return func(s domain.UserStats, _ *domain.ActivityScore) bool { return s.TotalScore >= n }
}

func categoryAtLeast(c domain.Category, n int) Predicate {
	return func(s domain.UserStats, _ *domain.ActivityScore) bool { return s.CategoryCount(c) >= n }
}

func quizMaster(_ domain.UserStats, a *domain.ActivityScore) bool {
	return a != nil && a.Total > 0 && a.Accuracy() >= QuizMasterAccuracy
}

func flawless(_ domain.UserStats, a *domain.ActivityScore) bool {
	return a != nil && a.Total >= 5 && a.Correct == a.Total
}

func allRounder(s domain.UserStats, _ *domain.ActivityScore) bool {
	for _, c := range domain.Categories {
		if s.CategoryCount(c) == 0 {
			return false
		}
	}
	return true
}

// DefaultRules is the built-in catalog.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "quiz-master", Name: "Quiz Master", Description: "Score at least 80% on a single activity", Predicate: quizMaster},
		{ID: "flawless", Name: "Flawless", Description: "Answer every question right in an activity of five or more", Predicate: flawless},
		{ID: "warming-up", Name: "Warming Up", Description: "Play 3 games", Predicate: gamesAtLeast(3)},
		{ID: "dedicated-learner", Name: "Dedicated Learner", Description: "Play 10 games", Predicate: gamesAtLeast(10)},
		{ID: "marathon", Name: "Marathon", Description: "Play 50 games", Predicate: gamesAtLeast(50)},
		{ID: "streak-3", Name: "On a Roll", Description: "Learn 3 days in a row", Predicate: streakAtLeast(3)},
		{ID: "streak-7", Name: "Week Warrior", Description: "Learn 7 days in a row", Predicate: streakAtLeast(7)},
		{ID: "streak-30", Name: "Unstoppable", Description: "Learn 30 days in a row", Predicate: streakAtLeast(30)},
		{ID: "half-century", Name: "Half Century", Description: "Earn 50 points", Predicate: scoreAtLeast(50)},
		{ID: "point-collector", Name: "Point Collector", Description: "Earn 500 points", Predicate: scoreAtLeast(500)},
		{ID: "math-whiz", Name: "Math Whiz", Description: "Finish 5 math activities", Predicate: categoryAtLeast(domain.CategoryMath, categoryThreshold)},
		{ID: "word-smith", Name: "Word Smith", Description: "Finish 5 language activities", Predicate: categoryAtLeast(domain.CategoryLanguage, categoryThreshold)},
		{ID: "lab-explorer", Name: "Lab Explorer", Description: "Finish 5 science activities", Predicate: categoryAtLeast(domain.CategoryScience, categoryThreshold)},
		{ID: "code-cadet", Name: "Code Cadet", Description: "Finish 5 computer science activities", Predicate: categoryAtLeast(domain.CategoryComputerScience, categoryThreshold)},
		{ID: "trivia-champ", Name: "Trivia Champ", Description: "Finish 5 general knowledge activities", Predicate: categoryAtLeast(domain.CategoryGeneralKnowledge, categoryThreshold)},
		{ID: "globe-trotter", Name: "Globe Trotter", Description: "Finish 5 social studies activities", Predicate: categoryAtLeast(domain.CategorySocialStudies, categoryThreshold)},
		{ID: "all-rounder", Name: "All-Rounder", Description: "Finish an activity in every category", Predicate: allRounder},
	}
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultRules()...)
}
