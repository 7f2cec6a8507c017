// Package badge holds the unlock rule catalog and evaluates it against a
// learner's cumulative stats and, optionally, the activity that triggered
// the evaluation.
package badge

import (
	"fmt"

	"github.com/brightsteps/progression/internal/domain"
)

// Predicate reports whether a badge is earned. activity is nil when the
// evaluation was not triggered by an activity (e.g. a bonus grant).
type Predicate func(stats domain.UserStats, activity *domain.ActivityScore) bool

// Rule is a static catalog entry.
type Rule struct {
	ID          domain.BadgeID `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Predicate   Predicate      `json:"-"`
}

// Catalog is an immutable, ordered set of rules. It is safe for concurrent use.
type Catalog struct {
	rules []Rule
	byID  map[domain.BadgeID]int
}

// NewCatalog builds a catalog, rejecting empty or duplicate IDs and rules
// without a predicate.
func NewCatalog(rules ...Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]Rule, 0, len(rules)),
		byID:  make(map[domain.BadgeID]int, len(rules)),
	}
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("badge rule %q: empty id", r.Name)
		}
		if r.Predicate == nil {
			return nil, fmt.Errorf("badge rule %s: nil predicate", r.ID)
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("badge rule %s: duplicate id", r.ID)
		}
		c.byID[r.ID] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on an invalid rule set.
func MustCatalog(rules ...Rule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns a copy of the catalog in evaluation order.
func (c *Catalog) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Lookup returns the rule with the given id.
func (c *Catalog) Lookup(id domain.BadgeID) (Rule, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i], true
}

func (c *Catalog) Len() int { return len(c.rules) }

// Evaluate returns every badge whose predicate currently holds, in catalog
// order, regardless of what is already unlocked.
func (c *Catalog) Evaluate(stats domain.UserStats, activity *domain.ActivityScore) []domain.BadgeID {
	var out []domain.BadgeID
	for _, r := range c.rules {
		if r.Predicate(stats, activity) {
			out = append(out, r.ID)
		}
	}
	return out
}

// NewlyUnlocked returns the badges that hold now and are not yet in
// stats.UnlockedBadgeIDs. Rules already unlocked are skipped without
// running their predicate.
func (c *Catalog) NewlyUnlocked(stats domain.UserStats, activity *domain.ActivityScore) []domain.BadgeID {
	var out []domain.BadgeID
	for _, r := range c.rules {
		if stats.HasBadge(r.ID) {
			continue
		}
		if r.Predicate(stats, activity) {
			out = append(out, r.ID)
		}
	}
	return out
}

// Merge unions ids into the unlocked set and returns the subset that was new.
// Badges are never removed.
func Merge(stats *domain.UserStats, ids []domain.BadgeID) []domain.BadgeID {
	return stats.AddBadges(ids...)
}
