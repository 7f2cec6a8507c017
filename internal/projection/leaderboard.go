package projection

import (
	"context"
	"fmt"

	"github.com/brightsteps/progression/internal/domain"
)

// Leaderboard snapshots are replaced wholesale on every ranking pass and
// never expire; staleness is judged from GeneratedAt by the reader.

func leaderboardKey(scope string) string {
	return fmt.Sprintf("leaderboard:%s", scope)
}

// PutLeaderboard stores the ranked snapshot for its scope.
func PutLeaderboard(ctx context.Context, store Store, lb domain.Leaderboard) error {
	return SetJSON(ctx, store, leaderboardKey(lb.Scope), lb, 0)
}

// GetLeaderboard retrieves the snapshot for scope. It returns an error
// wrapping ErrMissing when no pass has produced one yet.
func GetLeaderboard(ctx context.Context, store Store, scope string) (*domain.Leaderboard, error) {
	var lb domain.Leaderboard
	if err := GetJSON(ctx, store, leaderboardKey(scope), &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// InvalidateLeaderboard removes a scope's snapshot.
func InvalidateLeaderboard(ctx context.Context, store Store, scope string) error {
	return store.Delete(ctx, leaderboardKey(scope))
}
