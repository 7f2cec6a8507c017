package ranking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(id string, score int64, streak int, badges ...domain.BadgeID) domain.UserStats {
	s := domain.NewUserStats(id)
	s.TotalScore = score
	s.StreakDays = streak
	s.AddBadges(badges...)
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScore(t *testing.T) {
	s := user("ada", 90, 3, "quiz-master", "streak-3")
	assert.Equal(t, int64(90+2*BadgeWeight+3*StreakWeight), Score(s))
	assert.Equal(t, Score(s), Score(s))
	assert.Zero(t, Score(domain.NewUserStats("new")))
}

func TestScoreAsOf(t *testing.T) {
	day := domain.Date{Year: 2026, Month: time.March, Day: 10}
	s := user("ada", 90, 4, "streak-3")
	s.LastActivityDate = day

	tests := []struct {
		name  string
		today domain.Date
		want  int64
	}{
		{"same day keeps streak", day, 90 + BadgeWeight + 4*StreakWeight},
		{"next day keeps streak", day.AddDays(1), 90 + BadgeWeight + 4*StreakWeight},
		{"lapsed streak drops out", day.AddDays(2), 90 + BadgeWeight},
		{"zero today uses stored streak", domain.Date{}, Score(s)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreAsOf(s, tt.today))
		})
	}
}

func TestRankAsOf_LapsedStreakLosesRank(t *testing.T) {
	day := domain.Date{Year: 2026, Month: time.March, Day: 10}
	lapsed := user("ada", 50, 10)
	lapsed.LastActivityDate = day.AddDays(-5)
	active := user("bo", 60, 1)
	active.LastActivityDate = day

	assert.Equal(t, "ada", Rank([]domain.UserStats{lapsed, active})[0].UserID)

	got := RankAsOf([]domain.UserStats{lapsed, active}, day)
	assert.Equal(t, "bo", got[0].UserID)
	assert.Zero(t, got[1].StreakDays)
	assert.Equal(t, int64(50), got[1].RankScore)
}

func TestRank_TieBreaks(t *testing.T) {
	users := []domain.UserStats{
		user("carl", 100, 0),
		user("bea", 70, 3),
		user("dan", 50, 0, "a", "b"),
		user("abe", 100, 0),
		user("eve", 200, 0),
		user("fay", 75, 0, "a"),
	}

	got := Rank(users)
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.UserID
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"eve", "bea", "dan", "fay", "abe", "carl"}, ids)
}

func TestRank_DeterministicAndPure(t *testing.T) {
	users := []domain.UserStats{user("b", 10, 1), user("a", 10, 1), user("c", 30, 0)}
	orig := append([]domain.UserStats(nil), users...)

	first := Rank(users)
	second := Rank(users)

	assert.Equal(t, first, second)
	assert.Equal(t, orig, users, "input order must not change")
	assert.Equal(t, "a", first[1].UserID)
}

func TestRank_DisplayNameFallsBackToUserID(t *testing.T) {
	named := user("kid-1", 1, 0)
	named.DisplayName = "Mia"

	got := Rank([]domain.UserStats{named, user("kid-2", 0, 0)})
	assert.Equal(t, "Mia", got[0].DisplayName)
	assert.Equal(t, "kid-2", got[1].DisplayName)
}

func TestRank_ConcurrentCalls(t *testing.T) {
	users := []domain.UserStats{user("a", 5, 1), user("b", 9, 0), user("c", 5, 2)}
	want := Rank(users)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Rank(users))
		}()
	}
	wg.Wait()
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Scope
		wantErr bool
	}{
		{"empty is global", "", Scope{Name: "global", Global: true}, false},
		{"global", "global", Scope{Name: "global", Global: true}, false},
		{"friendly", "friendly-3", Scope{Name: "friendly-3", Bucket: 3}, false},
		{"normalized", "friendly-03", Scope{Name: "friendly-3", Bucket: 3}, false},
		{"out of range", "friendly-8", Scope{}, true},
		{"negative", "friendly--1", Scope{}, true},
		{"unknown", "school", Scope{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScope(tt.in, 8)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.HasCode(err, domain.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBucketFor_Stable(t *testing.T) {
	b := BucketFor("kid-42", 8)
	assert.GreaterOrEqual(t, b, 0)
	assert.Less(t, b, 8)
	assert.Equal(t, b, BucketFor("kid-42", 8))
	assert.Zero(t, BucketFor("kid-42", 0))

	sc, err := ParseScope(FriendlyScope("kid-42", 8), 8)
	require.NoError(t, err)
	assert.True(t, sc.Includes("kid-42", 8))
}

type staticSource struct {
	users []domain.UserStats
	err   error
}

func (s *staticSource) ListAll(context.Context) ([]domain.UserStats, error) {
	return s.users, s.err
}

func TestMergedSource(t *testing.T) {
	newer := user("ada", 50, 1)
	newer.Version = 5
	older := user("ada", 10, 1)
	older.Version = 2
	remoteOnly := user("zed", 30, 0)
	remoteOnly.Version = 1

	t.Run("higher version wins", func(t *testing.T) {
		src := NewMergedSource(
			&staticSource{users: []domain.UserStats{older}},
			&staticSource{users: []domain.UserStats{newer, remoteOnly}},
			testLogger())

		all, err := src.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(5), all[0].Version)
		assert.Equal(t, "zed", all[1].UserID)
	})

	t.Run("remote failure degrades to local", func(t *testing.T) {
		src := NewMergedSource(
			&staticSource{users: []domain.UserStats{older}},
			&staticSource{err: errors.New("connection refused")},
			testLogger())

		all, err := src.ListAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []domain.UserStats{older}, all)
	})

	t.Run("no remote", func(t *testing.T) {
		src := NewMergedSource(&staticSource{users: []domain.UserStats{older}}, nil, testLogger())
		all, err := src.ListAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestRefresher_SnapshotsEveryScope(t *testing.T) {
	users := []domain.UserStats{user("a", 10, 0), user("b", 20, 0), user("c", 30, 0), user("d", 40, 0)}
	store := projection.NewInMemoryStore()
	r := NewRefresher(&staticSource{users: users}, store, RefresherConfig{Buckets: 2, StaleAfter: time.Minute}, testLogger())
	ctx := context.Background()

	require.NoError(t, r.Refresh(ctx))

	global, err := r.Leaderboard(ctx, "global", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, global.TotalUsers)
	assert.Equal(t, "d", global.Entries[0].UserID)
	assert.False(t, global.Stale)

	total := 0
	for _, sc := range AllScopes(2)[1:] {
		lb, err := r.Leaderboard(ctx, sc.Name, 0)
		require.NoError(t, err)
		for _, e := range lb.Entries {
			assert.Equal(t, sc.Name, FriendlyScope(e.UserID, 2))
		}
		total += lb.TotalUsers
	}
	assert.Equal(t, 4, total, "friendly buckets partition the users")
}

func TestRefresher_LimitAndOnDemand(t *testing.T) {
	users := []domain.UserStats{user("a", 10, 0), user("b", 20, 0), user("c", 30, 0)}
	r := NewRefresher(&staticSource{users: users}, projection.NewInMemoryStore(), RefresherConfig{Buckets: 1}, testLogger())

	lb, err := r.Leaderboard(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, 3, lb.TotalUsers)
	assert.Equal(t, "c", lb.Entries[0].UserID)
}

func TestRefresher_StaleFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRefresher(&staticSource{users: []domain.UserStats{user("a", 1, 0)}}, projection.NewInMemoryStore(),
		RefresherConfig{Buckets: 1, StaleAfter: time.Minute}, testLogger())
	r.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, r.Refresh(ctx))
	now = now.Add(2 * time.Minute)

	lb, err := r.Leaderboard(ctx, "global", 10)
	require.NoError(t, err)
	assert.True(t, lb.Stale)
}

func TestRefresher_RanksEffectiveStreaks(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	lapsed := user("ada", 50, 10)
	lapsed.LastActivityDate = domain.Date{Year: 2026, Month: time.March, Day: 8}
	active := user("bo", 60, 1)
	active.LastActivityDate = domain.Date{Year: 2026, Month: time.March, Day: 10}

	r := NewRefresher(&staticSource{users: []domain.UserStats{lapsed, active}}, projection.NewInMemoryStore(),
		RefresherConfig{Buckets: 1}, testLogger())
	r.now = func() time.Time { return now }

	lb, err := r.Leaderboard(context.Background(), "global", 0)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "bo", lb.Entries[0].UserID)
	assert.Zero(t, lb.Entries[1].StreakDays)

	// 23:30 UTC is already the 11th at +13:00; bo's streak still counts.
	auckland := time.FixedZone("NZDT", 13*60*60)
	zoned := NewRefresher(&staticSource{users: []domain.UserStats{lapsed, active}}, projection.NewInMemoryStore(),
		RefresherConfig{Buckets: 1, Zone: auckland}, testLogger())
	zoned.now = func() time.Time { return now }
	lb, err = zoned.Leaderboard(context.Background(), "global", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, lb.Entries[0].StreakDays)
}

func TestRefresher_SourceErrorSurfaced(t *testing.T) {
	r := NewRefresher(&staticSource{err: errors.New("db down")}, projection.NewInMemoryStore(), RefresherConfig{Buckets: 1}, testLogger())

	_, err := r.Leaderboard(context.Background(), "global", 10)
	assert.Error(t, err)
}

func TestRefresher_StartRejectsBadSpec(t *testing.T) {
	r := NewRefresher(&staticSource{}, projection.NewInMemoryStore(), RefresherConfig{Buckets: 1}, testLogger())
	assert.Error(t, r.Start("not a cron spec"))

	require.NoError(t, r.Start("@every 1h"))
	r.Stop()
}
