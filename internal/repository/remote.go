package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so the mirror works with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PgMirrorStore is the Postgres-backed RemoteStore.
type PgMirrorStore struct {
	db DBTX
}

// NewPgMirrorStore returns a RemoteStore over the learner_stats table.
func NewPgMirrorStore(db DBTX) *PgMirrorStore {
	return &PgMirrorStore{db: db}
}

var _ RemoteStore = (*PgMirrorStore)(nil)

func (r *PgMirrorStore) Get(ctx context.Context, userID string) (*domain.UserStats, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT document FROM learner_stats WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mirrored stats: %w", err)
	}
	var st domain.UserStats
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, fmt.Errorf("decode mirrored stats for %s: %w", userID, err)
	}
	return &st, nil
}

// Upsert only overwrites rows holding an older version, so a delayed retry
// can never replace newer state.
func (r *PgMirrorStore) Upsert(ctx context.Context, st domain.UserStats) (bool, error) {
	doc, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("marshal stats: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO learner_stats
		  (user_id, version, display_name, total_score, streak_days, badge_count, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id) DO UPDATE SET
		  version      = EXCLUDED.version,
		  display_name = EXCLUDED.display_name,
		  total_score  = EXCLUDED.total_score,
		  streak_days  = EXCLUDED.streak_days,
		  badge_count  = EXCLUDED.badge_count,
		  document     = EXCLUDED.document,
		  updated_at   = now()
		WHERE learner_stats.version < EXCLUDED.version`,
		st.UserID, st.Version, st.DisplayName, st.TotalScore, st.StreakDays, st.BadgeCount(), doc)
	if err != nil {
		return false, fmt.Errorf("upsert mirrored stats: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgMirrorStore) ListAll(ctx context.Context) ([]domain.UserStats, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id, document FROM learner_stats ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list mirrored stats: %w", err)
	}
	defer rows.Close()

	var out []domain.UserStats
	for rows.Next() {
		var userID string
		var doc []byte
		if err := rows.Scan(&userID, &doc); err != nil {
			return nil, fmt.Errorf("scan mirrored stats: %w", err)
		}
		var st domain.UserStats
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("decode mirrored stats for %s: %w", userID, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
