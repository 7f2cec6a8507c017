package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLiteStore is the gorm-backed LocalStore. It also serves as the local
// outbox and as the projection store for leaderboard snapshots.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteStore wraps an open database. Tables are expected to exist
// (see AutoMigrate).
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var row userStatsRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound("user stats", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}
	return decodeStats(row)
}

func (s *SQLiteStore) Commit(ctx context.Context, c Commit) error {
	doc, err := json.Marshal(c.Stats)
	if err != nil {
		return fmt.Errorf("marshal user stats: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current userStatsRow
		err := tx.Where("user_id = ?", c.Stats.UserID).Take(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if c.ExpectedVersion != 0 {
				return domain.ErrConflict(fmt.Sprintf("stats for %s no longer exist", c.Stats.UserID))
			}
		case err != nil:
			return fmt.Errorf("load user stats: %w", err)
		case current.Version != c.ExpectedVersion:
			return domain.ErrConflict(fmt.Sprintf("stats for %s changed concurrently: have version %d, expected %d",
				c.Stats.UserID, current.Version, c.ExpectedVersion))
		}

		for _, e := range c.Entries {
			if err := insertLogEntry(tx, e); err != nil {
				return err
			}
		}

		row := userStatsRow{
			UserID:     c.Stats.UserID,
			Version:    c.Stats.Version,
			TotalScore: c.Stats.TotalScore,
			Document:   doc,
			UpdatedAt:  s.now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert user stats: %w", err)
		}

		for _, d := range c.Events {
			if err := insertOutbox(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertLogEntry(tx *gorm.DB, e domain.LogEntry) error {
	var seen int64
	if err := tx.Model(&activityLogRow{}).Where("event_id = ?", e.EventID.String()).Count(&seen).Error; err != nil {
		return fmt.Errorf("check activity log: %w", err)
	}
	if seen > 0 {
		return domain.ErrConflict(fmt.Sprintf("event %s already recorded", e.EventID))
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	row := activityLogRow{
		UserID:     e.UserID,
		Kind:       string(e.Kind),
		EventID:    e.EventID.String(),
		Body:       body,
		RecordedAt: e.RecordedAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]domain.UserStats, error) {
	var rows []userStatsRow
	if err := s.db.WithContext(ctx).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list user stats: %w", err)
	}
	out := make([]domain.UserStats, 0, len(rows))
	for _, row := range rows {
		st, err := decodeStats(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *SQLiteStore) ListLog(ctx context.Context, userID string) ([]domain.LogEntry, error) {
	var rows []activityLogRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	out := make([]domain.LogEntry, 0, len(rows))
	for _, row := range rows {
		var e domain.LogEntry
		if err := json.Unmarshal(row.Body, &e); err != nil {
			return nil, fmt.Errorf("decode log entry %d: %w", row.Seq, err)
		}
		e.Seq = row.Seq
		out = append(out, e)
	}
	return out, nil
}

func decodeStats(row userStatsRow) (*domain.UserStats, error) {
	var st domain.UserStats
	if err := json.Unmarshal(row.Document, &st); err != nil {
		return nil, fmt.Errorf("decode stats for %s: %w", row.UserID, err)
	}
	if st.UnlockedBadgeIDs == nil {
		st.UnlockedBadgeIDs = []domain.BadgeID{}
	}
	return &st, nil
}
