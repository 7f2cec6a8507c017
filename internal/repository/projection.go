package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightsteps/progression/internal/projection"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ projection.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row projectionRow
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", projection.ErrMissing, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load projection %s: %w", key, err)
	}
	if row.ExpiresAt != nil && s.now().After(*row.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %s expired", projection.ErrMissing, key)
	}
	return row.Value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := projectionRow{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if ttl > 0 {
		exp := s.now().Add(ttl).UTC()
		row.ExpiresAt = &exp
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store projection %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&projectionRow{}).Error; err != nil {
		return fmt.Errorf("delete projection %s: %w", key, err)
	}
	return nil
}
