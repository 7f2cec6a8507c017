package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func insertOutbox(tx *gorm.DB, d domain.OutboxDraft) error {
	row := outboxRow{
		EventID:       d.EventID.String(),
		AggregateType: string(d.AggregateType),
		AggregateID:   d.AggregateID,
		EventType:     string(d.EventType),
		PartitionKey:  d.PartitionKey,
		Payload:       d.Payload,
		OccurredAt:    d.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error) {
	var rows []outboxRow
	err := s.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}

	out := make([]OutboxRecord, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.EventID)
		if err != nil {
			return nil, fmt.Errorf("outbox row %d: bad event id: %w", r.ID, err)
		}
		out = append(out, OutboxRecord{
			ID: r.ID,
			Draft: domain.OutboxDraft{
				EventID:       id,
				AggregateType: domain.AggregateType(r.AggregateType),
				AggregateID:   r.AggregateID,
				EventType:     domain.EventType(r.EventType),
				PartitionKey:  r.PartitionKey,
				Payload:       r.Payload,
				OccurredAt:    r.OccurredAt,
			},
		})
	}
	return out, nil
}

func (s *SQLiteStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now().UTC()
	err := s.db.WithContext(ctx).
		Model(&outboxRow{}).
		Where("id IN ?", ids).
		Update("published_at", &now).Error
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// PurgePublished deletes delivered outbox rows older than before.
func (s *SQLiteStore) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", before.UTC()).
		Delete(&outboxRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge outbox: %w", res.Error)
	}
	return res.RowsAffected, nil
}
