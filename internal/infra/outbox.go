package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/repository"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller drains the local outbox and publishes events to Kafka.
// Delivery is at least once: a row is marked published only after the
// broker accepted it.
type OutboxPoller struct {
	store       repository.OutboxStore
	producer    Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
	retention   time.Duration
	lastPurge   time.Time
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(store repository.OutboxStore, producer Publisher, topicPrefix string, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		store:       store,
		producer:    producer,
		logger:      logger,
		topicPrefix: topicPrefix,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// WithRetention makes the poller delete published rows older than d,
// checking at most once an hour.
func (p *OutboxPoller) WithRetention(d time.Duration) *OutboxPoller {
	p.retention = d
	return p
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// Poll publishes one batch and returns how many events were delivered.
// Publishing stops at the first broker failure so events keep their order.
func (p *OutboxPoller) Poll(ctx context.Context) (int, error) {
	records, err := p.store.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(records))
	for _, r := range records {
		if err := p.producer.Publish(ctx, r.Draft.Topic(p.topicPrefix), []byte(r.Draft.PartitionKey), EncodeEnvelope(r.Draft)); err != nil {
			p.logger.Error("kafka publish failed", "event_id", r.Draft.EventID, "error", err)
			break
		}
		published = append(published, r.ID)
	}

	if err := p.store.MarkPublished(ctx, published); err != nil {
		return 0, err
	}

	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(records))
	p.purge(ctx)
	return len(published), nil
}

func (p *OutboxPoller) purge(ctx context.Context) {
	if p.retention <= 0 || time.Since(p.lastPurge) < time.Hour {
		return
	}
	p.lastPurge = time.Now()
	n, err := p.store.PurgePublished(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.logger.Warn("outbox purge failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", "rows", n)
	}
}

// Envelope is the broker message body for an outbox event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// EncodeEnvelope wraps a draft for publishing.
func EncodeEnvelope(d domain.OutboxDraft) []byte {
	msg, _ := json.Marshal(Envelope{
		EventID:       d.EventID.String(),
		AggregateType: string(d.AggregateType),
		AggregateID:   d.AggregateID,
		EventType:     string(d.EventType),
		Payload:       d.Payload,
		OccurredAt:    d.OccurredAt,
	})
	return msg
}
