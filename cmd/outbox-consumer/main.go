package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brightsteps/progression/internal/domain"
	"github.com/brightsteps/progression/internal/infra"
	"github.com/segmentio/kafka-go"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topic := domain.Topic(cfg.KafkaTopicPrefix, domain.AggregateLearner, domain.EventBadgeUnlocked)
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, cfg.KafkaConsumerGroup, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("outbox-consumer starting", "topic", topic, "group", cfg.KafkaConsumerGroup)
	if err := consumer.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		return handle(logger, msg)
	}); err != nil {
		return err
	}
	logger.Info("outbox-consumer shutting down")
	return nil
}

// handle logs one badge unlock. A malformed message is logged and skipped
// so it cannot block the partition.
func handle(logger *slog.Logger, msg kafka.Message) error {
	var env infra.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		logger.Warn("skipping malformed event", "offset", msg.Offset, "error", err)
		return nil
	}
	var unlocked domain.BadgeUnlockedPayload
	if err := json.Unmarshal(env.Payload, &unlocked); err != nil {
		logger.Warn("skipping malformed payload", "event_id", env.EventID, "error", err)
		return nil
	}

	logger.Info("badge unlocked",
		"event_id", env.EventID,
		"user_id", env.AggregateID,
		"badge_id", unlocked.BadgeID,
		"version", unlocked.Version,
		"occurred_at", env.OccurredAt,
	)
	return nil
}
