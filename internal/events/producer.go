// Package events publishes usage events to Kafka for the analytics
// pipeline. Publishing is best-effort from the orchestrator's perspective:
// a failed publish never fails the user-facing operation.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/prepdeck/prepdeck/internal/models"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// Publish sends one usage event, keyed by user so per-user ordering holds
// within a partition.
func (p *Producer) Publish(ev models.UsageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode usage event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UserID),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish usage event: %w", err)
	}

	p.logger.Info("Usage event published", "user_id", ev.UserID, "kind", ev.Kind, "outcome", ev.Outcome)
	return nil
}
