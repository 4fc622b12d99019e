package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/pkg/models"
)

// InteractionEvent is the wire form of a recorded interaction published for
// downstream consumers (training jobs, analytics). The serving path never
// reads this topic.
type InteractionEvent struct {
	Interaction models.UserInteraction `json:"interaction"`
	PublishedAt time.Time              `json:"published_at"`
}

type InteractionProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewInteractionProducer(cfg *config.Config, logger *logrus.Logger) *InteractionProducer {
	return &InteractionProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topics.UserInteractions,
			Balancer:     &kafka.Hash{}, // key by user for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}
}

// Publish sends one interaction event. Failures are the caller's to absorb;
// publishing is best effort and never gates the write path.
func (p *InteractionProducer) Publish(ctx context.Context, interaction *models.UserInteraction) error {
	event := InteractionEvent{
		Interaction: *interaction,
		PublishedAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(interaction.UserID.String()),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to publish interaction event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"user_id":     interaction.UserID,
		"resource_id": interaction.ResourceID,
		"type":        interaction.Type,
	}).Debug("Published interaction event")

	return nil
}

func (p *InteractionProducer) Close() error {
	return p.writer.Close()
}
