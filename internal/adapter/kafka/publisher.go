package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-globe/internal/config"
	"github.com/couchcryptid/quake-globe/internal/domain"
)

// Message headers set on every published event.
const (
	HeaderWindow      = "window"
	HeaderGeneration  = "generation"
	HeaderPublishedAt = "published_at"
)

// Publisher produces earthquake snapshots to a Kafka topic, one message per
// event keyed by the USGS event id.
// It implements pipeline.SnapshotSink.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Kafka producer for the configured snapshot topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, now: time.Now}
}

// PublishSnapshot writes every event of a snapshot in a single WriteMessages
// call. An empty snapshot publishes nothing.
func (p *Publisher) PublishSnapshot(ctx context.Context, w domain.Window, generation uint64, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	publishedAt := p.now().UTC()
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i], w, generation, publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	p.logger.Debug("snapshot published", "topic", p.writer.Topic, "events", len(msgs), "generation", generation)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message.
func serializeToMessage(e domain.Event, w domain.Window, generation uint64, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize earthquake event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderWindow, Value: []byte(w.String())},
			{Key: HeaderGeneration, Value: []byte(strconv.FormatUint(generation, 10))},
			{Key: HeaderPublishedAt, Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
