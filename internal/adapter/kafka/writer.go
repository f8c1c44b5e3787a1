package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/render"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per run output to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Payload is the JSON message value. Image is base64-encoded by encoding/json.
type Payload struct {
	RunID    string   `json:"run_id"`
	Message  string   `json:"message"`
	Image    []byte   `json:"image,omitempty"`
	Format   string   `json:"format"`
	AlertIDs []string `json:"alert_ids"`
}

// NewPublisher creates a Kafka producer for topic.
func NewPublisher(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, metrics, logger)
}

func newPublisher(w messageWriter, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, metrics: metrics, logger: logger, now: time.Now}
}

// Publish writes out as a single message keyed by run id.
func (p *Publisher) Publish(ctx context.Context, out render.Output) error {
	msg, err := serializeToMessage(out, p.now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to kafka: %w", err)
	}
	p.metrics.MessagesPublished.WithLabelValues("kafka").Inc()
	p.logger.Info("published to kafka", "run_id", out.RunID, "alerts", len(out.AlertIDs), "bytes", len(msg.Value))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an output into a Kafka message.
func serializeToMessage(out render.Output, now time.Time) (kafkago.Message, error) {
	ids := out.AlertIDs
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(Payload{
		RunID:    out.RunID,
		Message:  out.Message,
		Image:    out.Image,
		Format:   string(out.Format),
		AlertIDs: ids,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize output: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(out.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "format", Value: []byte(out.Format)},
			{Key: "alert_count", Value: []byte(strconv.Itoa(len(out.AlertIDs)))},
			{Key: "published_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}, nil
}
