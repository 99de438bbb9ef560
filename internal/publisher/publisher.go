// Package publisher fans generated findings out to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// Envelope identifies where a batch of findings came from.
type Envelope struct {
	Crop     string
	Location string
}

// FindingPublisher delivers findings. Implementations must be safe for concurrent use.
type FindingPublisher interface {
	Publish(ctx context.Context, env Envelope, findings []models.Finding) error
	Close() error
}

// NoopPublisher discards everything. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope, []models.Finding) error { return nil }
func (NoopPublisher) Close() error                                              { return nil }

// messageWriter is the subset of kafka-go's Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes one message per finding to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration
}

// NewKafkaPublisher creates a producer for topic on brokers. writeTimeout
// bounds each Publish call (0 = caller's context only).
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, writeTimeout, logger)
}

func newKafkaPublisher(w messageWriter, writeTimeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, logger: logger, timeout: writeTimeout}
}

// Publish serializes and writes findings in a single WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope, findings []models.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(findings))
	for i := range findings {
		msg, err := serializeToMessage(env, findings[i])
		if err != nil {
			observability.PublisherMessagesTotal.WithLabelValues("error").Inc()
			return err
		}
		msgs[i] = msg
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		observability.PublisherMessagesTotal.WithLabelValues("error").Add(float64(len(msgs)))
		return fmt.Errorf("publish findings: %w", err)
	}
	observability.PublisherMessagesTotal.WithLabelValues("success").Add(float64(len(msgs)))
	p.logger.Debug("findings published",
		zap.Int("count", len(msgs)),
		zap.String("crop", env.Crop),
		zap.String("location", env.Location))
	return nil
}

// Close flushes pending writes and releases the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Finding into a Kafka message keyed by its ID.
func serializeToMessage(env Envelope, f models.Finding) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize finding: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(f.ID),
		Value: data,
		Time:  f.Timestamp,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(f.Category)},
			{Key: "priority", Value: []byte(f.Priority)},
			{Key: "crop", Value: []byte(env.Crop)},
			{Key: "location", Value: []byte(env.Location)},
		},
	}, nil
}
