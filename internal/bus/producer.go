// Package bus publishes supervisor commands to Kafka.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ProducerOptions configures the Kafka writer.
type ProducerOptions struct {
	Brokers      []string
	MaxAttempts  int           // default 3
	WriteTimeout time.Duration // default 10s
	BatchTimeout time.Duration // default 100ms; commands are latency-sensitive
	Logger       zerolog.Logger
}

// Producer wraps a Kafka writer for JSON-encoded command messages.
type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewProducer creates a producer. Commands are keyed by component so each
// component's stream stays ordered.
func NewProducer(opts ProducerOptions) (*Producer, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.BatchTimeout == 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  opts.MaxAttempts,
		WriteTimeout: opts.WriteTimeout,
		BatchTimeout: opts.BatchTimeout,
	}
	return &Producer{writer: writer, logger: opts.Logger}, nil
}

// Publish JSON-encodes value and writes it to topic under key.
func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: encoded,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Str("key", key).Msg("command published")
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
