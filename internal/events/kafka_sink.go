package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/spec-kit/outlet-feedback/internal/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards workflow events to a Kafka topic for the notification
// workers (email, WhatsApp) that live outside this service. Messages are keyed
// by case id so all events of one case land on the same partition.
type KafkaSink struct {
	writer      messageWriter
	maxAttempts int
	backoff     time.Duration
}

// NewKafkaSink builds a sink from config.
func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaSink(w, cfg.MaxAttempts), nil
}

func newKafkaSink(w messageWriter, maxAttempts int) *KafkaSink {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &KafkaSink{writer: w, maxAttempts: maxAttempts, backoff: 100 * time.Millisecond}
}

// Handle is an EventHandler that produces the event with retries.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	backoff := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if lastErr = s.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce %s for case %d failed after %d attempts: %w", event.Type, event.CaseID, s.maxAttempts, lastErr)
}

// Close releases the writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

func encodeEvent(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.CaseID, 10)),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}
