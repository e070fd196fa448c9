package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrRecorderClosed is returned when recording to a closed Kafka recorder.
var ErrRecorderClosed = errors.New("audit recorder is closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration for the Kafka audit channel.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaRecorder publishes events as JSON messages keyed by audit id.
type KafkaRecorder struct {
	writer messageWriter
	topic  string
	mu     sync.RWMutex
	closed bool
}

func NewKafkaRecorder(cfg KafkaConfig) (*KafkaRecorder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	return newKafkaRecorder(writer, cfg.Topic), nil
}

func newKafkaRecorder(w messageWriter, topic string) *KafkaRecorder {
	return &KafkaRecorder{writer: w, topic: topic}
}

func (r *KafkaRecorder) Record(ctx context.Context, event Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ID),
		Value: payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(event.TraceID)},
			{Key: "provider", Value: []byte(event.Provider)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit event to %s: %w", r.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer. It is safe to call twice.
func (r *KafkaRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.writer.Close()
}
