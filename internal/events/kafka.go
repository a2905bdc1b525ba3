package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter abstracts kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every event as a JSON message keyed by operation id,
// so one operation's events stay ordered within a partition.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaSink creates an async writer for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: false,
	}, logger)
}

// NewKafkaSinkWithWriter builds a sink around a custom writer (tests).
func NewKafkaSinkWithWriter(writer MessageWriter, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{writer: writer, timeout: 2 * time.Second, logger: logger}
}

// Emit publishes the event. Publish failures are logged, never returned.
func (s *KafkaSink) Emit(name string, payload Payload) {
	ev := Event{Name: name, Payload: payload, Time: time.Now().UTC()}
	value, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode event", slog.String("event", name), slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(payload.OperationID),
		Value: value,
		Time:  ev.Time,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("event", name),
			slog.String("operation_id", payload.OperationID),
			slog.String("error", err.Error()))
	}
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
