package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer used by the mirror.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror forwards audit events to a Kafka topic keyed by event type.
type KafkaMirror struct {
	writer Writer
}

// NewKafkaMirror creates a mirror writing to the given brokers and topic.
func NewKafkaMirror(brokers []string, topic string) *KafkaMirror {
	return NewKafkaMirrorWithWriter(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
}

// NewKafkaMirrorWithWriter allows injecting a test writer.
func NewKafkaMirrorWithWriter(w Writer) *KafkaMirror {
	return &KafkaMirror{writer: w}
}

// Handle is an EventHandler that writes the event as JSON.
func (m *KafkaMirror) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: body,
		Time:  event.Timestamp,
	})
}

// Close closes the underlying writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
