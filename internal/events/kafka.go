package events

import (
	"context"
	"fmt"

	"machine_monitor/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes outbox events to one topic keyed by machine ID, so every
// event of a machine lands on the same partition in commit order.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}}
}

// Deliver writes the batch synchronously; it returns only after the brokers acknowledged it.
func (s *KafkaSink) Deliver(ctx context.Context, batch []models.OutboxEvent) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.MachineID),
			Value: ev.Payload,
			Time:  ev.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(ev.EventID)},
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
