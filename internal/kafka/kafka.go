// Package kafka publishes pump telemetry records to a Kafka topic.
package kafka

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sweeney/pump-guard/internal/telemetry"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "pump.telemetry"

// messageWriter is the subset of *kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink writes one message per record, keyed by pump id so a pump's records
// stay ordered within a partition.
type Sink struct {
	w    messageWriter
	tags telemetry.Tags
}

// NewSink creates a synchronous writer for the given brokers and topic.
func NewSink(brokers []string, topic string, tags telemetry.Tags) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{
		w: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			Async:        false,
		},
		tags: tags,
	}
}

// Send writes the batch in one request.
func (s *Sink) Send(ctx context.Context, records []telemetry.Record) error {
	msgs, err := Messages(s.tags, records)
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.w.Close()
}

// Messages builds the Kafka messages for a batch.
func Messages(tags telemetry.Tags, records []telemetry.Record) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, len(records))
	for _, rec := range records {
		b, err := telemetry.FormatPayload(tags, rec)
		if err != nil {
			return nil, fmt.Errorf("format seq %d: %w", rec.Seq, err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(tags.PumpID),
			Value: b,
			Time:  rec.Timestamp,
			Headers: []kafkago.Header{
				{Key: "session", Value: []byte(tags.Session)},
			},
		})
	}
	return msgs, nil
}
