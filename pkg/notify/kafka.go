package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/pulseapm/alert-engine/pkg/serializer"
)

// KafkaSink publishes notification messages to a Kafka topic. Downstream
// notification services consume the alert_notification topic and fan out to
// their own channels.
type KafkaSink struct {
	writer *kafka.Writer
	ser    serializer.Serializer
}

// NewKafkaSink creates a Kafka sink
func NewKafkaSink(brokers []string, topic string, ser serializer.Serializer) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // partition by alert id
		},
		ser: ser,
	}, nil
}

func (s *KafkaSink) Send(ctx context.Context, msg Message) error {
	payload, err := s.ser.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AlertID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
