package repository

import (
	"context"
	"time"

	pkgkafka "github.com/duke524-dev/synth-subnet/pkg/kafka"
)

// KafkaEventPublisher emits forecast lifecycle events to a single topic,
// keyed by event type so consumers see per-type ordering.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates the publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return p.producer.Publish(ctx, p.topic, []byte(eventType), map[string]interface{}{
		"type":    eventType,
		"at":      time.Now().UTC().Format(time.RFC3339Nano),
		"payload": payload,
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
