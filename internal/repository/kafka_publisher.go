package repository

import (
	"context"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	pkgkafka "TasaPull/pkg/kafka"
)

// KafkaPublisher sends update events keyed by rate type, so one type's events stay
// ordered on a partition. It also serves as the log collector's publisher.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates a publisher for the update topic.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishUpdate(ctx context.Context, ev models.UpdateEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.TipoTasa), ev)
}

// PublishMessage publishes an arbitrary payload to topic.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops events. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishUpdate(context.Context, models.UpdateEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
