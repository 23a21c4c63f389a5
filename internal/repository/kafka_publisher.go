package repository

import (
	"context"

	"ForecastMix/internal/domain/models"
	"ForecastMix/internal/domain/repository"
	pkgkafka "ForecastMix/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka. Events and results go to
// separate topics; both are keyed by mixture id so per-mixture order holds.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	eventsTopic  string
	resultsTopic string
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, eventsTopic, resultsTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, eventsTopic: eventsTopic, resultsTopic: resultsTopic}
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, ev *models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.eventsTopic, []byte(ev.MixtureID), ev)
}

func (p *KafkaPublisher) PublishResult(ctx context.Context, res *models.StepResult) error {
	return p.producer.Publish(ctx, p.resultsTopic, []byte(res.MixtureID), res)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
