package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ForecastMix/internal/domain/models"
	domrepo "ForecastMix/internal/domain/repository"
	pkgkafka "ForecastMix/pkg/kafka"
)

// KafkaForecastsHandler consumes forecast events from Kafka, steps the owning
// mixture and publishes the step result to the results topic.
type KafkaForecastsHandler struct {
	topic    string
	mixtures *MixtureService
	pub      domrepo.Publisher
	metrics  domrepo.Metrics
}

func NewKafkaForecastsHandler(topic string, mixtures *MixtureService, pub domrepo.Publisher, metrics domrepo.Metrics) *KafkaForecastsHandler {
	return &KafkaForecastsHandler{topic: topic, mixtures: mixtures, pub: pub, metrics: metrics}
}

func (h *KafkaForecastsHandler) Topic() string { return h.topic }

// incoming message schema: {mixture_id, t, forecasts, observation}
func (h *KafkaForecastsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ForecastEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if ev.Timestamp > 1e11 { // ms
		ev.Timestamp = ev.Timestamp / 1000
	}
	// E2E latency from event time to now (approx)
	if ev.Timestamp > 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(ev.Timestamp, 0)).Seconds())
	}

	res, err := h.mixtures.Step(ctx, &ev)
	if err != nil {
		h.metrics.RecordError("consumer_step")
		return err
	}

	if h.pub != nil {
		if err := h.pub.PublishResult(ctx, res); err != nil {
			h.metrics.RecordError("consumer_publish_result")
			return err
		}
		h.metrics.RecordMessageSent("kafka", "results")
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaForecastsHandler)(nil)
