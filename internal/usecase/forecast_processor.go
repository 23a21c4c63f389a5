package usecase

import (
	"context"
	"fmt"
	"time"

	"ForecastMix/internal/domain/models"
	drepo "ForecastMix/internal/domain/repository"
)

// ForecastProcessor routes collected forecast events to the configured sink:
// "kafka" publishes to the events topic for the consumer group to step,
// "clickhouse" steps the mixture in process and persists history directly.
type ForecastProcessor struct {
	pub      drepo.Publisher
	mixtures *MixtureService
	metrics  drepo.Metrics
	sink     string
}

// NewForecastProcessor creates a new ForecastProcessor instance.
func NewForecastProcessor(
	pub drepo.Publisher,
	mixtures *MixtureService,
	metrics drepo.Metrics,
	sink string,
) *ForecastProcessor {
	return &ForecastProcessor{
		pub:      pub,
		mixtures: mixtures,
		metrics:  metrics,
		sink:     sink,
	}
}

// Process routes a single forecast event to the configured sink.
func (p *ForecastProcessor) Process(ctx context.Context, ev *models.ForecastEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}

	start := time.Now()
	var err error

	switch p.sink {
	case "kafka":
		err = p.pub.PublishEvent(ctx, ev)
	case "clickhouse":
		_, err = p.mixtures.Step(ctx, ev)
	default:
		err = fmt.Errorf("unknown sink: %s", p.sink)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process event: %w", err)
	}

	p.metrics.RecordMessageSent(p.sink, ev.MixtureID)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple events, preserving their order.
func (p *ForecastProcessor) ProcessBatch(ctx context.Context, evs []*models.ForecastEvent) error {
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		if err := p.Process(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Close closes underlying resources if available.
func (p *ForecastProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
