package usecase

import (
	"context"

	"ForecastMix/internal/domain/models"
	drepo "ForecastMix/internal/domain/repository"
	mid "ForecastMix/internal/middleware"
)

// ForecastCollector collects events from the forecast feed and processes them.
type ForecastCollector struct {
	stream  drepo.ForecastStream
	proc    *ForecastProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewForecastCollector creates a new ForecastCollector instance.
func NewForecastCollector(stream drepo.ForecastStream, proc *ForecastProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *ForecastCollector {
	return &ForecastCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the forecast feed is connected.
func (c *ForecastCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *ForecastCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *ForecastCollector) consume(ctx context.Context, evCh <-chan *models.ForecastEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case ev := <-evCh:
			if ev == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, ev)
			} else {
				_ = c.proc.Process(ctx, ev)
			}
		}
	}
}

func (c *ForecastCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying ForecastProcessor for lifecycle management.
func (c *ForecastCollector) Processor() *ForecastProcessor { return c.proc }

// Shutdown stops pipeline and closes stream.
func (c *ForecastCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
