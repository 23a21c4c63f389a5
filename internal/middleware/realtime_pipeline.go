package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"ForecastMix/internal/domain/models"
	domrepo "ForecastMix/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ev *models.ForecastEvent) error
}

// RealtimePipeline sits between the websocket feed and the step processor.
// It validates frames, drops out-of-order or duplicate steps per mixture,
// and buffers when downstream is unavailable. Buffered events are retried
// in place so per-mixture step order is never shuffled.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	bufSize  int
	bufCh    chan *models.ForecastEvent
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]int64 // per-mixture last accepted event time
	// simple format transform hook (optional)
	transform func(*models.ForecastEvent) *models.ForecastEvent
	// metrics
	bufDepthGauge func(int)
	staleWarn     func(string)
}

type PipelineOption func(*RealtimePipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook to modify event format.
func WithTransform(fn func(*models.ForecastEvent) *models.ForecastEvent) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.ForecastEvent, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.ForecastEvent, p.bufSize)
	}
	// metrics hooks using domain metrics if available
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.staleWarn = func(id string) { p.metrics.RecordError("pipeline_stale_" + id) }
	return p
}

// Start launches background flushing of buffered events.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case ev := <-p.bufCh:
				if ev == nil {
					continue
				}
				// Retry in place until downstream accepts it; pulling the
				// next buffered event first would reorder the mixture.
				for {
					if err := p.proc.Process(ctx, ev); err == nil {
						backoff = 50 * time.Millisecond
						break
					}
					p.metrics.RecordError("pipeline_flush")
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-p.stopCh:
						return
					case <-time.After(backoff):
					}
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards an event downstream, buffering on errors.
// Frames whose event time does not advance the mixture's clock are dropped.
func (p *RealtimePipeline) Process(ctx context.Context, ev *models.ForecastEvent) error {
	start := time.Now()
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		ev = p.transform(ev)
		if err := validateEvent(ev); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.advance(ev.MixtureID, ev.Timestamp) {
		// stale or duplicate frame; record and drop silently
		p.metrics.RecordError("pipeline_stale")
		if p.staleWarn != nil {
			p.staleWarn(ev.MixtureID)
		}
		return nil
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- ev:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateEvent(ev *models.ForecastEvent) error {
	if ev == nil {
		return fmt.Errorf("event nil")
	}
	if ev.MixtureID == "" {
		return fmt.Errorf("mixture id empty")
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if len(ev.Forecasts) == 0 {
		return fmt.Errorf("forecast row empty")
	}
	for _, f := range ev.Forecasts {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite forecast")
		}
	}
	if math.IsNaN(ev.Observation) || math.IsInf(ev.Observation, 0) {
		return fmt.Errorf("non-finite observation")
	}
	return nil
}

func (p *RealtimePipeline) advance(mixtureID string, ts int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[mixtureID]; ok && ts <= last {
		return false
	}
	p.lastSeen[mixtureID] = ts
	return true
}
