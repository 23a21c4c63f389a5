package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"ForecastMix/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordStep(string, string, float64) {}
func (nopMetrics) RecordPrediction(string, float64)   {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) RecordMessageSent(string, string)   {}

type recordingProc struct {
	mu     sync.Mutex
	events []*models.ForecastEvent
	fail   bool
}

func (p *recordingProc) Process(_ context.Context, ev *models.ForecastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("downstream down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func event(id string, ts int64) *models.ForecastEvent {
	return &models.ForecastEvent{MixtureID: id, Timestamp: ts, Forecasts: []float64{1, 2}, Observation: 1.5}
}

func TestPipelineForwardsValidEvents(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})

	for i := int64(1); i <= 3; i++ {
		if err := p.Process(context.Background(), event("m1", i)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if proc.count() != 3 {
		t.Fatalf("expected 3 forwarded events, got %d", proc.count())
	}
}

func TestPipelineRejectsMalformed(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	ctx := context.Background()

	cases := []*models.ForecastEvent{
		nil,
		{MixtureID: "", Timestamp: 1, Forecasts: []float64{1}},
		{MixtureID: "m", Timestamp: 0, Forecasts: []float64{1}},
		{MixtureID: "m", Timestamp: 1, Forecasts: nil},
		{MixtureID: "m", Timestamp: 1, Forecasts: []float64{math.NaN()}},
		{MixtureID: "m", Timestamp: 1, Forecasts: []float64{1}, Observation: math.Inf(1)},
	}
	for i, ev := range cases {
		if err := p.Process(ctx, ev); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("malformed events must not reach downstream, got %d", proc.count())
	}
}

func TestPipelineDropsStaleFrames(t *testing.T) {
	proc := &recordingProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	ctx := context.Background()

	if err := p.Process(ctx, event("m1", 10)); err != nil {
		t.Fatalf("process: %v", err)
	}
	// duplicate and older timestamps are dropped without error
	if err := p.Process(ctx, event("m1", 10)); err != nil {
		t.Fatalf("duplicate should be dropped silently: %v", err)
	}
	if err := p.Process(ctx, event("m1", 9)); err != nil {
		t.Fatalf("stale should be dropped silently: %v", err)
	}
	// a different mixture has its own clock
	if err := p.Process(ctx, event("m2", 5)); err != nil {
		t.Fatalf("process m2: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("expected 2 forwarded events, got %d", proc.count())
	}
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &recordingProc{fail: true}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithBufferSize(10))
	ctx := context.Background()

	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, event("m1", 1)); err == nil {
		t.Fatalf("expected downstream error")
	}

	// downstream recovers; the buffered event flushes in the background
	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered event never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
