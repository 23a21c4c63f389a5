package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"ForecastMix/internal/domain/models"
)

type fakeMetrics struct{}

func (fakeMetrics) RecordStep(string, string, float64) {}
func (fakeMetrics) RecordPrediction(string, float64)   {}
func (fakeMetrics) RecordError(string)                 {}
func (fakeMetrics) RecordLatency(string, float64)      {}
func (fakeMetrics) RecordMessageSent(string, string)   {}

type fakeHistory struct {
	mu   sync.Mutex
	rows []*models.StepRow
	fail bool
}

func (h *fakeHistory) Init(context.Context) error { return nil }

func (h *fakeHistory) Append(_ context.Context, row *models.StepRow) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("history down")
	}
	h.rows = append(h.rows, row)
	return nil
}

func (h *fakeHistory) AppendBatch(ctx context.Context, rows []*models.StepRow) error {
	for _, r := range rows {
		if err := h.Append(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *fakeHistory) Query(_ context.Context, id string, limit int) ([]*models.StepRow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.StepRow
	for _, r := range h.rows {
		if r.MixtureID == id {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) Health(context.Context) error { return nil }
func (h *fakeHistory) Close() error                 { return nil }

type fakeStates struct {
	mu    sync.Mutex
	snaps map[string][]byte
}

func newFakeStates() *fakeStates { return &fakeStates{snaps: make(map[string][]byte)} }

func (s *fakeStates) Save(_ context.Context, id string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	s.snaps[id] = cp
	return nil
}

func (s *fakeStates) Load(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.snaps[id]
	if !ok {
		return nil, errors.New("no checkpoint")
	}
	return b, nil
}

func (s *fakeStates) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}

func (s *fakeStates) Close() error { return nil }

func newTestService(checkpointEvery int) (*MixtureService, *fakeHistory, *fakeStates) {
	hist := &fakeHistory{}
	states := newFakeStates()
	svc := NewMixtureService(hist, states, fakeMetrics{}, nil, checkpointEvery)
	return svc, hist, states
}

func TestCreateAndStep(t *testing.T) {
	svc, hist, _ := newTestService(0)
	ctx := context.Background()

	info, err := svc.Create(ctx, &models.CreateMixtureRequest{ID: "m1", Model: "ewa", Loss: "square", LearningRate: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.ID != "m1" || info.Steps != 0 {
		t.Fatalf("unexpected info %+v", info)
	}

	res, err := svc.Step(ctx, &models.ForecastEvent{
		MixtureID:   "m1",
		Timestamp:   1700000000,
		Forecasts:   []float64{1, 2, 3},
		Observation: 2,
	})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Step != 1 {
		t.Fatalf("expected step 1, got %d", res.Step)
	}
	if len(res.Weights) != 3 {
		t.Fatalf("expected 3 weights, got %d", len(res.Weights))
	}
	// uniform weights before the first update: prediction is the mean
	if math.Abs(res.Prediction-2) > 1e-12 {
		t.Fatalf("expected prediction 2, got %v", res.Prediction)
	}

	rows, err := svc.History(ctx, "m1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].Step != 1 {
		t.Fatalf("expected 1 persisted row, got %d", len(hist.rows))
	}
}

func TestCreateDuplicateID(t *testing.T) {
	svc, _, _ := newTestService(0)
	ctx := context.Background()

	req := &models.CreateMixtureRequest{ID: "dup", Model: "ewa", Loss: "square", LearningRate: 1}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, ErrMixtureExists) {
		t.Fatalf("expected ErrMixtureExists, got %v", err)
	}
}

func TestStepUnknownMixture(t *testing.T) {
	svc, _, _ := newTestService(0)
	_, err := svc.Step(context.Background(), &models.ForecastEvent{
		MixtureID:   "ghost",
		Timestamp:   1,
		Forecasts:   []float64{1},
		Observation: 1,
	})
	if !errors.Is(err, ErrMixtureNotFound) {
		t.Fatalf("expected ErrMixtureNotFound, got %v", err)
	}
}

func TestWarmStartReplaysWindow(t *testing.T) {
	svc, hist, _ := newTestService(0)
	ctx := context.Background()

	info, err := svc.Create(ctx, &models.CreateMixtureRequest{
		ID:               "warm",
		Model:            "ewa",
		Loss:             "square",
		LearningRate:     1,
		WarmForecasts:    [][]float64{{1, 2}, {1, 2}, {1, 2}},
		WarmObservations: []float64{1, 1, 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.Steps != 3 {
		t.Fatalf("expected 3 warm steps, got %d", info.Steps)
	}
	if len(hist.rows) != 3 {
		t.Fatalf("expected 3 persisted warm rows, got %d", len(hist.rows))
	}

	sum, err := svc.Summary(ctx, "warm")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// expert 0 is exact; it should dominate after three steps
	if sum.Weights[0] <= sum.Weights[1] {
		t.Fatalf("expected weight concentration on expert 0, got %v", sum.Weights)
	}
}

func TestCheckpointAndResume(t *testing.T) {
	svc, _, states := newTestService(1) // checkpoint every step
	ctx := context.Background()

	if _, err := svc.Create(ctx, &models.CreateMixtureRequest{ID: "ckpt", Model: "ewa", Loss: "square", LearningRate: 0.5}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.Step(ctx, &models.ForecastEvent{
			MixtureID:   "ckpt",
			Timestamp:   int64(1700000000 + i),
			Forecasts:   []float64{1, 3},
			Observation: 1,
		}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want, err := svc.Summary(ctx, "ckpt")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	// Simulate a restart: new service sharing the same state store.
	svc2 := NewMixtureService(&fakeHistory{}, states, fakeMetrics{}, nil, 1)
	got, err := svc2.Summary(ctx, "ckpt")
	if err != nil {
		t.Fatalf("restored summary: %v", err)
	}
	if got.Steps != want.Steps {
		t.Fatalf("restored steps %d, want %d", got.Steps, want.Steps)
	}
	if math.Abs(got.CumulativeLoss-want.CumulativeLoss) > 1e-12 {
		t.Fatalf("restored cum loss %v, want %v", got.CumulativeLoss, want.CumulativeLoss)
	}
	for i := range want.Weights {
		if math.Abs(got.Weights[i]-want.Weights[i]) > 1e-12 {
			t.Fatalf("restored weights %v, want %v", got.Weights, want.Weights)
		}
	}

	// The restored instance keeps stepping from where it stopped.
	res, err := svc2.Step(ctx, &models.ForecastEvent{
		MixtureID:   "ckpt",
		Timestamp:   1700000100,
		Forecasts:   []float64{1, 3},
		Observation: 1,
	})
	if err != nil {
		t.Fatalf("resumed step: %v", err)
	}
	if res.Step != want.Steps+1 {
		t.Fatalf("resumed step %d, want %d", res.Step, want.Steps+1)
	}
}

func TestRunPersistsBatch(t *testing.T) {
	svc, hist, _ := newTestService(0)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &models.CreateMixtureRequest{ID: "batch", Model: "mlpol", Loss: "square"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows := [][]float64{{1, 2}, {2, 3}, {3, 4}}
	obs := []float64{1.5, 2.5, 3.5}
	sum, err := svc.Run(ctx, "batch", rows, obs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Steps != 3 {
		t.Fatalf("expected 3 steps, got %d", sum.Steps)
	}
	if len(hist.rows) != 3 {
		t.Fatalf("expected 3 persisted rows, got %d", len(hist.rows))
	}
}

func TestHistoryFailureDoesNotBlockStep(t *testing.T) {
	svc, hist, _ := newTestService(0)
	ctx := context.Background()
	hist.fail = true

	if _, err := svc.Create(ctx, &models.CreateMixtureRequest{ID: "m", Model: "ewa", Loss: "square", LearningRate: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.Step(ctx, &models.ForecastEvent{
		MixtureID:   "m",
		Timestamp:   1,
		Forecasts:   []float64{1, 2},
		Observation: 1,
	})
	if err != nil {
		t.Fatalf("step should survive history outage: %v", err)
	}
	if res.Step != 1 {
		t.Fatalf("expected step 1, got %d", res.Step)
	}
}

func TestDeleteMixture(t *testing.T) {
	svc, _, states := newTestService(1)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &models.CreateMixtureRequest{ID: "gone", Model: "ewa", Loss: "square", LearningRate: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Step(ctx, &models.ForecastEvent{MixtureID: "gone", Timestamp: 1, Forecasts: []float64{1}, Observation: 1}); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := svc.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := states.snaps["gone"]; ok {
		t.Fatalf("checkpoint should be deleted")
	}
	if _, err := svc.Summary(ctx, "gone"); !errors.Is(err, ErrMixtureNotFound) {
		t.Fatalf("expected ErrMixtureNotFound, got %v", err)
	}
}
