package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ForecastMix/internal/domain/models"
	drepo "ForecastMix/internal/domain/repository"
	"ForecastMix/internal/mixture"
	applogger "ForecastMix/pkg/logger"
)

// ErrMixtureNotFound is returned when a mixture id is neither live nor
// checkpointed.
var ErrMixtureNotFound = fmt.Errorf("mixture not found")

// ErrMixtureExists is returned when creating a mixture under a taken id.
var ErrMixtureExists = fmt.Errorf("mixture already exists")

// liveMixture is one registered aggregation instance. The mutex serializes
// steps so each mixture sees a strictly ordered stream.
type liveMixture struct {
	mu              sync.Mutex
	m               *mixture.Mixture
	createdAt       time.Time
	sinceCheckpoint int
}

// MixtureService owns the registry of live mixtures and drives their online
// updates: step, persist history, checkpoint, report.
type MixtureService struct {
	mu   sync.RWMutex
	live map[string]*liveMixture

	history drepo.HistoryStore
	states  drepo.StateStore
	metrics drepo.Metrics
	l       *applogger.Logger

	checkpointEvery int
}

// NewMixtureService creates the mixture registry. checkpointEvery <= 0
// disables periodic checkpointing.
func NewMixtureService(
	history drepo.HistoryStore,
	states drepo.StateStore,
	metrics drepo.Metrics,
	l *applogger.Logger,
	checkpointEvery int,
) *MixtureService {
	return &MixtureService{
		live:            make(map[string]*liveMixture),
		history:         history,
		states:          states,
		metrics:         metrics,
		l:               l,
		checkpointEvery: checkpointEvery,
	}
}

func configFromRequest(req *models.CreateMixtureRequest) mixture.Config {
	return mixture.Config{
		Model:          mixture.ModelKind(req.Model),
		Loss:           mixture.LossKind(req.Loss),
		Tau:            req.Tau,
		LearningRate:   req.LearningRate,
		Regularization: req.Regularization,
		ShareRate:      req.ShareRate,
		Unconstrained:  req.Unconstrained,
		Grid:           req.Grid,
		Strict:         req.Strict,
		Experts:        req.Experts,
	}
}

// Create registers a new mixture, optionally replaying a warm-start window
// before it goes live.
func (s *MixtureService) Create(ctx context.Context, req *models.CreateMixtureRequest) (*models.MixtureInfo, error) {
	id := req.ID
	if id == "" {
		id = fmt.Sprintf("mix-%d", time.Now().UnixNano())
	}

	s.mu.RLock()
	_, taken := s.live[id]
	s.mu.RUnlock()
	if taken {
		return nil, fmt.Errorf("%w: %s", ErrMixtureExists, id)
	}

	m, err := mixture.New(configFromRequest(req))
	if err != nil {
		s.metrics.RecordError("create_mixture")
		return nil, err
	}

	if len(req.WarmForecasts) > 0 {
		if err := m.Run(req.WarmForecasts, req.WarmObservations); err != nil {
			s.metrics.RecordError("warm_start")
			return nil, fmt.Errorf("warm start: %w", err)
		}
	}

	lm := &liveMixture{m: m, createdAt: time.Now()}

	s.mu.Lock()
	if _, taken := s.live[id]; taken {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMixtureExists, id)
	}
	s.live[id] = lm
	s.mu.Unlock()

	if len(req.WarmForecasts) > 0 {
		if err := s.persistRecords(ctx, id, m.Records()); err != nil && s.l != nil {
			s.l.Error("warm start history append failed", applogger.String("mixture", id), applogger.Error(err))
		}
		s.checkpoint(ctx, id, lm)
	}

	if s.l != nil {
		s.l.Info("mixture created",
			applogger.String("mixture", id),
			applogger.String("model", req.Model),
			applogger.Int("warm_steps", m.Steps()),
		)
	}
	return s.info(id, lm), nil
}

// Step feeds one forecast event into its mixture and returns the step result.
// Unknown ids are resumed from the checkpoint store when possible.
func (s *MixtureService) Step(ctx context.Context, ev *models.ForecastEvent) (*models.StepResult, error) {
	lm, err := s.get(ctx, ev.MixtureID)
	if err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	start := time.Now()
	if _, err := lm.m.Step(ev.Forecasts, ev.Observation); err != nil {
		s.metrics.RecordError("step")
		return nil, err
	}
	s.metrics.RecordLatency("step", time.Since(start).Seconds())

	recs := lm.m.Records()
	rec := recs[len(recs)-1]
	s.metrics.RecordStep(ev.MixtureID, string(lm.m.Summary().Model), rec.Loss)

	pred, err := lm.m.Predict(ev.Forecasts)
	if err == nil {
		s.metrics.RecordPrediction(ev.MixtureID, pred)
	}

	ts := time.Unix(ev.Timestamp, 0)
	if ev.Timestamp == 0 {
		ts = time.Now()
	}
	row := &models.StepRow{
		MixtureID:    ev.MixtureID,
		Step:         rec.Step,
		Timestamp:    ts,
		Prediction:   rec.Prediction,
		Observation:  rec.Observation,
		Loss:         rec.Loss,
		ExpertLosses: rec.ExpertLosses,
		Weights:      rec.Weights,
		Flagged:      rec.Flagged,
	}
	if err := s.history.Append(ctx, row); err != nil {
		s.metrics.RecordError("history_append")
		if s.l != nil {
			s.l.Error("history append failed", applogger.String("mixture", ev.MixtureID), applogger.Error(err))
		}
	}

	lm.sinceCheckpoint++
	if s.checkpointEvery > 0 && lm.sinceCheckpoint >= s.checkpointEvery {
		s.checkpoint(ctx, ev.MixtureID, lm)
	}

	return &models.StepResult{
		MixtureID:  ev.MixtureID,
		Step:       rec.Step,
		Prediction: rec.Prediction,
		Loss:       rec.Loss,
		Weights:    rec.Weights,
		Flagged:    rec.Flagged,
	}, nil
}

// Run replays a whole window through a mixture in one call.
func (s *MixtureService) Run(ctx context.Context, id string, rows [][]float64, obs []float64) (*mixture.Summary, error) {
	lm, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	before := len(lm.m.Records())
	start := time.Now()
	if err := lm.m.Run(rows, obs); err != nil {
		s.metrics.RecordError("run")
		return nil, err
	}
	s.metrics.RecordLatency("run", time.Since(start).Seconds())

	if err := s.persistRecords(ctx, id, lm.m.Records()[before:]); err != nil {
		s.metrics.RecordError("history_append")
		if s.l != nil {
			s.l.Error("run history append failed", applogger.String("mixture", id), applogger.Error(err))
		}
	}
	s.checkpoint(ctx, id, lm)

	sum := lm.m.Summary()
	return &sum, nil
}

// Predict combines a forecast row with the current weights without advancing
// the mixture.
func (s *MixtureService) Predict(ctx context.Context, id string, row []float64) (float64, error) {
	lm, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.m.Predict(row)
}

// Summary reports the mixture's cumulative performance.
func (s *MixtureService) Summary(ctx context.Context, id string) (*mixture.Summary, error) {
	lm, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	sum := lm.m.Summary()
	return &sum, nil
}

// Weights returns the trailing weight trajectory, newest last.
func (s *MixtureService) Weights(ctx context.Context, id string, limit int) ([][]float64, error) {
	lm, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	hist := lm.m.WeightHistory()
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return hist, nil
}

// History returns persisted step rows for a mixture.
func (s *MixtureService) History(ctx context.Context, id string, limit int) ([]*models.StepRow, error) {
	return s.history.Query(ctx, id, limit)
}

// List reports all live mixtures.
func (s *MixtureService) List() []*models.MixtureInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.MixtureInfo, 0, len(s.live))
	for id, lm := range s.live {
		out = append(out, s.info(id, lm))
	}
	return out
}

// Delete removes a mixture and its checkpoint.
func (s *MixtureService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()

	err := s.states.Delete(ctx, id)
	if !ok && err != nil {
		return ErrMixtureNotFound
	}
	return nil
}

// Checkpoint forces a snapshot of every live mixture, used on shutdown.
func (s *MixtureService) Checkpoint(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.live))
	lms := make([]*liveMixture, 0, len(s.live))
	for id, lm := range s.live {
		ids = append(ids, id)
		lms = append(lms, lm)
	}
	s.mu.RUnlock()

	for i, lm := range lms {
		lm.mu.Lock()
		s.checkpoint(ctx, ids[i], lm)
		lm.mu.Unlock()
	}
}

func (s *MixtureService) info(id string, lm *liveMixture) *models.MixtureInfo {
	sum := lm.m.Summary()
	return &models.MixtureInfo{
		ID:        id,
		Model:     string(sum.Model),
		Loss:      string(sum.Loss),
		Experts:   sum.Experts,
		Steps:     sum.Steps,
		CreatedAt: lm.createdAt,
	}
}

// get returns the live instance, falling back to the checkpoint store.
func (s *MixtureService) get(ctx context.Context, id string) (*liveMixture, error) {
	s.mu.RLock()
	lm, ok := s.live[id]
	s.mu.RUnlock()
	if ok {
		return lm, nil
	}

	raw, err := s.states.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMixtureNotFound, id)
	}
	var snap mixture.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", id, err)
	}
	m, err := mixture.FromSnapshot(&snap)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", id, err)
	}

	lm = &liveMixture{m: m, createdAt: time.Now()}
	s.mu.Lock()
	if cur, ok := s.live[id]; ok {
		lm = cur // lost the race, keep the registered one
	} else {
		s.live[id] = lm
	}
	s.mu.Unlock()

	if s.l != nil {
		s.l.Info("mixture restored from checkpoint",
			applogger.String("mixture", id),
			applogger.Int("steps", m.Steps()),
		)
	}
	return lm, nil
}

// checkpoint snapshots state under the caller-held mixture lock.
func (s *MixtureService) checkpoint(ctx context.Context, id string, lm *liveMixture) {
	snap, err := lm.m.Snapshot()
	if err != nil {
		return // nothing to persist before the first step
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.metrics.RecordError("checkpoint_encode")
		return
	}
	if err := s.states.Save(ctx, id, raw); err != nil {
		s.metrics.RecordError("checkpoint_save")
		if s.l != nil {
			s.l.Error("checkpoint save failed", applogger.String("mixture", id), applogger.Error(err))
		}
		return
	}
	lm.sinceCheckpoint = 0
}

func (s *MixtureService) persistRecords(ctx context.Context, id string, recs []mixture.StepRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]*models.StepRow, 0, len(recs))
	now := time.Now()
	for i := range recs {
		r := recs[i]
		rows = append(rows, &models.StepRow{
			MixtureID:    id,
			Step:         r.Step,
			Timestamp:    now,
			Prediction:   r.Prediction,
			Observation:  r.Observation,
			Loss:         r.Loss,
			ExpertLosses: r.ExpertLosses,
			Weights:      r.Weights,
			Flagged:      r.Flagged,
		})
	}
	return s.history.AppendBatch(ctx, rows)
}
