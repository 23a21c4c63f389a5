// Package mixture implements sequential aggregation of expert forecasts.
//
// A Mixture owns one strategy state and feeds it one (expert row,
// observation) pair per step, in strict time order: the prediction emitted at
// step t depends on everything observed strictly before t plus the expert row
// at t, never on the observation at t. That causality invariant is structural:
// Predict is read-only and Update mutates exactly once per step.
package mixture

import (
	"encoding/json"
	"fmt"
	"math"
)

// Config selects the aggregation rule and loss for a mixture. Hyperparameters
// left at zero are tuned online by the calibrator.
type Config struct {
	Model ModelKind `json:"model"`
	Loss  LossKind  `json:"loss"`

	// Tau is the pinball quantile, required when Loss is "pinball".
	Tau float64 `json:"tau,omitempty"`

	// LearningRate is eta for EWA, OGD and fixed-share. Zero calibrates.
	LearningRate float64 `json:"learning_rate,omitempty"`
	// Regularization is lambda for ridge. Zero calibrates.
	Regularization float64 `json:"regularization,omitempty"`
	// ShareRate is alpha for fixed-share. Zero calibrates.
	ShareRate float64 `json:"share_rate,omitempty"`

	// Unconstrained switches OGD from simplex-projected weights to free
	// linear combinations.
	Unconstrained bool `json:"unconstrained,omitempty"`

	// Grid replaces the default calibration grid for every parameter being
	// calibrated.
	Grid            []float64       `json:"grid,omitempty"`
	CalibrationMode CalibrationMode `json:"calibration_mode,omitempty"`

	// ZeroObs is the percentage-loss fallback policy on zero observations.
	ZeroObs ZeroObsPolicy `json:"zero_obs,omitempty"`

	// Strict aborts a batch run on the first failed step instead of skipping
	// the malformed row and keeping prior state.
	Strict bool `json:"strict,omitempty"`

	// Experts pins the expert count up front. Zero infers it from the first
	// row.
	Experts int `json:"experts,omitempty"`
}

// StepRecord is the append-only per-step history entry.
type StepRecord struct {
	Step         int       `json:"step"`
	Prediction   float64   `json:"prediction"`
	Observation  float64   `json:"observation"`
	Loss         float64   `json:"loss"`
	ExpertLosses []float64 `json:"expert_losses"`
	Weights      []float64 `json:"weights"`
	Flagged      bool      `json:"flagged,omitempty"`
}

// Summary is a read-only projection for reporting collaborators.
type Summary struct {
	Model          ModelKind `json:"model"`
	Loss           LossKind  `json:"loss"`
	Experts        int       `json:"experts"`
	Steps          int       `json:"steps"`
	Weights        []float64 `json:"weights"`
	CumulativeLoss float64   `json:"cumulative_loss"`
	AverageLoss    float64   `json:"average_loss"`
	ExpertCumLoss  []float64 `json:"expert_cumulative_loss"`
	FlaggedSteps   int       `json:"flagged_steps"`
}

// Mixture is the sequential aggregation controller. Not safe for concurrent
// use; one goroutine owns a mixture at a time.
type Mixture struct {
	cfg   Config
	loss  LossFunction
	strat Strategy

	k       int
	t       int
	records []StepRecord
	cumLoss float64
	cumExp  []float64
	flagged int
}

// New validates cfg and allocates the mixture in the Ready state. The expert
// count is inferred on the first step unless cfg.Experts pins it.
func New(cfg Config) (*Mixture, error) {
	loss, err := NewLossFunction(cfg.Loss, cfg.Tau, cfg.ZeroObs)
	if err != nil {
		return nil, err
	}
	strat, err := NewStrategy(cfg, loss)
	if err != nil {
		return nil, err
	}
	m := &Mixture{cfg: cfg, loss: loss, strat: strat}
	if cfg.Experts > 0 {
		if err := m.bind(cfg.Experts); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mixture) bind(k int) error {
	if err := m.strat.Init(k); err != nil {
		return err
	}
	m.k = k
	m.cumExp = make([]float64, k)
	return nil
}

// Step consumes one (expert row, observation) pair: emits the prediction for
// the row, scores it once the observation is in, and advances the state. On
// error the prior state is preserved.
func (m *Mixture) Step(row []float64, obs float64) (float64, error) {
	if m.k == 0 {
		if len(row) == 0 {
			return 0, fmt.Errorf("%w: empty expert row", ErrDimensionMismatch)
		}
		if err := m.bind(len(row)); err != nil {
			return 0, err
		}
	}
	if len(row) != m.k {
		return 0, fmt.Errorf("%w: got %d experts, want %d", ErrDimensionMismatch, len(row), m.k)
	}
	for _, f := range row {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: forecast %v", ErrNonFiniteValue, f)
		}
	}
	if math.IsNaN(obs) || math.IsInf(obs, 0) {
		return 0, fmt.Errorf("%w: observation %v", ErrNonFiniteValue, obs)
	}

	pred := m.strat.Predict(row)
	stepLoss, flaggedPred, err := m.loss.Eval(pred, obs)
	if err != nil {
		return 0, err
	}

	expLosses := make([]float64, m.k)
	flaggedExp := false
	for i, f := range row {
		li, fb, err := m.loss.Eval(f, obs)
		if err != nil {
			return 0, err
		}
		flaggedExp = flaggedExp || fb
		expLosses[i] = li
	}

	flaggedUpd, err := m.strat.Update(row, obs)
	if err != nil {
		return 0, err
	}

	flagged := flaggedPred || flaggedExp || flaggedUpd
	m.t++
	m.cumLoss += stepLoss
	for i, li := range expLosses {
		m.cumExp[i] += li
	}
	if flagged {
		m.flagged++
	}
	m.records = append(m.records, StepRecord{
		Step:         m.t,
		Prediction:   pred,
		Observation:  obs,
		Loss:         stepLoss,
		ExpertLosses: expLosses,
		Weights:      m.strat.Weights(),
		Flagged:      flagged,
	})
	return pred, nil
}

// Run replays Step once per row, in order. In strict mode the first failed
// step aborts the run; otherwise the failed step is skipped and counted as a
// flagged event, preserving all prior state.
func (m *Mixture) Run(rows [][]float64, obs []float64) error {
	if len(rows) != len(obs) {
		return fmt.Errorf("%w: %d expert rows vs %d observations", ErrDimensionMismatch, len(rows), len(obs))
	}
	for i := range rows {
		if _, err := m.Step(rows[i], obs[i]); err != nil {
			if m.cfg.Strict {
				return fmt.Errorf("step %d: %w", i, err)
			}
			m.flagged++
		}
	}
	return nil
}

// Predict returns the prediction the mixture would emit for row without
// advancing the state.
func (m *Mixture) Predict(row []float64) (float64, error) {
	if m.k == 0 {
		return 0, ErrNotInitialized
	}
	if len(row) != m.k {
		return 0, fmt.Errorf("%w: got %d experts, want %d", ErrDimensionMismatch, len(row), m.k)
	}
	return m.strat.Predict(row), nil
}

// Weights returns a copy of the current weight vector, or nil before the
// expert count is bound.
func (m *Mixture) Weights() []float64 {
	if m.k == 0 {
		return nil
	}
	return m.strat.Weights()
}

// Records returns a copy of the per-step history.
func (m *Mixture) Records() []StepRecord {
	out := make([]StepRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Predictions returns the emitted prediction sequence.
func (m *Mixture) Predictions() []float64 {
	out := make([]float64, len(m.records))
	for i, r := range m.records {
		out[i] = r.Prediction
	}
	return out
}

// WeightHistory returns the weight trajectory, one vector per step.
func (m *Mixture) WeightHistory() [][]float64 {
	out := make([][]float64, len(m.records))
	for i, r := range m.records {
		out[i] = cloneFloats(r.Weights)
	}
	return out
}

// Steps returns the number of consumed steps.
func (m *Mixture) Steps() int { return m.t }

// Experts returns the bound expert count, zero before the first step.
func (m *Mixture) Experts() int { return m.k }

func (m *Mixture) Summary() Summary {
	avg := 0.0
	if m.t > 0 {
		avg = m.cumLoss / float64(m.t)
	}
	return Summary{
		Model:          m.cfg.Model,
		Loss:           m.cfg.Loss,
		Experts:        m.k,
		Steps:          m.t,
		Weights:        m.Weights(),
		CumulativeLoss: m.cumLoss,
		AverageLoss:    avg,
		ExpertCumLoss:  cloneFloats(m.cumExp),
		FlaggedSteps:   m.flagged,
	}
}

// Snapshot is the full persisted state needed to resume online prediction.
// Per-step history is reporting data and is not carried.
type Snapshot struct {
	Config   Config          `json:"config"`
	Experts  int             `json:"experts"`
	Steps    int             `json:"steps"`
	CumLoss  float64         `json:"cumulative_loss"`
	CumExp   []float64       `json:"expert_cumulative_loss"`
	Flagged  int             `json:"flagged_steps"`
	Strategy json.RawMessage `json:"strategy"`
}

// Snapshot captures the resumable state of the mixture.
func (m *Mixture) Snapshot() (*Snapshot, error) {
	if m.k == 0 {
		return nil, ErrNotInitialized
	}
	strat, err := m.strat.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot strategy: %w", err)
	}
	return &Snapshot{
		Config:   m.cfg,
		Experts:  m.k,
		Steps:    m.t,
		CumLoss:  m.cumLoss,
		CumExp:   cloneFloats(m.cumExp),
		Flagged:  m.flagged,
		Strategy: strat,
	}, nil
}

// FromSnapshot rebuilds a mixture that continues consuming rows where the
// snapshotted one left off.
func FromSnapshot(snap *Snapshot) (*Mixture, error) {
	m, err := New(snap.Config)
	if err != nil {
		return nil, err
	}
	if err := m.bind(snap.Experts); err != nil {
		return nil, err
	}
	if err := m.strat.Restore(snap.Experts, snap.Strategy); err != nil {
		return nil, err
	}
	m.t = snap.Steps
	m.cumLoss = snap.CumLoss
	if len(snap.CumExp) == snap.Experts {
		copy(m.cumExp, snap.CumExp)
	}
	m.flagged = snap.Flagged
	return m, nil
}
