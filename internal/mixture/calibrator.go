package mixture

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

// CalibrationMode selects how the calibrator turns its shadow instances into
// one prediction.
type CalibrationMode string

const (
	// CalibrationMeta aggregates the shadow predictions with a second-level
	// exponentially weighted average. Default: no discrete jumps when the
	// leading candidate changes.
	CalibrationMeta CalibrationMode = "meta"
	// CalibrationSelect follows the candidate with the lowest cumulative loss
	// so far, ties broken by candidate index.
	CalibrationSelect CalibrationMode = "select"
)

// Calibrator tunes an unset hyperparameter online. It runs one shadow
// strategy per grid candidate in lock-step with the main loop and treats the
// shadow predictions as a second-level expert set. Candidate scores at step t
// only ever contain losses observed strictly before t's prediction went out.
type Calibrator struct {
	loss       LossFunction
	mode       CalibrationMode
	candidates []Config
	shadows    []Strategy

	k       int
	t       int
	cum     []float64 // per-candidate cumulative loss through step t-1
	maxLoss float64   // running per-step loss bound for the meta rate
}

// NewCalibrator expands the unset hyperparameters of cfg into a candidate
// grid and builds one shadow per candidate.
func NewCalibrator(cfg Config, loss LossFunction) (*Calibrator, error) {
	candidates, err := candidateConfigs(cfg)
	if err != nil {
		return nil, err
	}
	mode := cfg.CalibrationMode
	if mode == "" {
		mode = CalibrationMeta
	}
	if mode != CalibrationMeta && mode != CalibrationSelect {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidCalibrationGrid, mode)
	}

	c := &Calibrator{
		loss:       loss,
		mode:       mode,
		candidates: candidates,
		shadows:    make([]Strategy, len(candidates)),
	}
	for i, cand := range candidates {
		s, err := newFixedStrategy(cand, loss)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrInvalidCalibrationGrid, i, err)
		}
		c.shadows[i] = s
	}
	return c, nil
}

func (c *Calibrator) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	c.k = k
	c.t = 0
	c.cum = make([]float64, len(c.shadows))
	c.maxLoss = 0
	for _, s := range c.shadows {
		if err := s.Init(k); err != nil {
			return err
		}
	}
	return nil
}

// metaWeights computes the second-level weights over candidates from their
// cumulative losses so far. The meta rate follows sqrt(8 ln M / t) scaled by
// the largest per-step loss seen, so it adapts to the loss range without a
// tunable of its own.
func (c *Calibrator) metaWeights() []float64 {
	m := len(c.shadows)
	if c.t == 0 {
		return uniform(m)
	}
	scale := c.maxLoss
	if scale <= 0 {
		scale = 1
	}
	eta := math.Sqrt(8*math.Log(float64(m))/float64(c.t)) / scale

	minCum := c.cum[0]
	for _, v := range c.cum[1:] {
		if v < minCum {
			minCum = v
		}
	}
	w := make([]float64, m)
	var sum float64
	for i, v := range c.cum {
		w[i] = math.Exp(-eta * (v - minCum))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func (c *Calibrator) bestCandidate() int {
	best := 0
	for i, v := range c.cum[1:] {
		if v < c.cum[best] {
			best = i + 1
		}
	}
	return best
}

func (c *Calibrator) Predict(row []float64) float64 {
	if c.mode == CalibrationSelect {
		return c.shadows[c.bestCandidate()].Predict(row)
	}
	mw := c.metaWeights()
	var pred float64
	for i, s := range c.shadows {
		pred += mw[i] * s.Predict(row)
	}
	return pred
}

func (c *Calibrator) Update(row []float64, obs float64) (bool, error) {
	// Score each shadow on the prediction it made before seeing obs, then
	// step them all. Shadows are independent, so the updates fan out to
	// goroutines; results merge back in candidate order.
	preds := make([]float64, len(c.shadows))
	for i, s := range c.shadows {
		preds[i] = s.Predict(row)
	}

	flags := make([]bool, len(c.shadows))
	errs := make([]error, len(c.shadows))
	var wg sync.WaitGroup
	for i := range c.shadows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			flags[i], errs[i] = c.shadows[i].Update(row, obs)
		}(i)
	}
	wg.Wait()

	var flagged bool
	for i := range c.shadows {
		if errs[i] != nil {
			return false, fmt.Errorf("calibration candidate %d: %w", i, errs[i])
		}
		flagged = flagged || flags[i]
		li, fb, err := c.loss.Eval(preds[i], obs)
		if err != nil {
			return false, err
		}
		flagged = flagged || fb
		c.cum[i] += li
		if li > c.maxLoss {
			c.maxLoss = li
		}
	}
	c.t++
	return flagged, nil
}

// Weights reports the calibrated first-level weights: the meta-mixture of
// the shadow weight vectors (or the leading shadow's weights in select mode).
func (c *Calibrator) Weights() []float64 {
	if c.mode == CalibrationSelect {
		return c.shadows[c.bestCandidate()].Weights()
	}
	mw := c.metaWeights()
	w := make([]float64, c.k)
	for i, s := range c.shadows {
		for j, wj := range s.Weights() {
			w[j] += mw[i] * wj
		}
	}
	return w
}

type calibratorState struct {
	T       int               `json:"t"`
	Cum     []float64         `json:"cum"`
	MaxLoss float64           `json:"max_loss"`
	Shadows []json.RawMessage `json:"shadows"`
}

func (c *Calibrator) Snapshot() (json.RawMessage, error) {
	shadows := make([]json.RawMessage, len(c.shadows))
	for i, s := range c.shadows {
		snap, err := s.Snapshot()
		if err != nil {
			return nil, err
		}
		shadows[i] = snap
	}
	return json.Marshal(calibratorState{T: c.t, Cum: c.cum, MaxLoss: c.maxLoss, Shadows: shadows})
}

func (c *Calibrator) Restore(k int, data json.RawMessage) error {
	var s calibratorState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore calibrator: %w", err)
	}
	if len(s.Cum) != len(c.shadows) || len(s.Shadows) != len(c.shadows) {
		return fmt.Errorf("%w: snapshot candidate count", ErrInvalidCalibrationGrid)
	}
	if err := c.Init(k); err != nil {
		return err
	}
	c.t = s.T
	c.maxLoss = s.MaxLoss
	copy(c.cum, s.Cum)
	for i := range c.shadows {
		if err := c.shadows[i].Restore(k, s.Shadows[i]); err != nil {
			return err
		}
	}
	return nil
}

// candidateConfigs expands every unset hyperparameter of cfg into grid
// values, taking the cartesian product when more than one is unset (only
// fixed-share has two). A user-supplied grid replaces the default for every
// expanded parameter and is validated against that parameter's domain.
func candidateConfigs(cfg Config) ([]Config, error) {
	out := []Config{cfg}
	expanded := false

	expand := func(in []Config, grid []float64, set func(Config, float64) Config) []Config {
		expanded = true
		next := make([]Config, 0, len(in)*len(grid))
		for _, base := range in {
			for _, v := range grid {
				next = append(next, set(base, v))
			}
		}
		return next
	}

	switch cfg.Model {
	case ModelEWA, ModelOGD:
		if cfg.LearningRate <= 0 {
			grid, err := rateGrid(cfg.Grid)
			if err != nil {
				return nil, err
			}
			out = expand(out, grid, func(c Config, v float64) Config { c.LearningRate = v; return c })
		}
	case ModelRidge:
		if cfg.Regularization <= 0 {
			grid, err := rateGrid(cfg.Grid)
			if err != nil {
				return nil, err
			}
			out = expand(out, grid, func(c Config, v float64) Config { c.Regularization = v; return c })
		}
	case ModelFixedShare:
		if cfg.LearningRate <= 0 {
			grid, err := rateGrid(cfg.Grid)
			if err != nil {
				return nil, err
			}
			out = expand(out, grid, func(c Config, v float64) Config { c.LearningRate = v; return c })
		}
		if cfg.ShareRate <= 0 {
			grid, err := shareGrid(cfg.Grid)
			if err != nil {
				return nil, err
			}
			out = expand(out, grid, func(c Config, v float64) Config { c.ShareRate = v; return c })
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}

	if !expanded {
		return nil, fmt.Errorf("%w: nothing to calibrate", ErrInvalidCalibrationGrid)
	}
	return out, nil
}

// rateGrid validates a positive-rate grid (learning rate, regularization) or
// falls back to powers of two spanning fourteen octaves.
func rateGrid(custom []float64) ([]float64, error) {
	if custom != nil {
		if len(custom) == 0 {
			return nil, fmt.Errorf("%w: empty", ErrInvalidCalibrationGrid)
		}
		for _, v := range custom {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: rate %v", ErrInvalidCalibrationGrid, v)
			}
		}
		return cloneFloats(custom), nil
	}
	grid := make([]float64, 0, 14)
	for i := -8; i <= 5; i++ {
		grid = append(grid, math.Pow(2, float64(i)))
	}
	return grid, nil
}

// shareGrid validates a (0,1) grid for the fixed-share rate.
func shareGrid(custom []float64) ([]float64, error) {
	if custom != nil {
		if len(custom) == 0 {
			return nil, fmt.Errorf("%w: empty", ErrInvalidCalibrationGrid)
		}
		for _, v := range custom {
			if v <= 0 || v >= 1 || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: share rate %v", ErrInvalidCalibrationGrid, v)
			}
		}
		return cloneFloats(custom), nil
	}
	return []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.3}, nil
}
