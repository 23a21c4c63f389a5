package mixture

import (
	"encoding/json"
	"fmt"
)

// ModelKind identifies a supported aggregation rule.
type ModelKind string

const (
	ModelEWA        ModelKind = "ewa"
	ModelOGD        ModelKind = "ogd"
	ModelRidge      ModelKind = "ridge"
	ModelMLpol      ModelKind = "mlpol"
	ModelFixedShare ModelKind = "fixedshare"
)

// Strategy is one aggregation rule consuming one (expert row, observation)
// pair per step. Predict must not mutate state: the prediction at step t is a
// function of everything seen strictly before t plus the current expert row.
// Update folds the observation into the state exactly once.
type Strategy interface {
	Init(k int) error
	Predict(row []float64) float64
	Update(row []float64, obs float64) (flagged bool, err error)
	Weights() []float64
	Snapshot() (json.RawMessage, error)
	Restore(k int, data json.RawMessage) error
}

// newFixedStrategy builds a strategy with all hyperparameters pinned. It is
// the calibrator-free path; NewStrategy wraps it with a Calibrator when a
// required hyperparameter was left unset.
func newFixedStrategy(cfg Config, loss LossFunction) (Strategy, error) {
	switch cfg.Model {
	case ModelEWA:
		return NewEWA(cfg.LearningRate, loss)
	case ModelOGD:
		return NewOGD(cfg.LearningRate, !cfg.Unconstrained, loss)
	case ModelRidge:
		return NewRidge(cfg.Regularization)
	case ModelMLpol:
		return NewMLpol(loss), nil
	case ModelFixedShare:
		return NewFixedShare(cfg.LearningRate, cfg.ShareRate, loss)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
}

// NewStrategy builds the strategy for cfg, activating online calibration for
// any hyperparameter the caller left unset. MLpol tunes its own per-expert
// rates and never calibrates.
func NewStrategy(cfg Config, loss LossFunction) (Strategy, error) {
	if cfg.Model == ModelMLpol {
		return NewMLpol(loss), nil
	}
	if !needsCalibration(cfg) {
		return newFixedStrategy(cfg, loss)
	}
	return NewCalibrator(cfg, loss)
}

func needsCalibration(cfg Config) bool {
	switch cfg.Model {
	case ModelEWA, ModelOGD:
		return cfg.LearningRate <= 0
	case ModelRidge:
		return cfg.Regularization <= 0
	case ModelFixedShare:
		return cfg.LearningRate <= 0 || cfg.ShareRate <= 0
	}
	return false
}
