package mixture

import "errors"

// Sentinel errors surfaced by the aggregation engine. Configuration and
// dimension errors are detected eagerly at New/Step boundaries; numeric
// degeneracies are recovered locally where a principled fallback exists.
var (
	ErrUnknownModel           = errors.New("unknown model kind")
	ErrUnknownLoss            = errors.New("unknown loss kind")
	ErrInvalidHyperparameter  = errors.New("hyperparameter out of domain")
	ErrDimensionMismatch      = errors.New("expert row dimension mismatch")
	ErrNonFiniteValue         = errors.New("non-finite value")
	ErrDivisionByZero         = errors.New("percentage loss: observation is zero")
	ErrInvalidCalibrationGrid = errors.New("invalid calibration grid")
	ErrNotInitialized         = errors.New("mixture not initialized")
)
