package models

// Requests for the mixture HTTP endpoints. Defined in domain for consistency
// and reuse.

type CreateMixtureRequest struct {
	ID             string    `json:"id"`
	Model          string    `json:"model" validate:"required,oneof=ewa ogd ridge mlpol fixedshare"`
	Loss           string    `json:"loss" default:"square" validate:"oneof=square absolute percentage pinball"`
	Tau            float64   `json:"tau" validate:"gte=0,lt=1"`
	LearningRate   float64   `json:"learning_rate" validate:"gte=0"`
	Regularization float64   `json:"regularization" validate:"gte=0"`
	ShareRate      float64   `json:"share_rate" validate:"gte=0,lt=1"`
	Unconstrained  bool      `json:"unconstrained"`
	Grid           []float64 `json:"grid"`
	Strict         bool      `json:"strict"`
	Experts        int       `json:"experts" validate:"gte=0,lte=1024"`

	// Optional warm-start window replayed before the mixture goes live.
	WarmForecasts    [][]float64 `json:"warm_forecasts" validate:"omitempty,max=100000"`
	WarmObservations []float64   `json:"warm_observations" validate:"omitempty,max=100000"`
}

type StepRequest struct {
	ID          string    `param:"id" json:"-" validate:"required"`
	Timestamp   int64     `json:"t"`
	Forecasts   []float64 `json:"forecasts" validate:"required,min=1,max=1024"`
	Observation float64   `json:"observation"`
}

type RunRequest struct {
	ID           string      `param:"id" json:"-" validate:"required"`
	Forecasts    [][]float64 `json:"forecasts" validate:"required,min=1,max=100000"`
	Observations []float64   `json:"observations" validate:"required,min=1,max=100000"`
}

type PredictRequest struct {
	ID        string    `param:"id" json:"-" validate:"required"`
	Forecasts []float64 `json:"forecasts" validate:"required,min=1,max=1024"`
}

type MixtureIDRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

type WeightsRequest struct {
	ID    string `param:"id" json:"id" validate:"required"`
	Limit int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=100000"`
}

type OracleRequest struct {
	Kind         string      `json:"kind" default:"expert" validate:"oneof=expert uniform convex linear"`
	Loss         string      `json:"loss" default:"square" validate:"oneof=square absolute percentage pinball"`
	Tau          float64     `json:"tau" validate:"gte=0,lt=1"`
	Forecasts    [][]float64 `json:"forecasts" validate:"required,min=1,max=100000"`
	Observations []float64   `json:"observations" validate:"required,min=1,max=100000"`
}
