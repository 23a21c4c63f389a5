package models

import "time"

// ForecastEvent is one step of input for a mixture: the per-expert forecast
// row and, once known, the realized observation. Events arrive over Kafka or
// the websocket feed and are keyed by mixture so per-mixture order holds.
type ForecastEvent struct {
	MixtureID   string    `json:"mixture_id"`
	Timestamp   int64     `json:"t"` // unix seconds
	Forecasts   []float64 `json:"forecasts"`
	Observation float64   `json:"observation"`
}

// StepRow is the persisted per-step history record.
type StepRow struct {
	MixtureID    string
	Step         int
	Timestamp    time.Time
	Prediction   float64
	Observation  float64
	Loss         float64
	ExpertLosses []float64
	Weights      []float64
	Flagged      bool
}

// MixtureInfo describes a live mixture instance.
type MixtureInfo struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Loss      string    `json:"loss"`
	Experts   int       `json:"experts"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// StepResult is what one consumed step reports back to callers and to the
// results topic.
type StepResult struct {
	MixtureID  string    `json:"mixture_id"`
	Step       int       `json:"step"`
	Prediction float64   `json:"prediction"`
	Loss       float64   `json:"loss"`
	Weights    []float64 `json:"weights"`
	Flagged    bool      `json:"flagged,omitempty"`
}
