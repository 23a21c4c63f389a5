package repository

import (
	"context"

	"ForecastMix/internal/domain/models"
)

// ForecastStream is a live source of forecast events (websocket feed).
type ForecastStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.ForecastEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher pushes forecast events and step results to the message bus.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *models.ForecastEvent) error
	PublishResult(ctx context.Context, res *models.StepResult) error
	Close() error
}

// HistoryStore persists the append-only per-step loss records.
type HistoryStore interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, row *models.StepRow) error
	AppendBatch(ctx context.Context, rows []*models.StepRow) error
	Query(ctx context.Context, mixtureID string, limit int) ([]*models.StepRow, error)
	Health(ctx context.Context) error
	Close() error
}

// StateStore holds mixture checkpoints for resume-on-demand.
type StateStore interface {
	Save(ctx context.Context, mixtureID string, snapshot []byte) error
	Load(ctx context.Context, mixtureID string) ([]byte, error)
	Delete(ctx context.Context, mixtureID string) error
	Close() error
}

// Metrics is the instrumentation sink for the online loop and the oracle.
type Metrics interface {
	RecordStep(mixtureID, model string, loss float64)
	RecordPrediction(mixtureID string, value float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordMessageSent(backend, topic string)
}
