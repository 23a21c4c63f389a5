package usecase

import (
	"context"
	"fmt"

	drepo "ForecastMix/internal/domain/repository"
	"ForecastMix/internal/mixture"
	"ForecastMix/internal/services/experts"
	"ForecastMix/internal/services/windows"
	applogger "ForecastMix/pkg/logger"
)

// BackfillUseCase replays recorded forecast windows from the forecaster
// service through a live mixture.
type BackfillUseCase struct {
	client   *experts.Client
	mixtures *MixtureService
	metrics  drepo.Metrics
	l        *applogger.Logger
}

func NewBackfillUseCase(client *experts.Client, mixtures *MixtureService, metrics drepo.Metrics, l *applogger.Logger) *BackfillUseCase {
	return &BackfillUseCase{client: client, mixtures: mixtures, metrics: metrics, l: l}
}

// BackfillResult reports what a replay consumed.
type BackfillResult struct {
	Steps        int              `json:"steps"`
	Dropped      int              `json:"dropped"`
	Disagreement float64          `json:"disagreement"`
	Summary      *mixture.Summary `json:"summary"`
}

// Backfill fetches the window [from, to] for a mixture and runs it.
func (uc *BackfillUseCase) Backfill(ctx context.Context, id string, from, to int64, limit int) (*BackfillResult, error) {
	if uc.client == nil {
		return nil, fmt.Errorf("experts service not configured")
	}
	if limit <= 0 {
		limit = 10000
	}

	win, err := uc.client.FetchWindow(ctx, id, from, to, limit)
	if err != nil {
		uc.metrics.RecordError("backfill_fetch")
		return nil, err
	}

	rows, obs, dropped := windows.Clean(win.Forecasts, win.Observations)
	if len(rows) == 0 {
		return nil, fmt.Errorf("window empty after cleaning")
	}
	if dropped > 0 && uc.l != nil {
		uc.l.Warn("backfill dropped malformed rows",
			applogger.String("mixture", id),
			applogger.Int("dropped", dropped),
		)
	}

	sum, err := uc.mixtures.Run(ctx, id, rows, obs)
	if err != nil {
		return nil, err
	}
	return &BackfillResult{
		Steps:        len(rows),
		Dropped:      dropped,
		Disagreement: windows.Disagreement(rows),
		Summary:      sum,
	}, nil
}
