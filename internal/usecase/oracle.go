package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ForecastMix/internal/domain/models"
	drepo "ForecastMix/internal/domain/repository"
	"ForecastMix/internal/mixture"
	"ForecastMix/internal/oracle"
)

// OracleUseCase evaluates hindsight benchmarks over a closed window.
type OracleUseCase struct {
	metrics drepo.Metrics
	timeout time.Duration
}

func NewOracleUseCase(metrics drepo.Metrics, timeout time.Duration) *OracleUseCase {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OracleUseCase{metrics: metrics, timeout: timeout}
}

// Compute solves one benchmark kind for the given window.
func (uc *OracleUseCase) Compute(ctx context.Context, req *models.OracleRequest) (*oracle.Result, error) {
	loss, err := mixture.NewLossFunction(mixture.LossKind(req.Loss), req.Tau, mixture.ZeroObsAbsolute)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	start := time.Now()
	res, err := oracle.Compute(ctx, req.Forecasts, req.Observations, loss, oracle.Kind(req.Kind))
	if err != nil {
		uc.metrics.RecordError("oracle")
		return nil, err
	}
	uc.metrics.RecordLatency("oracle_"+req.Kind, time.Since(start).Seconds())
	return res, nil
}

// OracleComparison holds every benchmark solved over the same window. Kinds
// that failed carry their error message instead.
type OracleComparison struct {
	Results map[string]*oracle.Result `json:"results"`
	Errors  map[string]string         `json:"errors,omitempty"`
}

// Compare solves all benchmark kinds concurrently over one window.
func (uc *OracleUseCase) Compare(ctx context.Context, req *models.OracleRequest) (*OracleComparison, error) {
	if len(req.Forecasts) == 0 {
		return nil, fmt.Errorf("forecast window required")
	}
	loss, err := mixture.NewLossFunction(mixture.LossKind(req.Loss), req.Tau, mixture.ZeroObsAbsolute)
	if err != nil {
		return nil, err
	}

	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	kinds := []oracle.Kind{oracle.BestExpert, oracle.Uniform, oracle.Convex, oracle.Linear}

	type item struct {
		kind oracle.Kind
		res  *oracle.Result
		err  error
	}
	ch := make(chan item, len(kinds))
	var wg sync.WaitGroup

	for _, k := range kinds {
		wg.Add(1)
		go func(k oracle.Kind) {
			defer wg.Done()
			res, err := oracle.Compute(ctx, req.Forecasts, req.Observations, loss, k)
			ch <- item{k, res, err}
		}(k)
	}

	go func() { wg.Wait(); close(ch) }()

	out := &OracleComparison{
		Results: make(map[string]*oracle.Result, len(kinds)),
		Errors:  map[string]string{},
	}
	for it := range ch {
		if it.err != nil {
			uc.metrics.RecordError("oracle")
			out.Errors[string(it.kind)] = it.err.Error()
			continue
		}
		out.Results[string(it.kind)] = it.res
	}
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out, nil
}
