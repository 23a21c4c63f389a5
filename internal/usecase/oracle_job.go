package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ForecastMix/internal/domain/models"
	icache "ForecastMix/internal/service/cache"
	applogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/queue"
)

// OracleJobType is the queue message type for async benchmark runs.
const OracleJobType = "oracle.compare"

// oracleJobTTL bounds how long finished job results stay fetchable.
const oracleJobTTL = time.Hour

// OracleJobPayload is the enqueued request plus its assigned job id.
type OracleJobPayload struct {
	JobID   string               `json:"job_id"`
	Request models.OracleRequest `json:"request"`
}

// OracleJobKey is the cache key finished job results are stored under.
func OracleJobKey(jobID string) string { return "oracle:job:" + jobID }

// OracleCompareJob runs queued benchmark comparisons and parks the results
// in the bytes cache for the poll endpoint.
type OracleCompareJob struct {
	uc    *OracleUseCase
	cache icache.BytesCache
	l     *applogger.Logger
}

func NewOracleCompareJob(uc *OracleUseCase, cache icache.BytesCache, l *applogger.Logger) *OracleCompareJob {
	return &OracleCompareJob{uc: uc, cache: cache, l: l}
}

func (j *OracleCompareJob) Name() string { return "oracle_compare" }

func (j *OracleCompareJob) Type() string { return OracleJobType }

func (j *OracleCompareJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[OracleJobPayload](payload)
	if err != nil {
		return fmt.Errorf("oracle job payload: %w", err)
	}
	if p.JobID == "" {
		return fmt.Errorf("oracle job id empty")
	}

	res, err := j.uc.Compare(ctx, &p.Request)
	if err != nil {
		return fmt.Errorf("oracle job %s: %w", p.JobID, err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode oracle job %s: %w", p.JobID, err)
	}
	if err := j.cache.SetBytes(OracleJobKey(p.JobID), b, oracleJobTTL); err != nil {
		return fmt.Errorf("store oracle job %s: %w", p.JobID, err)
	}
	if j.l != nil {
		j.l.Info("oracle job finished", applogger.String("job", p.JobID))
	}
	return nil
}

var _ queue.Job = (*OracleCompareJob)(nil)
