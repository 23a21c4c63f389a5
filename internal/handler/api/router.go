package api

import (
	"time"

	icache "ForecastMix/internal/service/cache"
	"ForecastMix/internal/usecase"
	"ForecastMix/pkg/http/middleware"
	xlogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/queue"

	"github.com/labstack/echo/v4"
)

// Router bundles every API route group behind one registration point.
type Router struct {
	l          *xlogger.Logger
	mixtures   *MixturesEchoHandler
	oracle     *OracleEchoHandler
	oracleJobs *OracleJobsEchoHandler
	backfill   *BackfillEchoHandler
	report     *ReportHandler
}

func NewRouter(
	l *xlogger.Logger,
	mixtures *usecase.MixtureService,
	oracleUC *usecase.OracleUseCase,
	backfillUC *usecase.BackfillUseCase,
	bytesCache icache.BytesCache,
	q *queue.RedisQueue,
) *Router {
	r := &Router{
		l:        l,
		mixtures: NewMixturesEchoHandler(l, mixtures),
		oracle:   NewOracleEchoHandler(l, oracleUC),
	}
	if backfillUC != nil {
		r.backfill = NewBackfillEchoHandler(l, backfillUC)
	}
	if q != nil {
		r.oracleJobs = NewOracleJobsEchoHandler(l, q, bytesCache)
	}
	rep := NewReportHandler(mixtures)
	rep.SetCache(bytesCache)
	rep.SetLogger(l)
	r.report = rep
	return r
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	r.mixtures.RegisterRoutes(e)
	r.oracle.RegisterRoutes(e)
	if r.oracleJobs != nil {
		r.oracleJobs.RegisterRoutes(e)
	}
	if r.backfill != nil {
		r.backfill.RegisterRoutes(e)
	}
	// Read-only cached projections stay on plain net/http handlers, with
	// their own request metrics and slow-request logging.
	instrument := middleware.Metrics(r.l, 500*time.Millisecond)
	e.GET("/report/summary", echo.WrapHandler(instrument(r.report.Summary())))
	e.GET("/report/weights", echo.WrapHandler(instrument(r.report.Weights())))
}
