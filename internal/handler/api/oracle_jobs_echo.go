package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	models "ForecastMix/internal/domain/models"
	icache "ForecastMix/internal/service/cache"
	"ForecastMix/internal/usecase"
	xhttp "ForecastMix/pkg/http"
	xlogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/queue"

	"github.com/labstack/echo/v4"
)

// OracleJobsEchoHandler enqueues benchmark comparisons on the Redis queue and
// serves finished results, for windows too large to solve inside a request.
type OracleJobsEchoHandler struct {
	logger *xlogger.Logger
	q      queue.QueueService
	cache  icache.BytesCache
}

func NewOracleJobsEchoHandler(logger *xlogger.Logger, q queue.QueueService, cache icache.BytesCache) *OracleJobsEchoHandler {
	return &OracleJobsEchoHandler{logger: logger, q: q, cache: cache}
}

func (h *OracleJobsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/oracle/jobs", h.Enqueue)
	g.GET("/oracle/jobs/:id", h.Result)
}

func (h *OracleJobsEchoHandler) Enqueue(c echo.Context) error {
	req := &models.OracleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Forecasts) != len(req.Observations) {
		return xhttp.BadRequestResponse(c, "window lengths differ")
	}

	jobID := fmt.Sprintf("oj-%d", time.Now().UnixNano())
	payload := usecase.OracleJobPayload{JobID: jobID, Request: *req}
	if err := h.q.PublishMessage(c.Request().Context(), usecase.OracleJobType, payload); err != nil {
		h.logger.Error("oracle job enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (h *OracleJobsEchoHandler) Result(c echo.Context) error {
	req := &models.MixtureIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	b, ok, err := h.cache.GetBytes(usecase.OracleJobKey(req.ID))
	if err != nil {
		h.logger.Error("oracle job result error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if !ok {
		return xhttp.NotFoundResponse(c, "job pending or unknown")
	}
	var res usecase.OracleComparison
	if err := json.Unmarshal(b, &res); err != nil {
		h.logger.Error("oracle job decode error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, &res)
}
