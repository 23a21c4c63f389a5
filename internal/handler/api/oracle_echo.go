package api

import (
	"errors"

	models "ForecastMix/internal/domain/models"
	"ForecastMix/internal/mixture"
	"ForecastMix/internal/oracle"
	"ForecastMix/internal/usecase"
	xhttp "ForecastMix/pkg/http"
	xlogger "ForecastMix/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OracleEchoHandler exposes the hindsight benchmark solvers.
type OracleEchoHandler struct {
	logger *xlogger.Logger
	oracle *usecase.OracleUseCase
}

func NewOracleEchoHandler(logger *xlogger.Logger, uc *usecase.OracleUseCase) *OracleEchoHandler {
	return &OracleEchoHandler{logger: logger, oracle: uc}
}

func (h *OracleEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/oracle", h.Compute)
	g.POST("/oracle/compare", h.Compare)
}

func (h *OracleEchoHandler) Compute(c echo.Context) error {
	req := &models.OracleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Forecasts) != len(req.Observations) {
		return xhttp.BadRequestResponse(c, "window lengths differ")
	}

	res, err := h.oracle.Compute(c.Request().Context(), req)
	if err != nil {
		return h.oracleError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OracleEchoHandler) Compare(c echo.Context) error {
	req := &models.OracleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Forecasts) != len(req.Observations) {
		return xhttp.BadRequestResponse(c, "window lengths differ")
	}

	res, err := h.oracle.Compare(c.Request().Context(), req)
	if err != nil {
		return h.oracleError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OracleEchoHandler) oracleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, oracle.ErrUnknownKind),
		errors.Is(err, mixture.ErrUnknownLoss),
		errors.Is(err, mixture.ErrInvalidHyperparameter),
		errors.Is(err, mixture.ErrDimensionMismatch):
		return xhttp.BadRequestResponse(c, err.Error())
	case errors.Is(err, oracle.ErrInfeasible):
		return xhttp.BadRequestResponse(c, err.Error())
	}
	h.logger.Error("oracle usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
