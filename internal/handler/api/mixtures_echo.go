package api

import (
	"errors"

	models "ForecastMix/internal/domain/models"
	"ForecastMix/internal/mixture"
	"ForecastMix/internal/usecase"
	xhttp "ForecastMix/pkg/http"
	xlogger "ForecastMix/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MixturesEchoHandler serves the mixture lifecycle endpoints.
type MixturesEchoHandler struct {
	logger   *xlogger.Logger
	mixtures *usecase.MixtureService
}

func NewMixturesEchoHandler(logger *xlogger.Logger, mixtures *usecase.MixtureService) *MixturesEchoHandler {
	return &MixturesEchoHandler{logger: logger, mixtures: mixtures}
}

func (h *MixturesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/mixtures", h.Create)
	g.GET("/mixtures", h.List)
	g.POST("/mixtures/:id/steps", h.Step)
	g.POST("/mixtures/:id/run", h.Run)
	g.POST("/mixtures/:id/predict", h.Predict)
	g.GET("/mixtures/:id/summary", h.Summary)
	g.GET("/mixtures/:id/weights", h.Weights)
	g.GET("/mixtures/:id/history", h.History)
	g.DELETE("/mixtures/:id", h.Delete)
}

func (h *MixturesEchoHandler) Create(c echo.Context) error {
	req := &models.CreateMixtureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.WarmForecasts) != len(req.WarmObservations) {
		return xhttp.BadRequestResponse(c, "warm window lengths differ")
	}

	info, err := h.mixtures.Create(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrMixtureExists) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		if h.isConfigError(err) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("create mixture error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, info)
}

func (h *MixturesEchoHandler) List(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.mixtures.List())
}

func (h *MixturesEchoHandler) Step(c echo.Context) error {
	req := &models.StepRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.mixtures.Step(c.Request().Context(), &models.ForecastEvent{
		MixtureID:   req.ID,
		Timestamp:   req.Timestamp,
		Forecasts:   req.Forecasts,
		Observation: req.Observation,
	})
	if err != nil {
		return h.stepError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MixturesEchoHandler) Run(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Forecasts) != len(req.Observations) {
		return xhttp.BadRequestResponse(c, "window lengths differ")
	}

	sum, err := h.mixtures.Run(c.Request().Context(), req.ID, req.Forecasts, req.Observations)
	if err != nil {
		return h.stepError(c, err)
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *MixturesEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pred, err := h.mixtures.Predict(c.Request().Context(), req.ID, req.Forecasts)
	if err != nil {
		return h.stepError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]float64{"prediction": pred})
}

func (h *MixturesEchoHandler) Summary(c echo.Context) error {
	req := &models.MixtureIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sum, err := h.mixtures.Summary(c.Request().Context(), req.ID)
	if err != nil {
		return h.stepError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, sum)
}

func (h *MixturesEchoHandler) Weights(c echo.Context) error {
	req := &models.WeightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	hist, err := h.mixtures.Weights(c.Request().Context(), req.ID, req.Limit)
	if err != nil {
		return h.stepError(c, err)
	}
	return xhttp.ListResponse(c, hist, int64(len(hist)))
}

func (h *MixturesEchoHandler) History(c echo.Context) error {
	req := &models.WeightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.mixtures.History(c.Request().Context(), req.ID, req.Limit)
	if err != nil {
		h.logger.Error("history query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MixturesEchoHandler) Delete(c echo.Context) error {
	req := &models.MixtureIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.mixtures.Delete(c.Request().Context(), req.ID); err != nil {
		if errors.Is(err, usecase.ErrMixtureNotFound) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

// stepError maps engine errors to HTTP statuses.
func (h *MixturesEchoHandler) stepError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrMixtureNotFound):
		return xhttp.NotFoundResponse(c, err.Error())
	case h.isConfigError(err):
		return xhttp.BadRequestResponse(c, err.Error())
	}
	h.logger.Error("mixture usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *MixturesEchoHandler) isConfigError(err error) bool {
	return errors.Is(err, mixture.ErrUnknownModel) ||
		errors.Is(err, mixture.ErrUnknownLoss) ||
		errors.Is(err, mixture.ErrInvalidHyperparameter) ||
		errors.Is(err, mixture.ErrInvalidCalibrationGrid) ||
		errors.Is(err, mixture.ErrDimensionMismatch) ||
		errors.Is(err, mixture.ErrNonFiniteValue) ||
		errors.Is(err, mixture.ErrDivisionByZero) ||
		errors.Is(err, mixture.ErrNotInitialized)
}
