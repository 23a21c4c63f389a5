package api

import (
	"errors"

	"ForecastMix/internal/usecase"
	xhttp "ForecastMix/pkg/http"
	xlogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/util"

	"github.com/labstack/echo/v4"
)

// BackfillRequest asks for a recorded window replay into a live mixture.
// From and To accept RFC3339 or unix seconds; empty means unbounded.
type BackfillRequest struct {
	ID    string `param:"id" json:"-" validate:"required"`
	From  string `json:"from"`
	To    string `json:"to"`
	Limit int    `json:"limit" default:"10000" validate:"gte=0,lte=100000"`
}

// BackfillEchoHandler replays recorded forecast windows into mixtures.
type BackfillEchoHandler struct {
	logger   *xlogger.Logger
	backfill *usecase.BackfillUseCase
}

func NewBackfillEchoHandler(logger *xlogger.Logger, backfill *usecase.BackfillUseCase) *BackfillEchoHandler {
	return &BackfillEchoHandler{logger: logger, backfill: backfill}
}

func (h *BackfillEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.Group("/api").POST("/mixtures/:id/backfill", h.Backfill)
}

func (h *BackfillEchoHandler) Backfill(c echo.Context) error {
	req := &BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var from, to int64
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, "from: expected RFC3339 or unix seconds")
		}
		from = t.Unix()
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, "to: expected RFC3339 or unix seconds")
		}
		to = t.Unix()
	}
	if to != 0 && from > to {
		return xhttp.BadRequestResponse(c, "from must be <= to")
	}

	res, err := h.backfill.Backfill(c.Request().Context(), req.ID, from, to, req.Limit)
	if err != nil {
		if errors.Is(err, usecase.ErrMixtureNotFound) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("backfill error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
