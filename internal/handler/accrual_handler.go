package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/service"
)

// AccrualHandler exposes the daily overdue processor to schedulers
type AccrualHandler struct {
	accrualService *service.AccrualService
}

// NewAccrualHandler creates a new AccrualHandler
func NewAccrualHandler(accrualService *service.AccrualService) *AccrualHandler {
	return &AccrualHandler{accrualService: accrualService}
}

// RunAccrual handles POST /internal/accrual/run. The optional asOf query
// parameter (YYYY-MM-DD) defaults to today and exists for backfills.
func (h *AccrualHandler) RunAccrual(c echo.Context) error {
	asOf := time.Now().UTC()
	if raw := c.QueryParam("asOf"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return NewValidationError(c, "asOf must be a date in YYYY-MM-DD format", nil)
		}
		asOf = parsed
	}

	result, err := h.accrualService.RunOnce(c.Request().Context(), asOf)
	if err != nil {
		if errors.Is(err, domain.ErrAccrualRunning) {
			return NewConflictError(c, "An accrual run is already in progress")
		}
		log.Error().Err(err).Msg("Accrual run failed")
		return NewInternalError(c, "Accrual run failed")
	}

	return c.JSON(http.StatusOK, result)
}
