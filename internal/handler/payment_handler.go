package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/service"
)

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePaymentRequest represents the record payment request body.
// The idempotency key may come from the Idempotency-Key header instead.
type CreatePaymentRequest struct {
	Amount         int64   `json:"amount"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
	PaymentMethod  string  `json:"paymentMethod"`
	PaymentType    string  `json:"paymentType,omitempty"`
	Note           *string `json:"note,omitempty"`
	RecorderID     *int64  `json:"recorderId,omitempty"`
}

// CreatePayment handles POST /api/v1/loans/:id/payments
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	idempotencyKey := req.IdempotencyKey
	if headerKey := c.Request().Header.Get("Idempotency-Key"); headerKey != "" {
		idempotencyKey = headerKey
	}

	receipt, err := h.paymentService.CreatePayment(c.Request().Context(), service.CreatePaymentInput{
		LoanID:         loanID,
		Amount:         req.Amount,
		IdempotencyKey: idempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		PaymentType:    domain.PaymentType(req.PaymentType),
		Note:           req.Note,
		RecorderID:     req.RecorderID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return NewNotFoundError(c, "Loan not found")
		case errors.Is(err, domain.ErrPaymentAmountInvalid),
			errors.Is(err, domain.ErrPaymentTypeInvalid),
			errors.Is(err, domain.ErrIdempotencyKeyRequired):
			return NewValidationError(c, err.Error(), nil)
		case errors.Is(err, domain.ErrDuplicatePayment):
			return NewConflictError(c, "A payment with this idempotency key was already recorded")
		case errors.Is(err, domain.ErrLoanClosed):
			return NewConflictError(c, "Loan is closed and no longer accepts payments")
		case errors.Is(err, domain.ErrLoanNotOpen):
			return NewConflictError(c, "Loan is not open and cannot accept payments")
		case errors.Is(err, domain.ErrPayoffInsufficient),
			errors.Is(err, domain.ErrOverpayment):
			return NewUnprocessableError(c, err.Error())
		default:
			log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to record payment")
			return NewInternalError(c, "Failed to record payment")
		}
	}

	return c.JSON(http.StatusCreated, receipt)
}

// GetOutstanding handles GET /api/v1/loans/:id/outstanding
func (h *PaymentHandler) GetOutstanding(c echo.Context) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	breakdown, err := h.paymentService.ListOutstanding(c.Request().Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to get outstanding breakdown")
		return NewInternalError(c, "Failed to get outstanding breakdown")
	}

	return c.JSON(http.StatusOK, breakdown)
}

// GetPayment handles GET /api/v1/payments/:key
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return NewValidationError(c, "Idempotency key is required", nil)
	}

	payment, allocs, err := h.paymentService.GetPayment(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return NewNotFoundError(c, "Payment not found")
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to get payment")
		return NewInternalError(c, "Failed to get payment")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"payment":     payment,
		"allocations": allocs,
	})
}
