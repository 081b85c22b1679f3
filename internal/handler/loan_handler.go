package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/service"
)

// LoanHandler handles loan-related HTTP requests
type LoanHandler struct {
	loanService *service.LoanService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// LoanRequest represents the create/update loan request body.
// Amounts are integer minor units; rates are monthly percentages as strings.
type LoanRequest struct {
	CustomerID          int64  `json:"customerId"`
	LoanAmount          int64  `json:"loanAmount"`
	RepaymentMethod     string `json:"repaymentMethod"`
	DurationMonths      int    `json:"durationMonths"`
	InterestRateMonthly string `json:"interestRateMonthly"`
	PenaltyRateMonthly  string `json:"penaltyRateMonthly"`
	FeeRate             string `json:"feeRate,omitempty"`
	FirstDueDate        string `json:"firstDueDate"`
}

// ScheduleItemResponse represents one repayment period in API responses
type ScheduleItemResponse struct {
	PeriodNumber     int    `json:"periodNumber"`
	DueDate          string `json:"dueDate"`
	BeginningBalance int64  `json:"beginningBalance"`
	PrincipalAmount  int64  `json:"principalAmount"`
	InterestAmount   int64  `json:"interestAmount"`
	FeeAmount        int64  `json:"feeAmount"`
	PenaltyAmount    int64  `json:"penaltyAmount"`
	TotalAmount      int64  `json:"totalAmount"`
	Status           string `json:"status"`
	Outstanding      int64  `json:"outstanding"`
}

// PreviewResponse represents a non-binding schedule quote
type PreviewResponse struct {
	TotalInterest  int64                  `json:"totalInterest"`
	TotalFees      int64                  `json:"totalFees"`
	TotalRepayment int64                  `json:"totalRepayment"`
	Schedule       []ScheduleItemResponse `json:"schedule"`
}

// parseLoanRequest converts the wire format into a service input.
func parseLoanRequest(req *LoanRequest) (service.CreateLoanInput, []ValidationError) {
	var fieldErrs []ValidationError

	interestRate, err := decimal.NewFromString(req.InterestRateMonthly)
	if err != nil {
		fieldErrs = append(fieldErrs, ValidationError{Field: "interestRateMonthly", Message: "Must be a valid decimal number"})
	}
	penaltyRate, err := decimal.NewFromString(req.PenaltyRateMonthly)
	if err != nil {
		fieldErrs = append(fieldErrs, ValidationError{Field: "penaltyRateMonthly", Message: "Must be a valid decimal number"})
	}
	feeRate := decimal.Zero
	if req.FeeRate != "" {
		if feeRate, err = decimal.NewFromString(req.FeeRate); err != nil {
			fieldErrs = append(fieldErrs, ValidationError{Field: "feeRate", Message: "Must be a valid decimal number"})
		}
	}
	firstDue, err := time.Parse("2006-01-02", req.FirstDueDate)
	if err != nil {
		fieldErrs = append(fieldErrs, ValidationError{Field: "firstDueDate", Message: "Must be a date in YYYY-MM-DD format"})
	}

	return service.CreateLoanInput{
		CustomerID:          req.CustomerID,
		LoanAmount:          req.LoanAmount,
		RepaymentMethod:     domain.RepaymentMethod(req.RepaymentMethod),
		DurationMonths:      req.DurationMonths,
		InterestRateMonthly: interestRate,
		PenaltyRateMonthly:  penaltyRate,
		FeeRate:             feeRate,
		FirstDueDate:        firstDue,
	}, fieldErrs
}

// CreateLoan handles POST /api/v1/loans
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req LoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input, fieldErrs := parseLoanRequest(&req)
	if len(fieldErrs) > 0 {
		return NewValidationError(c, "Invalid loan terms", fieldErrs)
	}

	loan, err := h.loanService.CreateLoan(c.Request().Context(), input)
	if err != nil {
		if isLoanValidationErr(err) {
			return NewValidationError(c, err.Error(), nil)
		}
		log.Error().Err(err).Msg("Failed to create loan")
		return NewInternalError(c, "Failed to create loan")
	}

	return c.JSON(http.StatusCreated, loan)
}

// UpdateLoan handles PUT /api/v1/loans/:id
func (h *LoanHandler) UpdateLoan(c echo.Context) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req LoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input, fieldErrs := parseLoanRequest(&req)
	if len(fieldErrs) > 0 {
		return NewValidationError(c, "Invalid loan terms", fieldErrs)
	}

	loan, err := h.loanService.UpdateLoan(c.Request().Context(), loanID, input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return NewNotFoundError(c, "Loan not found")
		case errors.Is(err, domain.ErrLoanNotPending):
			return NewConflictError(c, "Loan is no longer pending; its schedule is immutable")
		case isLoanValidationErr(err):
			return NewValidationError(c, err.Error(), nil)
		default:
			log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to update loan")
			return NewInternalError(c, "Failed to update loan")
		}
	}

	return c.JSON(http.StatusOK, loan)
}

// ApproveLoan handles POST /api/v1/loans/:id/approve
func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	return h.changeStatus(c, h.loanService.Approve)
}

// RejectLoan handles POST /api/v1/loans/:id/reject
func (h *LoanHandler) RejectLoan(c echo.Context) error {
	return h.changeStatus(c, h.loanService.Reject)
}

func (h *LoanHandler) changeStatus(c echo.Context, change func(ctx context.Context, loanID int64) (*domain.Loan, error)) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := change(c.Request().Context(), loanID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return NewNotFoundError(c, "Loan not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			return NewConflictError(c, "Loan status does not allow this transition")
		default:
			log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to change loan status")
			return NewInternalError(c, "Failed to change loan status")
		}
	}

	return c.JSON(http.StatusOK, loan)
}

// GetLoan handles GET /api/v1/loans/:id
func (h *LoanHandler) GetLoan(c echo.Context) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to get loan")
		return NewInternalError(c, "Failed to get loan")
	}

	return c.JSON(http.StatusOK, loan)
}

// GetSchedule handles GET /api/v1/loans/:id/schedule
func (h *LoanHandler) GetSchedule(c echo.Context) error {
	loanID, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	items, err := h.loanService.GetSchedule(c.Request().Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		log.Error().Err(err).Int64("loan_id", loanID).Msg("Failed to get schedule")
		return NewInternalError(c, "Failed to get schedule")
	}

	return c.JSON(http.StatusOK, toScheduleResponse(items))
}

// PreviewSchedule handles POST /api/v1/schedule/preview
func (h *LoanHandler) PreviewSchedule(c echo.Context) error {
	var req LoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.CustomerID == 0 {
		// Previews are anonymous quotes; any positive id satisfies validation.
		req.CustomerID = 1
	}

	input, fieldErrs := parseLoanRequest(&req)
	if len(fieldErrs) > 0 {
		return NewValidationError(c, "Invalid loan terms", fieldErrs)
	}

	items, totals, err := h.loanService.PreviewSchedule(input)
	if err != nil {
		if isLoanValidationErr(err) {
			return NewValidationError(c, err.Error(), nil)
		}
		log.Error().Err(err).Msg("Failed to preview schedule")
		return NewInternalError(c, "Failed to preview schedule")
	}

	return c.JSON(http.StatusOK, PreviewResponse{
		TotalInterest:  totals.TotalInterest,
		TotalFees:      totals.TotalFees,
		TotalRepayment: totals.TotalRepayment,
		Schedule:       toScheduleResponse(items),
	})
}

func toScheduleResponse(items []*domain.RepaymentScheduleItem) []ScheduleItemResponse {
	out := make([]ScheduleItemResponse, len(items))
	for i, it := range items {
		out[i] = ScheduleItemResponse{
			PeriodNumber:     it.PeriodNumber,
			DueDate:          it.DueDate.Format("2006-01-02"),
			BeginningBalance: it.BeginningBalance,
			PrincipalAmount:  it.PrincipalAmount,
			InterestAmount:   it.InterestAmount,
			FeeAmount:        it.FeeAmount,
			PenaltyAmount:    it.PenaltyAmount,
			TotalAmount:      it.TotalAmount,
			Status:           string(it.Status),
			Outstanding:      it.Outstanding(),
		}
	}
	return out
}

func parseLoanID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// isLoanValidationErr reports whether the error is a loan term validation
// failure rather than an infrastructure fault.
func isLoanValidationErr(err error) bool {
	return errors.Is(err, domain.ErrLoanAmountInvalid) ||
		errors.Is(err, domain.ErrLoanMonthsInvalid) ||
		errors.Is(err, domain.ErrLoanMethodInvalid) ||
		errors.Is(err, domain.ErrLoanCustomerInvalid) ||
		errors.Is(err, domain.ErrScheduleReconcile)
}
