package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/service"
	"github.com/dinartha/gadai-backend/internal/testutil"
)

func newLoanHandler() (*LoanHandler, *testutil.MockLedgerStore) {
	store := testutil.NewMockLedgerStore()
	loanService := service.NewLoanService(store, store, store, zerolog.Nop())
	return NewLoanHandler(loanService), store
}

func postJSON(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateLoan_Success(t *testing.T) {
	e := echo.New()
	handler, store := newLoanHandler()

	reqBody := `{
		"customerId": 42,
		"loanAmount": 10000000,
		"repaymentMethod": "EQUAL_INSTALLMENT",
		"durationMonths": 6,
		"interestRateMonthly": "2.5",
		"penaltyRateMonthly": "3",
		"feeRate": "1.5",
		"firstDueDate": "2026-02-10"
	}`
	c, rec := postJSON(e, "/api/v1/loans", reqBody)

	if err := handler.CreateLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response domain.Loan
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Status != domain.LoanPending {
		t.Errorf("Expected status PENDING, got %s", response.Status)
	}
	if response.RemainingAmount != response.TotalRepayment {
		t.Errorf("Expected remaining %d to equal total repayment %d", response.RemainingAmount, response.TotalRepayment)
	}
	if len(store.Items[response.ID]) != 6 {
		t.Errorf("Expected 6 schedule items, got %d", len(store.Items[response.ID]))
	}
}

func TestCreateLoan_InvalidRate(t *testing.T) {
	e := echo.New()
	handler, _ := newLoanHandler()

	reqBody := `{
		"customerId": 42,
		"loanAmount": 10000000,
		"repaymentMethod": "EQUAL_INSTALLMENT",
		"durationMonths": 6,
		"interestRateMonthly": "two-point-five",
		"penaltyRateMonthly": "3",
		"firstDueDate": "2026-02-10"
	}`
	c, rec := postJSON(e, "/api/v1/loans", reqBody)

	if err := handler.CreateLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal problem details: %v", err)
	}
	if problem.Type != ErrorTypeValidation {
		t.Errorf("Expected validation problem type, got %s", problem.Type)
	}
}

func TestUpdateLoan_ConflictAfterApproval(t *testing.T) {
	e := echo.New()
	handler, store := newLoanHandler()
	loanService := service.NewLoanService(store, store, store, zerolog.Nop())

	reqBody := `{
		"customerId": 42,
		"loanAmount": 10000000,
		"repaymentMethod": "EQUAL_INSTALLMENT",
		"durationMonths": 6,
		"interestRateMonthly": "2.5",
		"penaltyRateMonthly": "3",
		"firstDueDate": "2026-02-10"
	}`
	c, rec := postJSON(e, "/api/v1/loans", reqBody)
	if err := handler.CreateLoan(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	var created domain.Loan
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created loan: %v", err)
	}

	if _, err := loanService.Approve(c.Request().Context(), created.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/loans/1", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := handler.UpdateLoan(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestApproveLoan_NotFound(t *testing.T) {
	e := echo.New()
	handler, _ := newLoanHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/99/approve", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99")

	if err := handler.ApproveLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestPreviewSchedule_DoesNotPersist(t *testing.T) {
	e := echo.New()
	handler, store := newLoanHandler()

	reqBody := `{
		"loanAmount": 10000000,
		"repaymentMethod": "INTEREST_ONLY",
		"durationMonths": 4,
		"interestRateMonthly": "0.33",
		"penaltyRateMonthly": "3",
		"firstDueDate": "2026-02-10"
	}`
	c, rec := postJSON(e, "/api/v1/schedule/preview", reqBody)

	if err := handler.PreviewSchedule(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response.Schedule) != 4 {
		t.Errorf("Expected 4 periods, got %d", len(response.Schedule))
	}
	if response.TotalRepayment != 10000000+response.TotalInterest+response.TotalFees {
		t.Errorf("Preview totals do not reconcile: %+v", response)
	}
	if len(store.Loans) != 0 {
		t.Errorf("Preview must not persist loans, found %d", len(store.Loans))
	}
}
