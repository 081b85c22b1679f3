package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/service"
	"github.com/dinartha/gadai-backend/internal/testutil"
)

// seedPaymentFixture creates an ACTIVE single-period loan owing 625,000.
func seedPaymentFixture() (*PaymentHandler, *testutil.MockLedgerStore, *domain.Loan) {
	store := testutil.NewMockLedgerStore()
	loan := store.AddLoan(&domain.Loan{
		CustomerID:          1,
		LoanAmount:          500_000,
		RepaymentMethod:     domain.MethodEqualInstallment,
		DurationMonths:      1,
		InterestRateMonthly: decimal.NewFromInt(5),
		PenaltyRateMonthly:  decimal.NewFromInt(3),
		Status:              domain.LoanActive,
		RemainingAmount:     625_000,
		FirstDueDate:        time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}, []*domain.RepaymentScheduleItem{
		{
			PeriodNumber:     1,
			DueDate:          time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			BeginningBalance: 500_000,
			PrincipalAmount:  500_000,
			InterestAmount:   25_000,
			FeeAmount:        100_000,
			TotalAmount:      625_000,
			Status:           domain.PeriodPending,
		},
	})
	paymentService := service.NewPaymentService(store, store, store, store, zerolog.Nop())
	return NewPaymentHandler(paymentService), store, loan
}

func postPayment(e *echo.Echo, handler *PaymentHandler, loanID, body, headerKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/"+loanID+"/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if headerKey != "" {
		req.Header.Set("Idempotency-Key", headerKey)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(loanID)
	if err := handler.CreatePayment(c); err != nil {
		panic(err)
	}
	return rec
}

func TestCreatePayment_Success(t *testing.T) {
	e := echo.New()
	handler, store, loan := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 625000, "paymentMethod": "CASH"}`, "key-1")

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var receipt service.PaymentReceipt
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("Failed to unmarshal receipt: %v", err)
	}

	if receipt.RemainingAmount != 0 {
		t.Errorf("Expected remaining 0, got %d", receipt.RemainingAmount)
	}
	if receipt.LoanStatus != domain.LoanClosed {
		t.Errorf("Expected loan CLOSED, got %s", receipt.LoanStatus)
	}
	if len(receipt.Allocations) != 3 {
		t.Errorf("Expected 3 allocations, got %d", len(receipt.Allocations))
	}
	if loan.Status != domain.LoanClosed {
		t.Errorf("Expected stored loan CLOSED, got %s", loan.Status)
	}
	if len(store.Payments) != 1 {
		t.Errorf("Expected 1 payment row, got %d", len(store.Payments))
	}
}

func TestCreatePayment_IdempotencyKeyFromHeader(t *testing.T) {
	e := echo.New()
	handler, store, _ := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 100000}`, "header-key")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}

	for _, p := range store.Payments {
		if p.IdempotencyKey != "header-key" {
			t.Errorf("Expected idempotency key from header, got %s", p.IdempotencyKey)
		}
	}
}

func TestCreatePayment_DuplicateReturns409(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 100000}`, "dup-key")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first payment: expected 201, got %d", rec.Code)
	}

	rec = postPayment(e, handler, "1", `{"amount": 100000}`, "dup-key")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestCreatePayment_MissingKeyReturns400(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 100000}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestCreatePayment_OverpaymentReturns422(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 9000000}`, "big-key")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", rec.Code)
	}
}

func TestCreatePayment_ClosedLoanReturns409(t *testing.T) {
	e := echo.New()
	handler, _, loan := seedPaymentFixture()
	loan.Status = domain.LoanClosed

	rec := postPayment(e, handler, "1", `{"amount": 1000}`, "closed-key")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestCreatePayment_RejectedLoanReturns409(t *testing.T) {
	e := echo.New()
	handler, store, loan := seedPaymentFixture()
	loan.Status = domain.LoanRejected

	rec := postPayment(e, handler, "1", `{"amount": 625000}`, "rejected-key")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
	if loan.Status != domain.LoanRejected {
		t.Errorf("Expected loan to stay REJECTED, got %s", loan.Status)
	}
	if len(store.Payments) != 0 {
		t.Errorf("Expected no payment rows, got %d", len(store.Payments))
	}
}

func TestCreatePayment_UnknownTypeReturns400(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	rec := postPayment(e, handler, "1", `{"amount": 1000, "paymentType": "REFUND"}`, "type-key")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestGetOutstanding(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/loans/1/outstanding", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := handler.GetOutstanding(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var breakdown service.OutstandingBreakdown
	if err := json.Unmarshal(rec.Body.Bytes(), &breakdown); err != nil {
		t.Fatalf("Failed to unmarshal breakdown: %v", err)
	}
	if breakdown.TotalOutstanding != 625_000 {
		t.Errorf("Expected total outstanding 625000, got %d", breakdown.TotalOutstanding)
	}
	if len(breakdown.Periods) != 1 {
		t.Errorf("Expected 1 open period, got %d", len(breakdown.Periods))
	}
}

func TestGetPayment_NotFound(t *testing.T) {
	e := echo.New()
	handler, _, _ := seedPaymentFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("key")
	c.SetParamValues("missing")

	if err := handler.GetPayment(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
