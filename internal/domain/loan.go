package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrLoanAmountInvalid   = errors.New("loan amount must be positive")
	ErrLoanMonthsInvalid   = errors.New("duration months must be at least 1")
	ErrLoanMethodInvalid   = errors.New("unsupported repayment method")
	ErrLoanCustomerInvalid = errors.New("customer ID is required")
	ErrLoanNotPending      = errors.New("loan is no longer pending")
	ErrLoanNotOpen         = errors.New("loan is not open for payments")
	ErrLoanClosed          = errors.New("loan is closed")
	ErrInvalidTransition   = errors.New("invalid loan status transition")
)

// RepaymentMethod determines how principal is spread across periods.
type RepaymentMethod string

const (
	MethodEqualInstallment RepaymentMethod = "EQUAL_INSTALLMENT"
	MethodInterestOnly     RepaymentMethod = "INTEREST_ONLY"
)

// Valid reports whether the method is one the schedule generator supports.
func (m RepaymentMethod) Valid() bool {
	return m == MethodEqualInstallment || m == MethodInterestOnly
}

// LoanStatus is the explicit lifecycle state of a loan.
//
// OVERDUE is treated as a derived sub-state of ACTIVE: it is entered only by
// the accrual processor and left only by full settlement, so it does not
// appear in the explicit transition table below.
type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanActive   LoanStatus = "ACTIVE"
	LoanRejected LoanStatus = "REJECTED"
	LoanClosed   LoanStatus = "CLOSED"
	LoanOverdue  LoanStatus = "OVERDUE"
)

// allowedTransitions is the explicit status machine. OVERDUE escalation and
// settlement-driven closure happen outside this table.
var allowedTransitions = map[LoanStatus][]LoanStatus{
	LoanPending: {LoanActive, LoanRejected},
	LoanActive:  {LoanClosed},
}

// CanTransition reports whether the explicit status machine allows from→to.
func CanTransition(from, to LoanStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Loan is the ledger aggregate. All monetary fields are integer minor units;
// rates are monthly percentages.
type Loan struct {
	ID                  int64           `json:"id"`
	CustomerID          int64           `json:"customerId"`
	LoanAmount          int64           `json:"loanAmount"`
	RepaymentMethod     RepaymentMethod `json:"repaymentMethod"`
	DurationMonths      int             `json:"durationMonths"`
	InterestRateMonthly decimal.Decimal `json:"interestRateMonthly"`
	PenaltyRateMonthly  decimal.Decimal `json:"penaltyRateMonthly"`
	FeeRate             decimal.Decimal `json:"feeRate"`
	TotalInterest       int64           `json:"totalInterest"`
	TotalFees           int64           `json:"totalFees"`
	TotalRepayment      int64           `json:"totalRepayment"`
	RemainingAmount     int64           `json:"remainingAmount"`
	TotalPaidAmount     int64           `json:"totalPaidAmount"`
	Status              LoanStatus      `json:"status"`
	FirstDueDate        time.Time       `json:"firstDueDate"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (l *Loan) Validate() error {
	if l.CustomerID <= 0 {
		return ErrLoanCustomerInvalid
	}
	if l.LoanAmount <= 0 {
		return ErrLoanAmountInvalid
	}
	if l.DurationMonths < 1 {
		return ErrLoanMonthsInvalid
	}
	if !l.RepaymentMethod.Valid() {
		return ErrLoanMethodInvalid
	}
	return nil
}

// Transition validates a requested status change before any mutation.
func (l *Loan) Transition(to LoanStatus) error {
	if !CanTransition(l.Status, to) {
		return ErrInvalidTransition
	}
	l.Status = to
	return nil
}

// Open reports whether the loan can still receive payments.
func (l *Loan) Open() bool {
	return l.Status == LoanActive || l.Status == LoanOverdue
}
