package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleItemNotFound = errors.New("schedule item not found")
	ErrScheduleReconcile    = errors.New("schedule amounts do not reconcile")
)

// ScheduleStatus is the lifecycle state of one repayment period.
// It only moves PENDING→OVERDUE→PAID; penalty may re-accrue while OVERDUE.
type ScheduleStatus string

const (
	PeriodPending ScheduleStatus = "PENDING"
	PeriodOverdue ScheduleStatus = "OVERDUE"
	PeriodPaid    ScheduleStatus = "PAID"
)

// RepaymentScheduleItem is one period of a loan's amortization schedule.
// Monetary fields are integer minor units.
type RepaymentScheduleItem struct {
	ID               int64          `json:"id"`
	LoanID           int64          `json:"loanId"`
	PeriodNumber     int            `json:"periodNumber"`
	DueDate          time.Time      `json:"dueDate"`
	BeginningBalance int64          `json:"beginningBalance"`
	PrincipalAmount  int64          `json:"principalAmount"`
	InterestAmount   int64          `json:"interestAmount"`
	FeeAmount        int64          `json:"feeAmount"`
	PenaltyAmount    int64          `json:"penaltyAmount"`
	TotalAmount      int64          `json:"totalAmount"`
	Status           ScheduleStatus `json:"status"`
	PaidPrincipal    int64          `json:"paidPrincipal"`
	PaidInterest     int64          `json:"paidInterest"`
	PaidFee          int64          `json:"paidFee"`
	PaidPenalty      int64          `json:"paidPenalty"`
	LastPenaltyAt    *time.Time     `json:"lastPenaltyAppliedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// OutstandingPrincipal returns the unpaid principal of this period.
func (it *RepaymentScheduleItem) OutstandingPrincipal() int64 {
	return it.PrincipalAmount - it.PaidPrincipal
}

// OutstandingInterest returns the unpaid interest of this period.
func (it *RepaymentScheduleItem) OutstandingInterest() int64 {
	return it.InterestAmount - it.PaidInterest
}

// OutstandingFee returns the unpaid service fee of this period.
func (it *RepaymentScheduleItem) OutstandingFee() int64 {
	return it.FeeAmount - it.PaidFee
}

// OutstandingPenalty returns the unpaid penalty of this period.
func (it *RepaymentScheduleItem) OutstandingPenalty() int64 {
	return it.PenaltyAmount - it.PaidPenalty
}

// Outstanding returns the total unpaid amount across all components.
func (it *RepaymentScheduleItem) Outstanding() int64 {
	return it.OutstandingPrincipal() + it.OutstandingInterest() +
		it.OutstandingFee() + it.OutstandingPenalty()
}

// Settled reports whether every component of this period is fully paid.
func (it *RepaymentScheduleItem) Settled() bool {
	return it.Outstanding() == 0
}

// RecomputeTotal refreshes TotalAmount after a component amount changed.
func (it *RepaymentScheduleItem) RecomputeTotal() {
	it.TotalAmount = it.PrincipalAmount + it.InterestAmount + it.FeeAmount + it.PenaltyAmount
}

// ScheduleTotals are the lifetime aggregates of a generated schedule.
type ScheduleTotals struct {
	TotalInterest  int64 `json:"totalInterest"`
	TotalFees      int64 `json:"totalFees"`
	TotalRepayment int64 `json:"totalRepayment"`
}
