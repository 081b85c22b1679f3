package domain

import (
	"errors"
	"time"
)

var (
	// ErrAccrualRunning means another accrual instance holds the run lock.
	ErrAccrualRunning = errors.New("accrual run already in progress")
)

// AccrualAction identifies what an accrual audit row records.
type AccrualAction string

const (
	AccrualMarkedOverdue AccrualAction = "MARKED_OVERDUE"
	AccrualPenalty       AccrualAction = "PENALTY_ACCRUED"
	AccrualEscalated     AccrualAction = "LOAN_ESCALATED"
)

// AccrualAudit records a single mutation made by an accrual run so every
// ledger change is independently explainable.
type AccrualAudit struct {
	ID           int64         `json:"id"`
	RunDate      time.Time     `json:"runDate"`
	LoanID       int64         `json:"loanId"`
	PeriodNumber int           `json:"periodNumber"`
	Action       AccrualAction `json:"action"`
	Amount       int64         `json:"amount"`
	CreatedAt    time.Time     `json:"createdAt"`
}
