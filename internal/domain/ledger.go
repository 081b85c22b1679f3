package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerTx is the narrow set of ledger mutations available while a loan's
// row lock is held. Every implementation must apply all calls atomically:
// either the whole callback commits or none of it does.
type LedgerTx interface {
	// Loan returns the locked loan.
	Loan() *Loan
	// OpenItems returns the loan's non-PAID schedule items ordered by due date.
	OpenItems(ctx context.Context) ([]*RepaymentScheduleItem, error)
	// AllItems returns every schedule item of the loan ordered by period.
	AllItems(ctx context.Context) ([]*RepaymentScheduleItem, error)
	// SaveItems persists mutated schedule items.
	SaveItems(ctx context.Context, items []*RepaymentScheduleItem) error
	// CreatePaymentWithAllocations persists a payment and its waterfall rows.
	CreatePaymentWithAllocations(ctx context.Context, p *Payment, allocs []*PaymentAllocation) error
	// UpdateLoan persists the loan's aggregates and status.
	UpdateLoan(ctx context.Context, loan *Loan) error
	// InsertAudit records one accrual mutation.
	InsertAudit(ctx context.Context, audit *AccrualAudit) error
}

// LedgerStore serializes all mutations of one loan. Concurrent callbacks for
// the same loan never observe the same outstanding snapshot.
type LedgerStore interface {
	// WithLoanLock runs fn inside a transaction holding an exclusive lock on
	// the loan row. Returns ErrLoanNotFound if the loan does not exist.
	WithLoanLock(ctx context.Context, loanID int64, fn func(ctx context.Context, tx LedgerTx) error) error

	// WithRunLock runs fn under the accrual advisory lock, or returns
	// ErrAccrualRunning when another instance holds it.
	WithRunLock(ctx context.Context, fn func(ctx context.Context) error) error

	// OverdueCandidateLoanIDs returns ids of loans in ACTIVE/OVERDUE status
	// that have at least one PENDING/OVERDUE item due strictly before asOf,
	// ordered by id for deterministic runs.
	OverdueCandidateLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error)
}

// LoanRepository covers reads and creation outside the locked path.
type LoanRepository interface {
	// CreateWithSchedule persists a new loan and its schedule atomically.
	CreateWithSchedule(ctx context.Context, loan *Loan, items []*RepaymentScheduleItem) error
	// ReplaceSchedule atomically rewrites a pending loan's terms and schedule.
	ReplaceSchedule(ctx context.Context, loan *Loan, items []*RepaymentScheduleItem) error
	GetByID(ctx context.Context, id int64) (*Loan, error)
}

// ScheduleRepository covers unlocked schedule reads.
type ScheduleRepository interface {
	ListByLoan(ctx context.Context, loanID int64) ([]*RepaymentScheduleItem, error)
}

// PaymentRepository covers unlocked payment reads.
type PaymentRepository interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]*PaymentAllocation, error)
}
