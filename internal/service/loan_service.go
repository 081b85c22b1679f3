package service

import (
	"context"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LoanService orchestrates the loan lifecycle around the ledger core.
type LoanService struct {
	store        domain.LedgerStore
	loanRepo     domain.LoanRepository
	scheduleRepo domain.ScheduleRepository
	logger       zerolog.Logger
}

// NewLoanService creates a new LoanService
func NewLoanService(store domain.LedgerStore, loanRepo domain.LoanRepository, scheduleRepo domain.ScheduleRepository, logger zerolog.Logger) *LoanService {
	return &LoanService{
		store:        store,
		loanRepo:     loanRepo,
		scheduleRepo: scheduleRepo,
		logger:       logger.With().Str("component", "loan_service").Logger(),
	}
}

// CreateLoanInput contains the validated terms from loan origination.
type CreateLoanInput struct {
	CustomerID          int64
	LoanAmount          int64
	RepaymentMethod     domain.RepaymentMethod
	DurationMonths      int
	InterestRateMonthly decimal.Decimal
	PenaltyRateMonthly  decimal.Decimal
	FeeRate             decimal.Decimal
	FirstDueDate        time.Time
}

// CreateLoan generates the repayment schedule and persists the loan with it
// atomically. The loan starts PENDING.
func (s *LoanService) CreateLoan(ctx context.Context, input CreateLoanInput) (*domain.Loan, error) {
	loan := &domain.Loan{
		CustomerID:          input.CustomerID,
		LoanAmount:          input.LoanAmount,
		RepaymentMethod:     input.RepaymentMethod,
		DurationMonths:      input.DurationMonths,
		InterestRateMonthly: input.InterestRateMonthly,
		PenaltyRateMonthly:  input.PenaltyRateMonthly,
		FeeRate:             input.FeeRate,
		Status:              domain.LoanPending,
		FirstDueDate:        input.FirstDueDate,
	}
	if err := loan.Validate(); err != nil {
		return nil, err
	}

	items, totals, err := GenerateSchedule(ScheduleInput{
		LoanAmount:          input.LoanAmount,
		DurationMonths:      input.DurationMonths,
		InterestRateMonthly: input.InterestRateMonthly,
		FeeRate:             input.FeeRate,
		Method:              input.RepaymentMethod,
		FirstDueDate:        input.FirstDueDate,
	})
	if err != nil {
		return nil, err
	}

	loan.TotalInterest = totals.TotalInterest
	loan.TotalFees = totals.TotalFees
	loan.TotalRepayment = totals.TotalRepayment
	loan.RemainingAmount = totals.TotalRepayment

	if err := s.loanRepo.CreateWithSchedule(ctx, loan, items); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("loan_id", loan.ID).
		Int64("amount", loan.LoanAmount).
		Int("months", loan.DurationMonths).
		Str("method", string(loan.RepaymentMethod)).
		Msg("Loan created with schedule")

	return loan, nil
}

// UpdateLoan regenerates the schedule for a loan that is still PENDING.
// Once a loan is approved its schedule is immutable.
func (s *LoanService) UpdateLoan(ctx context.Context, loanID int64, input CreateLoanInput) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanPending {
		return nil, domain.ErrLoanNotPending
	}

	loan.CustomerID = input.CustomerID
	loan.LoanAmount = input.LoanAmount
	loan.RepaymentMethod = input.RepaymentMethod
	loan.DurationMonths = input.DurationMonths
	loan.InterestRateMonthly = input.InterestRateMonthly
	loan.PenaltyRateMonthly = input.PenaltyRateMonthly
	loan.FeeRate = input.FeeRate
	loan.FirstDueDate = input.FirstDueDate
	if err := loan.Validate(); err != nil {
		return nil, err
	}

	items, totals, err := GenerateSchedule(ScheduleInput{
		LoanAmount:          input.LoanAmount,
		DurationMonths:      input.DurationMonths,
		InterestRateMonthly: input.InterestRateMonthly,
		FeeRate:             input.FeeRate,
		Method:              input.RepaymentMethod,
		FirstDueDate:        input.FirstDueDate,
	})
	if err != nil {
		return nil, err
	}

	loan.TotalInterest = totals.TotalInterest
	loan.TotalFees = totals.TotalFees
	loan.TotalRepayment = totals.TotalRepayment
	loan.RemainingAmount = totals.TotalRepayment

	if err := s.loanRepo.ReplaceSchedule(ctx, loan, items); err != nil {
		return nil, err
	}
	return loan, nil
}

// Approve moves a pending loan to ACTIVE. The schedule is left untouched.
func (s *LoanService) Approve(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.changeStatus(ctx, loanID, domain.LoanActive)
}

// Reject moves a pending loan to REJECTED.
func (s *LoanService) Reject(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.changeStatus(ctx, loanID, domain.LoanRejected)
}

// changeStatus applies a gated transition under the loan lock so it cannot
// interleave with a payment or an accrual run.
func (s *LoanService) changeStatus(ctx context.Context, loanID int64, to domain.LoanStatus) (*domain.Loan, error) {
	var updated *domain.Loan
	err := s.store.WithLoanLock(ctx, loanID, func(ctx context.Context, tx domain.LedgerTx) error {
		loan := tx.Loan()
		if err := loan.Transition(to); err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("loan_id", loanID).
		Str("status", string(to)).
		Msg("Loan status changed")

	return updated, nil
}

// GetLoan returns a loan by id.
func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.loanRepo.GetByID(ctx, loanID)
}

// GetSchedule returns the full repayment schedule of a loan.
func (s *LoanService) GetSchedule(ctx context.Context, loanID int64) ([]*domain.RepaymentScheduleItem, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.scheduleRepo.ListByLoan(ctx, loanID)
}

// PreviewSchedule computes a schedule without persisting anything. It runs
// the exact code path used for binding schedules, so a quote cannot drift
// from the eventual contract.
func (s *LoanService) PreviewSchedule(input CreateLoanInput) ([]*domain.RepaymentScheduleItem, domain.ScheduleTotals, error) {
	return GenerateSchedule(ScheduleInput{
		LoanAmount:          input.LoanAmount,
		DurationMonths:      input.DurationMonths,
		InterestRateMonthly: input.InterestRateMonthly,
		FeeRate:             input.FeeRate,
		Method:              input.RepaymentMethod,
		FirstDueDate:        input.FirstDueDate,
	})
}
