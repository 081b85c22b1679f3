package service

import (
	"context"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/notify"
	"github.com/dinartha/gadai-backend/internal/util"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// penaltyProrationDays is the divisor that prorates the monthly penalty rate
// to a daily charge.
const penaltyProrationDays = 30

// penaltyIncrement computes the penalty for days of arrears on the unpaid
// principal: ceil(principal × monthlyRate% × days / 30). Only principal
// accrues penalty; interest and fees do not.
func penaltyIncrement(outstandingPrincipal int64, monthlyRate decimal.Decimal, days int) int64 {
	if outstandingPrincipal <= 0 || days <= 0 {
		return 0
	}
	raw := decimal.NewFromInt(outstandingPrincipal).
		Mul(monthlyRate.Div(oneHundred)).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(penaltyProrationDays))
	return ceilMinorUnit(raw)
}

// AccrualConfig holds configuration for the overdue accrual processor
type AccrualConfig struct {
	// EscalationGraceDays is how many days a period must be overdue before
	// the loan itself escalates to OVERDUE.
	EscalationGraceDays int
}

// DefaultAccrualConfig returns the production defaults
func DefaultAccrualConfig() AccrualConfig {
	return AccrualConfig{EscalationGraceDays: 3}
}

// AccrualRunResult summarizes one accrual run
type AccrualRunResult struct {
	RunDate            time.Time `json:"runDate"`
	LoansProcessed     int       `json:"loansProcessed"`
	ItemsMarkedOverdue int       `json:"itemsMarkedOverdue"`
	PenaltyAccrued     int64     `json:"penaltyAccrued"`
	LoansEscalated     int       `json:"loansEscalated"`
	LoansFailed        int       `json:"loansFailed"`
}

// AccrualService is the daily overdue/penalty processor. RunOnce is safe to
// re-invoke after a partial failure: penalty accrual is idempotent via each
// item's lastPenaltyAppliedAt, and unprocessed loans are picked up next run.
type AccrualService struct {
	store     domain.LedgerStore
	publisher notify.EventPublisher
	logger    zerolog.Logger
	config    AccrualConfig
}

// NewAccrualService creates a new AccrualService
func NewAccrualService(store domain.LedgerStore, logger zerolog.Logger, config AccrualConfig) *AccrualService {
	if config.EscalationGraceDays <= 0 {
		config.EscalationGraceDays = DefaultAccrualConfig().EscalationGraceDays
	}
	return &AccrualService{
		store:  store,
		logger: logger.With().Str("component", "accrual_processor").Logger(),
		config: config,
	}
}

// SetEventPublisher sets the publisher for post-commit escalation events
func (s *AccrualService) SetEventPublisher(publisher notify.EventPublisher) {
	s.publisher = publisher
}

// RunOnce executes a single accrual pass as of the given date. The advisory
// run lock guarantees at most one live instance; a second caller gets
// domain.ErrAccrualRunning. Each loan commits in its own sub-transaction, so
// a mid-batch failure never leaves schedule and loan state diverged.
func (s *AccrualService) RunOnce(ctx context.Context, asOf time.Time) (*AccrualRunResult, error) {
	runDate := util.DateOnly(asOf)
	result := &AccrualRunResult{RunDate: runDate}

	err := s.store.WithRunLock(ctx, func(ctx context.Context) error {
		loanIDs, err := s.store.OverdueCandidateLoanIDs(ctx, runDate)
		if err != nil {
			return err
		}

		s.logger.Info().
			Time("run_date", runDate).
			Int("candidates", len(loanIDs)).
			Msg("Starting accrual run")

		for _, loanID := range loanIDs {
			events, err := s.processLoan(ctx, loanID, runDate, result)
			if err != nil {
				// Leave this loan for the next run; accrual is idempotent.
				result.LoansFailed++
				s.logger.Error().
					Err(err).
					Int64("loan_id", loanID).
					Msg("Accrual failed for loan, continuing")
				continue
			}
			result.LoansProcessed++

			// Post-commit hooks are best effort and never roll back the run.
			if s.publisher != nil {
				for _, event := range events {
					s.publisher.Publish(event)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Time("run_date", runDate).
		Int("loans_processed", result.LoansProcessed).
		Int("items_marked_overdue", result.ItemsMarkedOverdue).
		Int64("penalty_accrued", result.PenaltyAccrued).
		Int("loans_escalated", result.LoansEscalated).
		Int("loans_failed", result.LoansFailed).
		Msg("Accrual run finished")

	return result, nil
}

// processLoan handles all overdue items of one loan inside its row lock.
func (s *AccrualService) processLoan(ctx context.Context, loanID int64, runDate time.Time, result *AccrualRunResult) ([]notify.Event, error) {
	var events []notify.Event

	err := s.store.WithLoanLock(ctx, loanID, func(ctx context.Context, tx domain.LedgerTx) error {
		loan := tx.Loan()
		if !loan.Open() {
			// Raced with an approval/closure since candidate selection.
			return nil
		}

		items, err := tx.OpenItems(ctx)
		if err != nil {
			return err
		}

		var touched []*domain.RepaymentScheduleItem
		var earliest *domain.RepaymentScheduleItem

		for _, it := range items {
			if !it.DueDate.Before(runDate) {
				continue
			}
			if it.Settled() {
				// Stale row: fully paid but never flipped. Skip.
				continue
			}

			changed := false
			if it.Status == domain.PeriodPending {
				it.Status = domain.PeriodOverdue
				changed = true
				result.ItemsMarkedOverdue++
				if err := tx.InsertAudit(ctx, &domain.AccrualAudit{
					RunDate:      runDate,
					LoanID:       loanID,
					PeriodNumber: it.PeriodNumber,
					Action:       domain.AccrualMarkedOverdue,
				}); err != nil {
					return err
				}
			}

			// Days since the later of the due date and the last accrual, so
			// already-penalized days are never charged twice.
			accrualStart := it.DueDate
			if it.LastPenaltyAt != nil && it.LastPenaltyAt.After(accrualStart) {
				accrualStart = *it.LastPenaltyAt
			}
			days := util.DaysBetween(accrualStart, runDate)

			if inc := penaltyIncrement(it.OutstandingPrincipal(), loan.PenaltyRateMonthly, days); inc > 0 {
				it.PenaltyAmount += inc
				it.RecomputeTotal()
				appliedAt := runDate
				it.LastPenaltyAt = &appliedAt
				changed = true
				result.PenaltyAccrued += inc
				if err := tx.InsertAudit(ctx, &domain.AccrualAudit{
					RunDate:      runDate,
					LoanID:       loanID,
					PeriodNumber: it.PeriodNumber,
					Action:       domain.AccrualPenalty,
					Amount:       inc,
				}); err != nil {
					return err
				}
			}

			if changed {
				touched = append(touched, it)
			}
			if it.Status == domain.PeriodOverdue {
				if earliest == nil || it.DueDate.Before(earliest.DueDate) {
					earliest = it
				}
			}
		}

		if len(touched) > 0 {
			if err := tx.SaveItems(ctx, touched); err != nil {
				return err
			}
		}

		// New penalty changes the loan's remaining amount; recompute by
		// summation over every open item.
		var outstanding int64
		for _, it := range items {
			outstanding += it.Outstanding()
		}
		loanChanged := loan.RemainingAmount != outstanding
		loan.RemainingAmount = outstanding

		// Escalation keys off the earliest overdue period of the whole loan,
		// not just items touched this run, so stale long-overdue loans with
		// no new arrears still escalate.
		if earliest != nil && loan.Status == domain.LoanActive {
			daysOverdue := util.DaysBetween(earliest.DueDate, runDate)
			if daysOverdue >= s.config.EscalationGraceDays {
				loan.Status = domain.LoanOverdue
				loanChanged = true
				result.LoansEscalated++
				if err := tx.InsertAudit(ctx, &domain.AccrualAudit{
					RunDate:      runDate,
					LoanID:       loanID,
					PeriodNumber: earliest.PeriodNumber,
					Action:       domain.AccrualEscalated,
				}); err != nil {
					return err
				}
				events = append(events, notify.LoanEscalated(notify.LoanOverduePayload{
					LoanID:        loanID,
					PeriodNumber:  earliest.PeriodNumber,
					DaysOverdue:   daysOverdue,
					PenaltyAmount: earliest.PenaltyAmount,
				}))
			}
		}

		if len(touched) > 0 || loanChanged {
			return tx.UpdateLoan(ctx, loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
