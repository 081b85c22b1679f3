package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReminderScheduler is the outbound port to the reminder collaborator.
// Cancellation is best effort and must never block or fail a payment.
type ReminderScheduler interface {
	CancelForPeriod(loanID int64, periodNumber int)
}

// PaymentService applies incoming cash to a loan's open periods.
type PaymentService struct {
	store        domain.LedgerStore
	loanRepo     domain.LoanRepository
	scheduleRepo domain.ScheduleRepository
	paymentRepo  domain.PaymentRepository
	publisher    notify.EventPublisher
	reminders    ReminderScheduler
	logger       zerolog.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(store domain.LedgerStore, loanRepo domain.LoanRepository, scheduleRepo domain.ScheduleRepository, paymentRepo domain.PaymentRepository, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		store:        store,
		loanRepo:     loanRepo,
		scheduleRepo: scheduleRepo,
		paymentRepo:  paymentRepo,
		logger:       logger.With().Str("component", "payment_service").Logger(),
	}
}

// SetEventPublisher sets the publisher for post-commit payment events
func (s *PaymentService) SetEventPublisher(publisher notify.EventPublisher) {
	s.publisher = publisher
}

// SetReminderScheduler sets the reminder collaborator
func (s *PaymentService) SetReminderScheduler(reminders ReminderScheduler) {
	s.reminders = reminders
}

// CreatePaymentInput contains input for recording a payment
type CreatePaymentInput struct {
	LoanID         int64
	Amount         int64
	IdempotencyKey string
	PaymentMethod  string
	PaymentType    domain.PaymentType
	Note           *string
	RecorderID     *int64
}

// PaymentReceipt is returned to the caller after a payment is applied.
type PaymentReceipt struct {
	PaymentID       uuid.UUID                   `json:"paymentId"`
	ReferenceCode   string                      `json:"referenceCode"`
	LoanID          int64                       `json:"loanId"`
	Amount          int64                       `json:"amount"`
	Allocations     []*domain.PaymentAllocation `json:"allocations"`
	RemainingAmount int64                       `json:"remainingAmount"`
	TotalPaidAmount int64                       `json:"totalPaidAmount"`
	LoanStatus      domain.LoanStatus           `json:"loanStatus"`
	NextDueDate     *time.Time                  `json:"nextDueDate,omitempty"`
	NextDueAmount   *int64                      `json:"nextDueAmount,omitempty"`
}

// CreatePayment records a payment and allocates it across the loan's open
// periods under the loan's exclusive lock. Identical idempotency keys yield
// exactly one payment row; retries surface ErrDuplicatePayment without side
// effects.
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*PaymentReceipt, error) {
	// 1. Validate the request shape before touching the ledger.
	if input.Amount <= 0 {
		return nil, domain.ErrPaymentAmountInvalid
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}
	if input.PaymentType == "" {
		input.PaymentType = domain.PaymentPeriodic
	}
	if !input.PaymentType.Valid() {
		return nil, domain.ErrPaymentTypeInvalid
	}

	// 2. Fast duplicate check. The unique constraint inside the transaction
	// is the real guard; this avoids taking the loan lock for retries.
	if existing, err := s.paymentRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey); err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrDuplicatePayment
	}

	var receipt *PaymentReceipt
	var settledPeriods []int

	// 3. The whole read-modify-write runs under the loan's row lock.
	err := s.store.WithLoanLock(ctx, input.LoanID, func(ctx context.Context, tx domain.LedgerTx) error {
		loan := tx.Loan()
		if loan.Status == domain.LoanClosed {
			return domain.ErrLoanClosed
		}
		// PENDING and REJECTED loans have no ledger to pay into; a payment
		// against them would corrupt the schedule and the loan aggregates.
		if !loan.Open() {
			return domain.ErrLoanNotOpen
		}

		items, err := tx.OpenItems(ctx)
		if err != nil {
			return err
		}

		var totalOutstanding int64
		for _, it := range items {
			totalOutstanding += it.Outstanding()
		}

		if input.PaymentType == domain.PaymentPayoff && input.Amount < totalOutstanding {
			return domain.ErrPayoffInsufficient
		}
		if input.Amount > totalOutstanding {
			return domain.ErrOverpayment
		}

		// 4. Waterfall allocation mutates the items in place.
		allocs, remaining := allocatePayment(items, input.Amount)
		if remaining != 0 {
			// Unreachable given the overpayment check above; a non-zero
			// remainder here means the ledger failed to reconcile.
			return domain.ErrAllocationMismatch
		}

		var allocated int64
		for _, a := range allocs {
			allocated += a.Amount
		}
		if allocated != input.Amount {
			return domain.ErrAllocationMismatch
		}

		payment := &domain.Payment{
			ID:             uuid.New(),
			LoanID:         loan.ID,
			Amount:         input.Amount,
			IdempotencyKey: input.IdempotencyKey,
			PaymentMethod:  input.PaymentMethod,
			PaymentType:    input.PaymentType,
			ReferenceCode:  newReferenceCode(),
			Note:           input.Note,
			RecorderID:     input.RecorderID,
			PaidAt:         time.Now().UTC(),
		}
		for _, a := range allocs {
			a.PaymentID = payment.ID
		}

		if err := tx.CreatePaymentWithAllocations(ctx, payment, allocs); err != nil {
			return err
		}
		if err := tx.SaveItems(ctx, items); err != nil {
			return err
		}

		// 5. Recompute the loan aggregates by summation, never subtraction,
		// so partial and out-of-order payments stay correct.
		var outstanding int64
		var nextDue *domain.RepaymentScheduleItem
		for _, it := range items {
			outstanding += it.Outstanding()
			if it.Status != domain.PeriodPaid && (nextDue == nil || it.DueDate.Before(nextDue.DueDate)) {
				nextDue = it
			}
			if it.Status == domain.PeriodPaid && it.Settled() {
				settledPeriods = append(settledPeriods, it.PeriodNumber)
			}
		}

		loan.RemainingAmount = outstanding
		loan.TotalPaidAmount += input.Amount
		if loan.RemainingAmount == 0 {
			loan.Status = domain.LoanClosed
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		receipt = &PaymentReceipt{
			PaymentID:       payment.ID,
			ReferenceCode:   payment.ReferenceCode,
			LoanID:          loan.ID,
			Amount:          input.Amount,
			Allocations:     allocs,
			RemainingAmount: loan.RemainingAmount,
			TotalPaidAmount: loan.TotalPaidAmount,
			LoanStatus:      loan.Status,
		}
		if nextDue != nil {
			due := nextDue.DueDate
			amount := nextDue.Outstanding()
			receipt.NextDueDate = &due
			receipt.NextDueAmount = &amount
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAllocationMismatch) {
			// Never retried automatically: a retry risks double allocation.
			s.logger.Error().
				Int64("loan_id", input.LoanID).
				Str("idempotency_key", input.IdempotencyKey).
				Msg("Payment allocation failed to reconcile, transaction rolled back")
		}
		return nil, err
	}

	// 6. Best-effort side effects outside the transaction.
	s.afterPayment(receipt, settledPeriods)

	return receipt, nil
}

// afterPayment runs the non-transactional collaborator hooks.
func (s *PaymentService) afterPayment(receipt *PaymentReceipt, settledPeriods []int) {
	if s.reminders != nil {
		for _, period := range settledPeriods {
			s.reminders.CancelForPeriod(receipt.LoanID, period)
		}
	}

	if s.publisher == nil {
		return
	}
	lines := make([]notify.AllocationLine, len(receipt.Allocations))
	for i, a := range receipt.Allocations {
		lines[i] = notify.AllocationLine{
			Component:    string(a.Component),
			Amount:       a.Amount,
			PeriodNumber: a.PeriodNumber,
		}
	}
	s.publisher.Publish(notify.PaymentRecorded(notify.PaymentRecordedPayload{
		LoanID:      receipt.LoanID,
		PaymentID:   receipt.PaymentID.String(),
		Amount:      receipt.Amount,
		Allocations: lines,
	}))
	if receipt.LoanStatus == domain.LoanClosed {
		s.publisher.Publish(notify.LoanClosed(receipt.LoanID))
	}
}

// PeriodOutstanding is one period's unpaid breakdown.
type PeriodOutstanding struct {
	PeriodNumber int                   `json:"periodNumber"`
	DueDate      time.Time             `json:"dueDate"`
	Status       domain.ScheduleStatus `json:"status"`
	Principal    int64                 `json:"principal"`
	Interest     int64                 `json:"interest"`
	Fee          int64                 `json:"fee"`
	Penalty      int64                 `json:"penalty"`
	Total        int64                 `json:"total"`
}

// OutstandingBreakdown is the per-period outstanding view of a loan.
type OutstandingBreakdown struct {
	LoanID           int64               `json:"loanId"`
	Status           domain.LoanStatus   `json:"status"`
	RemainingAmount  int64               `json:"remainingAmount"`
	TotalOutstanding int64               `json:"totalOutstanding"`
	Periods          []PeriodOutstanding `json:"periods"`
	NextDueDate      *time.Time          `json:"nextDueDate,omitempty"`
}

// ListOutstanding returns the per-period outstanding breakdown for a loan.
func (s *PaymentService) ListOutstanding(ctx context.Context, loanID int64) (*OutstandingBreakdown, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	items, err := s.scheduleRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	breakdown := &OutstandingBreakdown{
		LoanID:          loan.ID,
		Status:          loan.Status,
		RemainingAmount: loan.RemainingAmount,
	}

	for _, it := range items {
		if it.Status == domain.PeriodPaid {
			continue
		}
		breakdown.Periods = append(breakdown.Periods, PeriodOutstanding{
			PeriodNumber: it.PeriodNumber,
			DueDate:      it.DueDate,
			Status:       it.Status,
			Principal:    it.OutstandingPrincipal(),
			Interest:     it.OutstandingInterest(),
			Fee:          it.OutstandingFee(),
			Penalty:      it.OutstandingPenalty(),
			Total:        it.Outstanding(),
		})
		breakdown.TotalOutstanding += it.Outstanding()
		if breakdown.NextDueDate == nil || it.DueDate.Before(*breakdown.NextDueDate) {
			due := it.DueDate
			breakdown.NextDueDate = &due
		}
	}

	return breakdown, nil
}

// GetPayment returns a payment and its allocations by idempotency key.
func (s *PaymentService) GetPayment(ctx context.Context, idempotencyKey string) (*domain.Payment, []*domain.PaymentAllocation, error) {
	payment, err := s.paymentRepo.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	allocs, err := s.paymentRepo.ListAllocations(ctx, payment.ID)
	if err != nil {
		return nil, nil, err
	}
	return payment, allocs, nil
}

// newReferenceCode builds a short human-readable receipt code.
func newReferenceCode() string {
	return "PAY-" + strings.ToUpper(uuid.New().String()[:8])
}
