package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/notify"
	"github.com/google/uuid"
)

// MockLedgerStore is an in-memory implementation of domain.LedgerStore,
// domain.LoanRepository, domain.ScheduleRepository and domain.PaymentRepository
// backed by maps, so service tests can exercise full ledger flows without a
// database. It is not transactional: mutations made before an injected error
// are not rolled back, so failure tests should inject errors up front via
// FailLoanIDs.
type MockLedgerStore struct {
	Loans       map[int64]*domain.Loan
	Items       map[int64][]*domain.RepaymentScheduleItem
	Payments    map[uuid.UUID]*domain.Payment
	ByKey       map[string]*domain.Payment
	Allocations map[uuid.UUID][]*domain.PaymentAllocation
	Audits      []*domain.AccrualAudit

	// FailLoanIDs makes WithLoanLock fail for the given loans.
	FailLoanIDs map[int64]error

	// RunLockHeld simulates another accrual instance holding the lock.
	RunLockHeld bool

	nextLoanID int64
	nextItemID int64
}

// NewMockLedgerStore creates a new MockLedgerStore
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		Loans:       make(map[int64]*domain.Loan),
		Items:       make(map[int64][]*domain.RepaymentScheduleItem),
		Payments:    make(map[uuid.UUID]*domain.Payment),
		ByKey:       make(map[string]*domain.Payment),
		Allocations: make(map[uuid.UUID][]*domain.PaymentAllocation),
		FailLoanIDs: make(map[int64]error),
	}
}

// AddLoan seeds a loan and its schedule, assigning ids.
func (m *MockLedgerStore) AddLoan(loan *domain.Loan, items []*domain.RepaymentScheduleItem) *domain.Loan {
	if loan.ID == 0 {
		m.nextLoanID++
		loan.ID = m.nextLoanID
	}
	m.Loans[loan.ID] = loan
	for _, it := range items {
		m.nextItemID++
		it.ID = m.nextItemID
		it.LoanID = loan.ID
	}
	m.Items[loan.ID] = items
	return loan
}

// WithLoanLock runs fn against the in-memory loan
func (m *MockLedgerStore) WithLoanLock(ctx context.Context, loanID int64, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	if err, ok := m.FailLoanIDs[loanID]; ok {
		return err
	}
	loan, ok := m.Loans[loanID]
	if !ok {
		return domain.ErrLoanNotFound
	}
	return fn(ctx, &mockLedgerTx{store: m, loan: loan})
}

// WithRunLock runs fn unless RunLockHeld is set
func (m *MockLedgerStore) WithRunLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.RunLockHeld {
		return domain.ErrAccrualRunning
	}
	m.RunLockHeld = true
	defer func() { m.RunLockHeld = false }()
	return fn(ctx)
}

// OverdueCandidateLoanIDs returns open loans with at least one unpaid item
// due strictly before asOf, ordered by id.
func (m *MockLedgerStore) OverdueCandidateLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	for id, loan := range m.Loans {
		if !loan.Open() {
			continue
		}
		for _, it := range m.Items[id] {
			if it.Status != domain.PeriodPaid && it.DueDate.Before(asOf) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CreateWithSchedule persists a new loan and its schedule
func (m *MockLedgerStore) CreateWithSchedule(ctx context.Context, loan *domain.Loan, items []*domain.RepaymentScheduleItem) error {
	m.AddLoan(loan, items)
	return nil
}

// ReplaceSchedule rewrites a loan's terms and schedule
func (m *MockLedgerStore) ReplaceSchedule(ctx context.Context, loan *domain.Loan, items []*domain.RepaymentScheduleItem) error {
	if _, ok := m.Loans[loan.ID]; !ok {
		return domain.ErrLoanNotFound
	}
	m.Loans[loan.ID] = loan
	for _, it := range items {
		m.nextItemID++
		it.ID = m.nextItemID
		it.LoanID = loan.ID
	}
	m.Items[loan.ID] = items
	return nil
}

// GetByID retrieves a loan by ID
func (m *MockLedgerStore) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	if loan, ok := m.Loans[id]; ok {
		return loan, nil
	}
	return nil, domain.ErrLoanNotFound
}

// ListByLoan returns a loan's schedule ordered by period
func (m *MockLedgerStore) ListByLoan(ctx context.Context, loanID int64) ([]*domain.RepaymentScheduleItem, error) {
	items := append([]*domain.RepaymentScheduleItem(nil), m.Items[loanID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].PeriodNumber < items[j].PeriodNumber })
	return items, nil
}

// GetByIdempotencyKey retrieves a payment by idempotency key
func (m *MockLedgerStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	if p, ok := m.ByKey[key]; ok {
		return p, nil
	}
	return nil, domain.ErrPaymentNotFound
}

// ListAllocations retrieves a payment's waterfall rows
func (m *MockLedgerStore) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]*domain.PaymentAllocation, error) {
	return m.Allocations[paymentID], nil
}

// mockLedgerTx applies mutations directly to the store's maps.
type mockLedgerTx struct {
	store *MockLedgerStore
	loan  *domain.Loan
}

func (t *mockLedgerTx) Loan() *domain.Loan { return t.loan }

func (t *mockLedgerTx) OpenItems(ctx context.Context) ([]*domain.RepaymentScheduleItem, error) {
	var open []*domain.RepaymentScheduleItem
	for _, it := range t.store.Items[t.loan.ID] {
		if it.Status != domain.PeriodPaid {
			open = append(open, it)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].DueDate.Equal(open[j].DueDate) {
			return open[i].DueDate.Before(open[j].DueDate)
		}
		return open[i].PeriodNumber < open[j].PeriodNumber
	})
	return open, nil
}

func (t *mockLedgerTx) AllItems(ctx context.Context) ([]*domain.RepaymentScheduleItem, error) {
	return t.store.ListByLoan(ctx, t.loan.ID)
}

func (t *mockLedgerTx) SaveItems(ctx context.Context, items []*domain.RepaymentScheduleItem) error {
	// Items are shared pointers; nothing to copy back.
	return nil
}

func (t *mockLedgerTx) CreatePaymentWithAllocations(ctx context.Context, p *domain.Payment, allocs []*domain.PaymentAllocation) error {
	if _, ok := t.store.ByKey[p.IdempotencyKey]; ok {
		return domain.ErrDuplicatePayment
	}
	t.store.Payments[p.ID] = p
	t.store.ByKey[p.IdempotencyKey] = p
	t.store.Allocations[p.ID] = allocs
	return nil
}

func (t *mockLedgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	if _, ok := t.store.Loans[loan.ID]; !ok {
		return domain.ErrLoanNotFound
	}
	t.store.Loans[loan.ID] = loan
	return nil
}

func (t *mockLedgerTx) InsertAudit(ctx context.Context, audit *domain.AccrualAudit) error {
	t.store.Audits = append(t.store.Audits, audit)
	return nil
}

// MockPublisher records published events
type MockPublisher struct {
	Events []notify.Event
}

// Publish appends the event
func (m *MockPublisher) Publish(event notify.Event) {
	m.Events = append(m.Events, event)
}

// EventsOfType returns the recorded events matching the given type
func (m *MockPublisher) EventsOfType(eventType string) []notify.Event {
	var out []notify.Event
	for _, e := range m.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// CancelledReminder records one reminder cancellation call.
type CancelledReminder struct {
	LoanID       int64
	PeriodNumber int
}

// MockReminderScheduler records reminder cancellations
type MockReminderScheduler struct {
	Cancelled []CancelledReminder
}

// CancelForPeriod records the cancellation
func (m *MockReminderScheduler) CancelForPeriod(loanID int64, periodNumber int) {
	m.Cancelled = append(m.Cancelled, CancelledReminder{LoanID: loanID, PeriodNumber: periodNumber})
}
