package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinartha/gadai-backend/internal/domain"
)

// accrualLockKey is the advisory lock id serializing accrual runs across
// all API instances sharing one database.
const accrualLockKey = 815020250001

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// LedgerStore implements domain.LedgerStore using PostgreSQL row locks and
// advisory locks.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// WithLoanLock runs fn inside one transaction holding the loan's row lock.
// The SELECT ... FOR UPDATE serializes all mutators of the same loan, so fn
// always observes the latest committed schedule.
func (s *LedgerStore) WithLoanLock(ctx context.Context, loanID int64, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectLoanSQL+" WHERE id = $1 FOR UPDATE", loanID)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrLoanNotFound
		}
		return fmt.Errorf("lock loan %d: %w", loanID, err)
	}

	if err := fn(ctx, &ledgerTx{tx: tx, loan: loan}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithRunLock runs fn while holding the accrual advisory lock. The lock is
// session scoped, so it is taken on a dedicated connection that is held for
// the duration of fn and released explicitly.
func (s *LedgerStore) WithRunLock(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", accrualLockKey).Scan(&locked); err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return domain.ErrAccrualRunning
	}
	defer func() {
		// Best effort: the lock dies with the session anyway.
		var unlocked bool
		_ = conn.QueryRow(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", accrualLockKey).Scan(&unlocked)
	}()

	return fn(ctx)
}

// OverdueCandidateLoanIDs returns open loans with at least one unpaid item
// due strictly before asOf, ordered by id.
func (s *LedgerStore) OverdueCandidateLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	query := `
		SELECT DISTINCT l.id
		FROM loans l
		JOIN repayment_schedule_items i ON i.loan_id = l.id
		WHERE l.status IN ('ACTIVE', 'OVERDUE')
		  AND i.status != 'PAID'
		  AND i.due_date < $1
		ORDER BY l.id
	`
	rows, err := s.pool.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ledgerTx implements domain.LedgerTx on top of an open pgx transaction.
type ledgerTx struct {
	tx   pgx.Tx
	loan *domain.Loan
}

func (t *ledgerTx) Loan() *domain.Loan { return t.loan }

func (t *ledgerTx) OpenItems(ctx context.Context) ([]*domain.RepaymentScheduleItem, error) {
	query := selectItemSQL + `
		WHERE loan_id = $1 AND status != 'PAID'
		ORDER BY due_date, period_number
	`
	return queryItems(ctx, t.tx, query, t.loan.ID)
}

func (t *ledgerTx) AllItems(ctx context.Context) ([]*domain.RepaymentScheduleItem, error) {
	query := selectItemSQL + `
		WHERE loan_id = $1
		ORDER BY period_number
	`
	return queryItems(ctx, t.tx, query, t.loan.ID)
}

func (t *ledgerTx) SaveItems(ctx context.Context, items []*domain.RepaymentScheduleItem) error {
	query := `
		UPDATE repayment_schedule_items SET
			penalty_amount  = $2,
			total_amount    = $3,
			status          = $4,
			paid_principal  = $5,
			paid_interest   = $6,
			paid_fee        = $7,
			paid_penalty    = $8,
			last_penalty_applied_at = $9,
			updated_at      = now()
		WHERE id = $1
	`
	batch := &pgx.Batch{}
	for _, it := range items {
		lastPenalty := pgtype.Date{}
		if it.LastPenaltyAt != nil {
			lastPenalty = pgtype.Date{Time: *it.LastPenaltyAt, Valid: true}
		}
		batch.Queue(query,
			it.ID, it.PenaltyAmount, it.TotalAmount, it.Status,
			it.PaidPrincipal, it.PaidInterest, it.PaidFee, it.PaidPenalty,
			lastPenalty,
		)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save schedule item: %w", err)
		}
	}
	return results.Close()
}

func (t *ledgerTx) CreatePaymentWithAllocations(ctx context.Context, p *domain.Payment, allocs []*domain.PaymentAllocation) error {
	paymentQuery := `
		INSERT INTO payments (
			id, loan_id, amount, idempotency_key, payment_method,
			payment_type, reference_code, note, recorder_id, paid_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, paymentQuery,
		p.ID, p.LoanID, p.Amount, p.IdempotencyKey, p.PaymentMethod,
		p.PaymentType, p.ReferenceCode, p.Note, p.RecorderID, p.PaidAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	allocQuery := `
		INSERT INTO payment_allocations (payment_id, component, amount, period_number, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for _, a := range allocs {
		if err := t.tx.QueryRow(ctx, allocQuery,
			a.PaymentID, a.Component, a.Amount, a.PeriodNumber, a.Note,
		).Scan(&a.ID); err != nil {
			return fmt.Errorf("insert allocation %s: %w", a.Component, err)
		}
	}
	return nil
}

func (t *ledgerTx) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans SET
			remaining_amount  = $2,
			total_paid_amount = $3,
			status            = $4,
			updated_at        = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query, loan.ID, loan.RemainingAmount, loan.TotalPaidAmount, loan.Status)
	if err != nil {
		return fmt.Errorf("update loan %d: %w", loan.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func (t *ledgerTx) InsertAudit(ctx context.Context, audit *domain.AccrualAudit) error {
	query := `
		INSERT INTO accrual_audits (run_date, loan_id, period_number, action, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := t.tx.QueryRow(ctx, query,
		audit.RunDate, audit.LoanID, audit.PeriodNumber, audit.Action, audit.Amount,
	).Scan(&audit.ID, &audit.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert accrual audit: %w", err)
	}
	return nil
}
