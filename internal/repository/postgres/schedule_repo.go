package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinartha/gadai-backend/internal/domain"
)

const selectItemSQL = `
	SELECT id, loan_id, period_number, due_date, beginning_balance,
	       principal_amount, interest_amount, fee_amount, penalty_amount,
	       total_amount, status,
	       paid_principal, paid_interest, paid_fee, paid_penalty,
	       last_penalty_applied_at, created_at, updated_at
	FROM repayment_schedule_items`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ScheduleRepository implements domain.ScheduleRepository using PostgreSQL
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// ListByLoan returns a loan's full schedule ordered by period
func (r *ScheduleRepository) ListByLoan(ctx context.Context, loanID int64) ([]*domain.RepaymentScheduleItem, error) {
	query := selectItemSQL + `
		WHERE loan_id = $1
		ORDER BY period_number
	`
	return queryItems(ctx, r.pool, query, loanID)
}

// queryItems runs a schedule item query and scans all rows.
func queryItems(ctx context.Context, q querier, query string, args ...any) ([]*domain.RepaymentScheduleItem, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedule items: %w", err)
	}
	defer rows.Close()

	var items []*domain.RepaymentScheduleItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// scanItem maps one repayment_schedule_items row onto the domain type.
func scanItem(row pgx.Row) (*domain.RepaymentScheduleItem, error) {
	var it domain.RepaymentScheduleItem
	var dueDate, lastPenalty pgtype.Date

	err := row.Scan(
		&it.ID, &it.LoanID, &it.PeriodNumber, &dueDate, &it.BeginningBalance,
		&it.PrincipalAmount, &it.InterestAmount, &it.FeeAmount, &it.PenaltyAmount,
		&it.TotalAmount, &it.Status,
		&it.PaidPrincipal, &it.PaidInterest, &it.PaidFee, &it.PaidPenalty,
		&lastPenalty, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.DueDate = dueDate.Time
	if lastPenalty.Valid {
		t := lastPenalty.Time
		it.LastPenaltyAt = &t
	}
	return &it, nil
}
