package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinartha/gadai-backend/internal/domain"
)

const selectLoanSQL = `
	SELECT id, customer_id, loan_amount, repayment_method, duration_months,
	       interest_rate_monthly, penalty_rate_monthly, fee_rate,
	       total_interest, total_fees, total_repayment,
	       remaining_amount, total_paid_amount, status, first_due_date,
	       created_at, updated_at
	FROM loans`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// CreateWithSchedule persists a new loan and its schedule in one transaction.
func (r *LoanRepository) CreateWithSchedule(ctx context.Context, loan *domain.Loan, items []*domain.RepaymentScheduleItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.insertLoan(ctx, tx, loan); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, loan.ID, items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReplaceSchedule rewrites a pending loan's terms and schedule atomically.
// The caller has already verified the loan is still PENDING; the WHERE clause
// re-checks it so a concurrent approval cannot be overwritten.
func (r *LoanRepository) ReplaceSchedule(ctx context.Context, loan *domain.Loan, items []*domain.RepaymentScheduleItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	interestRate, err := decimalToPgNumeric(loan.InterestRateMonthly)
	if err != nil {
		return err
	}
	penaltyRate, err := decimalToPgNumeric(loan.PenaltyRateMonthly)
	if err != nil {
		return err
	}
	feeRate, err := decimalToPgNumeric(loan.FeeRate)
	if err != nil {
		return err
	}

	query := `
		UPDATE loans SET
			customer_id           = $2,
			loan_amount           = $3,
			repayment_method      = $4,
			duration_months       = $5,
			interest_rate_monthly = $6,
			penalty_rate_monthly  = $7,
			fee_rate              = $8,
			total_interest        = $9,
			total_fees            = $10,
			total_repayment       = $11,
			remaining_amount      = $12,
			first_due_date        = $13,
			updated_at            = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	tag, err := tx.Exec(ctx, query,
		loan.ID, loan.CustomerID, loan.LoanAmount, loan.RepaymentMethod, loan.DurationMonths,
		interestRate, penaltyRate, feeRate,
		loan.TotalInterest, loan.TotalFees, loan.TotalRepayment,
		loan.RemainingAmount, loan.FirstDueDate,
	)
	if err != nil {
		return fmt.Errorf("update loan %d: %w", loan.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotPending
	}

	if _, err := tx.Exec(ctx, "DELETE FROM repayment_schedule_items WHERE loan_id = $1", loan.ID); err != nil {
		return fmt.Errorf("delete schedule for loan %d: %w", loan.ID, err)
	}
	if err := insertItems(ctx, tx, loan.ID, items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx, selectLoanSQL+" WHERE id = $1", id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan %d: %w", id, err)
	}
	return loan, nil
}

func (r *LoanRepository) insertLoan(ctx context.Context, tx pgx.Tx, loan *domain.Loan) error {
	interestRate, err := decimalToPgNumeric(loan.InterestRateMonthly)
	if err != nil {
		return err
	}
	penaltyRate, err := decimalToPgNumeric(loan.PenaltyRateMonthly)
	if err != nil {
		return err
	}
	feeRate, err := decimalToPgNumeric(loan.FeeRate)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO loans (
			customer_id, loan_amount, repayment_method, duration_months,
			interest_rate_monthly, penalty_rate_monthly, fee_rate,
			total_interest, total_fees, total_repayment,
			remaining_amount, total_paid_amount, status, first_due_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,$13)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		loan.CustomerID, loan.LoanAmount, loan.RepaymentMethod, loan.DurationMonths,
		interestRate, penaltyRate, feeRate,
		loan.TotalInterest, loan.TotalFees, loan.TotalRepayment,
		loan.RemainingAmount, loan.Status, loan.FirstDueDate,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// insertItems bulk inserts a freshly generated schedule.
func insertItems(ctx context.Context, tx pgx.Tx, loanID int64, items []*domain.RepaymentScheduleItem) error {
	query := `
		INSERT INTO repayment_schedule_items (
			loan_id, period_number, due_date, beginning_balance,
			principal_amount, interest_amount, fee_amount, penalty_amount,
			total_amount, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`
	for _, it := range items {
		it.LoanID = loanID
		if err := tx.QueryRow(ctx, query,
			loanID, it.PeriodNumber, it.DueDate, it.BeginningBalance,
			it.PrincipalAmount, it.InterestAmount, it.FeeAmount, it.PenaltyAmount,
			it.TotalAmount, it.Status,
		).Scan(&it.ID); err != nil {
			return fmt.Errorf("insert schedule item %d: %w", it.PeriodNumber, err)
		}
	}
	return nil
}

// scanLoan maps one loans row onto the domain type.
func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var loan domain.Loan
	var interestRate, penaltyRate, feeRate pgtype.Numeric
	var firstDue pgtype.Date

	err := row.Scan(
		&loan.ID, &loan.CustomerID, &loan.LoanAmount, &loan.RepaymentMethod, &loan.DurationMonths,
		&interestRate, &penaltyRate, &feeRate,
		&loan.TotalInterest, &loan.TotalFees, &loan.TotalRepayment,
		&loan.RemainingAmount, &loan.TotalPaidAmount, &loan.Status, &firstDue,
		&loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if loan.InterestRateMonthly, err = pgNumericToDecimal(interestRate); err != nil {
		return nil, err
	}
	if loan.PenaltyRateMonthly, err = pgNumericToDecimal(penaltyRate); err != nil {
		return nil, err
	}
	if loan.FeeRate, err = pgNumericToDecimal(feeRate); err != nil {
		return nil, err
	}
	loan.FirstDueDate = firstDue.Time

	return &loan, nil
}
