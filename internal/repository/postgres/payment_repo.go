package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinartha/gadai-backend/internal/domain"
)

// PaymentRepository implements domain.PaymentRepository using PostgreSQL
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// GetByIdempotencyKey retrieves a payment by its idempotency key
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := `
		SELECT id, loan_id, amount, idempotency_key, payment_method,
		       payment_type, reference_code, note, recorder_id, paid_at, created_at
		FROM payments
		WHERE idempotency_key = $1
	`
	var p domain.Payment
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&p.ID, &p.LoanID, &p.Amount, &p.IdempotencyKey, &p.PaymentMethod,
		&p.PaymentType, &p.ReferenceCode, &p.Note, &p.RecorderID, &p.PaidAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by key: %w", err)
	}
	return &p, nil
}

// ListAllocations returns a payment's waterfall rows ordered by insertion
func (r *PaymentRepository) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]*domain.PaymentAllocation, error) {
	query := `
		SELECT id, payment_id, component, amount, period_number, note
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*domain.PaymentAllocation
	for rows.Next() {
		var a domain.PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.Component, &a.Amount, &a.PeriodNumber, &a.Note); err != nil {
			return nil, err
		}
		allocs = append(allocs, &a)
	}
	return allocs, rows.Err()
}
