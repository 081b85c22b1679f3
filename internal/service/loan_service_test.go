package service

import (
	"context"
	"testing"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoanService(store *testutil.MockLedgerStore) *LoanService {
	return NewLoanService(store, store, store, zerolog.Nop())
}

func validLoanInput() CreateLoanInput {
	return CreateLoanInput{
		CustomerID:          42,
		LoanAmount:          10_000_000,
		RepaymentMethod:     domain.MethodEqualInstallment,
		DurationMonths:      6,
		InterestRateMonthly: decimal.NewFromFloat(2.5),
		PenaltyRateMonthly:  decimal.NewFromInt(3),
		FeeRate:             decimal.NewFromFloat(1.5),
		FirstDueDate:        date(2026, time.February, 10),
	}
}

func TestLoanService_CreateLoan(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	loan, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)

	assert.NotZero(t, loan.ID)
	assert.Equal(t, domain.LoanPending, loan.Status)
	assert.Equal(t, loan.TotalRepayment, loan.RemainingAmount)
	assert.Equal(t, loan.LoanAmount+loan.TotalInterest+loan.TotalFees, loan.TotalRepayment)

	items := store.Items[loan.ID]
	require.Len(t, items, 6)

	var principal int64
	for _, it := range items {
		principal += it.PrincipalAmount
		assert.Equal(t, domain.PeriodPending, it.Status)
	}
	assert.Equal(t, loan.LoanAmount, principal)
	assert.Equal(t, date(2026, time.February, 10), items[0].DueDate)
}

func TestLoanService_CreateLoan_Validation(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	tests := []struct {
		name    string
		mutate  func(*CreateLoanInput)
		wantErr error
	}{
		{"missing customer", func(in *CreateLoanInput) { in.CustomerID = 0 }, domain.ErrLoanCustomerInvalid},
		{"zero amount", func(in *CreateLoanInput) { in.LoanAmount = 0 }, domain.ErrLoanAmountInvalid},
		{"zero months", func(in *CreateLoanInput) { in.DurationMonths = 0 }, domain.ErrLoanMonthsInvalid},
		{"bad method", func(in *CreateLoanInput) { in.RepaymentMethod = "BALLOON" }, domain.ErrLoanMethodInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validLoanInput()
			tt.mutate(&input)
			_, err := svc.CreateLoan(context.Background(), input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.Loans)
		})
	}
}

func TestLoanService_UpdateLoan_RegeneratesSchedule(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	loan, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)

	input := validLoanInput()
	input.DurationMonths = 12
	input.LoanAmount = 20_000_000

	updated, err := svc.UpdateLoan(context.Background(), loan.ID, input)
	require.NoError(t, err)

	assert.Equal(t, int64(20_000_000), updated.LoanAmount)
	assert.Equal(t, domain.LoanPending, updated.Status)
	assert.Len(t, store.Items[loan.ID], 12)
}

func TestLoanService_UpdateLoan_ApprovedLoanIsImmutable(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	loan, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), loan.ID)
	require.NoError(t, err)

	_, err = svc.UpdateLoan(context.Background(), loan.ID, validLoanInput())
	assert.ErrorIs(t, err, domain.ErrLoanNotPending)
}

func TestLoanService_ApproveAndReject(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	loan, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanActive, approved.Status)

	// ACTIVE loans cannot be approved again or rejected.
	_, err = svc.Approve(context.Background(), loan.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = svc.Reject(context.Background(), loan.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	other, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)
	rejected, err := svc.Reject(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanRejected, rejected.Status)
}

func TestLoanService_GetSchedule(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)

	loan, err := svc.CreateLoan(context.Background(), validLoanInput())
	require.NoError(t, err)

	items, err := svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Len(t, items, 6)

	_, err = svc.GetSchedule(context.Background(), 9999)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestLoanService_PreviewMatchesCreatedSchedule(t *testing.T) {
	store := testutil.NewMockLedgerStore()
	svc := newLoanService(store)
	input := validLoanInput()

	preview, totals, err := svc.PreviewSchedule(input)
	require.NoError(t, err)

	loan, err := svc.CreateLoan(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, totals.TotalRepayment, loan.TotalRepayment)
	created := store.Items[loan.ID]
	require.Equal(t, len(preview), len(created))
	for i := range preview {
		assert.Equal(t, preview[i].PrincipalAmount, created[i].PrincipalAmount)
		assert.Equal(t, preview[i].InterestAmount, created[i].InterestAmount)
		assert.Equal(t, preview[i].FeeAmount, created[i].FeeAmount)
		assert.Equal(t, preview[i].DueDate, created[i].DueDate)
	}
}
