package service

import (
	"testing"
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openItem(period int, due time.Time, principal, interest, fee, penalty int64) *domain.RepaymentScheduleItem {
	it := &domain.RepaymentScheduleItem{
		PeriodNumber:    period,
		DueDate:         due,
		PrincipalAmount: principal,
		InterestAmount:  interest,
		FeeAmount:       fee,
		PenaltyAmount:   penalty,
		Status:          domain.PeriodPending,
	}
	it.RecomputeTotal()
	return it
}

func TestAllocatePayment_WaterfallWorkedExample(t *testing.T) {
	// Outstanding: interest 800,000; fee 150,000; principal 1,666,667;
	// penalty 0. A 1,000,000 payment covers interest, fee, and 50,000 of
	// principal; the period stays open.
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	item := openItem(1, due, 1_666_667, 800_000, 150_000, 0)

	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{item}, 1_000_000)
	require.Zero(t, remaining)
	require.Len(t, allocs, 3)

	assert.Equal(t, domain.ComponentInterest, allocs[0].Component)
	assert.Equal(t, int64(800_000), allocs[0].Amount)
	assert.Equal(t, domain.ComponentServiceFee, allocs[1].Component)
	assert.Equal(t, int64(150_000), allocs[1].Amount)
	assert.Equal(t, domain.ComponentPrincipal, allocs[2].Component)
	assert.Equal(t, int64(50_000), allocs[2].Amount)

	assert.NotEqual(t, domain.PeriodPaid, item.Status, "partially paid period stays open")
	assert.Equal(t, int64(1_616_667), item.OutstandingPrincipal())
}

func TestAllocatePayment_ExactTotalMarksPaid(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	item := openItem(1, due, 1_000_000, 25_000, 15_000, 5_000)

	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{item}, item.TotalAmount)
	require.Zero(t, remaining)

	assert.Equal(t, domain.PeriodPaid, item.Status)
	assert.Zero(t, item.Outstanding())

	var sum int64
	for _, a := range allocs {
		sum += a.Amount
	}
	assert.Equal(t, item.TotalAmount, sum)
}

func TestAllocatePayment_OldestDueDateFirst(t *testing.T) {
	d1 := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	older := openItem(1, d1, 500_000, 50_000, 0, 0)
	newer := openItem(2, d2, 500_000, 50_000, 0, 0)

	// Deliberately pass newest first; allocation must still hit period 1 first.
	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{newer, older}, 600_000)
	require.Zero(t, remaining)

	assert.Equal(t, domain.PeriodPaid, older.Status)
	assert.Equal(t, int64(500_000), newer.Outstanding())

	// Leftover from period 1 carries into period 2's interest step first.
	last := allocs[len(allocs)-1]
	assert.Equal(t, 2, last.PeriodNumber)
	assert.Equal(t, domain.ComponentInterest, last.Component)
	assert.Equal(t, int64(50_000), last.Amount)
}

func TestAllocatePayment_PenaltyPaidLast(t *testing.T) {
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	item := openItem(1, due, 100_000, 10_000, 5_000, 20_000)
	item.Status = domain.PeriodOverdue

	// Enough for everything except part of the penalty.
	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{item}, 120_000)
	require.Zero(t, remaining)

	last := allocs[len(allocs)-1]
	assert.Equal(t, domain.ComponentPenalty, last.Component)
	assert.Equal(t, int64(5_000), last.Amount)
	assert.Equal(t, int64(15_000), item.OutstandingPenalty())
	assert.Equal(t, domain.PeriodOverdue, item.Status, "unsettled overdue period keeps its status")
}

func TestAllocatePayment_SkipsSettledItems(t *testing.T) {
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	paid := openItem(1, due, 100, 10, 0, 0)
	paid.PaidPrincipal = 100
	paid.PaidInterest = 10
	paid.Status = domain.PeriodPaid
	open := openItem(2, due.AddDate(0, 1, 0), 100, 10, 0, 0)

	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{paid, open}, 110)
	require.Zero(t, remaining)
	for _, a := range allocs {
		assert.Equal(t, 2, a.PeriodNumber)
	}
}

func TestAllocatePayment_ReturnsUnappliedRemainder(t *testing.T) {
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	item := openItem(1, due, 100, 0, 0, 0)

	allocs, remaining := allocatePayment([]*domain.RepaymentScheduleItem{item}, 250)
	assert.Equal(t, int64(150), remaining)
	require.Len(t, allocs, 1)
	assert.Equal(t, int64(100), allocs[0].Amount)
}

func TestAllocatePayment_AllocationsSumToApplied(t *testing.T) {
	d := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	for _, amount := range []int64{1, 57, 340, 700, 1022} {
		fresh := []*domain.RepaymentScheduleItem{
			openItem(1, d, 300, 40, 10, 7),
			openItem(2, d.AddDate(0, 1, 0), 300, 35, 0, 0),
			openItem(3, d.AddDate(0, 2, 0), 300, 30, 0, 0),
		}
		allocs, remaining := allocatePayment(fresh, amount)
		var sum int64
		for _, a := range allocs {
			sum += a.Amount
			assert.Greater(t, a.Amount, int64(0), "no zero-amount allocation rows")
		}
		if sum+remaining != amount {
			t.Errorf("amount=%d: allocated %d + remaining %d != amount", amount, sum, remaining)
		}
	}
}
