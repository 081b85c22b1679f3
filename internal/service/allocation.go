package service

import (
	"sort"

	"github.com/dinartha/gadai-backend/internal/domain"
)

// allocatePayment distributes amount across the open periods in waterfall
// order: oldest due date first, and within a period INTEREST → SERVICE_FEE →
// PRINCIPAL → LATE_FEE → PENALTY. Late charges accrue on the schedule as
// PENALTY, so the LATE_FEE step never has an outstanding balance here.
//
// The items' paid fields and statuses are mutated in place; the returned
// allocations hold one row per non-zero step. The second return value is the
// unapplied remainder, non-zero only when every period is settled.
func allocatePayment(items []*domain.RepaymentScheduleItem, amount int64) ([]*domain.PaymentAllocation, int64) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		return items[i].PeriodNumber < items[j].PeriodNumber
	})

	var allocs []*domain.PaymentAllocation
	remaining := amount

	for _, it := range items {
		if remaining == 0 {
			break
		}
		if it.Status == domain.PeriodPaid || it.Settled() {
			continue
		}

		steps := []struct {
			component domain.AllocationComponent
			due       int64
			paid      *int64
		}{
			{domain.ComponentInterest, it.OutstandingInterest(), &it.PaidInterest},
			{domain.ComponentServiceFee, it.OutstandingFee(), &it.PaidFee},
			{domain.ComponentPrincipal, it.OutstandingPrincipal(), &it.PaidPrincipal},
			{domain.ComponentPenalty, it.OutstandingPenalty(), &it.PaidPenalty},
		}

		for _, step := range steps {
			if remaining == 0 {
				break
			}
			pay := step.due
			if pay > remaining {
				pay = remaining
			}
			if pay <= 0 {
				continue
			}

			*step.paid += pay
			remaining -= pay
			allocs = append(allocs, &domain.PaymentAllocation{
				Component:    step.component,
				Amount:       pay,
				PeriodNumber: it.PeriodNumber,
			})
		}

		if it.Settled() {
			it.Status = domain.PeriodPaid
		}
	}

	return allocs, remaining
}
