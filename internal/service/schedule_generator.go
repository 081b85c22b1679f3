package service

import (
	"time"

	"github.com/dinartha/gadai-backend/internal/domain"
	"github.com/dinartha/gadai-backend/internal/util"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// ceilMinorUnit rounds a raw decimal amount up to the next whole minor unit.
// Every customer-facing amount goes through this one helper, for both binding
// schedules and previews, so a quote never drifts from the contract.
func ceilMinorUnit(d decimal.Decimal) int64 {
	return d.Ceil().IntPart()
}

// ScheduleInput are the validated loan terms a schedule is generated from.
type ScheduleInput struct {
	LoanAmount          int64
	DurationMonths      int
	InterestRateMonthly decimal.Decimal // percent per month
	FeeRate             decimal.Decimal // one-time percent
	Method              domain.RepaymentMethod
	FirstDueDate        time.Time
}

// GenerateSchedule computes the full repayment schedule for the given terms.
//
// It keeps two running totals: the raw (unrounded) declining balance drives
// each period's interest so rounding never compounds across periods, while
// the rounded per-period amounts are what gets stored. The final period
// absorbs any rounding residue so the schedule reconciles exactly.
func GenerateSchedule(in ScheduleInput) ([]*domain.RepaymentScheduleItem, domain.ScheduleTotals, error) {
	if in.LoanAmount <= 0 {
		return nil, domain.ScheduleTotals{}, domain.ErrLoanAmountInvalid
	}
	if in.DurationMonths < 1 {
		return nil, domain.ScheduleTotals{}, domain.ErrLoanMonthsInvalid
	}
	if !in.Method.Valid() {
		return nil, domain.ScheduleTotals{}, domain.ErrLoanMethodInvalid
	}

	switch in.Method {
	case domain.MethodEqualInstallment:
		return generateEqualInstallment(in)
	default:
		return generateInterestOnly(in)
	}
}

func generateEqualInstallment(in ScheduleInput) ([]*domain.RepaymentScheduleItem, domain.ScheduleTotals, error) {
	amount := decimal.NewFromInt(in.LoanAmount)
	months := int64(in.DurationMonths)
	interestRate := in.InterestRateMonthly.Div(oneHundred)

	rawPrincipal := amount.Div(decimal.NewFromInt(months))
	feeTotal := ceilMinorUnit(amount.Mul(in.FeeRate.Div(oneHundred)))

	items := make([]*domain.RepaymentScheduleItem, 0, in.DurationMonths)
	rawBalance := amount
	var principalSum int64
	var totalInterest int64

	for period := 1; period <= in.DurationMonths; period++ {
		interest := ceilMinorUnit(rawBalance.Mul(interestRate))

		principal := ceilMinorUnit(rawPrincipal)
		if period == in.DurationMonths {
			// Force the last period to absorb the rounding residue so the
			// principal column sums to the loan amount exactly. On micro
			// loans the per-period ceilings can already exceed the loan
			// amount; a negative residue must never be persisted.
			principal = in.LoanAmount - principalSum
			if principal < 0 {
				return nil, domain.ScheduleTotals{}, domain.ErrScheduleReconcile
			}
		}
		principalSum += principal

		var fee int64
		if period == 1 {
			fee = feeTotal
		}

		item := &domain.RepaymentScheduleItem{
			LoanID:           0, // set by the caller before persisting
			PeriodNumber:     period,
			DueDate:          util.AddMonthsClamped(in.FirstDueDate, period-1),
			BeginningBalance: ceilMinorUnit(rawBalance),
			PrincipalAmount:  principal,
			InterestAmount:   interest,
			FeeAmount:        fee,
			Status:           domain.PeriodPending,
		}
		item.RecomputeTotal()
		items = append(items, item)

		totalInterest += interest
		rawBalance = rawBalance.Sub(rawPrincipal)
	}

	if principalSum != in.LoanAmount {
		return nil, domain.ScheduleTotals{}, domain.ErrScheduleReconcile
	}

	totals := domain.ScheduleTotals{
		TotalInterest:  totalInterest,
		TotalFees:      feeTotal,
		TotalRepayment: in.LoanAmount + totalInterest + feeTotal,
	}
	return items, totals, nil
}

func generateInterestOnly(in ScheduleInput) ([]*domain.RepaymentScheduleItem, domain.ScheduleTotals, error) {
	amount := decimal.NewFromInt(in.LoanAmount)
	months := decimal.NewFromInt(int64(in.DurationMonths))
	interestRate := in.InterestRateMonthly.Div(oneHundred)
	feeRate := in.FeeRate.Div(oneHundred)

	rawInterest := amount.Mul(interestRate)
	rawFee := amount.Mul(feeRate)

	// Lifetime totals come from the raw amounts, not from summing the
	// per-period roundings, so the final period absorbs the residue.
	totalInterest := ceilMinorUnit(rawInterest.Mul(months))
	totalFees := ceilMinorUnit(rawFee.Mul(months))

	items := make([]*domain.RepaymentScheduleItem, 0, in.DurationMonths)
	var interestSum, feeSum int64

	for period := 1; period <= in.DurationMonths; period++ {
		interest := ceilMinorUnit(rawInterest)
		fee := ceilMinorUnit(rawFee)
		if period == in.DurationMonths {
			interest = totalInterest - interestSum
			fee = totalFees - feeSum
			if interest < 0 || fee < 0 {
				return nil, domain.ScheduleTotals{}, domain.ErrScheduleReconcile
			}
		}
		interestSum += interest
		feeSum += fee

		var principal int64
		if period == in.DurationMonths {
			principal = in.LoanAmount
		}

		item := &domain.RepaymentScheduleItem{
			PeriodNumber:     period,
			DueDate:          util.AddMonthsClamped(in.FirstDueDate, period-1),
			BeginningBalance: in.LoanAmount,
			PrincipalAmount:  principal,
			InterestAmount:   interest,
			FeeAmount:        fee,
			Status:           domain.PeriodPending,
		}
		item.RecomputeTotal()
		items = append(items, item)
	}

	if interestSum != totalInterest || feeSum != totalFees {
		return nil, domain.ScheduleTotals{}, domain.ErrScheduleReconcile
	}

	totals := domain.ScheduleTotals{
		TotalInterest:  totalInterest,
		TotalFees:      totalFees,
		TotalRepayment: in.LoanAmount + totalInterest + totalFees,
	}
	return items, totals, nil
}
