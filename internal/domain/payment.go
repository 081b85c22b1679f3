package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentAmountInvalid   = errors.New("payment amount must be positive")
	ErrPaymentTypeInvalid     = errors.New("unsupported payment type")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrDuplicatePayment       = errors.New("payment with this idempotency key already exists")
	ErrPayoffInsufficient     = errors.New("payoff amount is less than total outstanding")
	ErrOverpayment            = errors.New("payment exceeds total outstanding")
	ErrAllocationMismatch     = errors.New("allocations do not sum to payment amount")
)

// PaymentType classifies why a payment was made.
type PaymentType string

const (
	PaymentPeriodic   PaymentType = "PERIODIC"
	PaymentEarly      PaymentType = "EARLY"
	PaymentPayoff     PaymentType = "PAYOFF"
	PaymentAdjustment PaymentType = "ADJUSTMENT"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentPeriodic, PaymentEarly, PaymentPayoff, PaymentAdjustment:
		return true
	}
	return false
}

// AllocationComponent identifies which obligation a slice of a payment settled.
type AllocationComponent string

const (
	ComponentInterest   AllocationComponent = "INTEREST"
	ComponentServiceFee AllocationComponent = "SERVICE_FEE"
	ComponentPrincipal  AllocationComponent = "PRINCIPAL"
	ComponentLateFee    AllocationComponent = "LATE_FEE"
	ComponentPenalty    AllocationComponent = "PENALTY"
)

// Payment is an immutable record of cash received against a loan.
type Payment struct {
	ID             uuid.UUID   `json:"id"`
	LoanID         int64       `json:"loanId"`
	Amount         int64       `json:"amount"`
	IdempotencyKey string      `json:"idempotencyKey"`
	PaymentMethod  string      `json:"paymentMethod"`
	PaymentType    PaymentType `json:"paymentType"`
	ReferenceCode  string      `json:"referenceCode"`
	Note           *string     `json:"note,omitempty"`
	RecorderID     *int64      `json:"recorderId,omitempty"`
	PaidAt         time.Time   `json:"paidAt"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// PaymentAllocation is one waterfall step of a payment.
// The sum of a payment's allocations always equals the payment amount.
type PaymentAllocation struct {
	ID           int64               `json:"id"`
	PaymentID    uuid.UUID           `json:"paymentId"`
	Component    AllocationComponent `json:"component"`
	Amount       int64               `json:"amount"`
	PeriodNumber int                 `json:"periodNumber"`
	Note         *string             `json:"note,omitempty"`
}
