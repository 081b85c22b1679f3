package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to the entity
type EventType string

const (
	EventTypeRecorded  EventType = "recorded"
	EventTypeOverdue   EventType = "overdue"
	EventTypeClosed    EventType = "closed"
	EventTypeEscalated EventType = "escalated"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypePayment EntityType = "payment"
	EntityTypeLoan    EntityType = "loan"
)

// Event represents a notification message fanned out to back-office clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "payment.recorded"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "payment"
	Payload   interface{} `json:"payload"`   // Full event data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AllocationLine is one waterfall step in a payment event payload.
type AllocationLine struct {
	Component    string `json:"component"`
	Amount       int64  `json:"amount"`
	PeriodNumber int    `json:"periodNumber"`
}

// PaymentRecordedPayload is the payload of a payment.recorded event.
type PaymentRecordedPayload struct {
	LoanID      int64            `json:"loanId"`
	PaymentID   string           `json:"paymentId"`
	Amount      int64            `json:"amount"`
	Allocations []AllocationLine `json:"allocations"`
}

// LoanOverduePayload is the payload of a loan.escalated event.
type LoanOverduePayload struct {
	LoanID        int64 `json:"loanId"`
	PeriodNumber  int   `json:"periodNumber"`
	DaysOverdue   int   `json:"daysOverdue"`
	PenaltyAmount int64 `json:"penaltyAmount"`
}

// PaymentRecorded creates a payment.recorded event
func PaymentRecorded(payload PaymentRecordedPayload) Event {
	return NewEvent(EventTypeRecorded, EntityTypePayment, payload)
}

// LoanEscalated creates a loan.escalated event
func LoanEscalated(payload LoanOverduePayload) Event {
	return NewEvent(EventTypeEscalated, EntityTypeLoan, payload)
}

// LoanClosed creates a loan.closed event
func LoanClosed(loanID int64) Event {
	return NewEvent(EventTypeClosed, EntityTypeLoan, map[string]int64{"loanId": loanID})
}
