package models

import (
	"time"
)

// CallStatus enumerates correlation-record states.
const (
	CallStatusPending   = "pending"
	CallStatusInCall    = "in-call"
	CallStatusCompleted = "completed"
	CallStatusFailed    = "failed"
)

// OutboundCallRequest correlates an external call identifier back to the
// conversation thread that is waiting for the result.
type OutboundCallRequest struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	RecordID    string    `json:"record_id"`
	ThreadID    string    `json:"thread_id"`
	Status      string    `json:"status"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// CallOutcome is the terminal result reported by the call platform's webhook.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeFailed    CallOutcome = "failed"
)

// Valid reports whether the outcome is one the webhook boundary accepts.
func (o CallOutcome) Valid() bool {
	return o == OutcomeCompleted || o == OutcomeFailed
}
