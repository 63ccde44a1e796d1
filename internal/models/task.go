package models

import (
	"time"
)

// TaskStatus enumerates the scheduled-call task lifecycle persisted in the record store.
const (
	TaskStatusPending   = "pending"
	TaskStatusExecuting = "executing"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// ScheduledCallTask is one request to place an outbound call at or after ScheduledTime.
type ScheduledCallTask struct {
	ID                    string    `json:"id"`
	PhoneNumber           string    `json:"phone_number"`
	Message               string    `json:"message"`
	ScheduledTime         time.Time `json:"scheduled_time"`
	OwnerAgentID          string    `json:"owner_agent_id"`
	CallerName            string    `json:"caller_name,omitempty"`
	PhoneNumberIDOverride string    `json:"phone_number_id_override,omitempty"`
	RecipientName         string    `json:"recipient_name,omitempty"`
	RecordID              string    `json:"record_id,omitempty"`
	ThreadID              string    `json:"thread_id,omitempty"`
	Status                string    `json:"status"`
	CallID                string    `json:"call_id,omitempty"`
	ErrorMessage          string    `json:"error_message,omitempty"`
	ClaimedBy             string    `json:"claimed_by,omitempty"`
	ClaimedAt             time.Time `json:"claimed_at,omitempty"`
	Attempts              int       `json:"attempts"`
}

// Terminal reports whether the task has reached an absorbing state.
func (t ScheduledCallTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
