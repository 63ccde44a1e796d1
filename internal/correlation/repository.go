// Package correlation persists outbound-call request records that link an
// external call identifier back to the conversation awaiting its result.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/recordstore"
)

// Field names in the OutboundCallRequest table. The conversation reference is
// a link field, so the store holds it as a list of record ids.
const (
	fieldCallID      = "callId"
	fieldRecordID    = "recordId"
	fieldThreadID    = "threadId"
	fieldStatus      = "status"
	fieldPhoneNumber = "phoneNumber"
	fieldCreatedAt   = "createdAt"
	fieldCompletedAt = "completedAt"
)

// ErrMissingReference rejects correlation records that do not name the
// conversation they belong to; a record without its back-reference can never
// be delivered.
var ErrMissingReference = errors.New("correlation: callId, recordId and threadId are required")

// Repository provides CRUD over correlation records keyed by the external
// call id.
type Repository struct {
	store recordstore.Store
	table string
}

func NewRepository(store recordstore.Store, table string) *Repository {
	return &Repository{store: store, table: table}
}

// CreateParams collects inputs for a new correlation record.
type CreateParams struct {
	CallID      string
	RecordID    string
	ThreadID    string
	PhoneNumber string
}

// Create inserts a pending correlation record. It must run before the call
// connects: the completion webhook can arrive faster than any local
// bookkeeping, and a lookup miss there drops the event.
func (r *Repository) Create(ctx context.Context, p CreateParams) (models.OutboundCallRequest, error) {
	if p.CallID == "" || p.RecordID == "" || p.ThreadID == "" {
		return models.OutboundCallRequest{}, ErrMissingReference
	}
	now := time.Now().UTC()
	fields := map[string]any{
		fieldCallID:    p.CallID,
		fieldRecordID:  []string{p.RecordID},
		fieldThreadID:  p.ThreadID,
		fieldStatus:    models.CallStatusPending,
		fieldCreatedAt: now.Format(time.RFC3339),
	}
	if p.PhoneNumber != "" {
		fields[fieldPhoneNumber] = p.PhoneNumber
	}
	rec, err := r.store.Create(ctx, r.table, fields)
	if err != nil {
		return models.OutboundCallRequest{}, fmt.Errorf("create correlation: %w", err)
	}
	return fromRecord(rec), nil
}

// FindByCallID resolves a correlation record by the external call id. A nil
// result with nil error means no record exists (yet) — callers decide whether
// that is a retry-later or a drop.
func (r *Repository) FindByCallID(ctx context.Context, callID string) (*models.OutboundCallRequest, error) {
	q := recordstore.Query{{recordstore.Eq(fieldCallID, callID)}}
	recs, err := r.store.List(ctx, r.table, q)
	if err != nil {
		return nil, fmt.Errorf("find correlation by call id: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	out := fromRecord(recs[0])
	return &out, nil
}

// Complete marks the correlation terminal. The store's primary key is its own
// record id, so the call id is resolved first and the patch lands on that
// record. Duplicate webhook deliveries re-apply the same terminal fields,
// which is harmless.
func (r *Repository) Complete(ctx context.Context, callID string, outcome models.CallOutcome, completedAt time.Time) (*models.OutboundCallRequest, error) {
	existing, err := r.FindByCallID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	status := models.CallStatusCompleted
	if outcome == models.OutcomeFailed {
		status = models.CallStatusFailed
	}
	rec, err := r.store.Patch(ctx, r.table, existing.ID, map[string]any{
		fieldStatus:      status,
		fieldCompletedAt: completedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("complete correlation: %w", err)
	}
	out := fromRecord(rec)
	return &out, nil
}

func fromRecord(rec recordstore.Record) models.OutboundCallRequest {
	f := rec.Fields
	return models.OutboundCallRequest{
		ID:          rec.ID,
		CallID:      asString(f[fieldCallID]),
		RecordID:    firstLinked(f[fieldRecordID]),
		ThreadID:    asString(f[fieldThreadID]),
		Status:      asString(f[fieldStatus]),
		PhoneNumber: asString(f[fieldPhoneNumber]),
		CreatedAt:   asTime(f[fieldCreatedAt]),
		CompletedAt: asTime(f[fieldCompletedAt]),
	}
}

// firstLinked unwraps a link field, which decodes as a list of record ids.
func firstLinked(v any) string {
	switch t := v.(type) {
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	case string:
		return t
	}
	return ""
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
