// Package tasks persists scheduled-call tasks and implements the claim
// protocol that grants a single executor the right to run a task.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/recordstore"
)

// Field names in the ScheduledCallTask table.
const (
	fieldPhoneNumber   = "phoneNumber"
	fieldMessage       = "message"
	fieldScheduledTime = "scheduledTime"
	fieldOwnerAgentID  = "ownerAgentId"
	fieldCallerName    = "callerName"
	fieldPhoneNumberID = "phoneNumberId"
	fieldRecipientName = "recipientName"
	fieldRecordID      = "recordId"
	fieldThreadID      = "threadId"
	fieldStatus        = "status"
	fieldCallID        = "callId"
	fieldErrorMessage  = "errorMessage"
	fieldClaimedBy     = "claimedBy"
	fieldClaimedAt     = "claimedAt"
	fieldAttempts      = "attempts"
)

// Repository provides CRUD plus atomic-by-convention claiming over
// scheduled-call task records.
type Repository struct {
	store        recordstore.Store
	table        string
	reclaimAfter time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

// Options tune claim recovery behavior.
type Options struct {
	// ReclaimAfter is how long a task may sit in executing before its claim is
	// considered abandoned (crashed executor) and the task becomes due again.
	ReclaimAfter time.Duration
	// MaxAttempts caps how many times a task may be claimed before it is
	// failed instead of re-claimed.
	MaxAttempts int
}

func NewRepository(store recordstore.Store, table string, opts Options, logger *slog.Logger) *Repository {
	if opts.ReclaimAfter <= 0 {
		opts.ReclaimAfter = 10 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:        store,
		table:        table,
		reclaimAfter: opts.ReclaimAfter,
		maxAttempts:  opts.MaxAttempts,
		logger:       logger,
	}
}

// Create inserts a new pending task. No dedup is attempted; callers own
// not double-scheduling semantically identical tasks.
func (r *Repository) Create(ctx context.Context, t models.ScheduledCallTask) (models.ScheduledCallTask, error) {
	fields := map[string]any{
		fieldPhoneNumber:   t.PhoneNumber,
		fieldMessage:       t.Message,
		fieldScheduledTime: t.ScheduledTime.UTC().Format(time.RFC3339),
		fieldOwnerAgentID:  t.OwnerAgentID,
		fieldStatus:        models.TaskStatusPending,
		fieldAttempts:      0,
	}
	setIfNonEmpty(fields, fieldCallerName, t.CallerName)
	setIfNonEmpty(fields, fieldPhoneNumberID, t.PhoneNumberIDOverride)
	setIfNonEmpty(fields, fieldRecipientName, t.RecipientName)
	setIfNonEmpty(fields, fieldRecordID, t.RecordID)
	setIfNonEmpty(fields, fieldThreadID, t.ThreadID)

	rec, err := r.store.Create(ctx, r.table, fields)
	if err != nil {
		return models.ScheduledCallTask{}, fmt.Errorf("create task: %w", err)
	}
	return taskFromRecord(rec), nil
}

// Get fetches a task by record id.
func (r *Repository) Get(ctx context.Context, id string) (models.ScheduledCallTask, error) {
	rec, err := r.store.Get(ctx, r.table, id)
	if err != nil {
		return models.ScheduledCallTask{}, fmt.Errorf("get task: %w", err)
	}
	return taskFromRecord(rec), nil
}

// ListDue returns tasks eligible for claiming at now: pending tasks whose
// scheduled time has passed, plus executing tasks whose claim went stale
// (crashed executor recovery). The predicate is pushed to the store.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]models.ScheduledCallTask, error) {
	staleBefore := now.Add(-r.reclaimAfter)
	q := recordstore.Query{
		{recordstore.Eq(fieldStatus, models.TaskStatusPending), recordstore.Lte(fieldScheduledTime, now)},
		{recordstore.Eq(fieldStatus, models.TaskStatusExecuting), recordstore.Lte(fieldClaimedAt, staleBefore)},
	}
	recs, err := r.store.List(ctx, r.table, q)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	out := make([]models.ScheduledCallTask, 0, len(recs))
	for _, rec := range recs {
		out = append(out, taskFromRecord(rec))
	}
	return out, nil
}

// ClaimForExecution attempts the pending -> executing transition (or a
// re-claim of a stale executing task). A nil task with nil error means the
// claim was lost or the task was not claimable; that is a normal concurrent
// outcome, not an error.
func (r *Repository) ClaimForExecution(ctx context.Context, id string, now time.Time) (*models.ScheduledCallTask, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.claimable(current, now) {
		return nil, nil
	}
	if current.Attempts >= r.maxAttempts {
		// Stale claim but out of attempts: fail it so it is not re-claimed forever.
		r.logger.Warn("task exhausted claim attempts", "task_id", id, "attempts", current.Attempts)
		if err := r.MarkFailed(ctx, id, fmt.Sprintf("abandoned after %d claim attempts", current.Attempts)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	rec, won, err := recordstore.Claim(ctx, r.store, r.table, id, recordstore.ClaimSpec{
		StatusField: fieldStatus,
		To:          models.TaskStatusExecuting,
		TokenField:  fieldClaimedBy,
		Token:       uuid.New().String(),
		Eligible:    func(rec recordstore.Record) bool { return r.claimable(taskFromRecord(rec), now) },
		Extra: map[string]any{
			fieldClaimedAt: now.UTC().Format(time.RFC3339),
			fieldAttempts:  current.Attempts + 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", id, err)
	}
	if !won {
		return nil, nil
	}
	task := taskFromRecord(rec)
	return &task, nil
}

func (r *Repository) claimable(t models.ScheduledCallTask, now time.Time) bool {
	switch t.Status {
	case models.TaskStatusPending:
		return true
	case models.TaskStatusExecuting:
		return !t.ClaimedAt.IsZero() && !t.ClaimedAt.After(now.Add(-r.reclaimAfter))
	default:
		return false
	}
}

// MarkCompleted records a successful placement, attaching the external call id.
func (r *Repository) MarkCompleted(ctx context.Context, id, callID string) error {
	_, err := r.store.Patch(ctx, r.table, id, map[string]any{
		fieldStatus: models.TaskStatusCompleted,
		fieldCallID: callID,
	})
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with a human-readable cause.
func (r *Repository) MarkFailed(ctx context.Context, id, message string) error {
	_, err := r.store.Patch(ctx, r.table, id, map[string]any{
		fieldStatus:       models.TaskStatusFailed,
		fieldErrorMessage: message,
	})
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

// AttachCallID records the external call id without changing status; used when
// the placement succeeded but later bookkeeping failed.
func (r *Repository) AttachCallID(ctx context.Context, id, callID string) error {
	_, err := r.store.Patch(ctx, r.table, id, map[string]any{fieldCallID: callID})
	if err != nil {
		return fmt.Errorf("attach call id: %w", err)
	}
	return nil
}

func taskFromRecord(rec recordstore.Record) models.ScheduledCallTask {
	f := rec.Fields
	return models.ScheduledCallTask{
		ID:                    rec.ID,
		PhoneNumber:           asString(f[fieldPhoneNumber]),
		Message:               asString(f[fieldMessage]),
		ScheduledTime:         asTime(f[fieldScheduledTime]),
		OwnerAgentID:          asString(f[fieldOwnerAgentID]),
		CallerName:            asString(f[fieldCallerName]),
		PhoneNumberIDOverride: asString(f[fieldPhoneNumberID]),
		RecipientName:         asString(f[fieldRecipientName]),
		RecordID:              asString(f[fieldRecordID]),
		ThreadID:              asString(f[fieldThreadID]),
		Status:                asString(f[fieldStatus]),
		CallID:                asString(f[fieldCallID]),
		ErrorMessage:          asString(f[fieldErrorMessage]),
		ClaimedBy:             asString(f[fieldClaimedBy]),
		ClaimedAt:             asTime(f[fieldClaimedAt]),
		Attempts:              asInt(f[fieldAttempts]),
	}
}

func setIfNonEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
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

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
