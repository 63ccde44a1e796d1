package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"outbound-call-scheduler/internal/correlation"
	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/recordstore"
	"outbound-call-scheduler/internal/tasks"
	"outbound-call-scheduler/internal/voice"
)

type fakeDialer struct {
	callID string
	err    error
	calls  atomic.Int64
	last   voice.PlaceCallRequest
}

func (d *fakeDialer) PlaceCall(_ context.Context, req voice.PlaceCallRequest) (voice.PlacedCall, error) {
	d.calls.Add(1)
	d.last = req
	if d.err != nil {
		return voice.PlacedCall{}, d.err
	}
	return voice.PlacedCall{CallID: d.callID}, nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) { return l.allow, l.err }

type fixture struct {
	store    recordstore.Store
	tasks    *tasks.Repository
	corrs    *correlation.Repository
	dialer   *fakeDialer
	executor *Executor
}

func newFixture(t *testing.T, store recordstore.Store, dialer *fakeDialer, limiter Limiter) *fixture {
	t.Helper()
	taskRepo := tasks.NewRepository(store, "ScheduledCallTask", tasks.Options{
		ReclaimAfter: 10 * time.Minute,
		MaxAttempts:  3,
	}, nil)
	corrRepo := correlation.NewRepository(store, "OutboundCallRequest")
	return &fixture{
		store:    store,
		tasks:    taskRepo,
		corrs:    corrRepo,
		dialer:   dialer,
		executor: New(taskRepo, corrRepo, dialer, limiter, 5*time.Second, nil),
	}
}

func seedTask(t *testing.T, f *fixture) models.ScheduledCallTask {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), models.ScheduledCallTask{
		PhoneNumber:   "+15551234567",
		Message:       "remind about tomorrow's appointment",
		ScheduledTime: time.Now().UTC().Add(-time.Second),
		OwnerAgentID:  "agent-1",
		RecordID:      "recUser1",
		ThreadID:      "thread-1",
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func TestExecuteSuccessCompletesTaskAndCorrelates(t *testing.T) {
	dialer := &fakeDialer{callID: "abc"}
	f := newFixture(t, recordstore.NewMemory(), dialer, nil)
	task := seedTask(t, f)
	ctx := context.Background()

	if err := f.executor.Execute(ctx, task, time.Now().UTC()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.CallID != "abc" {
		t.Fatalf("expected callId abc, got %q", got.CallID)
	}

	corr, err := f.corrs.FindByCallID(ctx, "abc")
	if err != nil {
		t.Fatalf("find correlation: %v", err)
	}
	if corr == nil {
		t.Fatalf("expected a correlation record for the placed call")
	}
	if corr.Status != models.CallStatusPending {
		t.Fatalf("fresh correlation should be pending, got %s", corr.Status)
	}
	if corr.ThreadID != "thread-1" || corr.RecordID != "recUser1" {
		t.Fatalf("conversation reference missing: %+v", corr)
	}

	if d := f.dialer.last; d.PhoneNumber != "+15551234567" || d.AgentID != "agent-1" {
		t.Fatalf("placement request not built from task: %+v", d)
	}
}

func TestExecutePlacementFailureFailsTaskWithoutCorrelation(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("network error: connection refused")}
	f := newFixture(t, recordstore.NewMemory(), dialer, nil)
	task := seedTask(t, f)
	ctx := context.Background()

	if err := f.executor.Execute(ctx, task, time.Now().UTC()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := f.tasks.Get(ctx, task.ID)
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("expected a captured error message")
	}

	recs, err := f.store.List(ctx, "OutboundCallRequest", nil)
	if err != nil {
		t.Fatalf("list correlations: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("no correlation record must exist after placement failure, got %d", len(recs))
	}
}

func TestExecuteRateLimitedLeavesTaskPending(t *testing.T) {
	dialer := &fakeDialer{callID: "abc"}
	f := newFixture(t, recordstore.NewMemory(), dialer, &fakeLimiter{allow: false})
	task := seedTask(t, f)
	ctx := context.Background()

	if err := f.executor.Execute(ctx, task, time.Now().UTC()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if dialer.calls.Load() != 0 {
		t.Fatalf("rate-limited task must not be dialed")
	}
	got, _ := f.tasks.Get(ctx, task.ID)
	if got.Status != models.TaskStatusPending {
		t.Fatalf("rate-limited task must stay pending, got %s", got.Status)
	}
}

// failingCreateStore errors every Create on one table; used to break
// correlation bookkeeping after a successful placement.
type failingCreateStore struct {
	recordstore.Store
	table string
}

func (s *failingCreateStore) Create(ctx context.Context, table string, fields map[string]any) (recordstore.Record, error) {
	if table == s.table {
		return recordstore.Record{}, errors.New("store unavailable")
	}
	return s.Store.Create(ctx, table, fields)
}

func TestExecuteCorrelationFailureStillFailsTask(t *testing.T) {
	dialer := &fakeDialer{callID: "abc"}
	store := &failingCreateStore{Store: recordstore.NewMemory(), table: "OutboundCallRequest"}
	f := newFixture(t, store, dialer, nil)
	task := seedTask(t, f)
	ctx := context.Background()

	if err := f.executor.Execute(ctx, task, time.Now().UTC()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, _ := f.tasks.Get(ctx, task.ID)
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("task must not be left executing, got %s", got.Status)
	}
	if got.CallID != "abc" {
		t.Fatalf("placed call id should be preserved for manual recovery, got %q", got.CallID)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("expected an error message naming the bookkeeping failure")
	}
}

// Two overlapping scheduler ticks both list the same due task; only one
// execution reaches the platform.
func TestOverlappingTicksExecuteOnce(t *testing.T) {
	dialer := &fakeDialer{callID: "abc"}
	f := newFixture(t, recordstore.NewMemory(), dialer, nil)
	task := seedTask(t, f)
	ctx := context.Background()
	now := time.Now().UTC()

	tickOne, err := f.tasks.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("tick one list: %v", err)
	}
	tickTwo, err := f.tasks.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("tick two list: %v", err)
	}
	if len(tickOne) != 1 || len(tickTwo) != 1 {
		t.Fatalf("both ticks should list the due task: %d, %d", len(tickOne), len(tickTwo))
	}

	if err := f.executor.Execute(ctx, tickOne[0], now); err != nil {
		t.Fatalf("tick one execute: %v", err)
	}
	if err := f.executor.Execute(ctx, tickTwo[0], now); err != nil {
		t.Fatalf("tick two execute: %v", err)
	}

	if dialer.calls.Load() != 1 {
		t.Fatalf("expected exactly one placement, got %d", dialer.calls.Load())
	}
	got, _ := f.tasks.Get(ctx, task.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestExecuteLostClaimDoesNothing(t *testing.T) {
	dialer := &fakeDialer{callID: "abc"}
	f := newFixture(t, recordstore.NewMemory(), dialer, nil)
	task := seedTask(t, f)
	ctx := context.Background()
	now := time.Now().UTC()

	// A competing executor already holds the claim.
	if claimed, err := f.tasks.ClaimForExecution(ctx, task.ID, now); err != nil || claimed == nil {
		t.Fatalf("competing claim failed: %v, %v", claimed, err)
	}

	if err := f.executor.Execute(ctx, task, now); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if dialer.calls.Load() != 0 {
		t.Fatalf("losing executor must not place a call")
	}
	got, _ := f.tasks.Get(ctx, task.ID)
	if got.Status != models.TaskStatusExecuting {
		t.Fatalf("competing claim must be untouched, got %s", got.Status)
	}
}
