package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/recordstore"
)

func newTestRepo() *Repository {
	return NewRepository(recordstore.NewMemory(), "OutboundCallRequest")
}

func TestCreateThenFindByCallID(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateParams{
		CallID:      "call-abc",
		RecordID:    "recUser1",
		ThreadID:    "thread-1",
		PhoneNumber: "+15551234567",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != models.CallStatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected createdAt to be set")
	}

	// Immediately visible: the webhook can race ahead of all other bookkeeping.
	found, err := repo.FindByCallID(ctx, "call-abc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil {
		t.Fatalf("expected record for call-abc")
	}
	if found.RecordID != "recUser1" || found.ThreadID != "thread-1" {
		t.Fatalf("conversation reference lost: %+v", found)
	}
}

func TestCreateRejectsMissingReference(t *testing.T) {
	repo := newTestRepo()
	_, err := repo.Create(context.Background(), CreateParams{CallID: "call-1", ThreadID: "t"})
	if !errors.Is(err, ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestFindUnknownCallIDReturnsNil(t *testing.T) {
	repo := newTestRepo()
	found, err := repo.FindByCallID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for unknown call id, got %+v", found)
	}
}

func TestCompleteIsTerminalAndRepeatable(t *testing.T) {
	repo := newTestRepo()
	ctx := context.Background()
	if _, err := repo.Create(ctx, CreateParams{CallID: "call-xyz", RecordID: "rec1", ThreadID: "t1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := repo.Complete(ctx, "call-xyz", models.OutcomeCompleted, done)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if first == nil || first.Status != models.CallStatusCompleted {
		t.Fatalf("unexpected completion: %+v", first)
	}
	if !first.CompletedAt.Equal(done) {
		t.Fatalf("completedAt mismatch: %v", first.CompletedAt)
	}

	// Duplicate webhook delivery re-applies the same terminal fields.
	second, err := repo.Complete(ctx, "call-xyz", models.OutcomeCompleted, done)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if second == nil || second.Status != models.CallStatusCompleted {
		t.Fatalf("duplicate delivery should be harmless: %+v", second)
	}
}

func TestCompleteUnknownCallIDReturnsNil(t *testing.T) {
	repo := newTestRepo()
	res, err := repo.Complete(context.Background(), "ghost", models.OutcomeFailed, time.Now())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil for unknown call id")
	}
}
