package recordstore

import (
	"context"
	"testing"
	"time"
)

func TestQueryFormula(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := Query{
		{Eq("status", "pending"), Lte("scheduledTime", now)},
		{Eq("status", "executing"), Lte("claimedAt", now)},
	}
	got := q.Formula()
	want := `OR(AND({status}="pending",{scheduledTime}<="2025-06-01T12:00:00Z"),AND({status}="executing",{claimedAt}<="2025-06-01T12:00:00Z"))`
	if got != want {
		t.Fatalf("formula mismatch:\n got %s\nwant %s", got, want)
	}

	single := Query{{Eq("callId", "abc")}}
	if single.Formula() != `{callId}="abc"` {
		t.Fatalf("unexpected single-condition formula: %s", single.Formula())
	}

	if (Query{}).Formula() != "" {
		t.Fatalf("empty query should compile to empty formula")
	}
}

func TestQueryMatches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := Query{
		{Eq("status", "pending"), Lte("scheduledTime", now)},
	}

	due := map[string]any{"status": "pending", "scheduledTime": "2025-06-01T11:59:00Z"}
	if !q.Matches(due) {
		t.Fatalf("expected due record to match")
	}

	future := map[string]any{"status": "pending", "scheduledTime": "2025-06-01T12:01:00Z"}
	if q.Matches(future) {
		t.Fatalf("future record must not match")
	}

	claimed := map[string]any{"status": "executing", "scheduledTime": "2025-06-01T11:00:00Z"}
	if q.Matches(claimed) {
		t.Fatalf("non-pending record must not match")
	}
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec, err := m.Create(ctx, "Tasks", map[string]any{"status": "pending"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected record id")
	}

	got, err := m.Get(ctx, "Tasks", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["status"] != "pending" {
		t.Fatalf("unexpected status %v", got.Fields["status"])
	}

	if _, err := m.Patch(ctx, "Tasks", rec.ID, map[string]any{"status": "executing"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got, _ = m.Get(ctx, "Tasks", rec.ID)
	if got.Fields["status"] != "executing" {
		t.Fatalf("patch did not apply: %v", got.Fields["status"])
	}

	if _, err := m.Get(ctx, "Tasks", "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	recs, err := m.List(ctx, "Tasks", Query{{Eq("status", "executing")}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestMemoryPatchDoesNotLeakSharedMaps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec, _ := m.Create(ctx, "Tasks", map[string]any{"status": "pending"})

	got, _ := m.Get(ctx, "Tasks", rec.ID)
	got.Fields["status"] = "mutated"

	fresh, _ := m.Get(ctx, "Tasks", rec.ID)
	if fresh.Fields["status"] != "pending" {
		t.Fatalf("caller mutation leaked into store: %v", fresh.Fields["status"])
	}
}
