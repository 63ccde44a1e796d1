// Package relay turns call-completion webhooks from the platform into
// chat-visible results.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outbound-call-scheduler/internal/chat"
	"outbound-call-scheduler/internal/correlation"
	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/telemetry"
)

// CompletionEvent is the only webhook shape accepted from the call platform.
type CompletionEvent struct {
	CallID      string             `json:"callId"`
	Outcome     models.CallOutcome `json:"outcome"`
	CompletedAt time.Time          `json:"completedAt"`
}

// ErrInvalidEvent rejects webhook payloads outside the accepted shape.
var ErrInvalidEvent = errors.New("relay: event requires callId and a completed/failed outcome")

// Relay resolves completion events against the correlation table and hands
// terminal results to the conversation subsystem.
type Relay struct {
	correlations *correlation.Repository
	notifier     chat.Notifier
	logger       *slog.Logger
}

func New(correlations *correlation.Repository, notifier chat.Notifier, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{correlations: correlations, notifier: notifier, logger: logger}
}

// Process handles one completion event. An unknown call id is logged, counted
// and dropped — the platform's own redelivery policy governs retries, not us.
// Duplicate deliveries re-apply the same terminal patch, which is harmless.
func (r *Relay) Process(ctx context.Context, event CompletionEvent) error {
	if event.CallID == "" || !event.Outcome.Valid() {
		return ErrInvalidEvent
	}
	completedAt := event.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	corr, err := r.correlations.Complete(ctx, event.CallID, event.Outcome, completedAt)
	if err != nil {
		return fmt.Errorf("resolve completion: %w", err)
	}
	if corr == nil {
		telemetry.WebhooksDropped.Inc()
		r.logger.Warn("completion webhook for unknown call, dropping", "call_id", event.CallID, "outcome", string(event.Outcome))
		return nil
	}

	telemetry.WebhooksRelayed.Inc()
	if err := r.notifier.NotifyCallResult(ctx, chat.Result{
		ThreadID: corr.ThreadID,
		RecordID: corr.RecordID,
		Outcome:  event.Outcome,
	}); err != nil {
		// The correlation is already terminal; delivery failures are logged,
		// not retried here.
		r.logger.Error("chat hand-off failed", "call_id", event.CallID, "thread_id", corr.ThreadID, "error", err)
	}
	return nil
}
