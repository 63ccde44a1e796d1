// Package executor owns the claim -> place call -> terminal update path for a
// single task.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"outbound-call-scheduler/internal/correlation"
	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/tasks"
	"outbound-call-scheduler/internal/telemetry"
	"outbound-call-scheduler/internal/voice"
)

// Limiter gates call placement per owner agent.
type Limiter interface {
	Allow(ctx context.Context, agentID string) (bool, error)
}

// Executor claims one task at a time and drives it to a terminal state. After
// a confirmed claim every outcome, including internal bookkeeping errors, ends
// in a completed or failed patch so no task is left executing by this process.
type Executor struct {
	tasks        *tasks.Repository
	correlations *correlation.Repository
	dialer       voice.Dialer
	limiter      Limiter
	callTimeout  time.Duration
	logger       *slog.Logger
}

func New(taskRepo *tasks.Repository, corrRepo *correlation.Repository, dialer voice.Dialer, limiter Limiter, callTimeout time.Duration, logger *slog.Logger) *Executor {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tasks:        taskRepo,
		correlations: corrRepo,
		dialer:       dialer,
		limiter:      limiter,
		callTimeout:  callTimeout,
		logger:       logger,
	}
}

// Execute attempts one task. Losing the claim or being rate limited is a
// normal outcome and returns nil; only store errors surface to the caller.
func (e *Executor) Execute(ctx context.Context, task models.ScheduledCallTask, now time.Time) error {
	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, task.OwnerAgentID)
		if err != nil {
			// Skip rather than claim: the task stays pending and a later tick
			// retries once the limiter is reachable again.
			e.logger.Error("placement limiter unavailable, deferring task", "task_id", task.ID, "error", err)
			return nil
		}
		if !allowed {
			telemetry.RateLimited.Inc()
			e.logger.Debug("placement rate limited, deferring task", "task_id", task.ID, "agent_id", task.OwnerAgentID)
			return nil
		}
	}

	claimed, err := e.tasks.ClaimForExecution(ctx, task.ID, now)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if claimed == nil {
		telemetry.ClaimsLost.Inc()
		e.logger.Debug("lost claim", "task_id", task.ID)
		return nil
	}
	telemetry.ClaimsWon.Inc()

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	placed, err := e.dialer.PlaceCall(callCtx, voice.PlaceCallRequest{
		PhoneNumber:   claimed.PhoneNumber,
		Message:       claimed.Message,
		AgentID:       claimed.OwnerAgentID,
		CallerName:    claimed.CallerName,
		PhoneNumberID: claimed.PhoneNumberIDOverride,
		RecipientName: claimed.RecipientName,
	})
	if err != nil {
		telemetry.CallsFailed.Inc()
		e.logger.Error("call placement failed", "task_id", claimed.ID, "error", err)
		if markErr := e.tasks.MarkFailed(ctx, claimed.ID, fmt.Sprintf("call placement failed: %v", err)); markErr != nil {
			return fmt.Errorf("mark failed after placement error: %w", markErr)
		}
		return nil
	}
	telemetry.CallsPlaced.Inc()

	// Correlate before anything else: the completion webhook can outrun us.
	if claimed.RecordID != "" && claimed.ThreadID != "" {
		_, err := e.correlations.Create(ctx, correlation.CreateParams{
			CallID:      placed.CallID,
			RecordID:    claimed.RecordID,
			ThreadID:    claimed.ThreadID,
			PhoneNumber: claimed.PhoneNumber,
		})
		if err != nil {
			telemetry.CallsFailed.Inc()
			e.logger.Error("correlation bookkeeping failed", "task_id", claimed.ID, "call_id", placed.CallID, "error", err)
			if attachErr := e.tasks.AttachCallID(ctx, claimed.ID, placed.CallID); attachErr != nil {
				e.logger.Error("could not attach call id to failed task", "task_id", claimed.ID, "error", attachErr)
			}
			if markErr := e.tasks.MarkFailed(ctx, claimed.ID, fmt.Sprintf("call placed (call id %s) but correlation bookkeeping failed: %v", placed.CallID, err)); markErr != nil {
				return fmt.Errorf("mark failed after correlation error: %w", markErr)
			}
			return nil
		}
	}

	if err := e.tasks.MarkCompleted(ctx, claimed.ID, placed.CallID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	e.logger.Info("call placed", "task_id", claimed.ID, "call_id", placed.CallID, "phone_number", claimed.PhoneNumber)
	return nil
}
