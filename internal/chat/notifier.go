// Package chat is the boundary to the conversation subsystem that shows call
// results to the user. The subsystem itself lives elsewhere; this package only
// hands results over.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"outbound-call-scheduler/internal/models"
)

// Result is what the conversation subsystem receives, once per terminal call.
type Result struct {
	ThreadID string             `json:"thread_id"`
	RecordID string             `json:"record_id"`
	Outcome  models.CallOutcome `json:"outcome"`
}

// Notifier delivers a call result to the conversation subsystem.
type Notifier interface {
	NotifyCallResult(ctx context.Context, res Result) error
}

// HTTPNotifier posts results to the chat subsystem's intake endpoint.
type HTTPNotifier struct {
	endpoint string
	http     *http.Client
}

func NewHTTPNotifier(endpoint string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

func (n *HTTPNotifier) NotifyCallResult(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal chat result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify chat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat subsystem returned %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
	}
	return nil
}

// LogNotifier logs results instead of delivering them; used when no chat
// endpoint is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyCallResult(_ context.Context, res Result) error {
	n.logger.Info("call result (no chat endpoint configured)",
		"thread_id", res.ThreadID, "record_id", res.RecordID, "outcome", string(res.Outcome))
	return nil
}
