// Package voice talks to the external call-placement platform.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PlaceCallRequest carries everything the platform needs to dial.
type PlaceCallRequest struct {
	PhoneNumber   string `json:"phone_number"`
	Message       string `json:"message"`
	AgentID       string `json:"agent_id"`
	CallerName    string `json:"caller_name,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// PlacedCall is the platform's acceptance of a placement request.
type PlacedCall struct {
	CallID string `json:"call_id"`
}

// Dialer is the call-placement boundary. Keep business code on this interface;
// only the HTTP client below knows the platform's wire shape.
type Dialer interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlacedCall, error)
}

// Client is the HTTP Dialer implementation.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient builds a dialer for the platform's outbound-call endpoint. The
// timeout bounds a single placement round trip so one slow call cannot stall
// the executor.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlacedCall, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return PlacedCall{}, fmt.Errorf("marshal placement request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return PlacedCall{}, fmt.Errorf("build placement request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return PlacedCall{}, fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PlacedCall{}, fmt.Errorf("call platform returned %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
	}

	var placed PlacedCall
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return PlacedCall{}, fmt.Errorf("decode placement response: %w", err)
	}
	if placed.CallID == "" {
		return PlacedCall{}, fmt.Errorf("call platform accepted placement without a call id")
	}
	return placed, nil
}
