package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client for the store's REST endpoint. baseURL includes
// the base/workspace path; table names are appended per call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type recordPayload struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

type listPayload struct {
	Records []recordPayload `json:"records"`
}

func (c *Client) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	body := map[string]any{"fields": fields}
	var out recordPayload
	if err := c.do(ctx, http.MethodPost, c.tableURL(table), body, &out); err != nil {
		return Record{}, fmt.Errorf("create %s record: %w", table, err)
	}
	return out.record(), nil
}

func (c *Client) Get(ctx context.Context, table, id string) (Record, error) {
	var out recordPayload
	if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return Record{}, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return out.record(), nil
}

func (c *Client) Patch(ctx context.Context, table, id string, fields map[string]any) (Record, error) {
	body := map[string]any{"fields": fields}
	var out recordPayload
	if err := c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(id), body, &out); err != nil {
		return Record{}, fmt.Errorf("patch %s/%s: %w", table, id, err)
	}
	return out.record(), nil
}

func (c *Client) List(ctx context.Context, table string, q Query) ([]Record, error) {
	endpoint := c.tableURL(table)
	if formula := q.Formula(); formula != "" {
		endpoint += "?filterByFormula=" + url.QueryEscape(formula)
	}
	var out listPayload
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	records := make([]Record, 0, len(out.Records))
	for _, r := range out.Records {
		records = append(records, r.record())
	}
	return records, nil
}

func (c *Client) tableURL(table string) string {
	return c.baseURL + "/" + url.PathEscape(table)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (p recordPayload) record() Record {
	return Record{ID: p.ID, Fields: p.Fields, CreatedTime: p.CreatedTime}
}
