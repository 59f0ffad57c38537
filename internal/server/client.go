package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/auratriage/internal/records"
)

// APIError is a non-2xx answer from the triage server.
type APIError struct {
	StatusCode int
	Detail     string
	RunID      string
}

func (e *APIError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("server: HTTP %d (run %s): %s", e.StatusCode, e.RunID, e.Detail)
	}
	return fmt.Sprintf("server: HTTP %d: %s", e.StatusCode, e.Detail)
}

// Client talks to a running triage server.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout. It also bounds streams, so leave
// it unset for long runs.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Triage runs a case synchronously.
func (c *Client) Triage(ctx context.Context, req TriageRequest) (*TriageResponse, error) {
	var resp TriageResponse
	if err := c.do(ctx, http.MethodPost, "/api/triage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream starts a run and returns its events as they arrive, plus the run ID
// the server assigned. The channel closes after the terminal event or when
// ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req TriageRequest) (<-chan StreamEvent, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("server: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/triage/stream", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("server: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("server: stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", apiError(resp)
	}
	return ReadEvents(ctx, resp.Body), resp.Header.Get("X-Run-ID"), nil
}

// Patients lists the server's patients.
func (c *Client) Patients(ctx context.Context) ([]records.Patient, error) {
	var resp struct {
		Patients []records.Patient `json:"patients"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/patients", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Patients, nil
}

// Run fetches the recorded state of a run.
func (c *Client) Run(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+id, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("server: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("server: create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("server: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("server: decode %s response: %w", path, err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBody))
	e := &APIError{StatusCode: resp.StatusCode}
	var body errorBody
	if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
		e.Detail, e.RunID = body.Detail, body.RunID
	} else {
		e.Detail = strings.TrimSpace(string(raw))
	}
	return e
}
