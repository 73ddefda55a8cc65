// Package comfy talks to a ComfyUI-compatible node-graph engine: a
// readiness probe and prompt submission over HTTP, and completion events
// over a websocket.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Engine is everything a job needs from the execution engine.
type Engine interface {
	// Probe succeeds when the engine answers its base endpoint with a 2xx.
	Probe(ctx context.Context) error
	// Submit enqueues a graph and returns its prompt id.
	Submit(ctx context.Context, graph any, clientID string) (string, error)
	// Events opens the event channel. The stream is bound to ctx: cancelling
	// it unblocks a pending Next.
	Events(ctx context.Context, clientID string) (EventStream, error)
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("comfy %s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("comfy %s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

const maxErrorBody = 4096

type HTTPClient struct {
	baseURL string
	wsURL   string
	client  *http.Client
	dialer  Dialer
}

// NewHTTPClient builds a client for the engine at baseURL with its event
// channel at wsURL. timeout bounds every HTTP round trip.
func NewHTTPClient(baseURL, wsURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   wsURL,
		client:  &http.Client{Timeout: timeout},
		dialer:  defaultDialer(timeout),
	}
}

func (c *HTTPClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Op: "probe", StatusCode: res.StatusCode}
	}
	return nil
}

type promptRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id,omitempty"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
}

func (c *HTTPClient) Submit(ctx context.Context, graph any, clientID string) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: clientID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &StatusError{Op: "submit", StatusCode: res.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	var out promptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("comfy submit: decode response: %w", err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("comfy submit: response has no prompt_id: %s", truncate(string(raw), maxErrorBody))
	}
	return out.PromptID, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
