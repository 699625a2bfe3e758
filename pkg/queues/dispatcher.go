package queues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Dispatcher POSTs webhook queue entries to their endpoint.
type Dispatcher struct {
	client *http.Client
}

func NewDispatcher(client *http.Client) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Dispatcher{client: client}
}

// StatusError is returned for non-2xx webhook responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s responded %d: %s", e.URL, e.StatusCode, e.Body)
}

// Dispatch sends payload as JSON. idempotencyKey lets receivers drop
// duplicates after a manual requeue.
func (d *Dispatcher) Dispatch(ctx context.Context, url, idempotencyKey string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(excerpt)}
}
