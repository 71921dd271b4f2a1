// Package notify delivers JSON payloads to external webhooks. Delivery is a
// single POST with a bounded timeout - no retries, no queue.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 64 * 1024

// Delivery is the receiver's answer. A non-2xx status is a normal Delivery,
// not an error; the caller inspects Status.
type Delivery struct {
	Status int
	Body   string
}

func (d Delivery) Success() bool {
	return d.Status >= 200 && d.Status < 300
}

type Gateway struct {
	client *http.Client
}

// New creates a gateway whose requests are cut off after timeout.
func New(timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Gateway{client: &http.Client{Timeout: timeout}}
}

// Send posts payload as JSON to url. The returned error covers only
// connection-level failures and timeout expiry.
func (g *Gateway) Send(ctx context.Context, url string, payload any) (Delivery, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Delivery{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Delivery{}, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return Delivery{Status: resp.StatusCode, Body: string(respBody)}, nil
}
