package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink posts JSON notifications to an external HTTP endpoint with
// bounded retries. Both the lead sink and the escalation sink are webhook
// sinks pointed at different URLs.
type WebhookSink struct {
	name    string
	url     string
	retries int
	headers map[string]string
	client  *http.Client
}

// WebhookSinkConfig configures a webhook sink.
type WebhookSinkConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
	Retries int
	Headers map[string]string
}

// NewWebhookSink creates a webhook sink. An empty URL yields a disabled
// sink whose Notify is a no-op.
func NewWebhookSink(cfg WebhookSinkConfig) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		name:    cfg.Name,
		url:     cfg.URL,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the sink identifier for logging.
func (s *WebhookSink) Name() string {
	return s.name
}

// Notify posts the payload, retrying transient failures up to the
// configured bound. Context cancellation stops the retry loop.
func (s *WebhookSink) Notify(ctx context.Context, payload any) error {
	if s.url == "" {
		return nil
	}

	var lastErr error
	attempts := s.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		err := s.doRequest(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("sink %s failed after %d attempts: %w", s.name, attempts, lastErr)
}

func (s *WebhookSink) doRequest(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Sink delivers one notification payload.
type Sink interface {
	Name() string
	Notify(ctx context.Context, payload any) error
}

var _ Sink = (*WebhookSink)(nil)
