// Package notify provides notification sinks backed by external transports.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainnotify "almacen/internal/domain/notify"
	"almacen/pkg/logger"
)

// DefaultWebhookTimeout bounds one delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookSink POSTs each notification as JSON to a fixed URL.
// Any non-2xx response is a delivery failure and is retried by the relay.
type WebhookSink struct {
	url    string
	client *http.Client
}

var _ domainnotify.Sink = (*WebhookSink)(nil)

// NewWebhookSink creates a sink. A nil client gets one with DefaultWebhookTimeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	return &WebhookSink{url: url, client: client}
}

// Send delivers n.
func (s *WebhookSink) Send(ctx context.Context, n domainnotify.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(n.EventType))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	logger.Debug(ctx, "notification delivered", "event", string(n.EventType), "status", resp.StatusCode)
	return nil
}
