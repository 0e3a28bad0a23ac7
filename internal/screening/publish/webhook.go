package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"propertyvet/internal/screening/models"
)

const EventHeader = "X-PropertyVet-Event"

// WebhookSink POSTs the report to the request's callback URL, or to a fallback
// URL when the request had none. With neither, the report is skipped.
type WebhookSink struct {
	client   *http.Client
	fallback string
}

type WebhookOption func(*WebhookSink)

func WithWebhookClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

func NewWebhookSink(fallbackURL string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		fallback: fallbackURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Publish(ctx context.Context, report models.Report) error {
	target := report.Callback
	if target == "" {
		target = s.fallback
	}
	if target == "" {
		return nil
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, eventName(report.State))
	req.Header.Set("X-Request-ID", report.RequestID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func eventName(state models.Lifecycle) string {
	if state == models.LifecycleFailed {
		return "check.failed"
	}
	return "check.completed"
}
