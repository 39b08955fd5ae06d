package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Webhook delivery tuning. Retries smooth over transient receiver
// blips; the timeout keeps a dead receiver from stalling the caller.
const (
	webhookRetryMax     = 2
	webhookRetryWaitMin = 1 * time.Second
	webhookRetryWaitMax = 4 * time.Second
	webhookTimeout      = 10 * time.Second
)

// WebhookSink posts events as JSON to an HTTP endpoint, typically a
// chat integration or an incident router.
type WebhookSink struct {
	logger     *slog.Logger
	httpClient *http.Client
	url        string
}

var _ Sink = (*WebhookSink)(nil)

// webhookPayload is the wire shape posted to the receiver.
type webhookPayload struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// NewWebhookSink creates a sink posting to the given URL.
func NewWebhookSink(log *slog.Logger, url string) (*WebhookSink, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if url == "" {
		return nil, errors.New("webhook URL cannot be empty")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = webhookRetryMax
	retryClient.RetryWaitMin = webhookRetryWaitMin
	retryClient.RetryWaitMax = webhookRetryWaitMax
	retryClient.Logger = nil

	return &WebhookSink{
		logger:     log.With(slog.String("component", "alert_webhook_sink")),
		httpClient: retryClient.StandardClient(),
		url:        url,
	}, nil
}

// Notify implements Sink. Delivery is bounded by webhookTimeout on top
// of whatever deadline the caller set.
func (s *WebhookSink) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(webhookPayload{
		Kind:    event.Kind,
		Message: event.Message,
		Fields:  event.Fields,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook call failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("alert delivered",
		slog.String("alert_kind", event.Kind),
		slog.Int("status", resp.StatusCode))
	return nil
}
