package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/core"
)

// Notifier is told about every newly created alert.
type Notifier interface {
	Notify(ctx context.Context, alert *core.Alert) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *core.Alert) error { return nil }

// WebhookNotifier posts new alerts as JSON to a single endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

type webhookPayload struct {
	Event   string      `json:"event"`
	SentAt  time.Time   `json:"sent_at"`
	Alert   *core.Alert `json:"alert"`
	Summary string      `json:"summary"`
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert *core.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Event:   "alert.created",
		SentAt:  time.Now().UTC(),
		Alert:   alert,
		Summary: fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.TenantName, alert.Title),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AdsGuardian/1.0")

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug("Alert webhook delivered",
		zap.String("alert_id", alert.ID),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
