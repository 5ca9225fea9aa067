package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint. Sends are
// throttled so a flapping gate cannot flood the receiver.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookNotifier creates a webhook notifier allowing one alert per
// interval with the given burst.
func NewWebhookNotifier(url string, interval time.Duration, burst int) *WebhookNotifier {
	if interval <= 0 {
		interval = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook: rate limit: %w", err)
	}

	payload := map[string]interface{}{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(alert.Fields) > 0 {
		payload["fields"] = alert.Fields
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] sent alert to %s: %s", w.url, alert.Title)
	return nil
}
