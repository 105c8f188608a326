package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts to a generic HTTP endpoint. Consumers key off
// the event field; operational alerts leave it empty and carry only
// title/message.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the JSON body POSTed for every alert.
type webhookPayload struct {
	Service  string  `json:"service"`
	Level    string  `json:"level"`
	Event    string  `json:"event,omitempty"`
	Ticker   string  `json:"ticker,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Force    float64 `json:"force,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Profit   float64 `json:"profit,omitempty"`
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	TS       string  `json:"ts"`
}

// NewWebhookNotifier creates a webhook notifier for the given endpoint.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Service:  "hijackwatch",
		Level:    string(alert.Level),
		Event:    string(alert.Event),
		Ticker:   alert.Ticker,
		Price:    alert.Price,
		Force:    alert.Force,
		Quantity: alert.Quantity,
		Profit:   alert.Profit,
		Title:    alert.Title,
		Message:  alert.Message,
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
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
	return nil
}
