// Package notification delivers hijack alerts and trade lifecycle events to
// external channels (Telegram, webhooks). Delivery is best-effort and runs
// off the scan loop via the Dispatcher.
package notification

import (
	"context"
	"log"

	"hijackwatch/internal/model"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one notification to be sent. Trade alerts carry the originating
// hijack event so each channel can shape its own rendering; operational
// alerts leave the trade fields zero and fall back to Title/Message.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`

	Ticker   string          `json:"ticker,omitempty"`
	Event    model.EventType `json:"event,omitempty"`
	Price    float64         `json:"price,omitempty"`
	Force    float64         `json:"force,omitempty"`
	Quantity float64         `json:"quantity,omitempty"` // entries
	Profit   float64         `json:"profit,omitempty"`   // exits
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them. Used in staging mode
// and when no channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.Ticker != "" {
		log.Printf("[notify] [%s] %s %s: %s", alert.Level, alert.Ticker, alert.Event, alert.Message)
		return nil
	}
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
