package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hijackwatch/internal/model"
)

// TelegramNotifier delivers alerts to a Telegram chat via the Bot API.
// Trade alerts render as a compact card: event emoji, bold ticker, then
// price / quantity / profit lines. Operational alerts fall back to a plain
// title + message layout.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var eventEmoji = map[model.EventType]string{
	model.EventEntry:        "📈",
	model.EventTakeProfit:   "💰",
	model.EventTrailingStop: "🪂",
	model.EventStopLoss:     "🛑",
	model.EventMomentumDied: "💤",
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       renderTelegram(alert),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// renderTelegram builds the MarkdownV2 text for an alert.
func renderTelegram(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	if e, ok := eventEmoji[alert.Event]; ok {
		emoji = e
	}

	if alert.Ticker == "" {
		return fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	}

	kind := strings.ToLower(strings.ReplaceAll(string(alert.Event), "_", " "))
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s", emoji, escapeMarkdown(alert.Ticker), escapeMarkdown(kind))
	if alert.Price > 0 {
		b.WriteString("\nprice ")
		b.WriteString(escapeMarkdown(fmt.Sprintf("%.4f", alert.Price)))
	}
	if alert.Event == model.EventEntry {
		b.WriteString("\nqty ")
		b.WriteString(escapeMarkdown(fmt.Sprintf("%.6f", alert.Quantity)))
		b.WriteString("\nforce ")
		b.WriteString(escapeMarkdown(fmt.Sprintf("%.4f", alert.Force)))
	} else {
		b.WriteString("\nprofit ")
		b.WriteString(escapeMarkdown(fmt.Sprintf("%+.2f", alert.Profit)))
		b.WriteString(" USD")
	}
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
