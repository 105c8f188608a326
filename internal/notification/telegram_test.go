package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hijackwatch/internal/model"
)

func TestRenderTelegramEntryCard(t *testing.T) {
	text := renderTelegram(Alert{
		Level:    AlertInfo,
		Ticker:   "BTC",
		Event:    model.EventEntry,
		Price:    116,
		Force:    0.1234,
		Quantity: 8.62069,
	})

	assert.Contains(t, text, "📈 *BTC* entry")
	assert.Contains(t, text, "price 116\\.0000")
	assert.Contains(t, text, "qty 8\\.620690")
	assert.Contains(t, text, "force 0\\.1234")
	assert.NotContains(t, text, "profit", "entries carry no profit line")
}

func TestRenderTelegramExitCards(t *testing.T) {
	stop := renderTelegram(Alert{
		Level:  AlertWarning,
		Ticker: "ETH",
		Event:  model.EventStopLoss,
		Price:  94,
		Profit: -60,
	})
	assert.Contains(t, stop, "🛑 *ETH* stop loss")
	assert.Contains(t, stop, "profit \\-60\\.00 USD")

	take := renderTelegram(Alert{
		Level:  AlertInfo,
		Ticker: "SOL",
		Event:  model.EventTakeProfit,
		Price:  112,
		Profit: 120,
	})
	assert.Contains(t, take, "💰 *SOL* take profit")
	assert.Contains(t, take, "profit \\+120\\.00 USD")
}

func TestRenderTelegramOperationalFallback(t *testing.T) {
	text := renderTelegram(Alert{
		Level:   AlertCritical,
		Title:   "Kill switch engaged",
		Message: "manual trigger",
	})
	assert.Contains(t, text, "🚨 *Kill switch engaged*")
	assert.Contains(t, text, "manual trigger")
}

func TestTelegramSendPostsToBotAPI(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottok/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat42")
	n.apiBase = srv.URL

	err := n.Send(context.Background(), Alert{
		Ticker: "BTC", Event: model.EventEntry, Price: 100, Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "chat42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Contains(t, got["text"], "*BTC*")
}
