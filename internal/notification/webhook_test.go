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

func TestWebhookPostsShapedPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:  AlertWarning,
		Title:  "Position closed: ETH",
		Ticker: "ETH",
		Event:  model.EventStopLoss,
		Price:  94,
		Force:  0.2,
		Profit: -60,
	})
	require.NoError(t, err)

	assert.Equal(t, "hijackwatch", got.Service)
	assert.Equal(t, "WARNING", got.Level)
	assert.Equal(t, "STOP_LOSS", got.Event)
	assert.Equal(t, "ETH", got.Ticker)
	assert.Equal(t, 94.0, got.Price)
	assert.Equal(t, -60.0, got.Profit)
	assert.NotEmpty(t, got.TS)
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t"})
	assert.Error(t, err)
}
