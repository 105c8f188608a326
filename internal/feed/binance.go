// Package feed ingests raw trades (Binance WebSocket or a simulator) and
// aggregates them into per-second observations for the scan pipeline.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hijackwatch/internal/model"

	"github.com/gorilla/websocket"
)

// BinanceConfig holds configuration for the Binance trade stream.
type BinanceConfig struct {
	// BaseURL of the combined stream endpoint,
	// e.g. "wss://stream.binance.com:9443/stream".
	BaseURL string

	// Tickers to subscribe, e.g. ["BTC", "ETH"]. Each maps to the
	// <ticker>usdt@aggTrade stream.
	Tickers []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *BinanceConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// BinanceIngest connects to the Binance combined aggTrade stream and pushes
// normalized trades into tradeCh.
type BinanceIngest struct {
	cfg BinanceConfig
	url string

	// Optional hooks
	OnReconnect func()
	OnConnect   func()
	OnDrop      func()
}

// NewBinance creates a Binance ingest. Returns an error when no tickers are
// configured or the URL is unparseable.
func NewBinance(cfg BinanceConfig) (*BinanceIngest, error) {
	cfg.defaults()
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("binance ingest: no tickers configured")
	}

	streams := make([]string, 0, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		streams = append(streams, strings.ToLower(t)+"usdt@aggTrade")
	}
	full := cfg.BaseURL + "?streams=" + strings.Join(streams, "/")
	if _, err := url.Parse(full); err != nil {
		return nil, fmt.Errorf("binance ingest: bad url: %w", err)
	}

	return &BinanceIngest{cfg: cfg, url: full}, nil
}

// Start connects and streams trades into tradeCh. Blocks until ctx is
// cancelled. Reconnects automatically with exponential backoff.
func (ing *BinanceIngest) Start(ctx context.Context, tradeCh chan<- model.Trade) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tradeCh)
		if err == nil {
			return nil
		}

		log.Printf("[binance] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// combinedMsg is the Binance combined-stream envelope.
type combinedMsg struct {
	Stream string   `json:"stream"`
	Data   aggTrade `json:"data"`
}

// aggTrade is the subset of the aggTrade payload the scanner uses.
type aggTrade struct {
	Symbol  string `json:"s"`
	Price   string `json:"p"`
	Qty     string `json:"q"`
	TradeTS int64  `json:"T"` // epoch milliseconds
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (ing *BinanceIngest) runOnce(ctx context.Context, tradeCh chan<- model.Trade) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[binance] connected, %d streams", len(ing.cfg.Tickers))
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var msg combinedMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[binance] parse error: %v", err)
			continue
		}

		trade, err := parseAggTrade(msg.Data)
		if err != nil {
			log.Printf("[binance] skipping trade: %v", err)
			continue
		}

		select {
		case tradeCh <- trade:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop()
			}
			log.Println("[binance] tradeCh full, dropping trade")
		}
	}
}

// parseAggTrade normalizes one aggTrade payload. The USDT suffix is stripped
// so downstream keys on the bare ticker.
func parseAggTrade(t aggTrade) (model.Trade, error) {
	if t.Symbol == "" {
		return model.Trade{}, fmt.Errorf("missing symbol")
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil || price <= 0 {
		return model.Trade{}, fmt.Errorf("bad price %q", t.Price)
	}
	qty, err := strconv.ParseFloat(t.Qty, 64)
	if err != nil || qty < 0 {
		return model.Trade{}, fmt.Errorf("bad qty %q", t.Qty)
	}

	ticker := strings.TrimSuffix(strings.ToUpper(t.Symbol), "USDT")

	var ts time.Time
	if t.TradeTS > 0 {
		ts = time.Unix(0, t.TradeTS*int64(time.Millisecond)).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return model.Trade{Ticker: ticker, Price: price, Qty: qty, TS: ts}, nil
}
