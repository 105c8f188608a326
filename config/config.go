package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed
	BinanceWSURL string
	Tickers      string // comma-separated, e.g. "BTC,ETH,SOL"
	StagingMode  bool   // use the simulated feed instead of Binance

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	OpsAddr       string

	// Fusion
	WeightsPath   string // optional YAML weights file
	SignalAPIBase string // auxiliary sentiment/options/on-chain API base URL

	// Scan
	ScanInterval time.Duration

	// Security
	TOTPSecret string // guards kill-switch release and config reset

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BinanceWSURL: getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/stream"),
		Tickers:      getEnv("TICKERS", "BTC,ETH,SOL"),
		StagingMode:  getBool("STAGING_MODE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/hijackwatch.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		OpsAddr:       getEnv("OPS_ADDR", ":8080"),

		WeightsPath:   getEnv("WEIGHTS_PATH", ""),
		SignalAPIBase: getEnv("SIGNAL_API_BASE", ""),

		ScanInterval: getDuration("SCAN_INTERVAL", 10*time.Second),

		TOTPSecret: getEnv("RISK_TOTP_SECRET", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// ParseTickers splits the Tickers string into uppercased symbols.
func (c *Config) ParseTickers() []string {
	parts := strings.Split(c.Tickers, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		tickers = append(tickers, p)
	}
	return tickers
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
