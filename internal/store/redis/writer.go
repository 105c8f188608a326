// Package redis holds the hot read state: latest observation per ticker,
// the force leaderboard snapshot, and pubsub fan-out of force readings and
// trade signals for dashboards. SQLite stays the durable archive.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"hijackwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~3h of per-second readings + buffer
	forceStreamMaxLen = 12000
	defaultLatestTTL  = 30 * time.Minute

	leaderboardKey = "force:leaderboard"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes observations, force readings, and signals to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// RunObservations reads observations from obsCh and keeps the latest value
// per ticker in Redis. Blocks until ctx is cancelled or obsCh is closed.
func (w *Writer) RunObservations(ctx context.Context, obsCh <-chan model.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			w.writeObservation(ctx, obs)
		}
	}
}

// writeObservation performs pipelined writes for one observation.
func (w *Writer) writeObservation(ctx context.Context, obs model.Observation) {
	latestKey := "obs:latest:" + obs.Ticker
	pubsubCh := "pub:obs:" + obs.Ticker
	jsonData := string(obs.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] observation pipeline error for %s: %v", obs.Ticker, err)
	}
}

// writeReading publishes a force reading: SET latest, XADD to the ticker's
// force stream with auto-trimming (~3h window), PUBLISH for subscribers.
func (w *Writer) writeReading(ctx context.Context, r model.ForceReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal force reading: %w", err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "force:latest:"+r.Ticker, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "force:" + r.Ticker,
		MaxLen: forceStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:force:"+r.Ticker, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("force reading pipeline for %s: %w", r.Ticker, err)
	}
	return nil
}

// WriteLeaderboard stores the full leaderboard snapshot, strongest force
// first. Overwrites the previous snapshot; readers always see one cycle.
func (w *Writer) WriteLeaderboard(ctx context.Context, readings []model.ForceReading) error {
	data, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := w.client.Set(ctx, leaderboardKey, data, defaultLatestTTL).Err(); err != nil {
		return fmt.Errorf("redis set leaderboard: %w", err)
	}
	return nil
}

// ReadLeaderboard returns the last stored leaderboard snapshot, or nil if
// none exists.
func (w *Writer) ReadLeaderboard(ctx context.Context) ([]model.ForceReading, error) {
	data, err := w.client.Get(ctx, leaderboardKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get leaderboard: %w", err)
	}
	var readings []model.ForceReading
	if err := json.Unmarshal([]byte(data), &readings); err != nil {
		return nil, fmt.Errorf("unmarshal leaderboard: %w", err)
	}
	return readings, nil
}

// publishSignal pushes a fused trade signal to its pubsub channel.
func (w *Writer) publishSignal(ctx context.Context, sig model.TradeSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal trade signal: %w", err)
	}
	if err := w.client.Publish(ctx, "pub:signal:"+sig.Ticker, string(data)).Err(); err != nil {
		return fmt.Errorf("publish signal for %s: %w", sig.Ticker, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
