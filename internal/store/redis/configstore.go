package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hijackwatch/internal/riskctl"

	goredis "github.com/go-redis/redis/v8"
)

const activeConfigKey = "riskctl:active_config"

// ConfigStore persists risk config snapshots to Redis so a restart picks up
// the last known policy instead of the compiled defaults. Implements
// riskctl.Persister. The in-memory config stays the source of truth.
type ConfigStore struct {
	rdb *goredis.Client
}

// NewConfigStore creates a ConfigStore backed by the given client.
func NewConfigStore(rdb *goredis.Client) *ConfigStore {
	return &ConfigStore{rdb: rdb}
}

// SaveConfig stores the config snapshot. No TTL: the snapshot stays valid
// until the next save.
func (cs *ConfigStore) SaveConfig(ctx context.Context, cfg riskctl.RuntimeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cs.rdb.Set(saveCtx, activeConfigKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set config: %w", err)
	}
	return nil
}

// LoadConfig restores the last saved snapshot, or nil if none exists.
func (cs *ConfigStore) LoadConfig(ctx context.Context) (*riskctl.RuntimeConfig, error) {
	data, err := cs.rdb.Get(ctx, activeConfigKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get config: %w", err)
	}
	var cfg riskctl.RuntimeConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
