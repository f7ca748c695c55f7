package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"leftear-ai/internal/model"
)

// PresetCache keeps presets in redis so the relay does not hit MySQL on every
// exchange. Admin writes invalidate entries; a short TTL covers the rest.
type PresetCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewPresetCache(client *redisv9.Client, ttl time.Duration) *PresetCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PresetCache{client: client, ttl: ttl}
}

func (c *PresetCache) Get(ctx context.Context, presetID uint) (*model.Preset, bool, error) {
	raw, err := c.client.Get(ctx, c.key(presetID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get preset failed: %w", err)
	}

	var preset model.Preset
	if err := json.Unmarshal([]byte(raw), &preset); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached preset failed: %w", err)
	}
	return &preset, true, nil
}

func (c *PresetCache) Set(ctx context.Context, preset *model.Preset) error {
	payload, err := json.Marshal(preset)
	if err != nil {
		return fmt.Errorf("marshal preset cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(preset.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set preset failed: %w", err)
	}
	return nil
}

func (c *PresetCache) Delete(ctx context.Context, presetID uint) error {
	if err := c.client.Del(ctx, c.key(presetID)).Err(); err != nil {
		return fmt.Errorf("redis delete preset failed: %w", err)
	}
	return nil
}

func (c *PresetCache) key(presetID uint) string {
	return fmt.Sprintf("preset:%d", presetID)
}
