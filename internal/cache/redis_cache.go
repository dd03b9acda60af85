package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
)

// RedisSessionCache stores session state as JSON strings and keeps a sorted
// set of live rooms scored by viewer count.
type RedisSessionCache struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionCache(cfg config.RedisConfig, prefix string) (*RedisSessionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSessionCacheFromClient(client, prefix), nil
}

// NewRedisSessionCacheFromClient wraps an existing client.
func NewRedisSessionCacheFromClient(client *redis.Client, prefix string) *RedisSessionCache {
	return &RedisSessionCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisSessionCache) sessionKey(roomID string) string {
	return fmt.Sprintf("%s:session:%s", c.prefix, roomID)
}

func (c *RedisSessionCache) liveKey() string {
	return c.prefix + ":live"
}

func (c *RedisSessionCache) SetSession(ctx context.Context, state *domain.LiveSessionState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	if err := c.client.Set(ctx, c.sessionKey(state.RoomID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) GetSession(ctx context.Context, roomID string) (*domain.LiveSessionState, error) {
	data, err := c.client.Get(ctx, c.sessionKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.LiveSessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return &state, nil
}

func (c *RedisSessionCache) DeleteSession(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, c.sessionKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) MarkLive(ctx context.Context, roomID string, viewers int) error {
	err := c.client.ZAdd(ctx, c.liveKey(), redis.Z{Score: float64(viewers), Member: roomID}).Err()
	if err != nil {
		return fmt.Errorf("failed to index live room: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) UnmarkLive(ctx context.Context, roomID string) error {
	if err := c.client.ZRem(ctx, c.liveKey(), roomID).Err(); err != nil {
		return fmt.Errorf("failed to unindex live room: %w", err)
	}
	return nil
}

// LiveRooms returns live room ids, most watched first.
func (c *RedisSessionCache) LiveRooms(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := c.client.ZRevRange(ctx, c.liveKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read live index: %w", err)
	}
	return ids, nil
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
