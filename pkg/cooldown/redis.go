package cooldown

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "modcore:cooldown:"

// Redis shares cooldowns through SET NX PX.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to addr, which may be host:port or a redis:// URL.
// db is ignored for URLs, which carry their own database.
func NewRedis(addr string, db int, prefix string) (*Redis, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("cooldown: invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr, DB: db}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cooldown: redis ping: %w", err)
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Allow(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	if ttl <= 0 {
		return true, 0, nil
	}
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, 1, ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown: set %s: %w", key, err)
	}
	if ok {
		return true, 0, nil
	}
	left, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown: ttl %s: %w", key, err)
	}
	if left < 0 {
		// No expiry or already gone; treat as the full window.
		left = ttl
	}
	return false, left, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
