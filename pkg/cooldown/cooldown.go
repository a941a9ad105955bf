// Package cooldown rate-limits slash commands per user and command.
//
// Two backends are available: an in-process TTL cache and a Redis store
// that lets several bot processes share the same cooldowns.
package cooldown

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Limiter records command usage and reports the remaining wait.
type Limiter interface {
	// Allow reserves key for ttl. When the key is still reserved it returns
	// false and the time left.
	Allow(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// Key builds the per-user per-command cooldown key.
func Key(userID, command string) string {
	return userID + "-" + strings.ToLower(command)
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	RedisAddr string
	// RedisDB selects the logical database when RedisAddr is host:port.
	RedisDB int
	Prefix  string
}

// New returns the limiter selected by opts.Backend.
func New(opts Options) (Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("cooldown: redis backend needs an address")
		}
		return NewRedis(opts.RedisAddr, opts.RedisDB, opts.Prefix)
	default:
		return nil, fmt.Errorf("cooldown: unknown backend %q", opts.Backend)
	}
}
