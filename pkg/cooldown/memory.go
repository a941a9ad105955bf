package cooldown

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps cooldowns in a process-local TTL cache.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an in-process limiter. Expired entries are purged every minute.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) Allow(_ context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	if ttl <= 0 {
		return true, 0, nil
	}
	if err := m.c.Add(key, struct{}{}, ttl); err == nil {
		return true, 0, nil
	}
	_, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		// Expired between Add and Get.
		m.c.Set(key, struct{}{}, ttl)
		return true, 0, nil
	}
	return false, time.Until(exp), nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
