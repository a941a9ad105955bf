package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsPerUserAndCommand(t *testing.T) {
	assert.Equal(t, "42-ban", Key("42", "Ban"))
	assert.NotEqual(t, Key("42", "ban"), Key("43", "ban"))
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	ok, _, err := m.Allow(ctx, "u-ban", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, left, err := m.Allow(ctx, "u-ban", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, left, time.Duration(0))
	assert.LessOrEqual(t, left, time.Minute)

	ok, _, _ = m.Allow(ctx, "u-kick", time.Minute)
	assert.True(t, ok, "other commands are independent")

	require.NoError(t, m.Reset(ctx, "u-ban"))
	ok, _, _ = m.Allow(ctx, "u-ban", time.Minute)
	assert.True(t, ok)

	ok, _, _ = m.Allow(ctx, "u-x", 0)
	assert.True(t, ok)
	ok, _, _ = m.Allow(ctx, "u-x", 0)
	assert.True(t, ok, "zero ttl never blocks")
}

func TestMemoryLimiterExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ok, _, _ := m.Allow(ctx, "k", 20*time.Millisecond)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	ok, _, _ = m.Allow(ctx, "k", 20*time.Millisecond)
	assert.True(t, ok)
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedisWithClient(client, "")
	defer r.Close()
	ctx := context.Background()

	ok, _, err := r.Allow(ctx, "u-warn", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(defaultPrefix+"u-warn"))

	ok, left, err := r.Allow(ctx, "u-warn", 3*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3*time.Second, left)

	mr.FastForward(3 * time.Second)
	ok, _, err = r.Allow(ctx, "u-warn", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Reset(ctx, "u-warn"))
	assert.False(t, mr.Exists(defaultPrefix+"u-warn"))
}

func TestNewSelectsBackend(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	_, err = New(Options{Backend: "redis"})
	assert.Error(t, err)

	_, err = New(Options{Backend: "etcd"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	l, err = New(Options{Backend: "Redis", RedisAddr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer l.Close()
	ok, _, err := l.Allow(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("test:k"))
}
