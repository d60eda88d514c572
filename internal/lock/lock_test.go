package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop_AlwaysGrants(t *testing.T) {
	var l Locker = Noop{}
	for i := 0; i < 2; i++ {
		release, ok, err := l.Acquire(context.Background(), "k", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		release()
	}
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisFromClient(c)
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	release, ok, err := r.Acquire(ctx, "opsnotify:sweep", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
	require.NotNil(t, release)
	release() // must not panic

	assert.Error(t, r.Ping(ctx))
}
