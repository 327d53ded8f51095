package directory

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	names map[string]string
	calls int
}

func (r *countingResolver) DisplayName(_ context.Context, userID string) (string, error) {
	r.calls++
	name, ok := r.names[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return name, nil
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	// nothing listens on this port
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingResolver{names: map[string]string{"u1": "Dr. Grey"}}
	c := NewCached(next, client, time.Minute, zerolog.Nop())

	name, err := c.DisplayName(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Grey", name)

	_, err = c.DisplayName(context.Background(), "u2")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestCachedServesFromRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	userID := uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), cacheKey(userID)) })

	next := &countingResolver{names: map[string]string{userID: "Dr. Shepherd"}}
	c := NewCached(next, client, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		name, err := c.DisplayName(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "Dr. Shepherd", name)
	}
	assert.Equal(t, 1, next.calls)
}
