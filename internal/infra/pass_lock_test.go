package infra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeguard/internal/domain"
)

func TestLocalPassLock(t *testing.T) {
	lock := NewLocalPassLock()
	ctx := context.Background()

	unlock, err := lock.Acquire(ctx, "pass", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "pass", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock() // second call is a no-op

	unlock2, err := lock.Acquire(ctx, "pass", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRedisPassLock(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	lock := NewRedisPassLock(rdb)
	key := "tradeguard-test-" + time.Now().Format("150405.000")

	unlock, err := lock.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock2, err := lock.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	unlock2()
}
