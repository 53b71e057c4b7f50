package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tradeguard/internal/domain"
)

// unlockLua deletes the key only while it still holds our token, so an
// expired holder cannot drop a lock someone else has since taken.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisPassLock implements domain.PassLocker with SET NX and a TTL.
type RedisPassLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// NewRedisPassLock creates a pass lock backed by rdb.
func NewRedisPassLock(rdb *redis.Client) *RedisPassLock {
	return &RedisPassLock{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire takes the lock or returns domain.ErrLockHeld. The returned unlock
// func may be called more than once.
func (l *RedisPassLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := "lock:" + key

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// the caller's context may already be cancelled
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

// LocalPassLock is the single-process PassLocker used when Redis is not
// configured.
type LocalPassLock struct {
	held chan struct{}
}

// NewLocalPassLock creates an in-process lock.
func NewLocalPassLock() *LocalPassLock {
	return &LocalPassLock{held: make(chan struct{}, 1)}
}

// Acquire ignores key and ttl; there is only one holder per process.
func (l *LocalPassLock) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	select {
	case l.held <- struct{}{}:
	default:
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-l.held
	}, nil
}

var (
	_ domain.PassLocker = (*RedisPassLock)(nil)
	_ domain.PassLocker = (*LocalPassLock)(nil)
)
