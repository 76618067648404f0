package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another cycle currently owns the lock.
var ErrLockHeld = errors.New("escalation cycle already running")

// Locker guards a cycle. Acquire returns a release func or ErrLockHeld.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLock prevents overlapping cycles inside one process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) Acquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLockHeld
	}
	return l.mu.Unlock, nil
}

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// CycleLock is a single-writer lock shared by every worker pointed at the same Redis.
// The TTL bounds how long a crashed holder can block others.
type CycleLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewCycleLock(client redis.Cmdable, key string, ttl time.Duration) *CycleLock {
	return &CycleLock{client: client, key: key, ttl: ttl}
}

func (l *CycleLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("Escalation: failed to release cycle lock: %v", err)
		}
	}
	return release, nil
}
