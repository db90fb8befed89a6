package syncjob

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callsync/pkg/utils"
)

// ErrLeaseHeld means another run is already processing the integration.
var ErrLeaseHeld = errors.New("syncjob: lease held by another run")

// ReleaseFunc gives a lease back. It must be safe to call after the lease expired.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out per-integration run leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// RedisLocker leases through Redis so overlapping runs on different hosts exclude each other.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "callsync:lease:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	owner := uuid.NewString()
	full := l.prefix + key

	ok, err := utils.AcquireLease(ctx, l.rdb, full, owner, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return func(ctx context.Context) error {
		return utils.ReleaseLease(ctx, l.rdb, full, owner)
	}, nil
}

// MemoryLocker leases within one process. Used when Redis is not configured, and in tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	clock func() time.Time
}

type memoryLease struct {
	owner   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memoryLease{}, clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrLeaseHeld
	}
	owner := uuid.NewString()
	l.held[key] = memoryLease{owner: owner, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.owner == owner {
			delete(l.held, key)
		}
		return nil
	}, nil
}
