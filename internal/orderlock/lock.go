package orderlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/redis"
)

const (
	defaultTTL        = 30 * time.Second
	defaultWaitBudget = 5 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
)

// Locker serializes all mutations of a single order. Every component that
// writes order state acquires this scope first, regardless of which API
// surface it entered from.
type Locker interface {
	WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error
}

// RedisLocker implements Locker with a SETNX keyed mutex per order.
type RedisLocker struct {
	store      redis.LockStore
	ttl        time.Duration
	waitBudget time.Duration
	retryDelay time.Duration
}

// Params configure the locker.
type Params struct {
	Store      redis.LockStore
	TTL        time.Duration
	WaitBudget time.Duration
	RetryDelay time.Duration
}

// New builds a Redis-backed order locker.
func New(params Params) (*RedisLocker, error) {
	if params.Store == nil {
		return nil, errors.New("lock store is required")
	}
	locker := &RedisLocker{
		store:      params.Store,
		ttl:        params.TTL,
		waitBudget: params.WaitBudget,
		retryDelay: params.RetryDelay,
	}
	if locker.ttl <= 0 {
		locker.ttl = defaultTTL
	}
	if locker.waitBudget <= 0 {
		locker.waitBudget = defaultWaitBudget
	}
	if locker.retryDelay <= 0 {
		locker.retryDelay = defaultRetryDelay
	}
	return locker, nil
}

// WithOrderLock runs fn while holding the per-order mutex. A lock that cannot
// be acquired within the wait budget surfaces as a retryable conflict.
func (l *RedisLocker) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if fn == nil {
		return errors.New("lock callback is required")
	}

	key := l.store.OrderLockKey(orderID.String())
	owner := uuid.NewString()

	deadline := time.Now().Add(l.waitBudget)
	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is being modified by another request")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	defer l.release(ctx, key, owner)
	return fn(ctx)
}

// release frees the lock only if the owner token still matches. A lock whose
// TTL already expired may have been taken by someone else; leave it alone.
func (l *RedisLocker) release(ctx context.Context, key, owner string) {
	value, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return
		}
		return
	}
	if value != owner {
		return
	}
	_ = l.store.Del(ctx, key)
}

// Describe reports the lock key pattern, useful in diagnostics.
func (l *RedisLocker) Describe(orderID uuid.UUID) string {
	return fmt.Sprintf("%s (ttl=%s)", l.store.OrderLockKey(orderID.String()), l.ttl)
}
