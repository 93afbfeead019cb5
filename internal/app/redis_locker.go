package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a distributed lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for record lock")

// RedisLocker implements Locker across service replicas with redsync mutexes.
// A held lock is extended every half TTL until it is released.
type RedisLocker struct {
	redsync  *redsync.Redsync
	prefix   string
	ttl      time.Duration
	maxWait  time.Duration
	retryGap time.Duration
	logger   *slog.Logger
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder
// can keep a key locked.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "banklink:lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{
		redsync:  redsync.New(goredis.NewPool(client)),
		prefix:   trimmedPrefix,
		ttl:      ttl,
		maxWait:  ttl,
		retryGap: 25 * time.Millisecond,
		logger:   logger.With("component", "redis_locker"),
	}
}

func (r *RedisLocker) tries() int {
	n := int(r.maxWait / r.retryGap)
	if n < 1 {
		return 1
	}
	return n
}

// Lock acquires key, retrying until it is free, ctx is done or the wait budget is spent.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	mutex := r.redsync.NewMutex(
		redisKey,
		redsync.WithExpiry(r.ttl),
		redsync.WithTries(r.tries()),
		redsync.WithRetryDelay(r.retryGap),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, redsync.ErrFailed) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		// Contention on the final try surfaces as a taken-by-another-node error.
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(mutex, redisKey, stop, done)

	return func() {
		close(stop)
		<-done
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(releaseCtx); err != nil || !ok {
			r.logger.Warn("failed to release record lock", "lock_key", redisKey, "unlock_ok", ok, "error", err)
		}
	}, nil
}

func (r *RedisLocker) keepAlive(mutex *redsync.Mutex, redisKey string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extendCtx, cancel := context.WithTimeout(context.Background(), r.ttl/2)
			ok, err := mutex.ExtendContext(extendCtx)
			cancel()
			if err != nil || !ok {
				r.logger.Warn("failed to extend record lock", "lock_key", redisKey, "extend_ok", ok, "error", err)
				return
			}
		}
	}
}
