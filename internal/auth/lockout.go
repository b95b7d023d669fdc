package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failuresPrefix = "auth:failures:"
	lockPrefix     = "auth:lock:"
)

// Lockout counts failed logins per username and blocks the username for a
// cool-down once the limit is reached. Counters expire on their own after
// the cool-down, so an idle username starts over.
type Lockout struct {
	rdb         *redis.Client
	maxAttempts int
	lockFor     time.Duration
}

// NewLockout allows maxAttempts consecutive failures before locking for lockFor.
func NewLockout(rdb *redis.Client, maxAttempts int, lockFor time.Duration) *Lockout {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Lockout{rdb: rdb, maxAttempts: maxAttempts, lockFor: lockFor}
}

// Locked returns how long the username stays locked, 0 when it is not.
func (l *Lockout) Locked(ctx context.Context, username string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, lockPrefix+normalize(username)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil // -2: no key, -1: no expiry (never set by us)
	}
	return ttl, nil
}

// RegisterFailure records a failed attempt. It returns the attempts left
// before a lock, and the lock duration when this failure triggered one.
func (l *Lockout) RegisterFailure(ctx context.Context, username string) (int, time.Duration, error) {
	key := failuresPrefix + normalize(username)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.lockFor)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	n := int(incr.Val())
	if n < l.maxAttempts {
		return l.maxAttempts - n, 0, nil
	}

	pipe = l.rdb.TxPipeline()
	pipe.Set(ctx, lockPrefix+normalize(username), n, l.lockFor)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return 0, l.lockFor, nil
}

// Reset clears the failure counter after a successful login.
func (l *Lockout) Reset(ctx context.Context, username string) error {
	return l.rdb.Del(ctx, failuresPrefix+normalize(username)).Err()
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
