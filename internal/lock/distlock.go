// Package lock provides a Redis-backed distributed lock used to guarantee
// at most one Hold Lifecycle Manager instance runs its sweep at a time.
// Grounded on the rate limiter's Lua-script idiom (middleware/ratelimit.go):
// a single atomic script both checks and mutates state so the compare and
// the action can never race between separate instances holding separate
// TCP connections to Redis.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds this caller's
// token, so a slow instance that outlives its TTL can never delete a lock
// acquired in the meantime by a different instance.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// refreshScript extends the key's TTL only if it still holds this caller's
// token, atomically, so a concurrent take-over by another instance can
// never be clobbered by a stale refresh.
var refreshScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

// Lock is a held distributed lock. Release is safe to call from a deferred
// statement even if the lock's TTL has already expired.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire attempts to claim the named lock for the given TTL using a single
// SET NX PX, and returns ok=false without error if some other instance
// already holds it.
func Acquire(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{rdb: rdb, key: key, token: token}, true, nil
}

// Refresh extends the lock's TTL, letting a long-running holder keep the
// lock past its initial TTL without risking a take-over. The lifecycle
// sweeper does not call it. Returns ok=false if the lock was lost (e.g.
// Redis evicted it under memory pressure) so the caller can abort its work
// rather than continue unguarded.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release deletes the lock if it is still owned by this Lock instance.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}
