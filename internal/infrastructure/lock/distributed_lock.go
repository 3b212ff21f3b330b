package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis SET NX EX lock. The value identifies the holder so Unlock
// never deletes a lock that expired and was re-acquired by someone
// else; the check-and-delete runs as a Lua script to stay atomic.

var ErrLockFailed = errors.New("failed to acquire distributed lock")

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts to take the lock without blocking.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock until it succeeds or retries run out.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewReconcileLock scopes a reconciliation batch to its organization.
// Row-level compare-and-set already keeps concurrent matchers from
// corrupting state; the lock just keeps two whole batches of the same
// org from interleaving their counts.
func NewReconcileLock(client *redis.Client, organizationID, batchNo string) *DistributedLock {
	key := fmt.Sprintf("reconcile:lock:org:%s", organizationID)
	return NewDistributedLock(client, key, batchNo, 60*time.Second)
}
