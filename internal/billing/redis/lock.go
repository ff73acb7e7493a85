package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-tableside/internal/logger"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "order_pay_lock:"

// releaseScript deletes the key only while it still holds the caller's owner value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{Client: client, TTL: ttl, Logger: log}
}

func lockKey(orderID string) string {
	return keyPrefix + orderID
}

// Lock a single order
func (l *Locker) LockOrder(ctx context.Context, orderID, owner string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(orderID), owner, l.TTL).Result()
}

// Unlock a single order, leaving it alone when another owner holds it
func (l *Locker) UnlockOrder(ctx context.Context, orderID, owner string) error {
	err := releaseScript.Run(ctx, l.Client, []string{lockKey(orderID)}, owner).Err()
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// LockOrders takes every lock or none. Keys are taken in sorted order so two payments over
// overlapping sets cannot each hold half.
func (l *Locker) LockOrders(ctx context.Context, orderIDs []string, owner string) (bool, error) {
	sorted := append([]string(nil), orderIDs...)
	sort.Strings(sorted)

	locked := []string{}
	for _, id := range sorted {
		ok, err := l.LockOrder(ctx, id, owner)
		if err != nil || !ok {
			if uerr := l.UnlockOrders(ctx, locked, owner); uerr != nil {
				l.Logger.Warn("REDIS", fmt.Sprintf("rollback of partial lock failed: %v", uerr))
			}
			if err != nil {
				return false, fmt.Errorf("lock order %s: %w", id, err)
			}
			l.Logger.Debug("REDIS", fmt.Sprintf("order %s is held by another payment", id))
			return false, nil
		}
		locked = append(locked, id)
	}
	return true, nil
}

// Unlock multiple orders
func (l *Locker) UnlockOrders(ctx context.Context, orderIDs []string, owner string) error {
	var firstErr error
	for _, id := range orderIDs {
		if err := l.UnlockOrder(ctx, id, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
