package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
)

// Release must compare the owner token before deleting, otherwise a lock
// that expired and was re-acquired by another worker could be stolen.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// LockManager hands out scoped distributed locks and runs critical sections
// under them. Webhook reconciliation locks per payment, the billing scheduler
// locks per subscription.
type LockManager struct {
	client     *redis.Client
	maxRetries int
	retryDelay time.Duration
}

// NewLockManager creates a LockManager with the default acquisition policy.
func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{
		client:     client,
		maxRetries: 5,
		retryDelay: 100 * time.Millisecond,
	}
}

// WithLock runs fn while holding the named lock. Acquisition failure returns
// ErrLockAcquisitionFailed without running fn. The lock is best-effort
// released afterwards; if the release is lost the TTL bounds the damage.
func (m *LockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := m.acquire(ctx, "lock:"+key, ttl)
	if err != nil {
		return domainErrors.NewDomainError(
			"lock_acquisition_failed",
			"could not acquire lock "+key,
			domainErrors.ErrLockAcquisitionFailed,
		)
	}
	defer m.release(context.WithoutCancel(ctx), "lock:"+key, token)

	return fn(ctx)
}

func (m *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}

	return "", fmt.Errorf("lock %s held elsewhere after %d attempts", key, m.maxRetries)
}

func (m *LockManager) release(ctx context.Context, key, token string) {
	// A zero result means the lock expired or changed owner; nothing to do.
	releaseScript.Run(ctx, m.client, []string{key}, token)
}
