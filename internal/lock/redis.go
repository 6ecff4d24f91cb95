package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only when it still holds the
// presented acquisition token, so a late release after TTL expiry
// cannot free a lease someone else re-acquired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLocker is the multi-process lease backend. SET NX PX gives
// atomic acquire-with-TTL; release is token-checked via Lua.
type RedisLocker struct {
	client  *redis.Client
	owner   string
	release *redis.Script
}

// NewRedisLocker creates a lease backend on the given Redis client.
// owner prefixes the minted tokens for log readability.
func NewRedisLocker(client *redis.Client, owner string) *RedisLocker {
	return &RedisLocker{
		client:  client,
		owner:   owner,
		release: redis.NewScript(releaseScript),
	}
}

func leaseKey(subscriptionID string) string {
	return "botcore:lease:" + subscriptionID
}

func (r *RedisLocker) Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (string, bool, error) {
	token := r.owner + ":" + uuid.NewString()
	ok, err := r.client.SetNX(ctx, leaseKey(subscriptionID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", subscriptionID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisLocker) Release(ctx context.Context, subscriptionID, token string) error {
	if err := r.release.Run(ctx, r.client, []string{leaseKey(subscriptionID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", subscriptionID, err)
	}
	return nil
}
