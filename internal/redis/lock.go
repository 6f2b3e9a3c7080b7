package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireRiderLock attempts to acquire the booking lock for the given rider.
// Returns the lock token and true if the lock was acquired, false if already held.
func (s *LockStore) AcquireRiderLock(ctx context.Context, riderID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, riderLockKey(riderID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}

	return token, ok, nil
}

// ReleaseRiderLock releases the rider's booking lock if token still owns it.
func (s *LockStore) ReleaseRiderLock(ctx context.Context, riderID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{riderLockKey(riderID)}, token).Err()
}

func riderLockKey(riderID string) string {
	return fmt.Sprintf("lock:rider:%s", riderID)
}
