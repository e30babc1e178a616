package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SweepLockKey builds the redis key guarding one expiry sweep per day.
func SweepLockKey(day time.Time) string {
	return fmt.Sprintf("ncompliance:sweep:expiry:%s:lock", day.Format("2006-01-02"))
}

// Lock is a best-effort redis mutex released by Unlock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

var unlockScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AcquireLock takes key for ttl or returns ErrLockHeld.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: client, key: key, token: token}, nil
}

// Unlock releases the lock if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
