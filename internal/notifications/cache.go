package notifications

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const unreadKeyPrefix = "ncompliance:notifications:unread:"

// UnreadCache memoises per-user unread counts in redis. A nil cache or
// client turns every call into a miss.
type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUnreadCache instantiates the cache helper.
func NewUnreadCache(client *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UnreadCache{client: client, ttl: ttl}
}

func unreadKey(userID int64) string {
	return unreadKeyPrefix + strconv.FormatInt(userID, 10)
}

// Get returns the cached count and whether it was present.
func (c *UnreadCache) Get(ctx context.Context, userID int64) (int, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}
	n, err := c.client.Get(ctx, unreadKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Set stores the count until the TTL elapses or the user's inbox changes.
func (c *UnreadCache) Set(ctx context.Context, userID int64, n int) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, unreadKey(userID), n, c.ttl).Err()
}

// Invalidate drops the counts of the given users.
func (c *UnreadCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	pipe := c.client.Pipeline()
	for start := 0; start < len(keys); start += 500 {
		end := min(start+500, len(keys))
		pipe.Del(ctx, keys[start:end]...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
