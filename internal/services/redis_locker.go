package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix    = "tripfund:lock:"
	lockTTLHeadroom  = 30 * time.Second
	minLockTTL       = 60 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// Release only the token we set, never a lock a later holder re-acquired
// after our TTL expired.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is the per-trip lock for multi-instance deployments. SetNX
// with a TTL plus a polling acquire; the TTL bounds how long a crashed
// holder can wedge a trip.
type RedisLocker struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewRedisLocker builds the locker sized for the given critical-section
// budget (the gateway timeout, since the trip lock is held across the
// gateway call). The lock TTL is that budget plus headroom so a slow but
// live holder never loses the lock mid-section.
func NewRedisLocker(cache *RedisCache, criticalSection time.Duration) *RedisLocker {
	ttl := criticalSection + lockTTLHeadroom
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	return &RedisLocker{cache: cache, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, tripID string) (func(), error) {
	key := lockKeyPrefix + tripID
	token := uuid.New().String()

	for {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				// Token is stored JSON-encoded by SetNX.
				if err := unlockScript.Run(rctx, l.cache.Client(), []string{key}, `"`+token+`"`).Err(); err != nil {
					log.Printf("releasing lock %s: %v", key, err)
				}
			}, nil
		}

		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
