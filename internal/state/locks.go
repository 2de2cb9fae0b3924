package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockTTL must outlive the longest expected transition; an expired
// lock self-releases so a future tick can retry.
const lockTTL = 10 * time.Second

// releaseScript deletes the lock only when the caller still holds it,
// so a slow holder never releases a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// acquireLock takes key with SET NX EX and a random holder token.
// held=false means another process owns the transition right now.
func (s *Store) acquireLock(ctx context.Context, key string) (token string, held bool, err error) {
	token = uuid.NewString()
	held, err = s.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, held, nil
}

// releaseLock gives key back if we still hold it. Failures only log;
// the TTL reclaims the lock either way.
func (s *Store) releaseLock(ctx context.Context, key, token string) {
	if err := releaseScript.Run(ctx, s.rdb, []string{key}, token).Err(); err != nil {
		slog.Warn("state store: lock release failed", "key", key, "error", err)
	}
}
