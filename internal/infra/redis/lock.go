package redis

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrLockHeld means another owner has the key.
	ErrLockHeld = errors.New("lock held by another owner")
	// ErrLockLost means the lock expired or was taken over before release.
	ErrLockLost = errors.New("lock lost before release")
)

// RedisLocker hands out single-attempt leases. Tokens carry the host name
// so a stuck key can be traced to the instance holding it.
type RedisLocker struct {
	cli   *redis.Client
	owner string
}

func NewLocker(c *Client) *RedisLocker {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &RedisLocker{cli: c.cli, owner: host}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := l.owner + "/" + ulid.Make().String()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	switch {
	case err != nil:
		return "", err
	case !ok:
		return "", ErrLockHeld
	}
	return token, nil
}

// compare-and-delete so a late release never frees another owner's lease
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.cli, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
