package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有持有者才能删锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a single-holder Redis lock with expiry.
type Lock struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

func NewLock(rdb *redis.Client, name string, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, key: "lab:lock:" + name, ttl: ttl}
}

// TryAcquire reports whether this caller now holds the lock.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.token = token
	return true, nil
}

func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
	l.token = ""
	return err
}
