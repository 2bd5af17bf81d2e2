package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finsurehub/finsurehub/internal/logx"
)

// Locker 跨进程互斥，拿不到锁返回 ErrBusy
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

const (
	lockKey = "finsurehub:ingest:lock"
	lockTTL = 30 * time.Minute
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisLocker rdb 为 nil 时返回 nil，调用方只用进程内互斥
func NewRedisLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return nil
	}
	return &RedisLocker{rdb: rdb, key: lockKey, ttl: lockTTL}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			logx.Warnf("release ingest lock: %v", err)
		}
	}, nil
}
