package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// 仅当 value 仍是自己的 token 时才删除，防止误删其他持有者续上的锁
var unlockScript = redis.NewScript(`
	if redis.call('get', KEYS[1]) == ARGV[1] then
		return redis.call('del', KEYS[1])
	end
	return 0
`)

// RedisLock 基于 SET NX EX 的分布式互斥锁
// TTL 到期自动释放，保活性优先于严格互斥
type RedisLock struct {
	rdb   redis.Cmdable
	key   string
	token string
}

func New(rdb redis.Cmdable, name string) *RedisLock {
	return &RedisLock{
		rdb:   rdb,
		key:   "lock:" + name,
		token: uuid.NewString(),
	}
}

// TryLock 非阻塞获取，失败立即返回 false
func (l *RedisLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
}

// Unlock 幂等，仅持有者可以释放
func (l *RedisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
