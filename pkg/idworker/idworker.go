package idworker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

const (
	// 起始时间戳 2022-01-01 00:00:00 UTC
	beginTimestamp = 1640995200
	// 序列号位数
	countBits = 32
)

// IDWorker 基于 Redis 自增实现的全局唯一ID生成器
// id = (相对起始的秒级时间戳 << 32) | 当天自增序列
type IDWorker struct {
	rdb redis.Cmdable
}

func New(rdb redis.Cmdable) *IDWorker {
	return &IDWorker{rdb: rdb}
}

// NextID 并发安全，同一 (scope, 日期) 内严格递增
// Redis 不可用时直接报错，绝不本地降级生成，否则无法保证全局唯一
func (w *IDWorker) NextID(ctx context.Context, scope string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - beginTimestamp

	// 计数器按天分 key，避免单 key 自增耗尽序列号
	date := now.Format("2006:01:02")
	count, err := w.rdb.Incr(ctx, fmt.Sprintf("icr:%s:%s", scope, date)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "idworker: incr failed for scope %s", scope)
	}

	return timestamp<<countBits | count, nil
}
