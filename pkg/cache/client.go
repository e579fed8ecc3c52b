package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/Ajie-upup/ajie-comment/pkg/lock"
)

// ErrNotFound 实体不存在，loader 和三种查询策略统一用它表示未命中
var ErrNotFound = errors.New("cache: entity not found")

// 空值占位符，短 TTL 吸收重复的穿透查询
const nullPlaceholder = ""

const (
	defaultNullTTL    = 2 * time.Minute
	defaultLockTTL    = 10 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
	rebuildTimeout    = 10 * time.Second
)

// Loader 回源函数，实体不存在时返回 ErrNotFound
type Loader func(ctx context.Context) (interface{}, error)

// Client 缓存旁路读取客户端，提供三种互斥的防击穿/防穿透策略
type Client struct {
	rdb *redis.Client
	log *logrus.Logger
	cb  *gobreaker.CircuitBreaker
	sf  singleflight.Group

	// 逻辑过期重建任务走固定大小的后台池，读路径永不等待回源
	tasks chan func()

	nullTTL    time.Duration
	lockTTL    time.Duration
	retryDelay time.Duration

	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

// redisData 逻辑过期信封，过期时间嵌在 payload 内而非依赖物理 TTL
type redisData struct {
	ExpireAt time.Time       `json:"expire_at"`
	Data     json.RawMessage `json:"data"`
}

func NewClient(ctx context.Context, rdb *redis.Client, log *logrus.Logger, rebuildWorkers int, wg *sync.WaitGroup) *Client {
	st := gobreaker.Settings{
		Name:     "CacheRedisBreaker",
		Interval: 10 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[Cache] circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	if rebuildWorkers <= 0 {
		rebuildWorkers = 10
	}

	c := &Client{
		rdb:        rdb,
		log:        log,
		cb:         gobreaker.NewCircuitBreaker(st),
		tasks:      make(chan func(), 512),
		nullTTL:    defaultNullTTL,
		lockTTL:    defaultLockTTL,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		jitter: func(ttl time.Duration) time.Duration {
			return ttl + time.Duration(rand.Intn(60))*time.Second
		},
	}

	for i := 0; i < rebuildWorkers; i++ {
		wg.Add(1)
		go c.rebuildWorker(ctx, wg)
	}

	return c
}

func (c *Client) rebuildWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.tasks:
			task()
		}
	}
}

// get 熔断器包裹的缓存读取，返回 (值, 是否命中, 错误)
func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.cb.Execute(func() (interface{}, error) {
		res, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return "", false, err
	}
	if val == nil {
		return "", false, nil
	}
	return val.(string), true, nil
}

// QueryWithPassThrough 缓存穿透防护：未命中回源，实体不存在时缓存短 TTL 空值
func (c *Client) QueryWithPassThrough(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader Loader) error {
	val, hit, err := c.get(ctx, key)
	if err != nil {
		return err
	}
	if hit {
		// 命中空值占位，直接短路，不打数据库
		if val == nullPlaceholder {
			return ErrNotFound
		}
		return json.Unmarshal([]byte(val), dest)
	}

	return c.loadAndCache(ctx, key, dest, ttl, loader)
}

// QueryWithMutex 缓存击穿防护：同一热点 key 的并发重建串行化为一个赢家
func (c *Client) QueryWithMutex(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader Loader) error {
	for {
		val, hit, err := c.get(ctx, key)
		if err != nil {
			return err
		}
		if hit {
			if val == nullPlaceholder {
				return ErrNotFound
			}
			return json.Unmarshal([]byte(val), dest)
		}

		mu := lock.New(c.rdb, key)
		ok, err := mu.TryLock(ctx, c.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			// 别人正在重建，稍等后重新走整个查询
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		err = c.loadAndCache(ctx, key, dest, ttl, loader)
		if unlockErr := mu.Unlock(ctx); unlockErr != nil {
			c.log.Warnf("[Cache] unlock %s failed: %v", key, unlockErr)
		}
		return err
	}
}

func (c *Client) loadAndCache(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader Loader) error {
	entity, err := loader(ctx)
	if errors.Is(err, ErrNotFound) {
		if setErr := c.rdb.Set(ctx, key, nullPlaceholder, c.nullTTL).Err(); setErr != nil {
			c.log.Warnf("[Cache] write null placeholder %s failed: %v", key, setErr)
		}
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	buf, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	if setErr := c.rdb.Set(ctx, key, buf, c.jitter(ttl)).Err(); setErr != nil {
		c.log.Warnf("[Cache] write cache %s failed: %v", key, setErr)
	}
	return json.Unmarshal(buf, dest)
}

// QueryWithLogicalExpire 逻辑过期：命中即返回，过期时返回旧值并触发一次后台重建
// 读路径延迟与回源耗时解耦，换取短暂的数据陈旧
func (c *Client) QueryWithLogicalExpire(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader Loader) error {
	val, hit, err := c.get(ctx, key)
	if err != nil {
		return err
	}
	// 未预热的 key 视为不存在，预热由 SetLogical 完成
	if !hit {
		return ErrNotFound
	}
	if val == nullPlaceholder {
		return ErrNotFound
	}

	var rd redisData
	if err := json.Unmarshal([]byte(val), &rd); err != nil {
		return err
	}
	if err := json.Unmarshal(rd.Data, dest); err != nil {
		return err
	}

	if rd.ExpireAt.After(c.now()) {
		return nil
	}

	// 已过期：抢到重建锁的负责投递后台任务，没抢到的直接返回旧值
	mu := lock.New(c.rdb, key)
	ok, err := mu.TryLock(ctx, c.lockTTL)
	if err != nil || !ok {
		return nil
	}

	task := func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		defer func() {
			if unlockErr := mu.Unlock(bgCtx); unlockErr != nil {
				c.log.Warnf("[Cache] unlock rebuild lock %s failed: %v", key, unlockErr)
			}
		}()

		// singleflight 合并同进程内的重复重建
		_, err, _ := c.sf.Do(key, func() (interface{}, error) {
			entity, err := loader(bgCtx)
			if err != nil {
				return nil, err
			}
			return nil, c.SetLogical(bgCtx, key, entity, ttl)
		})
		if err != nil {
			c.log.Errorf("[Cache] rebuild %s failed: %v", key, err)
		}
	}

	select {
	case c.tasks <- task:
	default:
		// 池满放弃本轮重建，释放锁让下一个过期读重试
		if unlockErr := mu.Unlock(ctx); unlockErr != nil {
			c.log.Warnf("[Cache] unlock rebuild lock %s failed: %v", key, unlockErr)
		}
	}
	return nil
}

// SetLogical 写入带逻辑过期时间的缓存条目，无物理 TTL，用于预热和重建
func (c *Client) SetLogical(ctx context.Context, key string, entity interface{}, ttl time.Duration) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(redisData{
		ExpireAt: c.now().Add(ttl),
		Data:     data,
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, buf, 0).Err()
}

// SetNull 写入空值占位，短 TTL 内吸收对不存在实体的重复查询
func (c *Client) SetNull(ctx context.Context, key string) error {
	return c.rdb.Set(ctx, key, nullPlaceholder, c.nullTTL).Err()
}

// Delete 实体更新后的缓存失效，下次读取时按所选策略重建
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
