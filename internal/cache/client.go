package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wwsz-2002/comment-app/internal/lock"
)

// ErrNotFound 表示查遍缓存与数据源后确认数据不存在。
var ErrNotFound = errors.New("cache: not found")

// entry 逻辑过期条目的统一序列化信封。
// ExpireAt 是逻辑过期时间：条目物理上常驻，超过该时间视为脏数据。
type entry struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expire_at"`
}

// Options 缓存客户端可调参数，零值使用默认。
type Options struct {
	// NullTTL 空值占位的过期时间，限制穿透查询的代价窗口。
	NullTTL time.Duration
	// RebuildLockTTL 重建互斥锁 TTL，应大于一次重建耗时。
	RebuildLockTTL time.Duration
	// RebuildWorkers 后台重建协程数，约束并发重建上限。
	RebuildWorkers int
	// RebuildQueue 重建任务队列长度，满了直接丢弃触发（下个读者会再触发）。
	RebuildQueue int
}

func (o *Options) withDefaults() {
	if o.NullTTL <= 0 {
		o.NullTTL = 2 * time.Minute
	}
	if o.RebuildLockTTL <= 0 {
		o.RebuildLockTTL = 10 * time.Second
	}
	if o.RebuildWorkers <= 0 {
		o.RebuildWorkers = 10
	}
	if o.RebuildQueue <= 0 {
		o.RebuildQueue = 64
	}
}

// Client 是旁路缓存客户端，提供两种击穿/穿透防护策略：
//   - 穿透策略：未命中回源，源也没有则写短 TTL 空值占位；
//   - 逻辑过期策略：条目物理常驻，过期后由后台协程池独占重建，读者永不阻塞。
//
// 所有依赖显式注入，不持有任何包级单例。
type Client struct {
	rdb  *rd.Client
	log  *logrus.Logger
	opts Options

	rebuilds chan func()
	wg       sync.WaitGroup
}

func NewClient(rdb *rd.Client, log *logrus.Logger, opts Options) *Client {
	opts.withDefaults()
	c := &Client{
		rdb:      rdb,
		log:      log,
		opts:     opts,
		rebuilds: make(chan func(), opts.RebuildQueue),
	}
	for i := 0; i < opts.RebuildWorkers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for task := range c.rebuilds {
				task()
			}
		}()
	}
	return c
}

// Close 停止后台重建协程池，等待在途任务结束。只在进程退出时调用。
func (c *Client) Close() {
	close(c.rebuilds)
	c.wg.Wait()
}

// Set 普通写入：序列化后带物理 TTL 覆盖写。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// SetWithLogicalExpiry 逻辑过期写入：包一层信封，不设物理 TTL。
func (c *Client) SetWithLogicalExpiry(ctx context.Context, key string, value any, logicalTTL time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env, err := json.Marshal(entry{
		Data:     raw,
		ExpireAt: time.Now().Add(logicalTTL),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, env, 0).Err()
}

// Delete 删除缓存条目（更新数据源后主动失效）。
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Get 穿透策略读取。命中占位空值直接返回 ErrNotFound，不回源；
// 未命中回源一次，源不存在则写占位，保证一个空值窗口内只打一次数据源。
func Get[T any](ctx context.Context, c *Client, keyPrefix, id string, ttl time.Duration,
	loader func(ctx context.Context, id string) (*T, error)) (*T, error) {
	key := keyPrefix + id
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		// 命中空值占位：已确认不存在
		if raw == "" {
			return nil, ErrNotFound
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	if !errors.Is(err, rd.Nil) {
		return nil, err
	}

	// 未命中，回源
	v, err := loader(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", c.opts.NullTTL).Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// GetWithLogicalExpiry 逻辑过期策略读取。该策略假定条目已预热：
// 物理未命中直接当不存在处理，绝不同步回源。命中后若逻辑过期，
// 抢到重建锁的读者把重建任务丢给后台协程池并立即返回旧值，
// 抢不到锁的读者同样返回旧值，脏数据窗口由重建耗时决定，与读并发无关。
func GetWithLogicalExpiry[T any](ctx context.Context, c *Client, keyPrefix, lockKeyPrefix, id string,
	logicalTTL time.Duration, loader func(ctx context.Context, id string) (*T, error)) (*T, error) {
	key := keyPrefix + id
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	env, v, err := decodeEntry[T](raw)
	if err != nil {
		return nil, err
	}
	if time.Now().Before(env.ExpireAt) {
		return v, nil
	}

	// 已逻辑过期，尝试抢重建锁
	lk := lock.New(c.rdb, lockKeyPrefix+id)
	ok, err := lk.TryAcquire(ctx, c.opts.RebuildLockTTL)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache rebuild lock acquire failed")
		return v, nil
	}
	if !ok {
		// 别人正在重建，直接返回旧值
		return v, nil
	}

	// 拿锁后二次检查：上一轮重建可能刚完成
	raw, err = c.rdb.Get(ctx, key).Result()
	if err == nil {
		env2, v2, err2 := decodeEntry[T](raw)
		if err2 == nil && time.Now().Before(env2.ExpireAt) {
			c.releaseRebuildLock(lk, key)
			return v2, nil
		}
	}

	c.submitRebuild(key, id, logicalTTL, lk, func(ctx context.Context, id string) (any, error) {
		r, err := loader(ctx, id)
		if err != nil || r == nil {
			return nil, err
		}
		return r, nil
	})
	return v, nil
}

// submitRebuild 把重建任务交给协程池；队列满则放弃本次触发并释放锁。
func (c *Client) submitRebuild(key, id string, logicalTTL time.Duration, lk *lock.Lock,
	loader func(ctx context.Context, id string) (any, error)) {
	task := func() {
		// 调用方已经返回，重建用独立超时上下文
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RebuildLockTTL)
		defer cancel()
		defer c.releaseRebuildLock(lk, key)

		v, err := loader(ctx, id)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Error("cache rebuild load failed")
			return
		}
		if v == nil {
			c.log.WithField("key", key).Warn("cache rebuild: source row gone, keep stale entry")
			return
		}
		if err := c.SetWithLogicalExpiry(ctx, key, v, logicalTTL); err != nil {
			c.log.WithError(err).WithField("key", key).Error("cache rebuild write failed")
		}
	}

	select {
	case c.rebuilds <- task:
	default:
		c.log.WithField("key", key).Warn("cache rebuild queue full, dropping trigger")
		c.releaseRebuildLock(lk, key)
	}
}

func (c *Client) releaseRebuildLock(lk *lock.Lock, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := lk.Release(ctx); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache rebuild lock release failed")
	}
}

func decodeEntry[T any](raw string) (entry, *T, error) {
	var env entry
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return entry{}, nil, err
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return entry{}, nil, err
	}
	return env, &v, nil
}
