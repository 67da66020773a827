// Package cache 基于 redis 的读穿缓存；nil *Cache 合法，等价于不缓存直接回源
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Cache struct {
	RDB *redis.Client
	log *zap.Logger
	sf  singleflight.Group
}

func New(addr, pass string, db int, log *zap.Logger) *Cache {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), log)
}

func NewFromClient(rdb *redis.Client, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{RDB: rdb, log: log}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.RDB.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.RDB.Close()
}

// GetOrLoad redis 故障时降级为直接回源，不向调用方报错
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return load(ctx)
	}
	b, err := c.RDB.Get(ctx, key).Bytes()
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	// single flight 合并回源
	v, err, _ := c.sf.Do(key, func() (any, error) {
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		if e := c.RDB.Set(ctx, key, b, ttl).Err(); e != nil {
			c.log.Warn("cache set failed", zap.String("key", key), zap.Error(e))
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Generation 命名空间 ns 的当前代数，调用方把它拼进 key；从未 Bump 过时为 0
func (c *Cache) Generation(ctx context.Context, ns string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.RDB.Get(ctx, ns+":gen").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump 代数加一。旧代数下的 key 不会再被读到，晚到的回源写入也就无效了
func (c *Cache) Bump(ctx context.Context, ns string) error {
	if c == nil {
		return nil
	}
	return c.RDB.Incr(ctx, ns+":gen").Err()
}

// InvalidatePrefix 用 SCAN 找出前缀下所有 key 再删除，避免 KEYS 阻塞
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if c == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := c.RDB.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.RDB.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
