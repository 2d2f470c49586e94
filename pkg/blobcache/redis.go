package blobcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedIndex 是一个装饰器，为底层 Cache 的存在性查询叠加 Redis
// 只缓存 Existence，不缓存字节：Splat 文件动辄上百 MB，Redis 内存太贵
// Redis 故障时直接降级穿透到磁盘，绝不让缓存层拖垮主流程
type CachedIndex struct {
	backend Cache
	client  *redis.Client
	ttl     time.Duration
	log     *zap.Logger
}

type RedisConfig struct {
	URL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL time.Duration
}

func NewCachedIndex(backend Cache, cfg RedisConfig, log *zap.Logger) (*CachedIndex, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedIndex{backend: backend, client: client, ttl: cfg.TTL, log: log}, nil
}

func (c *CachedIndex) key(sourceID, name string) string {
	return "sv:blob:" + sourceID + ":" + name
}

// Has 先查 Redis，未命中再落盘查，命中后异步回填
func (c *CachedIndex) Has(ctx context.Context, sourceID, name string) (bool, error) {
	key := c.key(sourceID, name)

	val, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		// 降级：Redis 挂了就当没有缓存层
		c.log.Warn("redis exists check failed, falling through", zap.Error(err))
	} else if val > 0 {
		return true, nil
	}

	found, err := c.backend.Has(ctx, sourceID, name)
	if err != nil {
		return false, err
	}

	if found {
		// 异步回填，不阻塞调用方；用独立 ctx 保证上层取消不影响回填
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.client.Set(fillCtx, key, "1", c.ttl)
		}()
	}
	return found, nil
}

func (c *CachedIndex) Put(ctx context.Context, sourceID, name string, data []byte) error {
	if err := c.backend.Put(ctx, sourceID, name, data); err != nil {
		return err
	}
	// 磁盘写成功了才标记 Redis，Set 失败可以忽略
	c.client.Set(ctx, c.key(sourceID, name), "1", c.ttl)
	return nil
}

func (c *CachedIndex) Delete(ctx context.Context, sourceID, name string) error {
	if err := c.backend.Delete(ctx, sourceID, name); err != nil {
		return err
	}
	c.client.Del(ctx, c.key(sourceID, name))
	return nil
}

// Get 透传，字节永远走磁盘
func (c *CachedIndex) Get(ctx context.Context, sourceID, name string) ([]byte, error) {
	return c.backend.Get(ctx, sourceID, name)
}

// Names 透传，枚举以磁盘为准
func (c *CachedIndex) Names(ctx context.Context, sourceID string) ([]string, error) {
	return c.backend.Names(ctx, sourceID)
}

func (c *CachedIndex) DeleteAll(ctx context.Context, sourceID string) error {
	if err := c.backend.DeleteAll(ctx, sourceID); err != nil {
		return err
	}
	// 逐 Key 删太贵，靠 TTL 自然过期即可
	return nil
}
