package blobcache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// deadIndex 构造一个 Redis 指向必然拒绝连接的端口的装饰器
// 用来验证降级语义：缓存层坏了不能影响主流程
func deadIndex(t *testing.T) *CachedIndex {
	t.Helper()
	disk, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	return &CachedIndex{
		backend: disk,
		client: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1, // 不重试，单测别干等
		}),
		ttl: time.Minute,
		log: zap.NewNop(),
	}
}

func TestCachedIndex_FailsOpenWhenRedisDown(t *testing.T) {
	c := deadIndex(t)
	ctx := context.Background()

	// 写穿透到磁盘，Set 失败被吞掉
	require.NoError(t, c.Put(ctx, "s1", "a.splat", []byte("bytes")))

	// Exists 挂了也要落盘查到
	found, err := c.Has(ctx, "s1", "a.splat")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = c.Has(ctx, "s1", "ghost.splat")
	require.NoError(t, err)
	assert.False(t, found)

	data, err := c.Get(ctx, "s1", "a.splat")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	names, err := c.Names(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.splat"}, names)

	require.NoError(t, c.Delete(ctx, "s1", "a.splat"))
	found, err = c.Has(ctx, "s1", "a.splat")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewCachedIndex_RejectsBadURL(t *testing.T) {
	disk, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	_, err = NewCachedIndex(disk, RedisConfig{URL: "not-a-url"}, zap.NewNop())
	assert.Error(t, err)
}
