// Package blobcache 把资产字节物化到本地，支持离线查看和省流量
// 成员关系 (哪些名字已缓存) 独立于 Manifest，由同步引擎负责对账
package blobcache

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Cache 是缓存层的接口，按数据源 ID 分区
// 实现可以是纯磁盘，也可以叠加 Redis 存在性缓存 (见 redis.go)
type Cache interface {
	Put(ctx context.Context, sourceID, name string, data []byte) error
	Get(ctx context.Context, sourceID, name string) ([]byte, error)
	Has(ctx context.Context, sourceID, name string) (bool, error)
	Delete(ctx context.Context, sourceID, name string) error
	// Names 返回某个数据源下所有已缓存的资产名
	Names(ctx context.Context, sourceID string) ([]string, error)
	// DeleteAll 清空某个数据源的全部缓存 (移除数据源时级联)
	DeleteAll(ctx context.Context, sourceID string) error
}

// DiskCache 把字节存在 <root>/<sourceID>/<escaped-name>
type DiskCache struct {
	root string
}

func NewDiskCache(root string) (*DiskCache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob cache dir: %w", err)
	}
	return &DiskCache{root: root}, nil
}

// layout 返回资产对应的物理路径
// 名字里可能有 "/" 等字符，用 PathEscape 变成安全的文件名
func (c *DiskCache) layout(sourceID, name string) string {
	return filepath.Join(c.root, sourceID, url.PathEscape(name))
}

func (c *DiskCache) Put(ctx context.Context, sourceID, name string, data []byte) error {
	target := c.layout(sourceID, name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 原子写：临时文件 + Rename，保证文件要么不存在要么完整
	tmp, err := os.CreateTemp(dir, "blob-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	return os.Rename(tmp.Name(), target)
}

func (c *DiskCache) Get(ctx context.Context, sourceID, name string) ([]byte, error) {
	data, err := os.ReadFile(c.layout(sourceID, name))
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	return data, err
}

func (c *DiskCache) Has(ctx context.Context, sourceID, name string) (bool, error) {
	_, err := os.Stat(c.layout(sourceID, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (c *DiskCache) Delete(ctx context.Context, sourceID, name string) error {
	err := os.Remove(c.layout(sourceID, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *DiskCache) Names(ctx context.Context, sourceID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, sourceID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			continue // 不是我们写的文件，跳过
		}
		names = append(names, name)
	}
	return names, nil
}

func (c *DiskCache) DeleteAll(ctx context.Context, sourceID string) error {
	return os.RemoveAll(filepath.Join(c.root, sourceID))
}
