package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"splatvault/pkg/types"
)

var ErrNoManifest = errors.New("no manifest for source")

// Store 管理 Manifest 的落盘
// 布局：<root>/<sourceID>.json，一个数据源一个文件，互不干扰
// 用带缩进的 JSON，方便人工排查缓存问题
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore 创建 (或打开) Manifest 目录
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create manifest dir: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(id types.SourceID) string {
	return filepath.Join(s.root, id.String()+".json")
}

// Load 读取一个数据源的 Manifest
// 不存在时返回 ErrNoManifest (调用方据此判断有没有离线缓存可用)
func (s *Store) Load(id types.SourceID) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupted manifest file: %w", err)
	}
	return &m, nil
}

// Save 持久化 Manifest
// 原子写：先写临时文件再 Rename，中断不会留下半个文件
func (s *Store) Save(id types.SourceID, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	target := s.path(id)
	tmp, err := os.CreateTemp(s.root, "manifest-*")
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

// Delete 删除一个数据源的 Manifest (移除数据源时级联)
func (s *Store) Delete(id types.SourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil // 幂等
	}
	return err
}

// List 返回所有有 Manifest 的数据源 ID
func (s *Store) List() ([]types.SourceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var ids []types.SourceID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, types.SourceID(strings.TrimSuffix(name, ".json")))
	}
	return ids, nil
}
