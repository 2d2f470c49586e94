// Package dirsource 实现本地文件夹数据源
// 关键约束：目录句柄在冷启动后视为失效 (盲目复用不安全)，
// 所以每个会话都从 needs-permission 起步，由用户手势 (Grant) 恢复访问
package dirsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"splatvault/pkg/ignore"
	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// 支持的 3D 资产格式 (按扩展名过滤目录条目)
var assetExts = map[string]bool{
	".ply":    true,
	".splat":  true,
	".spz":    true,
	".ksplat": true,
}

// IsAssetFile 判断文件名是否是受支持的资产格式
func IsAssetFile(name string) bool {
	return assetExts[strings.ToLower(filepath.Ext(name))]
}

// Config 是落盘的持久化配置
// 注意：Path 只是"上次授权过的位置"的记忆，复用前必须重新 Grant
type Config struct {
	Path string `json:"path"`
}

// Adapter 实现 source.Source + Importer + Deleter
type Adapter struct {
	*source.Conn
	id   types.SourceID
	name string
	cfg  Config

	// granted 是纯会话态：本次会话用户是否通过手势授权过
	// 不落盘。没有它，Connect 永远报 needs-permission
	granted bool
	root    string
}

func NewAdapter(id types.SourceID, name string, cfg Config) *Adapter {
	a := &Adapter{
		Conn: source.NewConn(),
		id:   id,
		name: name,
		cfg:  cfg,
	}
	a.SetState(types.StateNeedsPermission)
	return a
}

func (a *Adapter) ID() types.SourceID     { return a.id }
func (a *Adapter) Type() types.SourceType { return types.TypeLocalDir }
func (a *Adapter) Name() string           { return a.name }

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		CanList:        true,
		CanUpload:      true, // 通过本地导入实现
		CanDelete:      true,
		SupportsRescan: true,
	}
}

// Grant 是用户手势：授予本会话对目录的访问权
// 这是唯一能离开 needs-permission 状态的入口
func (a *Adapter) Grant(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrPermissionRequired, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	a.granted = true
	a.root = path
	a.cfg.Path = path
	return nil
}

// Connect 校验连通性
// 冷启动后 (granted=false) 必须立刻返回 NeedsPermission，
// 绝不探测旧路径 —— 失效句柄连 Stat 都不该碰
func (a *Adapter) Connect(ctx context.Context, forceInteractive bool) types.ConnectResult {
	if a.IsConnected() {
		return types.ConnectResult{Success: true} // 幂等
	}

	if !a.granted {
		a.SetState(types.StateNeedsPermission)
		return types.ConnectResult{NeedsPermission: true}
	}

	if _, err := os.Stat(a.root); err != nil {
		// 授权过但目录没了 (U 盘拔了 / 目录被删)，要求重新授权
		a.granted = false
		a.SetState(types.StateNeedsPermission)
		return types.ConnectResult{NeedsPermission: true, Err: err.Error()}
	}

	a.SetState(types.StateConnected)
	return types.ConnectResult{Success: true}
}

func (a *Adapter) ListAssets(ctx context.Context) ([]source.Asset, error) {
	if !a.IsConnected() {
		return nil, types.ErrPermissionRequired
	}

	entries, err := os.ReadDir(a.root)
	if err != nil {
		a.SetState(types.StateError)
		return nil, fmt.Errorf("%w: %v", types.ErrPermissionRequired, err)
	}

	var assets []source.Asset
	for _, e := range entries {
		if e.IsDir() || !IsAssetFile(e.Name()) {
			continue
		}
		a2 := source.Asset{
			Name: e.Name(),
			Path: filepath.Join(a.root, e.Name()),
		}
		if info, err := e.Info(); err == nil {
			a2.Size = info.Size()
			a2.ModifiedAt = info.ModTime()
		}
		assets = append(assets, a2)
	}

	a.SetAssets(assets)
	return assets, nil
}

func (a *Adapter) FetchAssetData(ctx context.Context, asset source.Asset) ([]byte, error) {
	if !a.IsConnected() {
		return nil, types.ErrPermissionRequired
	}
	data, err := os.ReadFile(asset.Path)
	if os.IsNotExist(err) {
		return nil, types.ErrNotFound
	}
	return data, err
}

func (a *Adapter) FetchAssetStream(ctx context.Context, asset source.Asset) (io.ReadCloser, error) {
	if !a.IsConnected() {
		return nil, types.ErrPermissionRequired
	}
	f, err := os.Open(asset.Path)
	if os.IsNotExist(err) {
		return nil, types.ErrNotFound
	}
	return f, err
}

// FetchPreview: 目录源不带预览，调用方本地生成
func (a *Adapter) FetchPreview(ctx context.Context, asset source.Asset) (string, error) {
	return "", nil
}

func (a *Adapter) FetchMetadata(ctx context.Context, asset source.Asset) (map[string]any, error) {
	return nil, nil
}

// ImportFiles 把文件拷贝进目录 (本地导入路径)
// 遵守 .svignore；部分失败时返回 PartialBatchError，成功的不回滚
func (a *Adapter) ImportFiles(ctx context.Context, files []source.File) ([]source.Asset, error) {
	if !a.IsConnected() {
		return nil, types.ErrPermissionRequired
	}

	matcher, err := ignore.NewMatcher(a.root)
	if err != nil {
		return nil, err
	}

	var (
		imported []source.Asset
		batch    types.PartialBatchError
	)
	for _, f := range files {
		if matcher.Matches(f.Name) {
			batch.Failed = append(batch.Failed, types.ItemFailure{
				Name: f.Name,
				Err:  fmt.Errorf("matched ignore rules"),
			})
			continue
		}

		target := filepath.Join(a.root, filepath.Base(f.Name))
		if err := atomicWrite(target, f.Data); err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: f.Name, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, f.Name)
		imported = append(imported, source.Asset{
			Name: filepath.Base(f.Name),
			Path: target,
			Size: int64(len(f.Data)),
		})
	}

	if len(batch.Failed) > 0 {
		return imported, &batch
	}
	return imported, nil
}

func (a *Adapter) DeleteAssets(ctx context.Context, paths []string) error {
	if !a.IsConnected() {
		return types.ErrPermissionRequired
	}

	var batch types.PartialBatchError
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: p, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, p)
	}
	if len(batch.Failed) > 0 {
		return &batch
	}
	return nil
}

// MarshalConfig 只序列化路径记忆，granted 状态永不落盘
func (a *Adapter) MarshalConfig() (json.RawMessage, error) {
	return json.Marshal(a.cfg)
}

func (a *Adapter) Disconnect() {
	a.Reset()
	a.SetState(types.StateNeedsPermission)
	a.granted = false
}

// atomicWrite: 临时文件 + Rename，半截导入不会留下残缺资产
func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "import-*")
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
