// Package syncengine 负责让每个数据源的本地 Manifest 跟远端保持最终一致，
// 并在断连/离线时用 Manifest 兜底浏览
package syncengine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"splatvault/pkg/blobcache"
	"splatvault/pkg/manifest"
	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

var ErrNoCache = errors.New("source unavailable and no cached manifest")

// Engine 编排 Rescan / 墓碑 / 离线兜底 / 缓存对账
type Engine struct {
	manifests *manifest.Store
	blobs     blobcache.Cache
	guard     *source.Guard
	log       *zap.Logger
}

func New(manifests *manifest.Store, blobs blobcache.Cache, log *zap.Logger) *Engine {
	return &Engine{
		manifests: manifests,
		blobs:     blobs,
		guard:     source.NewGuard(),
		log:       log,
	}
}

// Guard 暴露请求合并器，调用方的 Connect/List 应该走它
func (e *Engine) Guard() *source.Guard { return e.guard }

// loadOrNew: 没有 Manifest 不算错，从空的开始
func (e *Engine) loadOrNew(id types.SourceID) (*manifest.Manifest, error) {
	m, err := e.manifests.Load(id)
	if errors.Is(err, manifest.ErrNoManifest) {
		return manifest.New(), nil
	}
	return m, err
}

// Rescan 执行一次"重扫/对账"：
//
//	added   = live − cached_visible (排除墓碑)
//	missing = cached_visible − live
//
// applyChanges=false 时 missing 不落地 —— 瞬时的不完整列表
// 不应该把缓存里的条目冲掉，等下一次显式确认再删
func (e *Engine) Rescan(ctx context.Context, src source.Source, applyChanges bool) (types.RescanResult, error) {
	live, err := e.guard.List(ctx, src)
	if err != nil {
		return types.RescanResult{}, err
	}

	m, err := e.loadOrNew(src.ID())
	if err != nil {
		return types.RescanResult{}, err
	}

	cachedVisible := m.VisibleNames()
	liveNames := make(map[string]bool, len(live))

	result := types.RescanResult{Success: true}
	for _, a := range live {
		liveNames[a.Name] = true
		m.Upsert(manifest.Entry{
			Name:       a.Name,
			Path:       a.Path,
			Size:       a.Size,
			ModifiedAt: a.ModifiedAt,
			Preview:    a.Preview,
		})
		// 墓碑优先于远端存在：被隐藏的名字不算新增，也不会重新可见
		if !cachedVisible[a.Name] && !m.IsRemoved(a.Name) {
			result.Added = append(result.Added, a.Name)
		}
	}

	for name := range cachedVisible {
		if liveNames[name] {
			continue
		}
		result.RemovedCount++
		if applyChanges {
			m.Drop(name)
		}
	}

	m.LastSyncedAt = time.Now()
	if err := e.manifests.Save(src.ID(), m); err != nil {
		return types.RescanResult{}, err
	}

	e.log.Debug("rescan complete",
		zap.String("source", src.ID().String()),
		zap.Int("added", len(result.Added)),
		zap.Int("missing", result.RemovedCount),
		zap.Bool("applied", applyChanges))

	return result, nil
}

// View 是对调用方 (UI) 暴露的统一浏览结果
type View struct {
	State  types.ConnState
	Assets []manifest.Entry
}

// ListVisible 返回一个数据源当前可见的资产列表
// 在线：权威列表 + 墓碑过滤，顺手刷新 Manifest
// 离线/连接失败：有 ≥1 条缓存就降级为 disconnected-with-cache，否则才报错
func (e *Engine) ListVisible(ctx context.Context, src source.Source) (View, error) {
	res := e.guard.Connect(ctx, src, false)
	if !res.Success {
		return e.fallback(src, res)
	}

	if _, err := e.Rescan(ctx, src, true); err != nil {
		// 连上了但列表拉挂了 (瞬时传输错误)，同样走缓存兜底
		e.log.Warn("live listing failed, serving cached manifest",
			zap.String("source", src.ID().String()), zap.Error(err))
		return e.fallback(src, types.ConnectResult{Offline: true, Err: err.Error()})
	}

	m, err := e.loadOrNew(src.ID())
	if err != nil {
		return View{}, err
	}
	return View{State: types.StateConnected, Assets: m.Visible()}, nil
}

func (e *Engine) fallback(src source.Source, res types.ConnectResult) (View, error) {
	m, err := e.manifests.Load(src.ID())
	if err == nil && len(m.Visible()) > 0 {
		return View{State: types.StateDegraded, Assets: m.Visible()}, nil
	}

	state := types.StateError
	switch {
	case res.NeedsPermission:
		state = types.StateNeedsPermission
	case res.Offline:
		state = types.StateDisconnected
	}
	return View{State: state}, ErrNoCache
}

// RescanWithRetry 在写操作之后做有界重试的确认扫描
// 远端列表有最终一致性窗口：上传成功后 expect 里的名字可能要过
// 几秒才出现。固定次数 + 固定间隔，扫到齐了提前返回
// 注意 applyChanges=false：确认窗口里的不完整列表不许删缓存条目
func (e *Engine) RescanWithRetry(ctx context.Context, src source.Source, expect []string, attempts int, backoff time.Duration) (types.RescanResult, error) {
	var (
		last    types.RescanResult
		lastErr error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(backoff):
			}
		}

		last, lastErr = e.Rescan(ctx, src, false)
		if lastErr != nil {
			continue
		}

		m, err := e.loadOrNew(src.ID())
		if err != nil {
			return last, err
		}
		if containsAll(m.VisibleNames(), expect) {
			return last, nil
		}
	}

	if lastErr != nil {
		return last, lastErr
	}
	e.log.Warn("rescan confirmation exhausted retries",
		zap.String("source", src.ID().String()), zap.Strings("expect", expect))
	return last, nil
}

func containsAll(set map[string]bool, names []string) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}

// Remove 给资产打墓碑：本地隐藏，远端不动
func (e *Engine) Remove(id types.SourceID, name string) error {
	m, err := e.loadOrNew(id)
	if err != nil {
		return err
	}
	m.Tombstone(name)
	return e.manifests.Save(id, m)
}

// Restore 撤销墓碑
func (e *Engine) Restore(id types.SourceID, name string) error {
	m, err := e.loadOrNew(id)
	if err != nil {
		return err
	}
	m.Restore(name)
	return e.manifests.Save(id, m)
}

// CacheAsset 把资产字节物化到本地缓存
// 约定：缓存蕴含成员关系 —— 缓存一个资产时同步保证它在 Manifest 里
func (e *Engine) CacheAsset(ctx context.Context, src source.Source, a source.Asset) error {
	data, err := src.FetchAssetData(ctx, a)
	if err != nil {
		return err
	}
	if err := e.blobs.Put(ctx, src.ID().String(), a.Name, data); err != nil {
		return err
	}

	m, err := e.loadOrNew(src.ID())
	if err != nil {
		return err
	}
	if !m.Has(a.Name) {
		m.Upsert(manifest.Entry{Name: a.Name, Path: a.Path, Size: a.Size})
		return e.manifests.Save(src.ID(), m)
	}
	return nil
}

// CachedBlob 直接读缓存字节 (离线查看路径)
func (e *Engine) CachedBlob(ctx context.Context, id types.SourceID, name string) ([]byte, error) {
	return e.blobs.Get(ctx, id.String(), name)
}

// CachedNames 返回"已缓存且可见"的资产名
// 对账逻辑：blob 索引 ∩ Manifest 可见集合。多出来的 blob 不在这里删
// (惰性清理走 PruneCache)，只是不汇报
func (e *Engine) CachedNames(ctx context.Context, id types.SourceID) ([]string, error) {
	names, err := e.blobs.Names(ctx, id.String())
	if err != nil {
		return nil, err
	}

	m, err := e.loadOrNew(id)
	if err != nil {
		return nil, err
	}
	visible := m.VisibleNames()

	var out []string
	for _, n := range names {
		if visible[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// PruneCache 惰性清理：删掉已经离开可见集合的缓存 blob
func (e *Engine) PruneCache(ctx context.Context, id types.SourceID) (int, error) {
	names, err := e.blobs.Names(ctx, id.String())
	if err != nil {
		return 0, err
	}

	m, err := e.loadOrNew(id)
	if err != nil {
		return 0, err
	}
	visible := m.VisibleNames()

	pruned := 0
	for _, n := range names {
		if visible[n] {
			continue
		}
		if err := e.blobs.Delete(ctx, id.String(), n); err != nil {
			e.log.Warn("failed to prune cached blob", zap.String("name", n), zap.Error(err))
			continue
		}
		pruned++
	}
	return pruned, nil
}

// Forget 级联清理一个数据源的全部本地状态 (移除数据源时调用)
func (e *Engine) Forget(ctx context.Context, id types.SourceID) error {
	if err := e.manifests.Delete(id); err != nil {
		return err
	}
	return e.blobs.DeleteAll(ctx, id.String())
}
