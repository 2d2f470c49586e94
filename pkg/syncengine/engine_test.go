package syncengine

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"splatvault/pkg/blobcache"
	"splatvault/pkg/manifest"
	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// mockSource 模拟一个可控的后端：listing 和 connect 结果都由测试注入
type mockSource struct {
	*source.Conn
	id      types.SourceID
	listing []source.Asset
	// listQueue 非空时每次 ListAssets 弹出一份，用来模拟
	// 远端列表随时间变化 (最终一致性窗口)
	listQueue [][]source.Asset
	listErr   error
	connect   types.ConnectResult

	listCalls int
	data      map[string][]byte
}

func newMockSource(id string) *mockSource {
	m := &mockSource{
		Conn:    source.NewConn(),
		id:      types.SourceID(id),
		connect: types.ConnectResult{Success: true},
		data:    map[string][]byte{},
	}
	return m
}

func (m *mockSource) ID() types.SourceID     { return m.id }
func (m *mockSource) Type() types.SourceType { return types.TypeURLList }
func (m *mockSource) Name() string           { return "mock" }

func (m *mockSource) Capabilities() types.Capabilities {
	return types.Capabilities{CanList: true, SupportsRescan: true}
}

func (m *mockSource) Connect(ctx context.Context, force bool) types.ConnectResult {
	if m.connect.Success {
		m.SetState(types.StateConnected)
	}
	return m.connect
}

func (m *mockSource) ListAssets(ctx context.Context) ([]source.Asset, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.listQueue) > 0 {
		m.listing = m.listQueue[0]
		if len(m.listQueue) > 1 {
			m.listQueue = m.listQueue[1:]
		}
	}
	m.SetAssets(m.listing)
	return m.listing, nil
}

func (m *mockSource) FetchAssetData(ctx context.Context, a source.Asset) ([]byte, error) {
	d, ok := m.data[a.Name]
	if !ok {
		return nil, types.ErrNotFound
	}
	return d, nil
}

func (m *mockSource) FetchAssetStream(ctx context.Context, a source.Asset) (io.ReadCloser, error) {
	return source.StreamFromData(ctx, m, a)
}

func (m *mockSource) FetchPreview(ctx context.Context, a source.Asset) (string, error) {
	return "", nil
}

func (m *mockSource) FetchMetadata(ctx context.Context, a source.Asset) (map[string]any, error) {
	return nil, nil
}

func (m *mockSource) MarshalConfig() (json.RawMessage, error) { return json.RawMessage(`{}`), nil }
func (m *mockSource) Disconnect()                             { m.Reset() }

func assets(names ...string) []source.Asset {
	out := make([]source.Asset, len(names))
	for i, n := range names {
		out[i] = source.Asset{Name: n, Path: "remote/" + n}
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := manifest.NewStore(t.TempDir())
	require.NoError(t, err)
	blobs, err := blobcache.NewDiskCache(t.TempDir())
	require.NoError(t, err)
	return New(store, blobs, zap.NewNop())
}

func TestRescan_Diff(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")

	// 初始状态：远端 A B C
	src.listing = assets("a.splat", "b.splat", "c.splat")
	res, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)
	assert.Len(t, res.Added, 3)

	// 远端删掉一个、加两个：added=2，可见数净增一
	src.listing = assets("a.splat", "b.splat", "d.splat", "e.splat")
	res, err = e.Rescan(ctx, src, true)
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.Equal(t, 1, res.RemovedCount)

	m, err := e.loadOrNew(src.ID())
	require.NoError(t, err)
	assert.Len(t, m.Visible(), 4)
	assert.False(t, m.Has("c.splat"))
}

func TestRescan_ApplyChangesFalseKeepsMissing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")

	src.listing = assets("a.splat", "b.splat")
	_, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)

	// 瞬时的不完整列表：applyChanges=false 时不许冲掉缓存条目
	src.listing = assets("a.splat")
	res, err := e.Rescan(ctx, src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemovedCount)

	m, err := e.loadOrNew(src.ID())
	require.NoError(t, err)
	assert.True(t, m.Has("b.splat"), "missing entry must survive a tentative rescan")
}

func TestRescan_TombstoneWinsOverLivePresence(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")

	src.listing = assets("a.splat", "b.splat")
	_, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)

	// 本地隐藏 B，然后远端 rescan 仍然汇报 B (远端副本还在)
	require.NoError(t, e.Remove(src.ID(), "b.splat"))

	res, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)
	assert.NotContains(t, res.Added, "b.splat", "tombstoned asset must not count as added")

	m, err := e.loadOrNew(src.ID())
	require.NoError(t, err)
	for _, entry := range m.Visible() {
		assert.NotEqual(t, "b.splat", entry.Name, "tombstone wins over live presence")
	}

	// 显式恢复之后才重新可见
	require.NoError(t, e.Restore(src.ID(), "b.splat"))
	m, _ = e.loadOrNew(src.ID())
	assert.Len(t, m.Visible(), 2)
}

func TestListVisible_OfflineFallback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")

	// 先在线同步出一份 Manifest {A,B,C}
	src.listing = assets("a.splat", "b.splat", "c.splat")
	_, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)

	// 设备离线，connect 失败 → 状态降级，返回的恰好是缓存的 A B C
	src.connect = types.ConnectResult{Offline: true}
	view, err := e.ListVisible(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, types.StateDegraded, view.State)

	names := make([]string, len(view.Assets))
	for i, a := range view.Assets {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"a.splat", "b.splat", "c.splat"}, names)
}

func TestListVisible_NoCacheNoMercy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")
	src.connect = types.ConnectResult{Offline: true}

	// 没有缓存可兜底时才报错
	_, err := e.ListVisible(ctx, src)
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestRescanWithRetry_EventualConsistency(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")

	// 模拟最终一致性窗口：前两次列表还看不到新上传的资产
	src.listQueue = [][]source.Asset{
		assets("old.splat"),
		assets("old.splat"),
		assets("old.splat", "new.splat"),
	}

	res, err := e.RescanWithRetry(ctx, src, []string{"new.splat"}, 5, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, src.listCalls, "should stop as soon as the expected name shows up")

	m, err := e.loadOrNew(src.ID())
	require.NoError(t, err)
	assert.True(t, m.Has("new.splat"))
}

func TestCacheAccounting(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")
	src.listing = assets("a.splat", "b.splat")
	src.data["a.splat"] = []byte("bytes-a")

	_, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)

	require.NoError(t, e.CacheAsset(ctx, src, source.Asset{Name: "a.splat", Path: "remote/a.splat"}))

	// 缓存蕴含成员关系：已缓存的一定可见
	names, err := e.CachedNames(ctx, src.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.splat"}, names)

	data, err := e.CachedBlob(ctx, src.ID(), "a.splat")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes-a"), data)

	// A 被隐藏后：blob 还在盘上 (惰性清理)，但不再汇报
	require.NoError(t, e.Remove(src.ID(), "a.splat"))
	names, err = e.CachedNames(ctx, src.ID())
	require.NoError(t, err)
	assert.Empty(t, names)

	// PruneCache 才真正删 blob
	n, err := e.PruneCache(ctx, src.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = e.CachedBlob(ctx, src.ID(), "a.splat")
	assert.Error(t, err)
}

func TestForget_Cascades(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	src := newMockSource("s1")
	src.listing = assets("a.splat")
	src.data["a.splat"] = []byte("x")

	_, err := e.Rescan(ctx, src, true)
	require.NoError(t, err)
	require.NoError(t, e.CacheAsset(ctx, src, source.Asset{Name: "a.splat"}))

	require.NoError(t, e.Forget(ctx, src.ID()))

	_, err = e.ListVisible(ctx, &mockSource{
		Conn: source.NewConn(), id: src.ID(),
		connect: types.ConnectResult{Offline: true},
	})
	assert.ErrorIs(t, err, ErrNoCache)
}
