// Package urlsource 实现静态 URL 列表数据源 (严格只读)
// 列表可以内联在配置里，也可以从一个索引 URL 拉取 JSON
package urlsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// Entry 是列表里的一项
type Entry struct {
	Name    string `json:"name,omitempty"` // 可选，缺省取 URL 的最后一段
	URL     string `json:"url"`
	Preview string `json:"preview,omitempty"`
}

// Config 是落盘配置
type Config struct {
	// IndexURL 指向一个返回 []Entry 的 JSON 文档；设置了就优先于 Entries
	IndexURL string  `json:"index_url,omitempty"`
	Entries  []Entry `json:"entries,omitempty"`
}

// Adapter 实现 source.Source，没有任何写能力
type Adapter struct {
	*source.Conn
	id   types.SourceID
	name string
	cfg  Config

	http *http.Client
}

func NewAdapter(id types.SourceID, name string, cfg Config) *Adapter {
	return &Adapter{
		Conn: source.NewConn(),
		id:   id,
		name: name,
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Adapter) ID() types.SourceID     { return a.id }
func (a *Adapter) Type() types.SourceType { return types.TypeURLList }
func (a *Adapter) Name() string           { return a.name }

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		CanList:        true,
		ReadOnly:       true,
		SupportsRescan: a.cfg.IndexURL != "", // 内联列表没什么可重扫的
	}
}

// Connect: 有索引 URL 时拉一次验证连通性；纯内联列表永远在线
func (a *Adapter) Connect(ctx context.Context, forceInteractive bool) types.ConnectResult {
	if a.IsConnected() {
		return types.ConnectResult{Success: true} // 幂等
	}

	if a.cfg.IndexURL != "" {
		if _, err := a.fetchIndex(ctx); err != nil {
			a.SetState(types.StateDisconnected)
			return types.ConnectResult{Offline: true, Err: err.Error()}
		}
	}

	a.SetState(types.StateConnected)
	return types.ConnectResult{Success: true}
}

func (a *Adapter) fetchIndex(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.IndexURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: index returned status %d", types.ErrOffline, resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("malformed url index: %w", err)
	}
	return entries, nil
}

func (a *Adapter) ListAssets(ctx context.Context) ([]source.Asset, error) {
	if !a.IsConnected() {
		return nil, types.ErrOffline
	}

	entries := a.cfg.Entries
	if a.cfg.IndexURL != "" {
		fetched, err := a.fetchIndex(ctx)
		if err != nil {
			return nil, err
		}
		entries = fetched
	}

	assets := make([]source.Asset, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = basename(e.URL)
		}
		if name == "" {
			continue
		}
		assets = append(assets, source.Asset{
			Name:    name,
			Path:    e.URL,
			Preview: e.Preview,
		})
	}

	a.SetAssets(assets)
	return assets, nil
}

func (a *Adapter) FetchAssetData(ctx context.Context, asset source.Asset) ([]byte, error) {
	rc, err := a.FetchAssetStream(ctx, asset)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Adapter) FetchAssetStream(ctx context.Context, asset source.Asset) (io.ReadCloser, error) {
	if !a.IsConnected() {
		return nil, types.ErrOffline
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.Path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrOffline, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, types.ErrNotFound
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", types.ErrOffline, resp.StatusCode)
	}
}

func (a *Adapter) FetchPreview(ctx context.Context, asset source.Asset) (string, error) {
	return asset.Preview, nil
}

func (a *Adapter) FetchMetadata(ctx context.Context, asset source.Asset) (map[string]any, error) {
	return nil, nil
}

func (a *Adapter) MarshalConfig() (json.RawMessage, error) {
	return json.Marshal(a.cfg)
}

func (a *Adapter) Disconnect() {
	a.Reset()
}

// basename 从 URL 提取文件名 (问号参数剥掉)
func basename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
