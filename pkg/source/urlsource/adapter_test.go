package urlsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

func TestAdapter_InlineEntries(t *testing.T) {
	a := NewAdapter("id-1", "demo", Config{Entries: []Entry{
		{Name: "Garden", URL: "https://cdn.example.com/garden.splat"},
		{URL: "https://cdn.example.com/room.splat?v=2"}, // 缺 name，取 URL 末段
	}})

	// 内联列表没有索引，没什么可重扫的
	caps := a.Capabilities()
	assert.True(t, caps.ReadOnly)
	assert.False(t, caps.SupportsRescan)

	// 纯内联列表永远在线
	res := a.Connect(context.Background(), false)
	require.True(t, res.Success)

	assets, err := a.ListAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "Garden", assets[0].Name)
	assert.Equal(t, "room.splat", assets[1].Name)
}

func TestAdapter_RemoteIndex(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.json":
			hits++
			json.NewEncoder(w).Encode([]Entry{
				{Name: "bike", URL: "http://" + r.Host + "/bike.splat"},
			})
		case "/bike.splat":
			w.Write([]byte("bike-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewAdapter("id-1", "remote", Config{IndexURL: srv.URL + "/index.json"})
	assert.True(t, a.Capabilities().SupportsRescan)

	res := a.Connect(context.Background(), false)
	require.True(t, res.Success)

	assets, err := a.ListAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	data, err := a.FetchAssetData(context.Background(), assets[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("bike-bytes"), data)

	// 每次 ListAssets 都重拉索引 (重扫语义)，Connect 也拉过一次
	assert.Equal(t, 2, hits)
}

func TestAdapter_IndexUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close() // 起了再关，端口必然拒绝连接

	a := NewAdapter("id-1", "remote", Config{IndexURL: dead.URL + "/index.json"})
	res := a.Connect(context.Background(), false)
	assert.False(t, res.Success)
	assert.True(t, res.Offline)
	assert.Equal(t, types.StateDisconnected, a.State())
}

func TestAdapter_FetchMissingAsset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	a := NewAdapter("id-1", "demo", Config{Entries: []Entry{{Name: "x", URL: ts.URL + "/x.splat"}}})
	require.True(t, a.Connect(context.Background(), false).Success)

	_, err := a.FetchAssetData(context.Background(), source.Asset{Name: "x", Path: ts.URL + "/x.splat"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestAdapter_PreviewFromEntry(t *testing.T) {
	a := NewAdapter("id-1", "demo", Config{})
	p, err := a.FetchPreview(context.Background(), source.Asset{Preview: "https://cdn/x.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.png", p)
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "room.splat", basename("https://cdn.example.com/a/b/room.splat?v=2&x=1"))
	assert.Equal(t, "plain.ply", basename("https://host/plain.ply"))
}
