package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/types"
)

func TestStore_RoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	id := types.SourceID("src-1")

	m := New()
	m.Upsert(Entry{Name: "a.splat", Path: "x/a.splat", Size: 1024})
	m.Tombstone("ghost.splat")
	m.LastSyncedAt = time.Now()

	require.NoError(t, store.Save(id, m))

	// 重新加载 (模拟第二次运行程序)
	loaded, err := store.Load(id)
	require.NoError(t, err)

	assert.Len(t, loaded.Assets, 1)
	assert.Equal(t, "a.splat", loaded.Assets[0].Name)
	assert.Equal(t, []string{"ghost.splat"}, loaded.Removed)
	assert.False(t, loaded.LastSyncedAt.IsZero())
}

func TestStore_MissingManifest(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope")
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestStore_DeleteIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	id := types.SourceID("src-1")
	require.NoError(t, store.Save(id, New()))

	require.NoError(t, store.Delete(id))
	require.NoError(t, store.Delete(id)) // 已删除的再删不报错

	_, err = store.Load(id)
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestStore_List(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("src-a", New()))
	require.NoError(t, store.Save("src-b", New()))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.SourceID{"src-a", "src-b"}, ids)
}
