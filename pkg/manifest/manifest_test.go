package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManifest_TombstoneFiltering(t *testing.T) {
	m := New()
	m.Upsert(Entry{Name: "a.splat", Path: "x/a.splat"})
	m.Upsert(Entry{Name: "b.splat", Path: "x/b.splat"})
	m.Upsert(Entry{Name: "c.splat", Path: "x/c.splat"})

	m.Tombstone("b.splat")

	// 不变式：Removed 里的名字绝不出现在可见投影
	visible := m.Visible()
	assert.Len(t, visible, 2)
	for _, e := range visible {
		assert.NotEqual(t, "b.splat", e.Name)
	}

	// 墓碑不从 Assets 删除，远端副本还在
	assert.True(t, m.Has("b.splat"))
	assert.True(t, m.IsRemoved("b.splat"))
}

func TestManifest_TombstoneIdempotent(t *testing.T) {
	m := New()
	m.Upsert(Entry{Name: "a.splat"})

	m.Tombstone("a.splat")
	m.Tombstone("a.splat") // 重复打墓碑不产生重复记录

	assert.Len(t, m.Removed, 1)
}

func TestManifest_Restore(t *testing.T) {
	m := New()
	m.Upsert(Entry{Name: "a.splat"})
	m.Tombstone("a.splat")
	assert.Empty(t, m.Visible())

	m.Restore("a.splat")
	assert.Len(t, m.Visible(), 1)
	assert.False(t, m.IsRemoved("a.splat"))
}

func TestManifest_UpsertUpdatesInPlace(t *testing.T) {
	m := New()
	m.Upsert(Entry{Name: "a.splat", Size: 10})
	m.Upsert(Entry{Name: "a.splat", Size: 20, ModifiedAt: time.Now()})

	// 同名覆盖，不产生重复条目
	assert.Len(t, m.Assets, 1)
	assert.Equal(t, int64(20), m.Assets[0].Size)
}

func TestManifest_Drop(t *testing.T) {
	m := New()
	m.Upsert(Entry{Name: "a.splat"})
	m.Upsert(Entry{Name: "b.splat"})

	m.Drop("a.splat")
	assert.False(t, m.Has("a.splat"))
	assert.True(t, m.Has("b.splat"))
}
