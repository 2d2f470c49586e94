// pkg/manifest/manifest.go
package manifest

import (
	"slices"
	"time"
)

// Entry 是 Manifest 里的一条资产记录 (上次同步时看到的样子)
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	Preview    string    `json:"preview,omitempty"`
}

// Manifest 是一个数据源的本地持久化快照
// 不变式：Removed 里的名字永远不出现在可见投影 (Visible) 里
type Manifest struct {
	Assets       []Entry   `json:"assets"`
	Removed      []string  `json:"removed"` // 墓碑：本地隐藏，远端仍存在
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// New 返回一个空 Manifest
func New() *Manifest {
	return &Manifest{}
}

// IsRemoved 检查名字是否被墓碑标记
func (m *Manifest) IsRemoved(name string) bool {
	return slices.Contains(m.Removed, name)
}

// Visible 返回过滤掉墓碑后的可见投影
// 所有对外的列表都必须走这里，保证被隐藏的资产绝不闪现
func (m *Manifest) Visible() []Entry {
	out := make([]Entry, 0, len(m.Assets))
	for _, e := range m.Assets {
		if !m.IsRemoved(e.Name) {
			out = append(out, e)
		}
	}
	return out
}

// VisibleNames 返回可见资产名的集合 (diff 计算用)
func (m *Manifest) VisibleNames() map[string]bool {
	set := make(map[string]bool, len(m.Assets))
	for _, e := range m.Visible() {
		set[e.Name] = true
	}
	return set
}

// Has 检查名字是否在 Assets 里 (不管墓碑)
func (m *Manifest) Has(name string) bool {
	return slices.ContainsFunc(m.Assets, func(e Entry) bool { return e.Name == name })
}

// Tombstone 给一个资产打墓碑：记入 Removed，但不从 Assets 删除
// 这样后续 Rescan 发现远端还有这个资产时，不会把它重新挖出来
func (m *Manifest) Tombstone(name string) {
	if !m.IsRemoved(name) {
		m.Removed = append(m.Removed, name)
	}
}

// Restore 撤销墓碑，资产重新可见
func (m *Manifest) Restore(name string) {
	m.Removed = slices.DeleteFunc(m.Removed, func(n string) bool { return n == name })
}

// Upsert 写入或更新一条资产记录
func (m *Manifest) Upsert(e Entry) {
	for i := range m.Assets {
		if m.Assets[i].Name == e.Name {
			m.Assets[i] = e
			return
		}
	}
	m.Assets = append(m.Assets, e)
}

// Drop 把一条资产从 Assets 里彻底删掉 (远端确认消失时)
func (m *Manifest) Drop(name string) {
	m.Assets = slices.DeleteFunc(m.Assets, func(e Entry) bool { return e.Name == name })
}
