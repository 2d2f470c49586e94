package source

import (
	"sync"

	"splatvault/pkg/types"
)

// Conn 是各适配器共享的内存连接状态
// 只存内存态：状态机 + 上次列表的快照。适配器通过内嵌复用
type Conn struct {
	mu     sync.RWMutex
	state  types.ConnState
	assets []Asset
}

func NewConn() *Conn {
	return &Conn{state: types.StateDisconnected}
}

func (c *Conn) State() types.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) SetState(s types.ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// IsConnected 不做 I/O，纯内存判断
func (c *Conn) IsConnected() bool {
	return c.State() == types.StateConnected
}

// SetAssets 覆盖缓存的列表快照 (ListAssets 的副作用)
// 覆盖而不是追加，保证重复 Connect/List 不会产生重复条目
func (c *Conn) SetAssets(assets []Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets = assets
}

// Assets 返回快照的副本，调用方可以随意修改
func (c *Conn) Assets() []Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Reset 清空连接状态和缓存列表 (Disconnect 用)
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = types.StateDisconnected
	c.assets = nil
}
