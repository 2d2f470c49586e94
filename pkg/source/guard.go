package source

import (
	"context"

	"golang.org/x/sync/singleflight"

	"splatvault/pkg/types"
)

// Guard 把同一个数据源上并发的 Connect/List 合并为一次后端调用
// (Request Coalescing)。Key 是 "sourceID:op"，不同数据源互不影响
type Guard struct {
	group singleflight.Group
}

func NewGuard() *Guard {
	return &Guard{}
}

// Connect 合并并发的连接请求
// 注意：forceInteractive=true 的请求不合并进投机性请求，避免把
// 用户手势吞掉
func (g *Guard) Connect(ctx context.Context, s Source, forceInteractive bool) types.ConnectResult {
	key := s.ID().String() + ":connect"
	if forceInteractive {
		key += ":interactive"
	}
	v, _, _ := g.group.Do(key, func() (any, error) {
		return s.Connect(ctx, forceInteractive), nil
	})
	return v.(types.ConnectResult)
}

// List 合并并发的列表请求，返回同一份结果
func (g *Guard) List(ctx context.Context, s Source) ([]Asset, error) {
	v, err, _ := g.group.Do(s.ID().String()+":list", func() (any, error) {
		return s.ListAssets(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Asset), nil
}
