// Package source 定义所有存储后端必须满足的统一契约
// 五种后端 (本地目录 / S3 / 托管表 / 应用内置 / URL 列表) 都实现同一个接口，
// 调用方只看能力 (Capabilities)，不看具体类型
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"splatvault/pkg/types"
)

// Asset 是后端汇报的一条远端资产描述
// 短命对象：每次 ListAssets 重建，永不直接落盘 (持久化走 Manifest)
type Asset struct {
	Name       string    // 在数据源内唯一
	Path       string    // 后端相关的定位符 (文件路径 / S3 Key / URL)
	Size       int64     // 可选，0 表示未知
	ModifiedAt time.Time // 可选
	Preview    string    // 可选的预览定位符，空串表示由调用方本地生成
}

// File 是一个待上传/导入的输入文件
type File struct {
	Name string
	Data []byte
}

// Source 是资产数据源的核心契约
type Source interface {
	ID() types.SourceID
	Type() types.SourceType
	Name() string

	// Capabilities 返回能力标志，调用方据此选择操作路径
	Capabilities() types.Capabilities

	// Connect 建立/校验连通性。必须幂等，且在 forceInteractive=false 时
	// 绝不触发任何交互式提示 (可以被投机性调用)
	Connect(ctx context.Context, forceInteractive bool) types.ConnectResult

	// IsConnected 只反映内存状态，不做任何 I/O
	IsConnected() bool

	// State 返回当前连接状态 (内存态)
	State() types.ConnState

	// ListAssets 拉取权威的远端列表
	// 副作用：刷新 Assets() 返回的内存缓存
	ListAssets(ctx context.Context) ([]Asset, error)

	// Assets 返回上次 ListAssets 的内存快照，不做 I/O
	Assets() []Asset

	// FetchAssetData 一次性读取资产的全部字节
	FetchAssetData(ctx context.Context, a Asset) ([]byte, error)

	// FetchAssetStream 流式读取。没有原生流能力的后端用 StreamFromData 兜底
	FetchAssetStream(ctx context.Context, a Asset) (io.ReadCloser, error)

	// FetchPreview 返回预览定位符，不支持时返回 ("", nil)
	// 调用方必须把空值当作"本地生成"，而不是错误
	FetchPreview(ctx context.Context, a Asset) (string, error)

	// FetchMetadata 返回附加元数据，不支持时返回 (nil, nil)
	FetchMetadata(ctx context.Context, a Asset) (map[string]any, error)

	// MarshalConfig 只序列化持久化的身份/配置字段
	// 绝不包含活跃连接句柄或解密后的 Secret
	MarshalConfig() (json.RawMessage, error)

	// Disconnect 清空内存连接状态和缓存列表，持久化配置不受影响
	Disconnect()
}

// Uploader 由支持远端上传的后端额外实现
type Uploader interface {
	UploadAssets(ctx context.Context, files []File) ([]Asset, error)
}

// Importer 由支持本地导入的后端额外实现
type Importer interface {
	ImportFiles(ctx context.Context, files []File) ([]Asset, error)
}

// Deleter 由支持远端删除的后端额外实现
type Deleter interface {
	DeleteAssets(ctx context.Context, paths []string) error
}

// StreamFromData 把一次性读取包装成流式接口
// 用于没有原生流能力的后端 (目录 / 表 / 内置存储)
func StreamFromData(ctx context.Context, s Source, a Asset) (io.ReadCloser, error) {
	data, err := s.FetchAssetData(ctx, a)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
