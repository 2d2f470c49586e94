// pkg/types/common.go
package types

// SourceID 是数据源的唯一标识符 (UUID String)
// 生成一次后永不改变，作为 Manifest / BlobCache 的分区 Key
type SourceID string

func (id SourceID) String() string { return string(id) }
func (id SourceID) IsZero() bool   { return id == "" }

// SourceType 标识后端种类
// 新增后端时只需要注册新的 Type + 构造函数，不需要改动调用方
type SourceType string

const (
	TypeLocalDir    SourceType = "local-directory" // 本地文件夹 (句柄可能失效)
	TypeS3Bucket    SourceType = "s3-bucket"       // 对象存储 A (S3 兼容 API)
	TypeHostedTable SourceType = "hosted-table"    // 对象存储 B (托管关系表)
	TypeAppLocal    SourceType = "app-local"       // 应用内置存储 (离线可用)
	TypeURLList     SourceType = "url-list"        // 静态 URL 列表 (只读)
)

// IsValid 检查是否是已知的后端种类
func (t SourceType) IsValid() bool {
	switch t {
	case TypeLocalDir, TypeS3Bucket, TypeHostedTable, TypeAppLocal, TypeURLList:
		return true
	}
	return false
}

// ConnState 是每个数据源的内存态连接状态
// 注意：这个状态不落盘，每次会话重建
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	// StateDegraded: 连接失败但本地有 Manifest 缓存，可以离线浏览
	StateDegraded        ConnState = "disconnected-with-cache"
	StateNeedsPermission ConnState = "needs-permission"
	StateError           ConnState = "error"
)

// Capabilities 描述一个后端支持的能力集
// 调用方必须先查能力，再决定走哪条操作路径 (而不是按 Type 硬编码)
type Capabilities struct {
	CanList        bool
	CanUpload      bool
	CanDelete      bool
	ReadOnly       bool
	SupportsRescan bool
}

// ConnectResult 是 Connect 的类型化返回值
// 预期中的失败 (需要授权 / 离线) 不走 error 通道
type ConnectResult struct {
	Success         bool
	NeedsPermission bool
	Offline         bool
	Err             string
}

// RescanResult 汇报一次增量同步的结果
type RescanResult struct {
	Success      bool
	Added        []string // 新增资产的名字
	RemovedCount int      // 本次从可见集合中消失的数量
}
