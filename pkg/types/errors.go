package types

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类 (Error Taxonomy)
// 适配器对"预期中的失败"返回这些哨兵错误，调用方用 errors.Is 判断降级路径
var (
	// ErrPermissionRequired: 本地目录授权被撤销/尚未授予，需要用户手势恢复
	ErrPermissionRequired = errors.New("permission required")

	// ErrOffline: 传输层失败，可以降级到 Manifest 缓存
	ErrOffline = errors.New("offline or transport failure")

	// ErrRemoteRejected: 远端拒绝写入 (权限不足)，对本次操作是致命的，对数据源不是
	ErrRemoteRejected = errors.New("remote rejected operation")

	// ErrVaultMismatch: 密码不匹配。故意不说明是哪个 Secret 解密失败 (防 Oracle 泄露)
	ErrVaultMismatch = errors.New("password does not match")

	// ErrNotFound: 资产/对象不存在
	ErrNotFound = errors.New("asset not found")

	// ErrReadOnly: 对只读数据源发起写操作，必须在任何网络调用之前被拦截
	ErrReadOnly = errors.New("source is read-only")
)

// ItemFailure 记录批处理中单个文件的失败
type ItemFailure struct {
	Name string
	Err  error
}

// PartialBatchError 表示批处理部分成功
// 设计约定：永不回滚已成功的条目，失败列表必须完整枚举
type PartialBatchError struct {
	Succeeded []string
	Failed    []ItemFailure
}

func (e *PartialBatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d items failed:", len(e.Failed), len(e.Failed)+len(e.Succeeded))
	for _, f := range e.Failed {
		fmt.Fprintf(&b, " %s (%v);", f.Name, f.Err)
	}
	return b.String()
}
