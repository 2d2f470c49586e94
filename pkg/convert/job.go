// Package convert 定义外部 GPU 转换任务 (图片 → 3D 资产) 的客户端契约
// 任务本体是外部协作方，这里只约束轮询接口；转换耗时以分钟计
package convert

import (
	"context"
	"time"

	"splatvault/pkg/source"
)

// Phase 是任务的阶段性进度
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseWarmingUp  Phase = "warming-up"
	PhaseProcessing Phase = "processing"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal 报告该阶段是否是终态
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

type JobID string

// Status 是一次轮询的结果
// Done/Total 只在 processing 阶段有意义 (逐条推进)
type Status struct {
	Phase Phase
	Done  int
	Total int
	Err   string
}

// Job 是转换服务的客户端接口
type Job interface {
	Submit(ctx context.Context, files []source.File) (JobID, error)
	Poll(ctx context.Context, id JobID) (Status, error)
	// Cancel 尽力而为：任务可能已经跑完了
	Cancel(ctx context.Context, id JobID) error
	// Fetch 取回转换产物 (终态为 done 之后调用)
	Fetch(ctx context.Context, id JobID) ([]source.File, error)
}

// ProgressFunc 把阶段进度回调给上层 (UI)
type ProgressFunc func(Status)

// Watch 轮询到终态为止，每次变化触发回调
// ctx 取消时对任务发起尽力而为的 Cancel
func Watch(ctx context.Context, job Job, id JobID, interval time.Duration, cb ProgressFunc) (Status, error) {
	var last Status
	for {
		st, err := job.Poll(ctx, id)
		if err != nil {
			return last, err
		}
		if st != last && cb != nil {
			cb(st)
		}
		last = st

		if st.Phase.Terminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			// 上层取消：尝试叫停远端任务，用独立 ctx 发请求
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			job.Cancel(cancelCtx, id)
			cancel()
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
}
