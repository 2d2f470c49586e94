// pkg/importer/orchestrator.go
package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"splatvault/pkg/convert"
	"splatvault/pkg/source"
	"splatvault/pkg/syncengine"
	"splatvault/pkg/types"
)

// Options 是每个后端可调的确认扫描参数
type Options struct {
	RetryAttempts int           // 确认扫描的最大次数
	RetryBackoff  time.Duration // 两次扫描之间的固定间隔
	ReloadDelay   time.Duration // 防抖的全量刷新延迟
	PollInterval  time.Duration // 转换任务的轮询间隔
}

func DefaultOptions() Options {
	return Options{
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
		ReloadDelay:   750 * time.Millisecond,
		PollInterval:  2 * time.Second,
	}
}

// Result 汇总一次批处理的结果
type Result struct {
	Uploaded []source.Asset
	Queued   bool // 进了会话级本地队列 (后端没有写入路径)
	Partial  *types.PartialBatchError
}

// Orchestrator 把一批文件路由到正确的后端操作，
// 并在写操作之后让 Manifest / UI 恢复一致
type Orchestrator struct {
	engine *syncengine.Engine
	job    convert.Job // 可以为 nil：没配转换服务
	opts   Options
	log    *zap.Logger

	// reload 是 UI 的全量刷新回调，防抖合并
	reload      func()
	reloadMu    sync.Mutex
	reloadTimer *time.Timer

	// sessionQueue 收留没有任何写入能力的数据源的文件
	// 纯内存，绝不落盘，进程结束即消失
	queueMu      sync.Mutex
	sessionQueue map[types.SourceID][]source.File
}

func New(engine *syncengine.Engine, job convert.Job, opts Options, reload func(), log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		engine:       engine,
		job:          job,
		opts:         opts,
		log:          log,
		reload:       reload,
		sessionQueue: make(map[types.SourceID][]source.File),
	}
}

// Upload 处理一批资产文件
// 顺序约束：分类 → 写权限门禁 (在任何网络调用之前) → 路由 →
// 确认扫描 → 防抖刷新。失败的条目全部枚举在 Result 里，不静默丢弃
func (o *Orchestrator) Upload(ctx context.Context, src source.Source, files []source.File) (*Result, error) {
	kind, err := Classify(files)
	if err != nil {
		return nil, err
	}
	if kind == BatchImages {
		return nil, errors.New("image batch must go through ConvertAndUpload")
	}
	return o.dispatch(ctx, src, files)
}

func (o *Orchestrator) dispatch(ctx context.Context, src source.Source, files []source.File) (*Result, error) {
	caps := src.Capabilities()

	// 写权限门禁：连着但只读的源，必须在本地拦截，
	// 不能发出去再看远端报什么错
	if caps.ReadOnly {
		return nil, types.ErrReadOnly
	}

	var (
		result   Result
		uploaded []source.Asset
		opErr    error
	)
	switch {
	case caps.CanUpload && o.asUploader(src) != nil:
		uploaded, opErr = o.asUploader(src).UploadAssets(ctx, files)
	case o.asImporter(src) != nil:
		uploaded, opErr = o.asImporter(src).ImportFiles(ctx, files)
	default:
		// 没有任何写路径：收进会话级队列，让用户这个会话里还能看到
		o.queueMu.Lock()
		o.sessionQueue[src.ID()] = append(o.sessionQueue[src.ID()], files...)
		o.queueMu.Unlock()
		result.Queued = true
		return &result, nil
	}

	result.Uploaded = uploaded

	var partial *types.PartialBatchError
	if opErr != nil {
		if !errors.As(opErr, &partial) {
			return nil, opErr
		}
		result.Partial = partial // 部分成功继续走确认流程
	}

	if len(uploaded) > 0 {
		names := make([]string, len(uploaded))
		for i, a := range uploaded {
			names[i] = a.Name
		}

		// 先确认扫描，再触发刷新 —— 刷新绝不允许跑在确认前面
		if _, err := o.engine.RescanWithRetry(ctx, src, names, o.opts.RetryAttempts, o.opts.RetryBackoff); err != nil {
			o.log.Warn("post-upload rescan failed, scheduling delayed reload",
				zap.String("source", src.ID().String()), zap.Error(err))
		}
		o.scheduleReload()
	}

	return &result, nil
}

func (o *Orchestrator) asUploader(src source.Source) source.Uploader {
	if u, ok := src.(source.Uploader); ok {
		return u
	}
	return nil
}

func (o *Orchestrator) asImporter(src source.Source) source.Importer {
	if i, ok := src.(source.Importer); ok {
		return i
	}
	return nil
}

// SessionQueue 返回某个数据源的会话级队列快照
func (o *Orchestrator) SessionQueue(id types.SourceID) []source.File {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	out := make([]source.File, len(o.sessionQueue[id]))
	copy(out, o.sessionQueue[id])
	return out
}

// scheduleReload 防抖：连续多次写操作只触发一次全量刷新
func (o *Orchestrator) scheduleReload() {
	if o.reload == nil {
		return
	}
	o.reloadMu.Lock()
	defer o.reloadMu.Unlock()

	if o.reloadTimer != nil {
		o.reloadTimer.Stop()
	}
	o.reloadTimer = time.AfterFunc(o.opts.ReloadDelay, o.reload)
}

// BatchProgress 是链式多批转换时的批次相对进度
type BatchProgress struct {
	BatchIndex int // 0-based
	BatchCount int
	Status     convert.Status
	// Overall*: 把每批的逐条进度折算到全局计数
	OverallDone  int
	OverallTotal int
}

// ConvertAndUpload 把图片批次送外部 GPU 任务转换，产物再走常规上传
// 进度按批次折算后回调；ctx 取消时对在途任务做尽力而为的取消
func (o *Orchestrator) ConvertAndUpload(ctx context.Context, src source.Source, batches [][]source.File, onProgress func(BatchProgress)) (*Result, error) {
	if o.job == nil {
		return nil, errors.New("no conversion service configured")
	}

	// 门禁提前到转换之前：转完发现传不上去纯属浪费 GPU
	if src.Capabilities().ReadOnly {
		return nil, types.ErrReadOnly
	}

	overallTotal := 0
	for _, b := range batches {
		overallTotal += len(b)
	}

	var converted []source.File
	doneSoFar := 0
	for i, batch := range batches {
		kind, err := Classify(batch)
		if err != nil {
			return nil, err
		}
		if kind != BatchImages {
			return nil, errors.New("conversion batch must contain only images")
		}

		id, err := o.job.Submit(ctx, batch)
		if err != nil {
			return nil, err
		}

		offset := doneSoFar
		st, err := convert.Watch(ctx, o.job, id, o.opts.PollInterval, func(st convert.Status) {
			if onProgress != nil {
				onProgress(BatchProgress{
					BatchIndex:   i,
					BatchCount:   len(batches),
					Status:       st,
					OverallDone:  offset + st.Done,
					OverallTotal: overallTotal,
				})
			}
		})
		if err != nil {
			return nil, err
		}
		if st.Phase != convert.PhaseDone {
			return nil, errors.New("conversion failed: " + st.Err)
		}

		out, err := o.job.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		converted = append(converted, out...)
		doneSoFar += len(batch)
	}

	return o.dispatch(ctx, src, converted)
}
