// pkg/app/app.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"splatvault/pkg/blobcache"
	"splatvault/pkg/convert"
	"splatvault/pkg/importer"
	"splatvault/pkg/manifest"
	"splatvault/pkg/registry"
	"splatvault/pkg/source"
	"splatvault/pkg/source/appsource"
	"splatvault/pkg/source/dirsource"
	"splatvault/pkg/source/s3source"
	"splatvault/pkg/source/tablesource"
	"splatvault/pkg/source/urlsource"
	"splatvault/pkg/syncengine"
	"splatvault/pkg/types"
	"splatvault/pkg/vault"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 持有所有单例服务；CLI 命令只通过它访问子系统
type App struct {
	Registry *registry.Registry
	Engine   *syncengine.Engine
	Vault    *vault.Vault
	Session  *vault.Session
	Importer *importer.Orchestrator
	Log      *zap.Logger

	RootPath string

	// 活的适配器实例按 ID 缓存：连接状态是会话态，
	// 同一个会话里反复 Hydrate 会把状态机打回原点
	mu      sync.Mutex
	sources map[types.SourceID]source.Source
}

// NewApp 组装容器。job 可以为 nil (没配转换服务)
func NewApp(job convert.Job) (*App, error) {
	rootPath := viper.GetString("storage.path")
	if rootPath == "" {
		return nil, fmt.Errorf("storage path not set")
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create app dir: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(filepath.Join(rootPath, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	manifests, err := manifest.NewStore(filepath.Join(rootPath, "manifests"))
	if err != nil {
		return nil, err
	}

	var blobs blobcache.Cache
	disk, err := blobcache.NewDiskCache(filepath.Join(rootPath, "blobcache"))
	if err != nil {
		return nil, err
	}
	blobs = disk

	// Redis 是可选加速层，连不上就退回纯磁盘
	if redisURL := viper.GetString("cache.redis_url"); redisURL != "" {
		cached, err := blobcache.NewCachedIndex(disk, blobcache.RedisConfig{
			URL: redisURL,
			TTL: viper.GetDuration("cache.redis_ttl"),
		}, log)
		if err != nil {
			log.Warn("redis cache unavailable, using disk only", zap.Error(err))
		} else {
			blobs = cached
		}
	}

	vlt, err := vault.Open(filepath.Join(rootPath, "secrets.cbor"))
	if err != nil {
		return nil, err
	}

	engine := syncengine.New(manifests, blobs, log)

	a := &App{
		Registry: reg,
		Engine:   engine,
		Vault:    vlt,
		Session:  vault.NewSession(),
		Log:      log,
		RootPath: rootPath,
		sources:  make(map[types.SourceID]source.Source),
	}

	opts := importer.Options{
		RetryAttempts: viper.GetInt("sync.retry_attempts"),
		RetryBackoff:  viper.GetDuration("sync.retry_backoff"),
		ReloadDelay:   viper.GetDuration("sync.reload_delay"),
		PollInterval:  viper.GetDuration("convert.poll_interval"),
	}
	a.Importer = importer.New(engine, job, opts, nil, log)

	a.registerConstructors()

	if err := a.bootstrapDemoSource(context.Background()); err != nil {
		return nil, err
	}

	return a, nil
}

// registerConstructors 把五种后端的构造函数挂进注册表
// Secret 永远以 Vault 引用的形式出现在配置里，连接时才解析
func (a *App) registerConstructors() {
	a.Registry.Register(types.TypeLocalDir, func(rec registry.Record) (source.Source, error) {
		var cfg dirsource.Config
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, err
		}
		return dirsource.NewAdapter(rec.SourceID(), rec.Name, cfg), nil
	})

	a.Registry.Register(types.TypeS3Bucket, func(rec registry.Record) (source.Source, error) {
		var cfg s3source.Config
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, err
		}
		creds := func(ctx context.Context) (string, string, error) {
			plain, err := a.Vault.Decrypt(a.Session, cfg.SecretRef)
			if err != nil {
				return "", "", err
			}
			ak, sk, ok := strings.Cut(plain, ":")
			if !ok {
				return "", "", errors.New("malformed s3 credential secret")
			}
			return ak, sk, nil
		}
		return s3source.NewAdapter(rec.SourceID(), rec.Name, cfg, creds), nil
	})

	a.Registry.Register(types.TypeHostedTable, func(rec registry.Record) (source.Source, error) {
		var cfg tablesource.Config
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, err
		}
		creds := func(ctx context.Context) (string, error) {
			return a.Vault.Decrypt(a.Session, cfg.SecretRef)
		}
		return tablesource.NewAdapter(rec.SourceID(), rec.Name, cfg, creds), nil
	})

	a.Registry.Register(types.TypeAppLocal, func(rec registry.Record) (source.Source, error) {
		var cfg appsource.Config
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Root == "" {
			cfg.Root = filepath.Join(a.RootPath, "local", rec.ID)
		}
		return appsource.NewAdapter(rec.SourceID(), rec.Name, cfg), nil
	})

	a.Registry.Register(types.TypeURLList, func(rec registry.Record) (source.Source, error) {
		var cfg urlsource.Config
		if err := json.Unmarshal(rec.Config, &cfg); err != nil {
			return nil, err
		}
		return urlsource.NewAdapter(rec.SourceID(), rec.Name, cfg), nil
	})
}

// Source 返回一个活的适配器实例 (按 ID 缓存)
func (a *App) Source(ctx context.Context, id types.SourceID) (source.Source, error) {
	a.mu.Lock()
	if s, ok := a.sources[id]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	rec, err := a.Registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := a.Registry.Hydrate(rec)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// 并发 Hydrate 同一个 ID 时以先到的为准
	if exist, ok := a.sources[id]; ok {
		return exist, nil
	}
	a.sources[id] = s
	return s, nil
}

// DefaultSource 解析默认数据源
func (a *App) DefaultSource(ctx context.Context) (source.Source, error) {
	rec, ok, err := a.Registry.Default(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no default source configured")
	}
	return a.Source(ctx, rec.SourceID())
}

// RemoveSource 移除数据源并级联清理本地状态
// deleteRemote 必须显式 opt-in；默认绝不动远端数据
func (a *App) RemoveSource(ctx context.Context, id types.SourceID, deleteRemote bool) error {
	if deleteRemote {
		src, err := a.Source(ctx, id)
		if err != nil {
			return err
		}
		if d, ok := src.(source.Deleter); ok && src.Capabilities().CanDelete {
			assets, err := a.Engine.Guard().List(ctx, src)
			if err != nil {
				return fmt.Errorf("cannot enumerate remote assets for deletion: %w", err)
			}
			paths := make([]string, len(assets))
			for i, as := range assets {
				paths[i] = as.Path
			}
			if err := d.DeleteAssets(ctx, paths); err != nil {
				return err
			}
		}
	}

	if err := a.Engine.Forget(ctx, id); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.sources, id)
	a.mu.Unlock()

	return a.Registry.Remove(ctx, id)
}

// bootstrapDemoSource 首次启动时注册一个内置的只读演示源
func (a *App) bootstrapDemoSource(ctx context.Context) error {
	recs, err := a.Registry.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		return nil
	}

	rec, err := a.Registry.Create(ctx, types.TypeURLList, "Demo Scenes", urlsource.Config{
		Entries: []urlsource.Entry{
			{Name: "garden.splat", URL: "https://assets.splatvault.dev/demo/garden.splat"},
			{Name: "bicycle.splat", URL: "https://assets.splatvault.dev/demo/bicycle.splat"},
			{Name: "truck.ply", URL: "https://assets.splatvault.dev/demo/truck.ply"},
		},
	})
	if err != nil {
		return err
	}
	return a.Registry.SetDefault(ctx, rec.SourceID())
}

// Close 收尾：清会话密钥、刷日志
func (a *App) Close() {
	a.Session.Clear()
	a.Log.Sync()
}
