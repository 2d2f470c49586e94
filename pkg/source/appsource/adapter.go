// Package appsource 实现应用内置存储
// 行在本地 sqlite，字节在本地目录 —— 永远在线，设备离线时也能用
package appsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// Row 是 sqlite 里的一条资产索引
type Row struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Size      int64
	UpdatedAt time.Time
}

func (Row) TableName() string { return "local_assets" }

// Config 是落盘配置：数据根目录
type Config struct {
	Root string `json:"root"`
}

// Adapter 实现 source.Source + Importer + Deleter
type Adapter struct {
	*source.Conn
	id   types.SourceID
	name string
	cfg  Config

	db *gorm.DB
}

func NewAdapter(id types.SourceID, name string, cfg Config) *Adapter {
	return &Adapter{
		Conn: source.NewConn(),
		id:   id,
		name: name,
		cfg:  cfg,
	}
}

func (a *Adapter) ID() types.SourceID     { return a.id }
func (a *Adapter) Type() types.SourceType { return types.TypeAppLocal }
func (a *Adapter) Name() string           { return a.name }

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		CanList:        true,
		CanUpload:      true,
		CanDelete:      true,
		SupportsRescan: true,
	}
}

func (a *Adapter) blobDir() string {
	return filepath.Join(a.cfg.Root, "blobs")
}

// Connect 打开 (必要时初始化) 本地库
// 内置存储没有"离线"概念：失败只能是本地环境坏了
func (a *Adapter) Connect(ctx context.Context, forceInteractive bool) types.ConnectResult {
	if a.IsConnected() {
		return types.ConnectResult{Success: true} // 幂等
	}

	if err := os.MkdirAll(a.blobDir(), 0755); err != nil {
		a.SetState(types.StateError)
		return types.ConnectResult{Err: err.Error()}
	}

	if a.db == nil {
		db, err := gorm.Open(sqlite.Open(filepath.Join(a.cfg.Root, "assets.db")), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			a.SetState(types.StateError)
			return types.ConnectResult{Err: err.Error()}
		}
		if err := db.AutoMigrate(&Row{}); err != nil {
			a.SetState(types.StateError)
			return types.ConnectResult{Err: fmt.Sprintf("auto migration failed: %v", err)}
		}
		a.db = db
	}

	a.SetState(types.StateConnected)
	return types.ConnectResult{Success: true}
}

func (a *Adapter) ListAssets(ctx context.Context) ([]source.Asset, error) {
	if a.db == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var rows []Row
	if err := a.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}

	assets := make([]source.Asset, 0, len(rows))
	for _, r := range rows {
		assets = append(assets, source.Asset{
			Name:       r.Name,
			Path:       filepath.Join(a.blobDir(), r.Name),
			Size:       r.Size,
			ModifiedAt: r.UpdatedAt,
		})
	}

	a.SetAssets(assets)
	return assets, nil
}

func (a *Adapter) FetchAssetData(ctx context.Context, asset source.Asset) ([]byte, error) {
	data, err := os.ReadFile(asset.Path)
	if os.IsNotExist(err) {
		return nil, types.ErrNotFound
	}
	return data, err
}

func (a *Adapter) FetchAssetStream(ctx context.Context, asset source.Asset) (io.ReadCloser, error) {
	f, err := os.Open(asset.Path)
	if os.IsNotExist(err) {
		return nil, types.ErrNotFound
	}
	return f, err
}

func (a *Adapter) FetchPreview(ctx context.Context, asset source.Asset) (string, error) {
	return "", nil
}

func (a *Adapter) FetchMetadata(ctx context.Context, asset source.Asset) (map[string]any, error) {
	return nil, nil
}

// ImportFiles 落字节 + 写行，行是字节的索引
// 先写字节再写行：中途崩溃最多留一个孤儿 blob，不会出现有行没字节
func (a *Adapter) ImportFiles(ctx context.Context, files []source.File) ([]source.Asset, error) {
	if a.db == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var (
		imported []source.Asset
		batch    types.PartialBatchError
	)
	for _, f := range files {
		name := filepath.Base(f.Name)
		target := filepath.Join(a.blobDir(), name)
		if err := atomicWrite(target, f.Data); err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: f.Name, Err: err})
			continue
		}

		row := Row{Name: name, Size: int64(len(f.Data))}
		err := a.db.WithContext(ctx).
			Where("name = ?", name).
			Assign(map[string]any{"size": row.Size}).
			FirstOrCreate(&row).Error
		if err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: f.Name, Err: err})
			continue
		}

		batch.Succeeded = append(batch.Succeeded, f.Name)
		imported = append(imported, source.Asset{Name: name, Path: target, Size: row.Size})
	}

	if len(batch.Failed) > 0 {
		return imported, &batch
	}
	return imported, nil
}

func (a *Adapter) DeleteAssets(ctx context.Context, paths []string) error {
	if a.db == nil || !a.IsConnected() {
		return types.ErrOffline
	}

	var batch types.PartialBatchError
	for _, p := range paths {
		name := filepath.Base(p)
		if err := a.db.WithContext(ctx).Where("name = ?", name).Delete(&Row{}).Error; err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: p, Err: err})
			continue
		}
		if err := os.Remove(filepath.Join(a.blobDir(), name)); err != nil && !os.IsNotExist(err) {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: p, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, p)
	}
	if len(batch.Failed) > 0 {
		return &batch
	}
	return nil
}

func (a *Adapter) MarshalConfig() (json.RawMessage, error) {
	return json.Marshal(a.cfg)
}

func (a *Adapter) Disconnect() {
	a.Reset()
	a.db = nil
}

var errShortWrite = errors.New("short write")

func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "blob-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return err
	}
	if n != len(data) {
		tmp.Close()
		return errShortWrite
	}
	tmp.Close()

	return os.Rename(tmp.Name(), target)
}
