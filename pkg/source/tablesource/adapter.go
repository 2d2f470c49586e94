// Package tablesource 实现对象存储后端 B：托管关系表
// 资产以行的形式存在一张 postgres 表里，字节走行内 bytea 或外链 URL
package tablesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// Config 是落盘配置，密码走 Vault 引用
type Config struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	DBName    string `json:"dbname"`
	SSLMode   string `json:"sslmode"` // "disable" for local
	SecretRef string `json:"secret_ref"`
	CanWrite  bool   `json:"can_write"`
}

// CredentialFunc 在连接时解析数据库密码 (由 Vault 提供)
type CredentialFunc func(ctx context.Context) (password string, err error)

// Adapter 实现 source.Source；CanWrite 时额外实现 Uploader + Deleter
type Adapter struct {
	*source.Conn
	id    types.SourceID
	name  string
	cfg   Config
	creds CredentialFunc

	db   *gorm.DB
	http *http.Client
}

func NewAdapter(id types.SourceID, name string, cfg Config, creds CredentialFunc) *Adapter {
	return &Adapter{
		Conn:  source.NewConn(),
		id:    id,
		name:  name,
		cfg:   cfg,
		creds: creds,
		http:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewWithConn 用现成的 GORM 连接初始化，依赖注入/单测用
func NewWithConn(id types.SourceID, name string, cfg Config, conn *gorm.DB) *Adapter {
	a := NewAdapter(id, name, cfg, nil)
	a.db = conn
	return a
}

func (a *Adapter) ID() types.SourceID     { return a.id }
func (a *Adapter) Type() types.SourceType { return types.TypeHostedTable }
func (a *Adapter) Name() string           { return a.name }

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		CanList:        true,
		CanUpload:      a.cfg.CanWrite,
		CanDelete:      a.cfg.CanWrite,
		ReadOnly:       !a.cfg.CanWrite,
		SupportsRescan: true,
	}
}

func (a *Adapter) Connect(ctx context.Context, forceInteractive bool) types.ConnectResult {
	if a.IsConnected() {
		return types.ConnectResult{Success: true} // 幂等
	}
	a.SetState(types.StateConnecting)

	if a.db == nil {
		password, err := a.creds(ctx)
		if err != nil {
			a.SetState(types.StateNeedsPermission)
			return types.ConnectResult{NeedsPermission: true, Err: err.Error()}
		}

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			a.cfg.Host, a.cfg.User, password, a.cfg.DBName, a.cfg.Port, a.cfg.SSLMode,
		)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			a.SetState(types.StateDisconnected)
			return types.ConnectResult{Offline: true, Err: err.Error()}
		}
		a.db = db
	}

	sqlDB, err := a.db.DB()
	if err == nil {
		// 连接池配置
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		a.SetState(types.StateDisconnected)
		return types.ConnectResult{Offline: true, Err: err.Error()}
	}

	// 只有写权限的角色才尝试建表；只读角色 Migrate 会被远端拒绝
	if a.cfg.CanWrite {
		if err := a.db.WithContext(ctx).AutoMigrate(&AssetRow{}); err != nil {
			a.SetState(types.StateError)
			return types.ConnectResult{Err: fmt.Sprintf("auto migration failed: %v", err)}
		}
	}

	a.SetState(types.StateConnected)
	return types.ConnectResult{Success: true}
}

func (a *Adapter) ListAssets(ctx context.Context) ([]source.Asset, error) {
	if a.db == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var rows []AssetRow
	if err := a.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: table list failed: %v", types.ErrOffline, err)
	}

	assets := make([]source.Asset, 0, len(rows))
	for _, r := range rows {
		assets = append(assets, source.Asset{
			Name:       r.Name,
			Path:       r.Name, // 行的定位符就是唯一的 Name
			Size:       r.Size,
			ModifiedAt: r.UpdatedAt,
			Preview:    r.Preview,
		})
	}

	a.SetAssets(assets)
	return assets, nil
}

func (a *Adapter) row(ctx context.Context, name string) (*AssetRow, error) {
	var row AssetRow
	err := a.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrOffline, err)
	}
	return &row, nil
}

// FetchAssetData 优先取行内字节，行内为空再走外链 URL
func (a *Adapter) FetchAssetData(ctx context.Context, asset source.Asset) ([]byte, error) {
	if a.db == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	row, err := a.row(ctx, asset.Path)
	if err != nil {
		return nil, err
	}
	if len(row.Data) > 0 {
		return row.Data, nil
	}
	if row.URL == "" {
		return nil, types.ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, row.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", types.ErrOffline, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) FetchAssetStream(ctx context.Context, asset source.Asset) (io.ReadCloser, error) {
	return source.StreamFromData(ctx, a, asset)
}

func (a *Adapter) FetchPreview(ctx context.Context, asset source.Asset) (string, error) {
	return asset.Preview, nil
}

func (a *Adapter) FetchMetadata(ctx context.Context, asset source.Asset) (map[string]any, error) {
	if a.db == nil || !a.IsConnected() {
		return nil, nil
	}
	row, err := a.row(ctx, asset.Path)
	if err != nil {
		return nil, nil // 元数据缺失不是错误
	}
	if len(row.Meta) == 0 {
		return nil, nil
	}

	var meta map[string]any
	if err := json.Unmarshal(row.Meta, &meta); err != nil {
		return nil, nil
	}
	return meta, nil
}

// UploadAssets 以 Upsert 写入行 (同名覆盖，保证幂等)
func (a *Adapter) UploadAssets(ctx context.Context, files []source.File) ([]source.Asset, error) {
	if !a.cfg.CanWrite {
		return nil, types.ErrReadOnly
	}
	if a.db == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var (
		uploaded []source.Asset
		batch    types.PartialBatchError
	)
	for _, f := range files {
		row := AssetRow{
			Name: f.Name,
			Data: f.Data,
			Size: int64(len(f.Data)),
		}
		err := a.db.WithContext(ctx).
			Where("name = ?", f.Name).
			Assign(map[string]any{"data": f.Data, "size": row.Size}).
			FirstOrCreate(&row).Error
		if err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: f.Name, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, f.Name)
		uploaded = append(uploaded, source.Asset{Name: f.Name, Path: f.Name, Size: row.Size})
	}

	if len(batch.Failed) > 0 {
		return uploaded, &batch
	}
	return uploaded, nil
}

func (a *Adapter) DeleteAssets(ctx context.Context, paths []string) error {
	if !a.cfg.CanWrite {
		return types.ErrReadOnly
	}
	if a.db == nil || !a.IsConnected() {
		return types.ErrOffline
	}

	var batch types.PartialBatchError
	for _, p := range paths {
		if err := a.db.WithContext(ctx).Where("name = ?", p).Delete(&AssetRow{}).Error; err != nil {
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
	// 连接池交给 GC；配置不动
	a.db = nil
}
