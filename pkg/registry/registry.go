// Package registry 是进程级的数据源目录：谁被配置过、谁是默认
// 持久化在本地 sqlite；Config 列永远不含解密后的 Secret
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrUnknownType    = errors.New("unknown source type")
)

// Record 是 sources 表里的一行
type Record struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Type         string `gorm:"index;not null"`
	Name         string `gorm:"not null"`
	CreatedAt    time.Time
	LastAccessed time.Time
	IsDefault    bool           `gorm:"index"`
	Config       datatypes.JSON // 后端相关配置，Secret 只存 Vault 引用
}

func (Record) TableName() string { return "sources" }

func (r Record) SourceID() types.SourceID     { return types.SourceID(r.ID) }
func (r Record) SourceType() types.SourceType { return types.SourceType(r.Type) }

// Constructor 从持久化记录重建一个活的适配器
// 按 Type 注册，新后端 = 新注册项，不改任何调用点
type Constructor func(rec Record) (source.Source, error)

// Registry 封装 sources 表的全部操作
type Registry struct {
	db           *gorm.DB
	constructors map[types.SourceType]Constructor
}

// Open 打开 (或初始化) 注册表数据库
func Open(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry db: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return newRegistry(db), nil
}

// NewWithConn 用现成的 GORM 连接初始化，单测用
func NewWithConn(db *gorm.DB) (*Registry, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return newRegistry(db), nil
}

func newRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db:           db,
		constructors: make(map[types.SourceType]Constructor),
	}
}

// Register 注册一种后端的构造函数
func (r *Registry) Register(t types.SourceType, ctor Constructor) {
	r.constructors[t] = ctor
}

// Create 新建一条数据源记录。ID 生成一次，之后永不变
func (r *Registry) Create(ctx context.Context, t types.SourceType, name string, config any) (Record, error) {
	if !t.IsValid() {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:           uuid.NewString(),
		Type:         string(t),
		Name:         name,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
		Config:       datatypes.JSON(raw),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Registry) Get(ctx context.Context, id types.SourceID) (Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrSourceNotFound
	}
	return rec, err
}

func (r *Registry) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).Order("created_at").Find(&recs).Error
	return recs, err
}

func (r *Registry) Rename(ctx context.Context, id types.SourceID, name string) error {
	res := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id.String()).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// Touch 更新最近访问时间 (连接成功后调用)
func (r *Registry) Touch(ctx context.Context, id types.SourceID) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id.String()).
		Update("last_accessed", time.Now()).Error
}

// UpdateConfig 回写适配器的持久化配置 (重连/改配置后)
func (r *Registry) UpdateConfig(ctx context.Context, id types.SourceID, config json.RawMessage) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id.String()).
		Update("config", datatypes.JSON(config)).Error
}

// SetDefault 把一条记录设为默认
// 不变式：全进程最多一个默认。同一个事务里先清后设
func (r *Registry) SetDefault(ctx context.Context, id types.SourceID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Record{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		res := tx.Model(&Record{}).Where("id = ?", id.String()).Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSourceNotFound
		}
		return nil
	})
}

// Default 返回默认数据源 (可能没有)
func (r *Registry) Default(ctx context.Context) (Record, bool, error) {
	var rec Record
	err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Remove 删除一条记录
// 远端数据和本地缓存的级联清理由调用方 (App/Engine) 负责，
// 这里只动目录本身
func (r *Registry) Remove(ctx context.Context, id types.SourceID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// Hydrate 从记录重建适配器实例
func (r *Registry) Hydrate(rec Record) (source.Source, error) {
	ctor, ok := r.constructors[rec.SourceType()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, rec.Type)
	}
	return ctor(rec)
}
