package tablesource

import (
	"time"

	"gorm.io/datatypes"
)

// AssetRow 是托管关系表里的一条资产
// 字节可以直接存行内 (Data)，也可以外链 (URL)；Fetch 优先走行内
type AssetRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;type:varchar(255);not null"`

	// Data 行内字节 (bytea)。小资产直接放这里，省一次外部请求
	Data []byte

	// URL 外部定位符。Data 为空时从这里拉取
	URL string `gorm:"type:text"`

	Size    int64
	Preview string `gorm:"type:text"`

	// Meta 存任意附加元数据 (JSONB)
	Meta datatypes.JSON

	UpdatedAt time.Time
}

// TableName 强制指定表名
func (AssetRow) TableName() string {
	return "assets"
}
