package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// License is a purchasable usage tier, keyed by a stable slug such as
// "basic" or "exclusive".
type License struct {
	ID         string                      `gorm:"column:id;type:text;primaryKey"`
	Name       string                      `gorm:"column:name;not null;uniqueIndex"`
	Price      decimal.Decimal             `gorm:"column:price;type:numeric(12,2);not null"`
	FileTypes  datatypes.JSONSlice[string] `gorm:"column:file_types;type:jsonb;not null"`
	UsageLimit int                         `gorm:"column:usage_limit;not null;default:0"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
