package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartEntry is one (composition, license) selection in a user's cart. The
// descriptive columns are a snapshot taken when the entry was added and are
// not kept in sync with the catalog.
type CartEntry struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cart_entries_user_composition_license,priority:1"`
	CompositionID uuid.UUID       `gorm:"column:composition_id;type:uuid;not null;uniqueIndex:ux_cart_entries_user_composition_license,priority:2"`
	LicenseID     string          `gorm:"column:license_id;type:text;not null;uniqueIndex:ux_cart_entries_user_composition_license,priority:3"`
	Title         string          `gorm:"column:title;not null"`
	Artist        string          `gorm:"column:artist;not null"`
	LicenseName   string          `gorm:"column:license_name;not null"`
	LicensePrice  decimal.Decimal `gorm:"column:license_price;type:numeric(12,2);not null"`
	CoverImage    string          `gorm:"column:cover_image;not null"`
	File          string          `gorm:"column:file;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *CartEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
