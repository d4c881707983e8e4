package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase is the immutable record of one fulfilled checkout session.
type Purchase struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	SessionID   string          `gorm:"column:session_id;not null;uniqueIndex:ux_purchases_session_id"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency    string          `gorm:"column:currency;not null"`
	Items       []PurchaseItem  `gorm:"foreignKey:PurchaseID"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PurchaseItem embeds the checkout snapshot of a single purchased license.
type PurchaseItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID    uuid.UUID       `gorm:"column:purchase_id;type:uuid;not null;index"`
	Position      int             `gorm:"column:position;not null"`
	CompositionID uuid.UUID       `gorm:"column:composition_id;type:uuid;not null;index"`
	Title         string          `gorm:"column:title;not null"`
	Artist        string          `gorm:"column:artist;not null"`
	LicenseID     string          `gorm:"column:license_id;type:text;not null"`
	LicenseName   string          `gorm:"column:license_name;not null"`
	LicensePrice  decimal.Decimal `gorm:"column:license_price;type:numeric(12,2);not null"`
	CoverImage    string          `gorm:"column:cover_image;not null"`
	File          string          `gorm:"column:file;not null"`
}

func (i *PurchaseItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
