package models

import (
	"time"

	"github.com/beatvault/beatvault-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Composition is a beat listed in the catalog by its producer.
type Composition struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	Title         string                      `gorm:"column:title;not null"`
	ArtistID      uuid.UUID                   `gorm:"column:artist_id;type:uuid;not null;index"`
	Artist        *User                       `gorm:"foreignKey:ArtistID"`
	Price         decimal.Decimal             `gorm:"column:price;type:numeric(12,2);not null"`
	Genre         enums.Genre                 `gorm:"column:genre;type:text;not null"`
	Key           enums.MusicalKey            `gorm:"column:musical_key;type:text;not null"`
	BPM           int                         `gorm:"column:bpm;not null"`
	Tags          datatypes.JSONSlice[string] `gorm:"column:tags;type:jsonb;not null"`
	FileURL       string                      `gorm:"column:file_url;not null"`
	CoverImageURL string                      `gorm:"column:cover_image_url;not null"`
	ListenCount   int64                       `gorm:"column:listen_count;not null;default:0"`
	Licenses      []CompositionLicense        `gorm:"foreignKey:CompositionID"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Composition) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CompositionLicense is a license tier offered for a composition at a
// producer-chosen price.
type CompositionLicense struct {
	CompositionID uuid.UUID       `gorm:"column:composition_id;type:uuid;primaryKey"`
	LicenseID     string          `gorm:"column:license_id;type:text;primaryKey"`
	License       *License        `gorm:"foreignKey:LicenseID"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
}

// CompositionListen is one entry of the append-only listen log.
type CompositionListen struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CompositionID uuid.UUID `gorm:"column:composition_id;type:uuid;not null;index"`
	ListenerKey   string    `gorm:"column:listener_key;not null"`
	ListenedAt    time.Time `gorm:"column:listened_at;not null"`
}

func (l *CompositionListen) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
