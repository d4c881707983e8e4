package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beatvault/beatvault-backend/internal/catalog"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
)

// Entry is a cart line as returned to callers. File is carried for checkout
// snapshots but never serialized.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	CompositionID uuid.UUID       `json:"compositionId"`
	LicenseID     string          `json:"licenseId"`
	Title         string          `json:"title"`
	Artist        string          `json:"artist"`
	LicenseName   string          `json:"licenseName"`
	LicensePrice  decimal.Decimal `json:"licensePrice"`
	CoverImage    string          `json:"coverImage"`
	File          string          `json:"-"`
	AddedAt       time.Time       `json:"addedAt"`
}

// Selection is one (composition, license) pair requested by the caller.
type Selection struct {
	CompositionID uuid.UUID `json:"compositionId" validate:"required"`
	LicenseID     string    `json:"licenseId" validate:"required"`
}

func toEntry(m models.CartEntry) Entry {
	return Entry{
		ID:            m.ID,
		CompositionID: m.CompositionID,
		LicenseID:     m.LicenseID,
		Title:         m.Title,
		Artist:        m.Artist,
		LicenseName:   m.LicenseName,
		LicensePrice:  m.LicensePrice,
		CoverImage:    m.CoverImage,
		File:          m.File,
		AddedAt:       m.CreatedAt,
	}
}

func applySnapshot(entry *models.CartEntry, snap catalog.LicenseSnapshot) {
	entry.CompositionID = snap.CompositionID
	entry.LicenseID = snap.LicenseID
	entry.Title = snap.Title
	entry.Artist = snap.Artist
	entry.LicenseName = snap.LicenseName
	entry.LicensePrice = snap.LicensePrice
	entry.CoverImage = snap.CoverImage
	entry.File = snap.File
}
