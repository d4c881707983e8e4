package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

// ListFilter narrows composition listings. Zero values mean "any".
type ListFilter struct {
	Genre    enums.Genre
	Key      enums.MusicalKey
	MinBPM   int
	MaxBPM   int
	ArtistID *uuid.UUID
	Search   string
}

// LicenseTierInput prices one license for a composition.
type LicenseTierInput struct {
	LicenseID string          `json:"licenseId" validate:"required"`
	Price     decimal.Decimal `json:"price"`
}

// CompositionInput carries the producer-editable fields of a composition.
type CompositionInput struct {
	Title      string             `json:"title" validate:"required,max=200"`
	Price      decimal.Decimal    `json:"price"`
	Genre      string             `json:"genre"`
	Key        string             `json:"key"`
	BPM        int                `json:"bpm" validate:"required,min=1"`
	Tags       []string           `json:"tags" validate:"max=3"`
	File       string             `json:"file" validate:"required"`
	CoverImage string             `json:"coverImage" validate:"required"`
	Licenses   []LicenseTierInput `json:"licenses" validate:"dive"`
}

// LicenseDTO is the public shape of a catalog license.
type LicenseDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	FileTypes  []string        `json:"fileTypes,omitempty"`
	UsageLimit int             `json:"usageLimit"`
}

// LicenseTierDTO is a license offered by a composition.
type LicenseTierDTO struct {
	LicenseID string          `json:"licenseId"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

// CompositionDTO is the public shape of a composition.
type CompositionDTO struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	ArtistID    uuid.UUID        `json:"artistId"`
	Artist      string           `json:"artist,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	Genre       enums.Genre      `json:"genre,omitempty"`
	Key         enums.MusicalKey `json:"key,omitempty"`
	BPM         int              `json:"bpm"`
	Tags        []string         `json:"tags"`
	CoverImage  string           `json:"coverImage"`
	ListenCount int64            `json:"listenCount"`
	Licenses    []LicenseTierDTO `json:"licenses"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// LicenseSnapshot is the denormalized view of one (composition, license)
// pair, captured when the pair enters a cart.
type LicenseSnapshot struct {
	CompositionID uuid.UUID
	Title         string
	Artist        string
	LicenseID     string
	LicenseName   string
	LicensePrice  decimal.Decimal
	CoverImage    string
	File          string
}

// ListResult is one page of compositions.
type ListResult struct {
	Items []CompositionDTO `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func toLicenseDTO(m models.License) LicenseDTO {
	return LicenseDTO{
		ID:         m.ID,
		Name:       m.Name,
		Price:      m.Price,
		FileTypes:  []string(m.FileTypes),
		UsageLimit: m.UsageLimit,
	}
}

// toCompositionDTO omits the file reference, which is only released through
// the download path.
func toCompositionDTO(m models.Composition) CompositionDTO {
	dto := CompositionDTO{
		ID:          m.ID,
		Title:       m.Title,
		ArtistID:    m.ArtistID,
		Price:       m.Price,
		Genre:       m.Genre,
		Key:         m.Key,
		BPM:         m.BPM,
		Tags:        []string(m.Tags),
		CoverImage:  m.CoverImageURL,
		ListenCount: m.ListenCount,
		CreatedAt:   m.CreatedAt,
		Licenses: lo.Map(m.Licenses, func(tier models.CompositionLicense, _ int) LicenseTierDTO {
			out := LicenseTierDTO{LicenseID: tier.LicenseID, Price: tier.Price}
			if tier.License != nil {
				out.Name = tier.License.Name
			}
			return out
		}),
	}
	if m.Artist != nil {
		dto.Artist = m.Artist.Username
	}
	if dto.Tags == nil {
		dto.Tags = []string{}
	}
	return dto
}
