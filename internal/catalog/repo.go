package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/pagination"
)

// Repository persists compositions, their license tiers and the license catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateComposition inserts the composition and its license tiers.
func (r *Repository) CreateComposition(ctx context.Context, composition *models.Composition) error {
	db := r.db.WithContext(ctx)
	tiers := composition.Licenses
	if err := db.Omit("Licenses", "Artist").Create(composition).Error; err != nil {
		return err
	}
	return r.insertTiers(db, composition.ID, tiers)
}

// UpdateComposition rewrites the mutable columns and replaces the license tiers.
func (r *Repository) UpdateComposition(ctx context.Context, composition *models.Composition) error {
	db := r.db.WithContext(ctx)
	err := db.Model(&models.Composition{}).
		Where("id = ?", composition.ID).
		Updates(map[string]any{
			"title":           composition.Title,
			"price":           composition.Price,
			"genre":           composition.Genre,
			"musical_key":     composition.Key,
			"bpm":             composition.BPM,
			"tags":            composition.Tags,
			"file_url":        composition.FileURL,
			"cover_image_url": composition.CoverImageURL,
		}).Error
	if err != nil {
		return err
	}
	if err := db.Where("composition_id = ?", composition.ID).Delete(&models.CompositionLicense{}).Error; err != nil {
		return err
	}
	return r.insertTiers(db, composition.ID, composition.Licenses)
}

func (r *Repository) insertTiers(db *gorm.DB, compositionID uuid.UUID, tiers []models.CompositionLicense) error {
	if len(tiers) == 0 {
		return nil
	}
	rows := make([]models.CompositionLicense, len(tiers))
	for i, tier := range tiers {
		rows[i] = models.CompositionLicense{
			CompositionID: compositionID,
			LicenseID:     tier.LicenseID,
			Price:         tier.Price,
		}
	}
	return db.Omit("License").Create(&rows).Error
}

// DeleteComposition removes the composition. Tiers and listens cascade.
func (r *Repository) DeleteComposition(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("composition_id = ?", id).Delete(&models.CompositionLicense{}).Error; err != nil {
		return err
	}
	if err := db.Where("composition_id = ?", id).Delete(&models.CompositionListen{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Composition{}).Error
}

// FindComposition loads a composition with its artist and license tiers.
func (r *Repository) FindComposition(ctx context.Context, id uuid.UUID) (*models.Composition, error) {
	var composition models.Composition
	err := r.db.WithContext(ctx).
		Preload("Artist").
		Preload("Licenses", func(db *gorm.DB) *gorm.DB { return db.Order("price ASC") }).
		Preload("Licenses.License").
		Where("id = ?", id).
		First(&composition).Error
	if err != nil {
		return nil, err
	}
	return &composition, nil
}

// ListCompositions returns one page of compositions matching filter plus
// the total match count.
func (r *Repository) ListCompositions(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Composition, int64, error) {
	query := r.filtered(r.db.WithContext(ctx).Model(&models.Composition{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	var rows []models.Composition
	err := r.filtered(r.db.WithContext(ctx), filter).
		Preload("Artist").
		Preload("Licenses.License").
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) filtered(db *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.Genre != "" {
		db = db.Where("genre = ?", filter.Genre)
	}
	if filter.Key != "" {
		db = db.Where("musical_key = ?", filter.Key)
	}
	if filter.MinBPM > 0 {
		db = db.Where("bpm >= ?", filter.MinBPM)
	}
	if filter.MaxBPM > 0 {
		db = db.Where("bpm <= ?", filter.MaxBPM)
	}
	if filter.ArtistID != nil {
		db = db.Where("artist_id = ?", *filter.ArtistID)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		db = db.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	return db
}

// AppendListen writes a listen log entry and bumps the denormalized counter.
func (r *Repository) AppendListen(ctx context.Context, listen *models.CompositionListen) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(listen).Error; err != nil {
		return err
	}
	return db.Model(&models.Composition{}).
		Where("id = ?", listen.CompositionID).
		UpdateColumn("listen_count", gorm.Expr("listen_count + 1")).Error
}

// ListLicenses returns the license catalog, cheapest first.
func (r *Repository) ListLicenses(ctx context.Context) ([]models.License, error) {
	var rows []models.License
	err := r.db.WithContext(ctx).
		Order("price ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// FindLicense loads a license by its slug.
func (r *Repository) FindLicense(ctx context.Context, id string) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// FindLicenses loads the licenses named by ids.
func (r *Repository) FindLicenses(ctx context.Context, ids []string) ([]models.License, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.License
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}
