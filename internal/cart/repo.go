package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
)

// uniqueEntryIndex is the arbiter for duplicate (user, composition, license) adds.
const uniqueEntryIndex = "ux_cart_entries_user_composition_license"

// EntryKey names one checked-out (composition, license) pair.
type EntryKey struct {
	CompositionID uuid.UUID
	LicenseID     string
}

// Repository exposes persistence operations for cart entries.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new entry. Duplicates surface as a unique violation on
// uniqueEntryIndex.
func (r *Repository) Create(ctx context.Context, entry *models.CartEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CreateBatch inserts entries in order.
func (r *Repository) CreateBatch(ctx context.Context, entries []models.CartEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListByUser returns the user's entries in insertion order.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartEntry, error) {
	var rows []models.CartEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// FindExact returns the entry for the full tuple.
func (r *Repository) FindExact(ctx context.Context, userID, compositionID uuid.UUID, licenseID string) (*models.CartEntry, error) {
	var entry models.CartEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND composition_id = ? AND license_id = ?", userID, compositionID, licenseID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByComposition returns the oldest entry of the user for a composition.
func (r *Repository) FindByComposition(ctx context.Context, userID, compositionID uuid.UUID) (*models.CartEntry, error) {
	var entry models.CartEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND composition_id = ?", userID, compositionID).
		Order("created_at ASC").
		Order("id ASC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateLicense rewrites the license and snapshot columns of one entry.
func (r *Repository) UpdateLicense(ctx context.Context, entry *models.CartEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.CartEntry{}).
		Where("id = ? AND user_id = ?", entry.ID, entry.UserID).
		Updates(map[string]any{
			"license_id":    entry.LicenseID,
			"title":         entry.Title,
			"artist":        entry.Artist,
			"license_name":  entry.LicenseName,
			"license_price": entry.LicensePrice,
			"cover_image":   entry.CoverImage,
			"file":          entry.File,
		}).Error
}

// DeleteByComposition removes every license entry of the composition.
func (r *Repository) DeleteByComposition(ctx context.Context, userID, compositionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND composition_id = ?", userID, compositionID).
		Delete(&models.CartEntry{}).Error
}

// DeleteByUser clears the cart.
func (r *Repository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartEntry{}).Error
}

// DeleteEntries removes only the given pairs from the user's cart. A key
// without a license matches every license of its composition. When
// snapshotAt is set, rows created after it are kept: a pair removed and added
// back after checkout started is a new selection. It returns the number of
// rows removed.
func (r *Repository) DeleteEntries(ctx context.Context, userID uuid.UUID, keys []EntryKey, snapshotAt time.Time) (int64, error) {
	var removed int64
	for _, key := range keys {
		query := r.db.WithContext(ctx).Where("user_id = ? AND composition_id = ?", userID, key.CompositionID)
		if key.LicenseID != "" {
			query = query.Where("license_id = ?", key.LicenseID)
		}
		if !snapshotAt.IsZero() {
			query = query.Where("created_at <= ?", snapshotAt)
		}
		res := query.Delete(&models.CartEntry{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}
