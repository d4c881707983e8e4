package purchases

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/db/models"
	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

// UniqueSessionIndex makes fulfillment of one checkout session happen once.
const UniqueSessionIndex = "ux_purchases_session_id"

// ErrDuplicateSession reports a second Purchase for the same session.
var ErrDuplicateSession = pkgerrors.New(pkgerrors.CodeConflict, "purchase already recorded for session")

// Repository is the append-only purchase ledger. It exposes no update or
// delete operations.
type Repository struct {
	db *gorm.DB
}

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

// Create inserts the purchase and its items. A duplicate session id yields
// ErrDuplicateSession.
func (r *Repository) Create(ctx context.Context, purchase *models.Purchase) error {
	for i := range purchase.Items {
		purchase.Items[i].Position = i
	}
	if err := r.db.WithContext(ctx).Create(purchase).Error; err != nil {
		if pkgdb.IsUniqueViolation(err, UniqueSessionIndex) {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("session_id = ?", sessionID).
		First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListByUser returns the user's purchases, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// FindOwnedItem returns the most recent purchased item for compositionID
// bought by userID.
func (r *Repository) FindOwnedItem(ctx context.Context, userID, compositionID uuid.UUID) (*models.PurchaseItem, error) {
	var item models.PurchaseItem
	err := r.db.WithContext(ctx).
		Joins("JOIN purchases ON purchases.id = purchase_items.purchase_id").
		Where("purchases.user_id = ? AND purchase_items.composition_id = ?", userID, compositionID).
		Order("purchases.created_at DESC").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}
