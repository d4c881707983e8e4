package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email, ignoring case.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindBySubscriptionID loads the user holding the Stripe subscription.
func (r *Repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "subscription_id = ?", subscriptionID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActiveSubscribers pages through users whose subscription is active,
// ordered by id so callers can resume after the last id they saw.
func (r *Repository) ListActiveSubscribers(ctx context.Context, afterID uuid.UUID, limit int) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Where("subscription_status = ?", enums.SubscriptionStatusActive).
		Where("subscription_id IS NOT NULL").
		Order("id ASC")
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.User
	err := query.Find(&rows).Error
	return rows, err
}

// UpdateSubscriptionState writes the role and subscription columns. Nil
// pointers leave the column untouched. It returns the number of rows
// updated.
func (r *Repository) UpdateSubscriptionState(ctx context.Context, id uuid.UUID, state SubscriptionState) (int64, error) {
	updates := map[string]any{
		"role":                state.Role,
		"subscription_status": state.Status,
	}
	if state.SubscriptionID != nil {
		updates["subscription_id"] = *state.SubscriptionID
	}
	if state.StripeCustomerID != nil {
		updates["stripe_customer_id"] = *state.StripeCustomerID
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates)
	return res.RowsAffected, res.Error
}
