package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
	"github.com/beatvault/beatvault-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                 uuid.UUID                `json:"id"`
	Username           string                   `json:"username"`
	Email              string                   `json:"email"`
	Role               enums.UserRole           `json:"role"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscriptionStatus"`
	CreatedAt          time.Time                `json:"createdAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Username     string
	Email        string
	PasswordHash string
}

// SubscriptionState is the role and subscription snapshot applied to a user.
type SubscriptionState struct {
	Role             enums.UserRole
	Status           enums.SubscriptionStatus
	SubscriptionID   *string
	StripeCustomerID *string
}

// ActivePro is the state after a subscription checkout completes.
func ActivePro(subscriptionID string, customerID *string) SubscriptionState {
	return SubscriptionState{
		Role:             enums.SubscriptionStatusActive.Role(),
		Status:           enums.SubscriptionStatusActive,
		SubscriptionID:   &subscriptionID,
		StripeCustomerID: customerID,
	}
}

// Cancelled is the state after a subscription ends. The subscription id is
// kept for support lookups.
func Cancelled() SubscriptionState {
	return SubscriptionState{
		Role:   enums.SubscriptionStatusCancelled.Role(),
		Status: enums.SubscriptionStatusCancelled,
	}
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Role:               u.Role,
		SubscriptionStatus: u.SubscriptionStatus,
		CreatedAt:          u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Username:           strings.TrimSpace(c.Username),
		Email:              strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash:       c.PasswordHash,
		Role:               enums.UserRoleFree,
		SubscriptionStatus: enums.SubscriptionStatusNone,
	}
}
