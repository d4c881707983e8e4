package models

import (
	"time"

	"github.com/beatvault/beatvault-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the account of a buyer or producer, including subscription state.
type User struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Username           string                   `gorm:"column:username;not null;uniqueIndex"`
	Email              string                   `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash       string                   `gorm:"column:password_hash;not null"`
	Role               enums.UserRole           `gorm:"column:role;type:text;not null;default:'free'"`
	StripeCustomerID   *string                  `gorm:"column:stripe_customer_id"`
	SubscriptionID     *string                  `gorm:"column:subscription_id;index"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'none'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = enums.UserRoleFree
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = enums.SubscriptionStatusNone
	}
	return nil
}
