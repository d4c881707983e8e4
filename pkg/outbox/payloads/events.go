package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beatvault/beatvault-backend/pkg/enums"
)

// PurchaseCompletedEvent is emitted when a paid checkout session becomes a Purchase.
type PurchaseCompletedEvent struct {
	PurchaseID  uuid.UUID           `json:"purchase_id"`
	UserID      uuid.UUID           `json:"user_id"`
	SessionID   string              `json:"session_id"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Currency    string              `json:"currency"`
	Items       []PurchasedLicenses `json:"items"`
}

// PurchasedLicenses names one composition/license pair of a purchase.
type PurchasedLicenses struct {
	CompositionID uuid.UUID       `json:"composition_id"`
	LicenseID     string          `json:"license_id"`
	Price         decimal.Decimal `json:"price"`
}

// SubscriptionChangedEvent covers both activation and cancellation.
type SubscriptionChangedEvent struct {
	UserID         uuid.UUID                `json:"user_id"`
	SubscriptionID string                   `json:"subscription_id,omitempty"`
	Role           enums.UserRole           `json:"role"`
	Status         enums.SubscriptionStatus `json:"status"`
}
