package purchases

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/beatvault/beatvault-backend/pkg/db/models"
)

type PurchaseItemDTO struct {
	CompositionID uuid.UUID       `json:"compositionId"`
	Title         string          `json:"title"`
	Artist        string          `json:"artist"`
	LicenseID     string          `json:"licenseId"`
	LicenseName   string          `json:"licenseName"`
	LicensePrice  decimal.Decimal `json:"licensePrice"`
	CoverImage    string          `json:"coverImage"`
}

type PurchaseDTO struct {
	ID          uuid.UUID         `json:"id"`
	SessionID   string            `json:"sessionId"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Currency    string            `json:"currency"`
	Items       []PurchaseItemDTO `json:"items"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// PaymentStatus answers the post-redirect "did my payment land" question.
type PaymentStatus struct {
	SessionID  string     `json:"sessionId"`
	Paid       bool       `json:"paid"`
	Status     string     `json:"status"`
	Recorded   bool       `json:"recorded"`
	PurchaseID *uuid.UUID `json:"purchaseId,omitempty"`
}

// Download is the file a caller is entitled to fetch.
type Download struct {
	CompositionID uuid.UUID `json:"compositionId"`
	LicenseID     string    `json:"licenseId,omitempty"`
	File          string    `json:"file"`
}

func toPurchaseDTO(p models.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:          p.ID,
		SessionID:   p.SessionID,
		TotalAmount: p.TotalAmount,
		Currency:    p.Currency,
		CreatedAt:   p.CreatedAt,
		Items: lo.Map(p.Items, func(item models.PurchaseItem, _ int) PurchaseItemDTO {
			return PurchaseItemDTO{
				CompositionID: item.CompositionID,
				Title:         item.Title,
				Artist:        item.Artist,
				LicenseID:     item.LicenseID,
				LicenseName:   item.LicenseName,
				LicensePrice:  item.LicensePrice,
				CoverImage:    item.CoverImage,
			}
		}),
	}
}
