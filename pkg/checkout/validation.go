package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

// ItemViolation describes why a checkout item was rejected.
type ItemViolation struct {
	Index         int       `json:"index"`
	CompositionID uuid.UUID `json:"compositionId,omitempty"`
	Reason        string    `json:"reason"`
}

// ValidateItems rejects empty carts, non-positive prices and items missing
// the snapshot fields a Purchase needs.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}

	var violations []ItemViolation
	for i, item := range items {
		if reason := itemProblem(item); reason != "" {
			violations = append(violations, ItemViolation{
				Index:         i,
				CompositionID: item.CompositionID,
				Reason:        reason,
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid checkout items: %d rejected", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

func itemProblem(item Item) string {
	switch {
	case item.CompositionID == uuid.Nil:
		return "compositionId is required"
	case strings.TrimSpace(item.Title) == "":
		return "title is required"
	case strings.TrimSpace(item.LicenseName) == "":
		return "licenseName is required"
	case strings.TrimSpace(item.File) == "":
		return "file is required"
	case !item.LicensePrice.GreaterThan(decimal.Zero):
		return "licensePrice must be greater than zero"
	}
	return ""
}
