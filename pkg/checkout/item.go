// Package checkout holds the cart snapshot carried through a Stripe checkout
// session and its metadata codec.
package checkout

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Item is one purchased (composition, license) pair, frozen at checkout time.
type Item struct {
	CompositionID uuid.UUID       `json:"compositionId"`
	Title         string          `json:"title"`
	Artist        string          `json:"artist"`
	LicenseID     string          `json:"licenseId,omitempty"`
	LicenseName   string          `json:"licenseName"`
	LicensePrice  decimal.Decimal `json:"licensePrice"`
	CoverImage    string          `json:"coverImage"`
	File          string          `json:"file"`
}

// Snapshot is the self-contained document stored in session metadata.
type Snapshot struct {
	Items []Item `json:"items"`
}

// Total sums the license prices of items.
func Total(items []Item) decimal.Decimal {
	return lo.Reduce(items, func(acc decimal.Decimal, item Item, _ int) decimal.Decimal {
		return acc.Add(item.LicensePrice)
	}, decimal.Zero)
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a major-unit amount to minor units, rounding half away
// from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a major-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
