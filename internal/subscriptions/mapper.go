package subscriptions

import (
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/beatvault/beatvault-backend/pkg/enums"
)

// MapStripeStatus folds Stripe's subscription lifecycle onto the local
// none/active/cancelled states. Payment trouble keeps the subscription
// active until Stripe itself cancels it.
func MapStripeStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(string(status))) {
	case string(stripe.SubscriptionStatusCanceled), string(stripe.SubscriptionStatusIncompleteExpired):
		return enums.SubscriptionStatusCancelled
	case string(stripe.SubscriptionStatusIncomplete):
		return enums.SubscriptionStatusNone
	default:
		return enums.SubscriptionStatusActive
	}
}

// IsEnded reports whether a Stripe subscription should be treated as
// cancelled locally.
func IsEnded(sub *stripe.Subscription) bool {
	if sub == nil {
		return false
	}
	return MapStripeStatus(sub.Status) == enums.SubscriptionStatusCancelled
}
