package enums

import (
	"fmt"

	"github.com/samber/lo"
)

// SubscriptionStatus is our view of a user's pro subscription. Stripe's
// richer status set collapses onto these three.
type SubscriptionStatus string

const (
	SubscriptionStatusNone      SubscriptionStatus = "none"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusNone,
	SubscriptionStatusActive,
	SubscriptionStatusCancelled,
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	return lo.Contains(subscriptionStatuses, s)
}

// Role is the account role implied by the status. Only an active
// subscription grants pro.
func (s SubscriptionStatus) Role() UserRole {
	if s == SubscriptionStatusActive {
		return UserRolePro
	}
	return UserRoleFree
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid subscription status %q", value)
	}
	return s, nil
}
