package enums

import "fmt"

// CheckoutMode mirrors the Stripe Checkout Session mode this service creates.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

func (m CheckoutMode) String() string {
	return string(m)
}

func (m CheckoutMode) IsValid() bool {
	return m == CheckoutModePayment || m == CheckoutModeSubscription
}

func ParseCheckoutMode(value string) (CheckoutMode, error) {
	mode := CheckoutMode(value)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid checkout mode %q", value)
	}
	return mode, nil
}
