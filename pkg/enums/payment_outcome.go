package enums

import "fmt"

// PaymentOutcome is the gateway status normalized to the marketplace vocabulary.
type PaymentOutcome string

const (
	PaymentOutcomePending     PaymentOutcome = "pending"
	PaymentOutcomeApproved    PaymentOutcome = "approved"
	PaymentOutcomeRejected    PaymentOutcome = "rejected"
	PaymentOutcomeCancelled   PaymentOutcome = "cancelled"
	PaymentOutcomeRefunded    PaymentOutcome = "refunded"
	PaymentOutcomeChargedBack PaymentOutcome = "charged_back"
	PaymentOutcomeExpired     PaymentOutcome = "expired"
)

var validPaymentOutcomes = []PaymentOutcome{
	PaymentOutcomePending,
	PaymentOutcomeApproved,
	PaymentOutcomeRejected,
	PaymentOutcomeCancelled,
	PaymentOutcomeRefunded,
	PaymentOutcomeChargedBack,
	PaymentOutcomeExpired,
}

// String implements fmt.Stringer.
func (p PaymentOutcome) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentOutcome.
func (p PaymentOutcome) IsValid() bool {
	for _, candidate := range validPaymentOutcomes {
		if candidate == p {
			return true
		}
	}
	return false
}

// TargetStatus maps an outcome to the order status it settles into.
// Pending has no target and returns false.
func (p PaymentOutcome) TargetStatus() (OrderStatus, bool) {
	switch p {
	case PaymentOutcomeApproved:
		return OrderStatusApproved, true
	case PaymentOutcomeRejected, PaymentOutcomeCancelled:
		return OrderStatusRejected, true
	case PaymentOutcomeRefunded, PaymentOutcomeChargedBack:
		return OrderStatusRefunded, true
	case PaymentOutcomeExpired:
		return OrderStatusExpired, true
	default:
		return "", false
	}
}

// ParsePaymentOutcome converts raw input into a PaymentOutcome.
func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	for _, candidate := range validPaymentOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment outcome %q", value)
}
