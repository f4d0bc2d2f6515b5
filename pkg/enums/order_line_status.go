package enums

import "fmt"

// OrderLineStatus tracks redemption progress of the codes on a line.
type OrderLineStatus string

const (
	OrderLineStatusValid         OrderLineStatus = "VALID"
	OrderLineStatusPartiallyUsed OrderLineStatus = "PARTIALLY_USED"
	OrderLineStatusUsed          OrderLineStatus = "USED"
)

var validOrderLineStatuses = []OrderLineStatus{
	OrderLineStatusValid,
	OrderLineStatusPartiallyUsed,
	OrderLineStatusUsed,
}

func (s OrderLineStatus) String() string {
	return string(s)
}

func (s OrderLineStatus) IsValid() bool {
	for _, candidate := range validOrderLineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseOrderLineStatus(value string) (OrderLineStatus, error) {
	for _, candidate := range validOrderLineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order line status %q", value)
}
