package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout has a payment intent.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	BuyerID          uuid.UUID   `json:"buyer_id"`
	ListingIDs       []uuid.UUID `json:"listing_ids"`
	TotalAmount      string      `json:"total_amount"`
	PaymentReference string      `json:"payment_reference"`
}

// OrderSettledEvent reports every PENDING to terminal transition.
type OrderSettledEvent struct {
	OrderID   uuid.UUID            `json:"order_id"`
	BuyerID   uuid.UUID            `json:"buyer_id"`
	Status    enums.OrderStatus    `json:"status"`
	Outcome   enums.PaymentOutcome `json:"outcome"`
	NetAmount *string              `json:"net_amount,omitempty"`
	Detail    string               `json:"detail,omitempty"`
	SettledAt time.Time            `json:"settled_at"`
}

// OrderOverbookedEvent flags lines served with fewer codes than purchased.
type OrderOverbookedEvent struct {
	OrderID   uuid.UUID           `json:"order_id"`
	Shortages []OverbookedListing `json:"shortages"`
}

type OverbookedListing struct {
	OrderLineID uuid.UUID `json:"order_line_id"`
	ListingID   uuid.UUID `json:"listing_id"`
	Purchased   int       `json:"purchased"`
	Allocated   int       `json:"allocated"`
}

// PaymentOrphanedEvent reports a captured payment whose order delivered no
// codes. Operations refund it at the gateway.
type PaymentOrphanedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	OrderStatus      enums.OrderStatus `json:"order_status"`
	PaymentReference string            `json:"payment_reference"`
	PaymentID        string            `json:"payment_id,omitempty"`
	Amount           string            `json:"amount"`
	DetectedAt       time.Time         `json:"detected_at"`
}

// CodeRedeemedEvent is emitted when an enterprise marks a code used.
type CodeRedeemedEvent struct {
	CodeID       uuid.UUID             `json:"code_id"`
	OrderLineID  uuid.UUID             `json:"order_line_id"`
	ListingID    uuid.UUID             `json:"listing_id"`
	EnterpriseID uuid.UUID             `json:"enterprise_id"`
	LineStatus   enums.OrderLineStatus `json:"line_status"`
	RedeemedAt   time.Time             `json:"redeemed_at"`
}

// ListingLowStockEvent is emitted when stock crosses the configured threshold.
type ListingLowStockEvent struct {
	ListingID    uuid.UUID `json:"listing_id"`
	EnterpriseID uuid.UUID `json:"enterprise_id"`
	Remaining    int       `json:"remaining"`
}

// NotificationRequestedEvent asks the templated-notification service to send a message.
type NotificationRequestedEvent struct {
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	OrderID    *uuid.UUID     `json:"order_id,omitempty"`
}
