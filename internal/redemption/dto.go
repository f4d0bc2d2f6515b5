package redemption

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// OwnerKind says who holds a code.
type OwnerKind string

const (
	OwnerBuyer     OwnerKind = "buyer"
	OwnerRecipient OwnerKind = "recipient"
)

type Owner struct {
	Kind  OwnerKind `json:"kind"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email"`
}

// CodeDetails answers an enterprise's validation lookup.
type CodeDetails struct {
	Code         string                `json:"code"`
	Used         bool                  `json:"used"`
	UsedAt       *time.Time            `json:"used_at,omitempty"`
	ListingID    uuid.UUID             `json:"listing_id"`
	ListingTitle string                `json:"listing_title"`
	OrderID      uuid.UUID             `json:"order_id"`
	OrderLineID  uuid.UUID             `json:"order_line_id"`
	LineStatus   enums.OrderLineStatus `json:"line_status"`
	Owner        Owner                 `json:"owner"`
	PurchasedAt  time.Time             `json:"purchased_at"`
}

type RedeemRequest struct {
	EnterpriseID uuid.UUID
	UserID       uuid.UUID
	Code         string
}

type RedeemResult struct {
	Code        string                `json:"code"`
	OrderLineID uuid.UUID             `json:"order_line_id"`
	LineStatus  enums.OrderLineStatus `json:"line_status"`
	Remaining   int                   `json:"remaining"`
	UsedAt      time.Time             `json:"used_at"`
}

// HistoryEntry summarizes redemptions on one line.
type HistoryEntry struct {
	OrderLineID    uuid.UUID             `json:"order_line_id"`
	OrderID        uuid.UUID             `json:"order_id"`
	ListingID      uuid.UUID             `json:"listing_id"`
	Title          string                `json:"title"`
	Quantity       int                   `json:"quantity"`
	Used           int                   `json:"used"`
	Status         enums.OrderLineStatus `json:"status"`
	LastRedeemedAt *time.Time            `json:"last_redeemed_at,omitempty"`
}

type HistoryPage struct {
	Items  []HistoryEntry `json:"items"`
	Cursor string         `json:"cursor"`
}
