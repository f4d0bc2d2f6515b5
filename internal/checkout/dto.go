package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/internal/gifts"
)

// Buyer identifies who is paying. EnterpriseID is set when the buyer also sells.
type Buyer struct {
	UserID       uuid.UUID
	EnterpriseID *uuid.UUID
	Email        string
	Name         string
}

// LineRequest asks for quantity units of a listing, part of them gifted.
type LineRequest struct {
	ListingID uuid.UUID
	Quantity  int
	Gifts     []gifts.Request
}

type Request struct {
	Buyer Buyer
	Lines []LineRequest
}

// Result tells the client where to pay.
type Result struct {
	OrderID          uuid.UUID `json:"order_id"`
	RedirectURL      string    `json:"redirect_url"`
	PaymentReference string    `json:"payment_reference"`
	TotalAmount      string    `json:"total_amount"`
	Currency         string    `json:"currency"`
	ExpiresAt        time.Time `json:"expires_at"`
}
