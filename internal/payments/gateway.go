// Package payments normalizes the external payment gateway behind Gateway.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// Gateway is the payment provider seen by checkout, settlement and the reconciler.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	QueryStatus(ctx context.Context, reference string) (Outcome, error)
	ExpireIntent(ctx context.Context, reference string) error
	// ReferenceForPayment maps a provider payment id back to the intent reference.
	ReferenceForPayment(ctx context.Context, paymentID string) (string, error)
	ParseNotification(payload []byte, signature string) (Notification, error)
}

// IntentItem is a single purchasable line shown on the hosted payment page.
type IntentItem struct {
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// IntentRequest describes the payment to collect for an order.
type IntentRequest struct {
	OrderID    uuid.UUID
	BuyerEmail string
	Currency   string
	Items      []IntentItem
	Fee        decimal.Decimal
	Total      decimal.Decimal
	ExpiresAt  time.Time
	SuccessURL string
	CancelURL  string
}

// Intent is the provider-side payment created for an order.
type Intent struct {
	Reference   string
	RedirectURL string
	ExpiresAt   time.Time
}

// Outcome is the provider status normalized to PaymentOutcome.
type Outcome struct {
	Status    enums.PaymentOutcome
	OrderID   uuid.UUID
	PaymentID string
	Amount    decimal.Decimal
	NetAmount *decimal.Decimal
	Detail    string
}

// Settles reports whether the outcome moves a pending order.
func (o Outcome) Settles() bool {
	_, ok := o.Status.TargetStatus()
	return ok
}

// Notification is one verified gateway callback.
type Notification interface {
	NotificationEventID() string
}

// PaymentNotification carries the intent reference whose status changed.
type PaymentNotification struct {
	EventID   string
	Reference string
}

// ChargeNotification reports refunds and disputes keyed by payment id.
type ChargeNotification struct {
	EventID         string
	PaymentIntentID string
}

// IgnoredNotification is a verified event the marketplace does not act on.
type IgnoredNotification struct {
	EventID string
	Type    string
}

func (n PaymentNotification) NotificationEventID() string { return n.EventID }
func (n ChargeNotification) NotificationEventID() string  { return n.EventID }
func (n IgnoredNotification) NotificationEventID() string { return n.EventID }
