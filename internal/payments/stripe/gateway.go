// Package stripegateway implements payments.Gateway on Stripe Checkout Sessions.
package stripegateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

// Stripe rejects expires_at values closer than 30 minutes.
const minSessionLifetime = 31 * time.Minute

const netExpansion = "payment_intent.latest_charge.balance_transaction"

const (
	eventSessionCompleted      = "checkout.session.completed"
	eventSessionExpired        = "checkout.session.expired"
	eventSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	eventSessionAsyncFailed    = "checkout.session.async_payment_failed"
	eventChargeRefunded        = "charge.refunded"
	eventDisputeCreated        = "charge.dispute.created"
)

type credentials interface {
	SigningSecret() string
	SuccessURL() string
	CancelURL() string
}

// Gateway talks to Stripe under a bounded per-call timeout.
type Gateway struct {
	sessions sessionAPI
	creds    credentials
	timeout  time.Duration
	now      func() time.Time
}

var _ payments.Gateway = (*Gateway)(nil)

// New returns a Stripe gateway using the package-level stripe-go client.
func New(creds credentials, timeout time.Duration) (*Gateway, error) {
	return newGateway(checkoutSessions{}, creds, timeout)
}

func newGateway(sessions sessionAPI, creds credentials, timeout time.Duration) (*Gateway, error) {
	if sessions == nil {
		return nil, fmt.Errorf("stripe sessions api required")
	}
	if creds == nil {
		return nil, fmt.Errorf("stripe credentials required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		sessions: sessions,
		creds:    creds,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := g.sessionParams(req)
	sess, err := g.sessions.Create(ctx, params)
	if err != nil {
		return payments.Intent{}, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "create checkout session")
	}
	if sess == nil || sess.ID == "" {
		return payments.Intent{}, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "checkout session missing id")
	}
	return payments.Intent{
		Reference:   sess.ID,
		RedirectURL: sess.URL,
		ExpiresAt:   time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

func (g *Gateway) sessionParams(req payments.IntentRequest) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(req.Currency)
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items)+1)
	for _, item := range req.Items {
		items = append(items, lineItem(currency, item.Title, item.UnitPrice, item.Quantity))
	}
	if req.Fee.IsPositive() {
		items = append(items, lineItem(currency, "Service fee", req.Fee, 1))
	}

	expiresAt := req.ExpiresAt
	if floor := g.now().Add(minSessionLifetime); expiresAt.Before(floor) {
		expiresAt = floor
	}

	successURL, cancelURL := req.SuccessURL, req.CancelURL
	if successURL == "" {
		successURL = g.creds.SuccessURL()
	}
	if cancelURL == "" {
		cancelURL = g.creds.CancelURL()
	}

	orderID := req.OrderID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems:         items,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": orderID},
		},
	}
	if req.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(req.BuyerEmail)
	}
	params.AddMetadata("order_id", orderID)
	params.SetIdempotencyKey("gogift-order-" + orderID)
	return params
}

func lineItem(currency, title string, unit decimal.Decimal, qty int) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(int64(qty)),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(toMinorUnits(unit)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(title),
			},
		},
	}
}

func (g *Gateway) QueryStatus(ctx context.Context, reference string) (payments.Outcome, error) {
	if reference == "" {
		return payments.Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand(netExpansion)
	sess, err := g.sessions.Get(ctx, reference, params)
	if err != nil {
		return payments.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "retrieve checkout session")
	}
	if sess == nil {
		return payments.Outcome{}, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "checkout session not returned")
	}
	return outcomeFromSession(sess), nil
}

func (g *Gateway) ExpireIntent(ctx context.Context, reference string) error {
	if reference == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.sessions.Expire(ctx, reference); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "expire checkout session")
	}
	return nil
}

func (g *Gateway) ReferenceForPayment(ctx context.Context, paymentID string) (string, error) {
	if paymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sess, err := g.sessions.FindByPaymentIntent(ctx, paymentID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "lookup checkout session")
	}
	if sess == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "no checkout session for payment")
	}
	return sess.ID, nil
}

// ParseNotification verifies the Stripe-Signature header and narrows the
// event to what settlement needs. The payload itself is never trusted for
// status; callers re-query with QueryStatus.
func (g *Gateway) ParseNotification(payload []byte, signature string) (payments.Notification, error) {
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.creds.SigningSecret(), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return notificationFromEvent(event), nil
}

func notificationFromEvent(event stripe.Event) payments.Notification {
	eventType := string(event.Type)
	if event.Data == nil {
		return payments.IgnoredNotification{EventID: event.ID, Type: eventType}
	}
	switch eventType {
	case eventSessionCompleted, eventSessionExpired, eventSessionAsyncSucceeded, eventSessionAsyncFailed:
		if ref := event.GetObjectValue("id"); ref != "" {
			return payments.PaymentNotification{EventID: event.ID, Reference: ref}
		}
	case eventChargeRefunded, eventDisputeCreated:
		if pi := event.GetObjectValue("payment_intent"); pi != "" {
			return payments.ChargeNotification{EventID: event.ID, PaymentIntentID: pi}
		}
	}
	return payments.IgnoredNotification{EventID: event.ID, Type: eventType}
}

func outcomeFromSession(sess *stripe.CheckoutSession) payments.Outcome {
	outcome := payments.Outcome{
		Status:  enums.PaymentOutcomePending,
		OrderID: orderIDFromSession(sess),
		Amount:  fromMinorUnits(sess.AmountTotal),
	}

	var charge *stripe.Charge
	if pi := sess.PaymentIntent; pi != nil {
		outcome.PaymentID = pi.ID
		charge = pi.LatestCharge
	}

	switch {
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		outcome.Status = enums.PaymentOutcomeCancelled
		outcome.Detail = "session_expired"
	case charge != nil && charge.Disputed:
		outcome.Status = enums.PaymentOutcomeChargedBack
		outcome.Detail = "charge_disputed"
	case charge != nil && (charge.Refunded || charge.AmountRefunded > 0):
		outcome.Status = enums.PaymentOutcomeRefunded
		outcome.Detail = "charge_refunded"
	case sess.Status == stripe.CheckoutSessionStatusComplete && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		outcome.Status = enums.PaymentOutcomeApproved
		if charge != nil && charge.BalanceTransaction != nil {
			net := fromMinorUnits(charge.BalanceTransaction.Net)
			outcome.NetAmount = &net
		}
	case sess.Status == stripe.CheckoutSessionStatusComplete && paymentFailed(sess.PaymentIntent):
		outcome.Status = enums.PaymentOutcomeRejected
		outcome.Detail = "payment_failed"
	}
	return outcome
}

func paymentFailed(pi *stripe.PaymentIntent) bool {
	if pi == nil {
		return false
	}
	return pi.Status == stripe.PaymentIntentStatusCanceled || pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod
}

func orderIDFromSession(sess *stripe.CheckoutSession) uuid.UUID {
	if id, err := uuid.Parse(sess.ClientReferenceID); err == nil {
		return id
	}
	if id, err := uuid.Parse(sess.Metadata["order_id"]); err == nil {
		return id
	}
	return uuid.Nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
