// Package webhooks receives payment gateway callbacks.
package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/gogift-backend/api/responses"
	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 16

type notificationParser interface {
	ParseNotification(payload []byte, signature string) (payments.Notification, error)
}

type notificationHandler interface {
	HandleNotification(ctx context.Context, n payments.Notification) (*orders.Result, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type ack struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// StripeWebhook verifies a Stripe callback and settles the order it names.
// Once the signature checks out the gateway always gets a 200. Failed
// processing is logged and left to the reconciler.
func StripeWebhook(parser notificationParser, svc notificationHandler, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if parser == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) > maxPayloadBytes {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
			return
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "signature missing"))
			return
		}
		note, err := parser.ParseNotification(payload, sig)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid signature"))
			return
		}

		eventID := note.NotificationEventID()
		ctx = logg.WithField(ctx, "gateway_event_id", eventID)

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, eventID)
			switch {
			case err != nil:
				// Settle is idempotent, so processing without the guard is safe.
				logg.Error(ctx, "webhook guard unavailable", err)
			case seen:
				logg.Debug(ctx, "duplicate gateway event")
				responses.WriteSuccess(w, ack{Received: true, Duplicate: true})
				return
			}
		}

		result, err := svc.HandleNotification(ctx, note)
		if err != nil {
			logg.Error(ctx, "gateway event processing failed", err)
			if guard != nil {
				if delErr := guard.Delete(ctx, eventID); delErr != nil {
					logg.Warn(ctx, "webhook guard release failed")
				}
			}
			responses.WriteSuccess(w, ack{Received: true})
			return
		}

		if result != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"order_id": result.OrderID.String(),
				"status":   string(result.Status),
				"changed":  result.Changed,
			})
		}
		logg.Info(ctx, "gateway event processed")
		responses.WriteSuccess(w, ack{Received: true})
	}
}
