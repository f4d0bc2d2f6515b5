// Package webhooks turns verified gateway callbacks into order settlements.
package webhooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
)

type gatewayClient interface {
	QueryStatus(ctx context.Context, reference string) (payments.Outcome, error)
	ReferenceForPayment(ctx context.Context, paymentID string) (string, error)
}

type settler interface {
	Settle(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) (orders.Result, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	ReportOrphanedPayment(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) error
}

type ServiceParams struct {
	Gateway gatewayClient
	Orders  settler
	Logger  *logger.Logger
}

// Service re-reads payment state from the gateway for every callback. The
// callback body only says which payment to look at.
type Service struct {
	gateway gatewayClient
	orders  settler
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order settler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{gateway: params.Gateway, orders: params.Orders, logg: logg}, nil
}

// HandleNotification settles the order behind n. A nil result means the
// notification required no state change.
func (s *Service) HandleNotification(ctx context.Context, n payments.Notification) (*orders.Result, error) {
	if n == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	ctx = s.logg.WithField(ctx, "gateway_event_id", n.NotificationEventID())

	switch note := n.(type) {
	case payments.PaymentNotification:
		return s.settleReference(ctx, note.Reference)
	case *payments.PaymentNotification:
		return s.settleReference(ctx, note.Reference)
	case payments.ChargeNotification:
		return s.settleCharge(ctx, note.PaymentIntentID)
	case *payments.ChargeNotification:
		return s.settleCharge(ctx, note.PaymentIntentID)
	case payments.IgnoredNotification:
		s.logg.Debug(s.logg.WithField(ctx, "gateway_event_type", note.Type), "gateway event ignored")
		return nil, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported notification %T", n))
	}
}

func (s *Service) settleCharge(ctx context.Context, paymentID string) (*orders.Result, error) {
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	reference, err := s.gateway.ReferenceForPayment(ctx, paymentID)
	if err != nil {
		return nil, gatewayError(err, "resolve payment reference")
	}
	return s.settleReference(ctx, reference)
}

func (s *Service) settleReference(ctx context.Context, reference string) (*orders.Result, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference missing")
	}
	ctx = s.logg.WithField(ctx, "payment_reference", reference)

	outcome, err := s.gateway.QueryStatus(ctx, reference)
	if err != nil {
		return nil, gatewayError(err, "query payment status")
	}
	if !outcome.Settles() {
		s.logg.Info(ctx, "payment still pending")
		return nil, nil
	}

	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if outcome.OrderID == uuid.Nil {
		outcome.OrderID = order.ID
	}

	result, err := s.orders.Settle(ctx, order.ID, outcome)
	if err != nil {
		return nil, err
	}
	if orphaned(outcome, result) {
		logCtx := s.logg.WithFields(ctx, map[string]any{"status": result.Status, "payment_id": outcome.PaymentID})
		s.logg.Error(logCtx, "payment captured for an order that delivered no codes", nil)
		return &result, s.orders.ReportOrphanedPayment(ctx, order.ID, outcome)
	}
	if !result.Changed {
		logCtx := s.logg.WithFields(ctx, map[string]any{"status": result.Status, "outcome": outcome.Status})
		s.logg.Info(logCtx, "callback arrived after order left PENDING")
	}
	return &result, nil
}

// orphaned reports an approved payment whose order ended rejected or
// expired. That covers late callbacks and approvals downgraded on amount.
func orphaned(outcome payments.Outcome, result orders.Result) bool {
	if outcome.Status != enums.PaymentOutcomeApproved {
		return false
	}
	return result.Status == enums.OrderStatusRejected || result.Status == enums.OrderStatusExpired
}

func gatewayError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, msg)
}
