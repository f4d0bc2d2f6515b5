package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
)

// ReportOrphanedPayment records a captured payment for an order that was
// closed without delivering codes, so operations can refund it.
func (s *Service) ReportOrphanedPayment(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.Status != enums.OrderStatusRejected && order.Status != enums.OrderStatusExpired {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order delivered its codes").
				WithDetails(map[string]any{"order_status": string(order.Status)})
		}

		reference := ""
		if order.PaymentReference != nil {
			reference = *order.PaymentReference
		}
		amount := order.TotalAmount
		if !outcome.Amount.IsZero() {
			amount = outcome.Amount
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentOrphaned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.PaymentOrphanedEvent{
				OrderID:          order.ID,
				OrderStatus:      order.Status,
				PaymentReference: reference,
				PaymentID:        strings.TrimSpace(outcome.PaymentID),
				Amount:           amount.StringFixed(2),
				DetectedAt:       s.now(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment orphaned")
		}
		return nil
	})
}
