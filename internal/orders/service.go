package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/internal/codepool"
	"github.com/angelmondragon/gogift-backend/internal/gifts"
	"github.com/angelmondragon/gogift-backend/internal/notifications"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

// StatusDetailAmountMismatch marks approvals whose amount disagreed with the order.
const StatusDetailAmountMismatch = "amount_mismatch"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error
}

type codeAllocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, listing models.Listing, qty int) (codepool.Allocation, error)
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, msg notifications.Message)
	EnqueueAll(ctx context.Context, tx *gorm.DB, msgs []notifications.Message)
}

type settlementMetrics interface {
	ObserveSettlement(outcome string, changed bool)
	AddShortfall(units int)
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Outbox        outboxPublisher
	Inventory     stockReleaser
	Codes         codeAllocator
	Notifications notifier
	Metrics       settlementMetrics
	Logger        *logger.Logger
}

// Service owns every transition out of PENDING.
type Service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory stockReleaser
	codes     codeAllocator
	notify    notifier
	metrics   settlementMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if params.Codes == nil {
		return nil, fmt.Errorf("code allocator required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		inventory: params.Inventory,
		codes:     params.Codes,
		notify:    params.Notifications,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle applies a gateway outcome to a PENDING order. Orders already in a
// terminal state are returned unchanged, so duplicate callbacks and the
// reconciler can race safely.
func (s *Service) Settle(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) (Result, error) {
	if orderID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !outcome.Status.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment outcome").
			WithDetails(map[string]any{"outcome": string(outcome.Status)})
	}

	ctx = s.logg.WithOrderID(ctx, orderID.String())
	result := Result{OrderID: orderID}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindDetail(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		result.Status = order.Status
		if order.Status != enums.OrderStatusPending {
			return nil
		}
		if outcome.OrderID != uuid.Nil && outcome.OrderID != order.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment outcome belongs to another order").
				WithDetails(map[string]any{"outcome_order_id": outcome.OrderID.String()})
		}

		outcome = checkAmount(*order, outcome)
		target, ok := outcome.Status.TargetStatus()
		if !ok {
			return nil
		}

		claimed, err := repo.ClaimPending(ctx, order.ID, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim order")
		}
		if !claimed {
			current, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
			}
			result.Status = current.Status
			return nil
		}

		now := s.now()
		switch target {
		case enums.OrderStatusApproved:
			err = s.approve(ctx, tx, repo, order, outcome, now)
		case enums.OrderStatusRejected, enums.OrderStatusExpired:
			err = s.releaseAndClose(ctx, tx, repo, order, outcome, target, now)
		case enums.OrderStatusRefunded:
			err = s.refund(ctx, tx, repo, order, outcome, now)
		}
		if err != nil {
			return err
		}

		result.Status = target
		result.Changed = true
		return nil
	})
	if s.metrics != nil {
		s.metrics.ObserveSettlement(string(outcome.Status), err == nil && result.Changed)
	}
	if err != nil {
		return Result{}, err
	}

	if result.Changed {
		logCtx := s.logg.WithFields(ctx, map[string]any{"status": result.Status, "outcome": outcome.Status})
		s.logg.Info(logCtx, "order settled")
	}
	return result, nil
}

// checkAmount downgrades an approval whose paid amount differs from the
// order total. Gateway payloads are never trusted over internal state.
func checkAmount(order models.Order, outcome payments.Outcome) payments.Outcome {
	if outcome.Status != enums.PaymentOutcomeApproved {
		return outcome
	}
	if outcome.Amount.Equal(order.TotalAmount) {
		return outcome
	}
	outcome.Status = enums.PaymentOutcomeRejected
	outcome.Detail = StatusDetailAmountMismatch
	return outcome
}

type lineCodes struct {
	line  *models.OrderLine
	buyer []string
	gifts []gifts.Share
}

func (s *Service) approve(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, outcome payments.Outcome, now time.Time) error {
	distributed := make([]lineCodes, 0, len(order.Lines))
	var shortages []payloads.OverbookedListing

	for i := range order.Lines {
		line := &order.Lines[i]
		listing, err := repo.FindListing(ctx, line.ListingID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeInvalidListing, "listing removed before approval").
					WithDetails(map[string]any{"listing_id": line.ListingID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
		}

		alloc, err := s.codes.Allocate(ctx, tx, *listing, line.Quantity)
		if err != nil {
			return err
		}

		quantities := make([]int, len(line.Gifts))
		for j, gift := range line.Gifts {
			quantities[j] = gift.Quantity
		}
		part := gifts.Split(alloc.Codes, quantities)

		rows := make([]models.GiftCode, 0, len(alloc.Codes))
		for _, share := range part.Gifts {
			giftID := line.Gifts[share.Index].ID
			for _, value := range share.Codes {
				rows = append(rows, models.GiftCode{
					ListingID:        line.ListingID,
					OrderLineID:      line.ID,
					GiftAllocationID: &giftID,
					Value:            value,
					Position:         len(rows),
				})
			}
		}
		for _, value := range part.Buyer {
			rows = append(rows, models.GiftCode{
				ListingID:   line.ListingID,
				OrderLineID: line.ID,
				Value:       value,
				Position:    len(rows),
			})
		}

		if err := repo.CreateCodes(ctx, rows); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "code already claimed by another order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store codes")
		}

		if alloc.Shortfall > 0 {
			if err := repo.UpdateLine(ctx, line.ID, map[string]any{"short_qty": alloc.Shortfall}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record shortfall")
			}
			line.ShortQty = alloc.Shortfall
			shortages = append(shortages, payloads.OverbookedListing{
				OrderLineID: line.ID,
				ListingID:   line.ListingID,
				Purchased:   line.Quantity,
				Allocated:   len(alloc.Codes),
			})
			if s.metrics != nil {
				s.metrics.AddShortfall(alloc.Shortfall)
			}
		}

		distributed = append(distributed, lineCodes{line: line, buyer: part.Buyer, gifts: part.Gifts})
	}

	net := outcome.Amount
	if outcome.NetAmount != nil {
		net = *outcome.NetAmount
	}
	updates := map[string]any{
		"net_amount":    decimal.NewNullDecimal(net),
		"settled_at":    now,
		"status_detail": nil,
	}
	if outcome.PaymentID != "" {
		updates["payment_id"] = outcome.PaymentID
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record settlement")
	}

	netStr := net.StringFixed(2)
	if err := s.emitSettled(ctx, tx, order, enums.OrderStatusApproved, outcome, &netStr, now); err != nil {
		return err
	}
	if len(shortages) > 0 {
		s.logg.Warn(ctx, "order approved with fewer codes than purchased")
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderOverbooked,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          payloads.OrderOverbookedEvent{OrderID: order.ID, Shortages: shortages},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit overbooked event")
		}
	}

	s.notify.EnqueueAll(ctx, tx, approvalMessages(order, distributed))
	return nil
}

func (s *Service) releaseAndClose(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, outcome payments.Outcome, target enums.OrderStatus, now time.Time) error {
	for _, line := range order.Lines {
		if err := s.inventory.Release(ctx, tx, line.ListingID, line.Quantity); err != nil {
			return err
		}
	}

	updates := map[string]any{"settled_at": now}
	if outcome.Detail != "" {
		updates["status_detail"] = outcome.Detail
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record settlement")
	}
	if err := s.emitSettled(ctx, tx, order, target, outcome, nil, now); err != nil {
		return err
	}

	template := notifications.TemplatePaymentRejected
	if target == enums.OrderStatusExpired {
		template = notifications.TemplateOrderExpired
	}
	s.notify.Enqueue(ctx, tx, notifications.Message{
		Template:   template,
		Recipients: []string{order.BuyerEmail},
		OrderID:    &order.ID,
		Data: map[string]any{
			"order_id":     order.ID.String(),
			"buyer_name":   derefString(order.BuyerName),
			"total_amount": order.TotalAmount.StringFixed(2),
			"detail":       outcome.Detail,
		},
	})
	return nil
}

// refund closes an order paid and reversed before it was approved. Stock is
// not returned because the payment went through.
func (s *Service) refund(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, outcome payments.Outcome, now time.Time) error {
	updates := map[string]any{
		"net_amount": nil,
		"settled_at": now,
	}
	if outcome.Detail != "" {
		updates["status_detail"] = outcome.Detail
	}
	if outcome.PaymentID != "" {
		updates["payment_id"] = outcome.PaymentID
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	return s.emitSettled(ctx, tx, order, enums.OrderStatusRefunded, outcome, nil, now)
}

func (s *Service) emitSettled(ctx context.Context, tx *gorm.DB, order *models.Order, status enums.OrderStatus, outcome payments.Outcome, net *string, now time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderSettled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderSettledEvent{
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			Status:    status,
			Outcome:   outcome.Status,
			NetAmount: net,
			Detail:    outcome.Detail,
			SettledAt: now,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit settled event")
	}
	return nil
}

func approvalMessages(order *models.Order, lines []lineCodes) []notifications.Message {
	buyerLines := make([]map[string]any, 0, len(lines))
	var msgs []notifications.Message

	for _, lc := range lines {
		buyerLines = append(buyerLines, map[string]any{
			"title":     lc.line.Title,
			"quantity":  lc.line.Quantity,
			"codes":     lc.buyer,
			"short_qty": lc.line.ShortQty,
		})
		for _, share := range lc.gifts {
			gift := lc.line.Gifts[share.Index]
			msgs = append(msgs, notifications.Message{
				Template:   notifications.TemplateGiftReceived,
				Recipients: []string{gift.RecipientEmail},
				OrderID:    &order.ID,
				Data: map[string]any{
					"recipient_name": gift.RecipientName,
					"sender_name":    derefString(order.BuyerName),
					"message":        derefString(gift.Message),
					"title":          lc.line.Title,
					"codes":          share.Codes,
				},
			})
		}
	}

	confirmation := notifications.Message{
		Template:   notifications.TemplatePurchaseConfirmation,
		Recipients: []string{order.BuyerEmail},
		OrderID:    &order.ID,
		Data: map[string]any{
			"order_id":     order.ID.String(),
			"buyer_name":   derefString(order.BuyerName),
			"total_amount": order.TotalAmount.StringFixed(2),
			"lines":        buyerLines,
		},
	}
	return append([]notifications.Message{confirmation}, msgs...)
}

// Get returns one of the buyer's orders.
func (s *Service) Get(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderView, error) {
	if buyerID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and order id required")
	}
	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	view := toOrderView(*order)
	return &view, nil
}

// ListForBuyer pages the buyer's orders newest first.
func (s *Service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListForBuyer(ctx, buyerID, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	list := &OrderList{Items: make([]OrderView, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		list.Cursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		list.Items = append(list.Items, toOrderView(row))
	}
	return list, nil
}

// PendingBefore exposes the reconciler's scan.
func (s *Service) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending orders")
	}
	return rows, nil
}

// FindByPaymentReference resolves the order a gateway reference belongs to.
func (s *Service) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.repo.FindByPaymentReference(ctx, reference)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order by reference")
	}
	return order, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
