package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/internal/gifts"
	"github.com/angelmondragon/gogift-backend/internal/inventory"
	"github.com/angelmondragon/gogift-backend/internal/notifications"
	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
)

const maxLinesPerOrder = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) (inventory.ReserveResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, msg notifications.Message)
}

type checkoutMetrics interface {
	ObserveCheckout(result string)
}

// Options carries pricing and payment window settings.
type Options struct {
	FeeRate        decimal.Decimal
	Currency       string
	PaymentExpiry  time.Duration
	GatewayTimeout time.Duration
	OpsEmail       string
}

type ServiceParams struct {
	Tx            txRunner
	Repo          Repository
	Orders        orders.Repository
	Inventory     stockReserver
	Gateway       payments.Gateway
	Outbox        outboxPublisher
	Notifications notifier
	Metrics       checkoutMetrics
	Logger        *logger.Logger
	Options       Options
}

// Service turns a cart of listings into a PENDING order with a payment intent.
type Service struct {
	tx        txRunner
	repo      Repository
	orders    orders.Repository
	inventory stockReserver
	gateway   payments.Gateway
	outbox    outboxPublisher
	notify    notifier
	metrics   checkoutMetrics
	logg      *logger.Logger
	opts      Options
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifier required")
	}
	opts := params.Options
	if opts.Currency == "" {
		opts.Currency = "brl"
	}
	if opts.PaymentExpiry <= 0 {
		opts.PaymentExpiry = 5 * time.Minute
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:        params.Tx,
		repo:      params.Repo,
		orders:    params.Orders,
		inventory: params.Inventory,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		notify:    params.Notifications,
		metrics:   params.Metrics,
		logg:      logg,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute reserves stock, persists the order and opens a payment intent as
// one unit. Any failure, the gateway included, leaves no trace.
func (s *Service) Execute(ctx context.Context, req Request) (*Result, error) {
	result, err := s.execute(ctx, req)
	if s.metrics != nil {
		label := "ok"
		if err != nil {
			label = string(pkgerrors.CodeOf(err))
		}
		s.metrics.ObserveCheckout(label)
	}
	return result, err
}

func (s *Service) execute(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, req.Buyer.UserID.String())

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)

		ids := make([]uuid.UUID, len(req.Lines))
		for i, line := range req.Lines {
			ids[i] = line.ListingID
		}
		listings, err := s.repo.WithTx(tx).FindListings(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listings")
		}

		now := s.now()
		order := &models.Order{
			BuyerID:    req.Buyer.UserID,
			BuyerEmail: req.Buyer.Email,
			Status:     enums.OrderStatusPending,
			Currency:   s.opts.Currency,
		}
		if req.Buyer.Name != "" {
			name := req.Buyer.Name
			order.BuyerName = &name
		}

		var lowStock []models.Listing
		items := make([]payments.IntentItem, 0, len(req.Lines))
		subtotal := decimal.Zero

		for i, line := range req.Lines {
			listing, ok := listings[line.ListingID]
			if !ok {
				return invalidListing(line.ListingID, "listing not found")
			}
			if !listing.Purchasable(now) {
				return invalidListing(line.ListingID, "listing is not available for purchase")
			}
			if req.Buyer.EnterpriseID != nil && listing.EnterpriseID == *req.Buyer.EnterpriseID {
				return invalidListing(line.ListingID, "enterprises cannot buy their own listings")
			}
			if err := gifts.Validate(line.Quantity, line.Gifts); err != nil {
				if e := pkgerrors.As(err); e != nil {
					return e.WithDetails(map[string]any{"line_index": i, "listing_id": line.ListingID.String()})
				}
				return err
			}

			reserved, err := s.inventory.Reserve(ctx, tx, listing.ID, line.Quantity)
			if err != nil {
				return err
			}
			if reserved.LowStock {
				listing.AvailableQty = reserved.Remaining
				lowStock = append(lowStock, listing)
			}

			lineTotal := listing.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)

			ol := models.OrderLine{
				ListingID:    listing.ID,
				EnterpriseID: listing.EnterpriseID,
				Title:        listing.Title,
				Quantity:     line.Quantity,
				UnitPrice:    listing.UnitPrice,
				SellerAmount: listing.SellerAmount,
				LineTotal:    lineTotal,
				Status:       enums.OrderLineStatusValid,
			}
			for pos, gift := range line.Gifts {
				alloc := models.GiftAllocation{
					Position:       pos,
					RecipientName:  gift.RecipientName,
					RecipientEmail: gift.RecipientEmail,
					Quantity:       gift.Quantity,
				}
				if gift.Message != "" {
					msg := gift.Message
					alloc.Message = &msg
				}
				ol.Gifts = append(ol.Gifts, alloc)
			}
			order.Lines = append(order.Lines, ol)
			items = append(items, payments.IntentItem{Title: listing.Title, UnitPrice: listing.UnitPrice, Quantity: line.Quantity})
		}

		fee := subtotal.Mul(s.opts.FeeRate).Round(2)
		order.SubtotalAmount = subtotal
		order.FeeAmount = fee
		order.TotalAmount = subtotal.Add(fee)

		if err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		intent, err := s.createIntent(ctx, payments.IntentRequest{
			OrderID:    order.ID,
			BuyerEmail: order.BuyerEmail,
			Currency:   order.Currency,
			Items:      items,
			Fee:        fee,
			Total:      order.TotalAmount,
			ExpiresAt:  now.Add(s.opts.PaymentExpiry),
		})
		if err != nil {
			return err
		}

		if err := ordersRepo.Update(ctx, order.ID, map[string]any{
			"payment_reference": intent.Reference,
			"redirect_url":      intent.RedirectURL,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment reference")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: req.Buyer.UserID, Role: string(enums.ActorRoleBuyer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				BuyerID:          order.BuyerID,
				ListingIDs:       ids,
				TotalAmount:      order.TotalAmount.StringFixed(2),
				PaymentReference: intent.Reference,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
		}

		for _, listing := range lowStock {
			if err := s.emitLowStock(ctx, tx, listing); err != nil {
				return err
			}
		}

		s.notify.Enqueue(ctx, tx, notifications.Message{
			Template:   notifications.TemplatePurchasePending,
			Recipients: []string{order.BuyerEmail},
			OrderID:    &order.ID,
			Data: map[string]any{
				"order_id":     order.ID.String(),
				"buyer_name":   req.Buyer.Name,
				"total_amount": order.TotalAmount.StringFixed(2),
				"redirect_url": intent.RedirectURL,
			},
		})

		result = &Result{
			OrderID:          order.ID,
			RedirectURL:      intent.RedirectURL,
			PaymentReference: intent.Reference,
			TotalAmount:      order.TotalAmount.StringFixed(2),
			Currency:         order.Currency,
			ExpiresAt:        now.Add(s.opts.PaymentExpiry),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, result.OrderID.String())
	s.logg.Info(logCtx, "checkout created pending order")
	return result, nil
}

func (s *Service) createIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if s.opts.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.GatewayTimeout)
		defer cancel()
	}
	intent, err := s.gateway.CreateIntent(ctx, req)
	if err != nil {
		s.logg.Error(ctx, "payment intent creation failed", err)
		if pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable) {
			return payments.Intent{}, err
		}
		return payments.Intent{}, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "create payment intent")
	}
	if intent.Reference == "" {
		return payments.Intent{}, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "payment intent missing reference")
	}
	return intent, nil
}

func (s *Service) emitLowStock(ctx context.Context, tx *gorm.DB, listing models.Listing) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventListingLowStock,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Data: payloads.ListingLowStockEvent{
			ListingID:    listing.ID,
			EnterpriseID: listing.EnterpriseID,
			Remaining:    listing.AvailableQty,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit low stock")
	}
	if s.opts.OpsEmail != "" {
		s.notify.Enqueue(ctx, tx, notifications.Message{
			Template:   notifications.TemplateLowStock,
			Recipients: []string{s.opts.OpsEmail},
			Data: map[string]any{
				"listing_id":    listing.ID.String(),
				"enterprise_id": listing.EnterpriseID.String(),
				"title":         listing.Title,
				"remaining":     listing.AvailableQty,
			},
		})
	}
	return nil
}

func validateRequest(req Request) error {
	if req.Buyer.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if req.Buyer.Email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if len(req.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}
	if len(req.Lines) > maxLinesPerOrder {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many lines").
			WithDetails(map[string]any{"max_lines": maxLinesPerOrder})
	}
	seen := make(map[uuid.UUID]struct{}, len(req.Lines))
	for i, line := range req.Lines {
		if line.ListingID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "listing id required").
				WithDetails(map[string]any{"line_index": i})
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"line_index": i})
		}
		if _, dup := seen[line.ListingID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "listing appears more than once").
				WithDetails(map[string]any{"listing_id": line.ListingID.String()})
		}
		seen[line.ListingID] = struct{}{}
	}
	return nil
}

func invalidListing(id uuid.UUID, msg string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidListing, msg).
		WithDetails(map[string]any{"listing_id": id.String()})
}
