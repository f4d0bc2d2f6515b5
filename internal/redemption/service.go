// Package redemption lets an enterprise validate and consume the codes it sold.
package redemption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/internal/notifications"
	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

const maxCodeLength = 128

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, msg notifications.Message)
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Outbox        outboxPublisher
	Notifications notifier
	Logger        *logger.Logger
}

type Service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	notify notifier
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("redemption repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		notify: params.Notifications,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// codeContext is everything known about a code once ownership is verified.
type codeContext struct {
	code    *models.GiftCode
	line    *models.OrderLine
	order   *models.Order
	listing *models.Listing
	alloc   *models.GiftAllocation
}

func (c codeContext) owner() Owner {
	if c.alloc != nil {
		return Owner{Kind: OwnerRecipient, Name: c.alloc.RecipientName, Email: c.alloc.RecipientEmail}
	}
	name := ""
	if c.order.BuyerName != nil {
		name = *c.order.BuyerName
	}
	return Owner{Kind: OwnerBuyer, Name: name, Email: c.order.BuyerEmail}
}

// resolve loads the code with its line, order and owner. The listing's
// enterprise must be the acting one.
func (s *Service) resolve(ctx context.Context, repo Repository, enterpriseID uuid.UUID, value string) (codeContext, error) {
	value, err := normalizeCode(value)
	if err != nil {
		return codeContext{}, err
	}
	if enterpriseID == uuid.Nil {
		return codeContext{}, pkgerrors.New(pkgerrors.CodeNotAuthorized, "enterprise context required")
	}

	code, err := repo.FindCode(ctx, value)
	if err != nil {
		if db.IsNotFound(err) {
			return codeContext{}, pkgerrors.New(pkgerrors.CodeCodeNotFound, "code not found")
		}
		return codeContext{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load code")
	}
	listing, err := repo.FindListing(ctx, code.ListingID)
	if err != nil {
		return codeContext{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load listing")
	}
	if listing.EnterpriseID != enterpriseID {
		return codeContext{}, pkgerrors.New(pkgerrors.CodeNotAuthorized, "code belongs to another enterprise")
	}
	line, err := repo.FindLine(ctx, code.OrderLineID)
	if err != nil {
		return codeContext{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order line")
	}
	order, err := repo.FindOrder(ctx, line.OrderID)
	if err != nil {
		return codeContext{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	out := codeContext{code: code, line: line, order: order, listing: listing}
	if code.GiftAllocationID != nil {
		alloc, err := repo.FindAllocation(ctx, *code.GiftAllocationID)
		if err != nil {
			return codeContext{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gift allocation")
		}
		out.alloc = alloc
	}
	return out, nil
}

// Lookup shows an enterprise who owns a code and whether it is still valid.
func (s *Service) Lookup(ctx context.Context, enterpriseID uuid.UUID, value string) (*CodeDetails, error) {
	c, err := s.resolve(ctx, s.repo, enterpriseID, value)
	if err != nil {
		return nil, err
	}
	return &CodeDetails{
		Code:         c.code.Value,
		Used:         c.code.Used,
		UsedAt:       c.code.UsedAt,
		ListingID:    c.listing.ID,
		ListingTitle: c.listing.Title,
		OrderID:      c.order.ID,
		OrderLineID:  c.line.ID,
		LineStatus:   c.line.Status,
		Owner:        c.owner(),
		PurchasedAt:  c.order.CreatedAt,
	}, nil
}

// Redeem consumes a code exactly once and recomputes its line status.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	var result *RedeemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := s.resolve(ctx, repo, req.EnterpriseID, req.Code)
		if err != nil {
			return err
		}
		if c.order.Status != enums.OrderStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not redeemable").
				WithDetails(map[string]any{"order_status": string(c.order.Status)})
		}

		if err := repo.LockLine(ctx, c.line.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order line")
		}
		now := s.now()
		marked, err := repo.MarkUsed(ctx, c.code.ID, req.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark code used")
		}
		if !marked {
			return pkgerrors.New(pkgerrors.CodeCodeAlreadyUsed, "code already used")
		}

		remaining, err := repo.CountUnused(ctx, c.line.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count unused codes")
		}
		status := enums.OrderLineStatusPartiallyUsed
		if remaining == 0 {
			status = enums.OrderLineStatusUsed
		}
		if err := repo.UpdateLineStatus(ctx, c.line.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update line status")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCodeRedeemed,
			AggregateType: enums.AggregateGiftCode,
			AggregateID:   c.code.ID,
			Actor:         &outbox.ActorRef{UserID: req.UserID, EnterpriseID: &req.EnterpriseID, Role: string(enums.ActorRoleEnterprise)},
			Data: payloads.CodeRedeemedEvent{
				CodeID:       c.code.ID,
				OrderLineID:  c.line.ID,
				ListingID:    c.listing.ID,
				EnterpriseID: req.EnterpriseID,
				LineStatus:   status,
				RedeemedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit code redeemed")
		}

		owner := c.owner()
		recipients := []string{owner.Email}
		if owner.Kind == OwnerRecipient {
			recipients = append(recipients, c.order.BuyerEmail)
		}
		s.notify.Enqueue(ctx, tx, notifications.Message{
			Template:   notifications.TemplateGiftUsed,
			Recipients: recipients,
			OrderID:    &c.order.ID,
			Data: map[string]any{
				"listing_title": c.listing.Title,
				"owner_name":    owner.Name,
				"owner_kind":    string(owner.Kind),
				"used_at":       now.Format(time.RFC3339),
			},
		})

		result = &RedeemResult{
			Code:        c.code.Value,
			OrderLineID: c.line.ID,
			LineStatus:  status,
			Remaining:   int(remaining),
			UsedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"enterprise_id": req.EnterpriseID.String(),
		"order_line_id": result.OrderLineID.String(),
		"line_status":   result.LineStatus,
	})
	s.logg.Info(logCtx, "gift code redeemed")
	return result, nil
}

// History pages the enterprise's lines that saw at least one redemption. An
// empty status lists both partially and fully used lines.
func (s *Service) History(ctx context.Context, enterpriseID uuid.UUID, status enums.OrderLineStatus, params pagination.Params) (*HistoryPage, error) {
	if enterpriseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "enterprise context required")
	}
	statuses := []enums.OrderLineStatus{enums.OrderLineStatusPartiallyUsed, enums.OrderLineStatusUsed}
	switch status {
	case "":
	case enums.OrderLineStatusPartiallyUsed, enums.OrderLineStatusUsed:
		statuses = []enums.OrderLineStatus{status}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "history covers redeemed lines only").
			WithDetails(map[string]any{"status": string(status)})
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	lines, err := s.repo.RedeemedLines(ctx, enterpriseID, statuses, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list redeemed lines")
	}
	page := &HistoryPage{Items: make([]HistoryEntry, 0, len(lines))}
	if len(lines) > limit {
		last := lines[limit-1]
		page.Cursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.UpdatedAt, ID: last.ID})
		lines = lines[:limit]
	}

	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ID
	}
	usage, err := s.repo.UsageByLine(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load redemption usage")
	}
	for _, line := range lines {
		u := usage[line.ID]
		page.Items = append(page.Items, HistoryEntry{
			OrderLineID:    line.ID,
			OrderID:        line.OrderID,
			ListingID:      line.ListingID,
			Title:          line.Title,
			Quantity:       line.Quantity,
			Used:           u.Used,
			Status:         line.Status,
			LastRedeemedAt: u.LastRedeemedAt,
		})
	}
	return page, nil
}

func normalizeCode(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code required")
	}
	if len(value) > maxCodeLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code too long")
	}
	return value, nil
}
