package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

// Result is what Settle reports back to webhook and reconciler callers.
type Result struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Changed bool
}

// OrderView is the buyer-facing projection of an order.
type OrderView struct {
	ID               uuid.UUID         `json:"id"`
	Status           enums.OrderStatus `json:"status"`
	StatusDetail     *string           `json:"status_detail,omitempty"`
	SubtotalAmount   string            `json:"subtotal_amount"`
	FeeAmount        string            `json:"fee_amount"`
	TotalAmount      string            `json:"total_amount"`
	Currency         string            `json:"currency"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	RedirectURL      *string           `json:"redirect_url,omitempty"`
	SettledAt        *time.Time        `json:"settled_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Lines            []LineView        `json:"lines"`
}

// LineView lists the buyer's own codes and each recipient's share.
type LineView struct {
	ID         uuid.UUID             `json:"id"`
	ListingID  uuid.UUID             `json:"listing_id"`
	Title      string                `json:"title"`
	Quantity   int                   `json:"quantity"`
	ShortQty   int                   `json:"short_qty,omitempty"`
	UnitPrice  string                `json:"unit_price"`
	LineTotal  string                `json:"line_total"`
	Status     enums.OrderLineStatus `json:"status"`
	BuyerCodes []CodeView            `json:"buyer_codes"`
	Gifts      []GiftView            `json:"gifts"`
}

type GiftView struct {
	ID             uuid.UUID  `json:"id"`
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	Message        *string    `json:"message,omitempty"`
	Quantity       int        `json:"quantity"`
	Codes          []CodeView `json:"codes"`
}

type CodeView struct {
	Value  string     `json:"value"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// OrderList is a page of buyer orders.
type OrderList struct {
	Items  []OrderView `json:"items"`
	Cursor string      `json:"cursor"`
}

// SalesQuery filters the seller-facing sales listing. Month requires Year.
type SalesQuery struct {
	EnterpriseID uuid.UUID
	ListingID    *uuid.UUID
	Year         int
	Month        int
	Page         pagination.Params
}

// SaleView is one approved line as its seller sees it.
type SaleView struct {
	OrderLineID  uuid.UUID             `json:"order_line_id"`
	OrderID      uuid.UUID             `json:"order_id"`
	ListingID    uuid.UUID             `json:"listing_id"`
	Title        string                `json:"title"`
	Quantity     int                   `json:"quantity"`
	ShortQty     int                   `json:"short_qty,omitempty"`
	UnitPrice    string                `json:"unit_price"`
	SellerAmount string                `json:"seller_amount"`
	LineTotal    string                `json:"line_total"`
	Status       enums.OrderLineStatus `json:"status"`
	BuyerName    *string               `json:"buyer_name,omitempty"`
	PurchasedAt  time.Time             `json:"purchased_at"`
}

type SalesPage struct {
	Items  []SaleView `json:"items"`
	Cursor string     `json:"cursor"`
}

func toSaleView(row SaleRow) SaleView {
	return SaleView{
		OrderLineID:  row.LineID,
		OrderID:      row.OrderID,
		ListingID:    row.ListingID,
		Title:        row.Title,
		Quantity:     row.Quantity,
		ShortQty:     row.ShortQty,
		UnitPrice:    row.UnitPrice.StringFixed(2),
		SellerAmount: row.SellerAmount.StringFixed(2),
		LineTotal:    row.LineTotal.StringFixed(2),
		Status:       row.Status,
		BuyerName:    row.BuyerName,
		PurchasedAt:  row.PurchasedAt,
	}
}

func toOrderView(order models.Order) OrderView {
	view := OrderView{
		ID:               order.ID,
		Status:           order.Status,
		StatusDetail:     order.StatusDetail,
		SubtotalAmount:   order.SubtotalAmount.StringFixed(2),
		FeeAmount:        order.FeeAmount.StringFixed(2),
		TotalAmount:      order.TotalAmount.StringFixed(2),
		Currency:         order.Currency,
		PaymentReference: order.PaymentReference,
		SettledAt:        order.SettledAt,
		CreatedAt:        order.CreatedAt,
		Lines:            make([]LineView, 0, len(order.Lines)),
	}
	if order.Status == enums.OrderStatusPending {
		view.RedirectURL = order.RedirectURL
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, toLineView(line))
	}
	return view
}

func toLineView(line models.OrderLine) LineView {
	view := LineView{
		ID:         line.ID,
		ListingID:  line.ListingID,
		Title:      line.Title,
		Quantity:   line.Quantity,
		ShortQty:   line.ShortQty,
		UnitPrice:  line.UnitPrice.StringFixed(2),
		LineTotal:  line.LineTotal.StringFixed(2),
		Status:     line.Status,
		BuyerCodes: []CodeView{},
		Gifts:      make([]GiftView, 0, len(line.Gifts)),
	}

	byGift := make(map[uuid.UUID][]CodeView, len(line.Gifts))
	for _, code := range line.Codes {
		cv := CodeView{Value: code.Value, Used: code.Used, UsedAt: code.UsedAt}
		if code.OwnedByBuyer() {
			view.BuyerCodes = append(view.BuyerCodes, cv)
			continue
		}
		byGift[*code.GiftAllocationID] = append(byGift[*code.GiftAllocationID], cv)
	}
	for _, gift := range line.Gifts {
		codes := byGift[gift.ID]
		if codes == nil {
			codes = []CodeView{}
		}
		view.Gifts = append(view.Gifts, GiftView{
			ID:             gift.ID,
			RecipientName:  gift.RecipientName,
			RecipientEmail: gift.RecipientEmail,
			Message:        gift.Message,
			Quantity:       gift.Quantity,
			Codes:          codes,
		})
	}
	return view
}
