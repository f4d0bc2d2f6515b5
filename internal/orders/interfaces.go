package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListSales(ctx context.Context, filter SalesFilter, cursor *pagination.Cursor, limit int) ([]SaleRow, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ClaimPending(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error
	CreateCodes(ctx context.Context, codes []models.GiftCode) error
}

// SalesFilter narrows an enterprise's approved lines. Zero times leave the
// purchase window open on that side.
type SalesFilter struct {
	EnterpriseID uuid.UUID
	ListingID    *uuid.UUID
	From         time.Time
	Until        time.Time
}

// SaleRow is one approved line joined with its order.
type SaleRow struct {
	LineID       uuid.UUID             `gorm:"column:line_id"`
	OrderID      uuid.UUID             `gorm:"column:order_id"`
	ListingID    uuid.UUID             `gorm:"column:listing_id"`
	Title        string                `gorm:"column:title"`
	Quantity     int                   `gorm:"column:quantity"`
	ShortQty     int                   `gorm:"column:short_qty"`
	UnitPrice    decimal.Decimal       `gorm:"column:unit_price"`
	SellerAmount decimal.Decimal       `gorm:"column:seller_amount"`
	LineTotal    decimal.Decimal       `gorm:"column:line_total"`
	Status       enums.OrderLineStatus `gorm:"column:status"`
	BuyerName    *string               `gorm:"column:buyer_name"`
	PurchasedAt  time.Time             `gorm:"column:purchased_at"`
}
