package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its lines and gift allocations.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindDetail loads the order with lines, gift allocations and codes in
// their recorded positions.
func (r *repository) FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := detailQuery(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListForBuyer pages newest first. limit should already include the
// lookahead row used to detect a next page.
func (r *repository) ListForBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := detailQuery(r.db.WithContext(ctx)).Where("buyer_id = ?", buyerID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Order
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSales pages approved lines sold by one enterprise, newest purchase
// first.
func (r *repository) ListSales(ctx context.Context, filter SalesFilter, cursor *pagination.Cursor, limit int) ([]SaleRow, error) {
	query := r.db.WithContext(ctx).
		Table("order_lines").
		Select(`order_lines.id AS line_id, order_lines.order_id, order_lines.listing_id, order_lines.title,
			order_lines.quantity, order_lines.short_qty, order_lines.unit_price, order_lines.seller_amount,
			order_lines.line_total, order_lines.status, orders.buyer_name, orders.created_at AS purchased_at`).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("order_lines.enterprise_id = ? AND orders.status = ?", filter.EnterpriseID, enums.OrderStatusApproved)
	if filter.ListingID != nil {
		query = query.Where("order_lines.listing_id = ?", *filter.ListingID)
	}
	if !filter.From.IsZero() {
		query = query.Where("orders.created_at >= ?", filter.From)
	}
	if !filter.Until.IsZero() {
		query = query.Where("orders.created_at < ?", filter.Until)
	}
	if cursor != nil {
		query = query.Where("(orders.created_at < ?) OR (orders.created_at = ? AND order_lines.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []SaleRow
	err := query.
		Order("orders.created_at DESC").
		Order("order_lines.id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// FindPendingBefore returns the oldest PENDING orders created before cutoff.
func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimPending moves a PENDING order to status. It reports false when another
// writer already settled the order.
func (r *repository) ClaimPending(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Updates(updates).Error
}

func (r *repository) CreateCodes(ctx context.Context, codes []models.GiftCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&codes).Error
}

func detailQuery(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC").Order("id ASC") }).
		Preload("Lines.Gifts", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("Lines.Codes", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") })
}
