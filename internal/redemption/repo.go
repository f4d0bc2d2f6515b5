package redemption

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

// Repository reads and mutates gift codes for redemption.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCode(ctx context.Context, value string) (*models.GiftCode, error)
	FindLine(ctx context.Context, id uuid.UUID) (*models.OrderLine, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindAllocation(ctx context.Context, id uuid.UUID) (*models.GiftAllocation, error)
	LockLine(ctx context.Context, id uuid.UUID) error
	MarkUsed(ctx context.Context, codeID, redeemedBy uuid.UUID, at time.Time) (bool, error)
	CountUnused(ctx context.Context, lineID uuid.UUID) (int64, error)
	UpdateLineStatus(ctx context.Context, lineID uuid.UUID, status enums.OrderLineStatus) error
	RedeemedLines(ctx context.Context, enterpriseID uuid.UUID, statuses []enums.OrderLineStatus, cursor *pagination.Cursor, limit int) ([]models.OrderLine, error)
	UsageByLine(ctx context.Context, lineIDs []uuid.UUID) (map[uuid.UUID]LineUsage, error)
}

// LineUsage aggregates redemptions for one line.
type LineUsage struct {
	Used           int
	LastRedeemedAt *time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCode(ctx context.Context, value string) (*models.GiftCode, error) {
	var code models.GiftCode
	if err := r.db.WithContext(ctx).Where("value = ?", value).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) FindLine(ctx context.Context, id uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
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

func (r *repository) FindAllocation(ctx context.Context, id uuid.UUID) (*models.GiftAllocation, error) {
	var alloc models.GiftAllocation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alloc).Error; err != nil {
		return nil, err
	}
	return &alloc, nil
}

// LockLine holds the line row until the transaction ends so redemptions of
// sibling codes recompute the line status one at a time.
func (r *repository) LockLine(ctx context.Context, id uuid.UUID) error {
	var line models.OrderLine
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&line).Error
}

// MarkUsed flips one unused code. It reports false when the code was already
// used, including by a concurrent redemption.
func (r *repository) MarkUsed(ctx context.Context, codeID, redeemedBy uuid.UUID, at time.Time) (bool, error) {
	updates := map[string]any{"used": true, "used_at": at}
	if redeemedBy != uuid.Nil {
		updates["redeemed_by"] = redeemedBy
	}
	res := r.db.WithContext(ctx).
		Model(&models.GiftCode{}).
		Where("id = ? AND used = ?", codeID, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountUnused(ctx context.Context, lineID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.GiftCode{}).
		Where("order_line_id = ? AND used = ?", lineID, false).
		Count(&n).Error
	return n, err
}

func (r *repository) UpdateLineStatus(ctx context.Context, lineID uuid.UUID, status enums.OrderLineStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Update("status", status).Error
}

// RedeemedLines pages the enterprise's lines in the given statuses, most
// recently touched first.
func (r *repository) RedeemedLines(ctx context.Context, enterpriseID uuid.UUID, statuses []enums.OrderLineStatus, cursor *pagination.Cursor, limit int) ([]models.OrderLine, error) {
	query := r.db.WithContext(ctx).
		Where("enterprise_id = ? AND status IN ?", enterpriseID, statuses)
	if cursor != nil {
		query = query.Where("(updated_at < ?) OR (updated_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.OrderLine
	err := query.
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UsageByLine(ctx context.Context, lineIDs []uuid.UUID) (map[uuid.UUID]LineUsage, error) {
	out := make(map[uuid.UUID]LineUsage, len(lineIDs))
	if len(lineIDs) == 0 {
		return out, nil
	}
	var codes []models.GiftCode
	err := r.db.WithContext(ctx).
		Select("order_line_id", "used_at").
		Where("order_line_id IN ? AND used = ?", lineIDs, true).
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		usage := out[code.OrderLineID]
		usage.Used++
		if code.UsedAt != nil && (usage.LastRedeemedAt == nil || code.UsedAt.After(*usage.LastRedeemedAt)) {
			at := *code.UsedAt
			usage.LastRedeemedAt = &at
		}
		out[code.OrderLineID] = usage
	}
	return out, nil
}
