package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

// ReserveResult describes stock left after a successful reservation.
type ReserveResult struct {
	ListingID uuid.UUID
	Remaining int
	// LowStock is set only on the reservation that crossed the threshold.
	LowStock bool
}

// Ledger mutates listing stock with conditional updates so concurrent
// checkouts observe a total order per listing.
type Ledger struct {
	lowStockThreshold int
}

func NewLedger(lowStockThreshold int) *Ledger {
	return &Ledger{lowStockThreshold: lowStockThreshold}
}

// Reserve decrements available_qty by qty when enough stock is available.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) (ReserveResult, error) {
	if tx == nil {
		return ReserveResult{}, fmt.Errorf("transaction required")
	}
	if listingID == uuid.Nil {
		return ReserveResult{}, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if qty <= 0 {
		return ReserveResult{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND active = ? AND available_qty >= ?", listingID, true, qty).
		Update("available_qty", gorm.Expr("available_qty - ?", qty))
	if res.Error != nil {
		return ReserveResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		var active bool
		err := tx.WithContext(ctx).
			Model(&models.Listing{}).
			Select("active").
			Where("id = ?", listingID).
			Scan(&active).Error
		if err != nil {
			return ReserveResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read listing state")
		}
		if !active {
			return ReserveResult{}, pkgerrors.New(pkgerrors.CodeInvalidListing, "listing is not available").
				WithDetails(map[string]any{"listing_id": listingID.String()})
		}
		return ReserveResult{}, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock for listing").
			WithDetails(map[string]any{"listing_id": listingID.String(), "requested": qty})
	}

	result := ReserveResult{ListingID: listingID}
	if err := tx.WithContext(ctx).
		Model(&models.Listing{}).
		Select("available_qty").
		Where("id = ?", listingID).
		Scan(&result.Remaining).Error; err != nil {
		return ReserveResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read remaining stock")
	}

	if l.lowStockThreshold > 0 && result.Remaining <= l.lowStockThreshold {
		flag := tx.WithContext(ctx).
			Model(&models.Listing{}).
			Where("id = ? AND low_stock_notified = ?", listingID, false).
			Update("low_stock_notified", true)
		if flag.Error != nil {
			return ReserveResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, flag.Error, "flag low stock")
		}
		result.LowStock = flag.RowsAffected == 1
	}

	return result, nil
}

// Release returns qty units to the listing. Callers guarantee it runs at most
// once per reservation.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	updates := map[string]any{
		"available_qty": gorm.Expr("available_qty + ?", qty),
	}
	if l.lowStockThreshold > 0 {
		updates["low_stock_notified"] = gorm.Expr(
			"CASE WHEN available_qty + ? > ? THEN ? ELSE low_stock_notified END",
			qty, l.lowStockThreshold, false,
		)
	}

	res := tx.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", listingID).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "listing vanished while releasing stock").
			WithDetails(map[string]any{"listing_id": listingID.String()})
	}
	return nil
}
