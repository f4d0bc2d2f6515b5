package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// Listing is a seller's gift-card product with its stock counter.
type Listing struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EnterpriseID     uuid.UUID       `gorm:"column:enterprise_id;type:uuid;not null"`
	Title            string          `gorm:"column:title;not null"`
	Description      *string         `gorm:"column:description"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	SellerAmount     decimal.Decimal `gorm:"column:seller_amount;type:numeric(12,2);not null"`
	AvailableQty     int             `gorm:"column:available_qty;not null"`
	CodeMode         enums.CodeMode  `gorm:"column:code_mode;not null"`
	DeclaredCodes    *string         `gorm:"column:declared_codes"`
	Active           bool            `gorm:"column:active;not null"`
	ValidUntil       *time.Time      `gorm:"column:valid_until"`
	LowStockNotified bool            `gorm:"column:low_stock_notified;not null;default:false"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Purchasable reports whether the listing can be sold at now.
func (l Listing) Purchasable(now time.Time) bool {
	if !l.Active {
		return false
	}
	return l.ValidUntil == nil || now.Before(*l.ValidUntil)
}
