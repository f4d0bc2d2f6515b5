package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// OrderLine snapshots one listing inside an order.
type OrderLine struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	ListingID    uuid.UUID             `gorm:"column:listing_id;type:uuid;not null"`
	EnterpriseID uuid.UUID             `gorm:"column:enterprise_id;type:uuid;not null"`
	Title        string                `gorm:"column:title;not null"`
	Quantity     int                   `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	SellerAmount decimal.Decimal       `gorm:"column:seller_amount;type:numeric(12,2);not null"`
	LineTotal    decimal.Decimal       `gorm:"column:line_total;type:numeric(12,2);not null"`
	ShortQty     int                   `gorm:"column:short_qty;not null;default:0"`
	Status       enums.OrderLineStatus `gorm:"column:status;not null;default:'VALID'"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`

	Gifts []GiftAllocation `gorm:"foreignKey:OrderLineID"`
	Codes []GiftCode       `gorm:"foreignKey:OrderLineID"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
