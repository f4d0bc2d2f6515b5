package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// Order is a buyer's purchase of one or more listings.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	BuyerEmail       string              `gorm:"column:buyer_email;not null"`
	BuyerName        *string             `gorm:"column:buyer_name"`
	Status           enums.OrderStatus   `gorm:"column:status;not null;default:'PENDING'"`
	StatusDetail     *string             `gorm:"column:status_detail"`
	SubtotalAmount   decimal.Decimal     `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	FeeAmount        decimal.Decimal     `gorm:"column:fee_amount;type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	NetAmount        decimal.NullDecimal `gorm:"column:net_amount;type:numeric(12,2)"`
	Currency         string              `gorm:"column:currency;not null"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	PaymentID        *string             `gorm:"column:payment_id"`
	RedirectURL      *string             `gorm:"column:redirect_url"`
	SettledAt        *time.Time          `gorm:"column:settled_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
