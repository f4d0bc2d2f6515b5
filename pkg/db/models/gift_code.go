package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GiftCode is one redeemable code owned by a line and, when gifted, by an allocation.
type GiftCode struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ListingID        uuid.UUID  `gorm:"column:listing_id;type:uuid;not null"`
	OrderLineID      uuid.UUID  `gorm:"column:order_line_id;type:uuid;not null"`
	GiftAllocationID *uuid.UUID `gorm:"column:gift_allocation_id;type:uuid"`
	Value            string     `gorm:"column:value;not null;uniqueIndex:gift_codes_value_key"`
	Position         int        `gorm:"column:position;not null"`
	Used             bool       `gorm:"column:used;not null;default:false"`
	UsedAt           *time.Time `gorm:"column:used_at"`
	RedeemedBy       *uuid.UUID `gorm:"column:redeemed_by;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *GiftCode) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// OwnedByBuyer is true when the code was not routed to a gift recipient.
func (c GiftCode) OwnedByBuyer() bool {
	return c.GiftAllocationID == nil
}
