package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GiftAllocation is a request to route part of a line to a recipient.
type GiftAllocation struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderLineID    uuid.UUID `gorm:"column:order_line_id;type:uuid;not null"`
	Position       int       `gorm:"column:position;not null"`
	RecipientName  string    `gorm:"column:recipient_name;not null"`
	RecipientEmail string    `gorm:"column:recipient_email;not null"`
	Message        *string   `gorm:"column:message"`
	Quantity       int       `gorm:"column:quantity;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`

	Codes []GiftCode `gorm:"foreignKey:GiftAllocationID"`
}

func (g *GiftAllocation) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
