package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog item with its on-hand quantity.
type Product struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name          string           `gorm:"column:name;not null" json:"name"`
	Category      string           `gorm:"column:category;not null;default:''" json:"category"`
	ImageURL      *string          `gorm:"column:image_url" json:"image_url,omitempty"`
	Description   *string          `gorm:"column:description" json:"description,omitempty"`
	Price         decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null;default:0" json:"price"`
	DiscountPrice *decimal.Decimal `gorm:"column:discount_price;type:numeric(12,2)" json:"discount_price,omitempty"`
	Quantity      int64            `gorm:"column:quantity;not null;default:0;check:quantity >= 0" json:"quantity"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
