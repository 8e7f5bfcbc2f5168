package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
)

// Purchase is a stock purchase made on credit. Rows are never deleted.
type Purchase struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID   int64                `gorm:"column:vendor_id;not null;index:idx_purchases_vendor_status,priority:1" json:"vendor_id"`
	ProductID  uuid.UUID            `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity   int64                `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice  int64                `gorm:"column:unit_price;not null" json:"unit_price"`
	TotalPrice int64                `gorm:"column:total_price;not null" json:"total_price"`
	Status     enums.PurchaseStatus `gorm:"column:status;type:varchar(16);not null;default:'unpaid';index:idx_purchases_vendor_status,priority:2" json:"status"`
	Note       *string              `gorm:"column:note" json:"note,omitempty"`
	CreatedAt  time.Time            `gorm:"column:created_at;not null" json:"created_at"`
	PaidAt     *time.Time           `gorm:"column:paid_at" json:"paid_at,omitempty"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
