package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
)

// SettlementOperation journals a compound purchase or cash-in so that partial
// progress is visible after a crash or failed compensation.
type SettlementOperation struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Kind           enums.SettlementKind   `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Status         enums.SettlementStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	VendorID       int64                  `gorm:"column:vendor_id;not null;index" json:"vendor_id"`
	PurchaseID     *uuid.UUID             `gorm:"column:purchase_id;type:uuid" json:"purchase_id,omitempty"`
	CompletedSteps datatypes.JSON         `gorm:"column:completed_steps;type:jsonb;not null" json:"completed_steps"`
	Request        datatypes.JSON         `gorm:"column:request;type:jsonb" json:"request"`
	LastError      *string                `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
