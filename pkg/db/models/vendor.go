package models

import "time"

// Vendor is a supplier the shop buys stock from on credit. IDs are sequential.
type Vendor struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Email     *string   `gorm:"column:email" json:"email,omitempty"`
	Phone     *string   `gorm:"column:phone" json:"phone,omitempty"`
	Address   *string   `gorm:"column:address" json:"address,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
