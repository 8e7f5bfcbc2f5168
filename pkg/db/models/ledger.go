package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
)

// LedgerAccount holds the running balance owed to a vendor. A negative balance
// means the shop owes the vendor money.
type LedgerAccount struct {
	VendorID   int64     `gorm:"column:vendor_id;primaryKey;autoIncrement:false" json:"vendor_id"`
	Balance    int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	EntryCount int64     `gorm:"column:entry_count;not null;default:0" json:"entry_count"`
	Version    int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// LedgerEntry is an immutable posting against a vendor account.
type LedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID     int64                 `gorm:"column:vendor_id;not null;uniqueIndex:uq_ledger_entries_vendor_sequence,priority:1" json:"vendor_id"`
	Sequence     int64                 `gorm:"column:sequence;not null;uniqueIndex:uq_ledger_entries_vendor_sequence,priority:2" json:"sequence"`
	Kind         enums.LedgerEntryKind `gorm:"column:kind;type:varchar(8);not null" json:"kind"`
	ProductID    *uuid.UUID            `gorm:"column:product_id;type:uuid" json:"product_id,omitempty"`
	PurchaseID   *uuid.UUID            `gorm:"column:purchase_id;type:uuid" json:"purchase_id,omitempty"`
	Amount       int64                 `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null" json:"balance_after"`
	Note         *string               `gorm:"column:note" json:"note,omitempty"`
	CreatedAt    time.Time             `gorm:"column:created_at;not null" json:"created_at"`
}
