package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
)

// PurchasePlacedEvent is emitted once a purchase, its inventory increase and
// its ledger debit have all been applied.
type PurchasePlacedEvent struct {
	OperationID   uuid.UUID            `json:"operation_id"`
	PurchaseID    uuid.UUID            `json:"purchase_id"`
	VendorID      int64                `json:"vendor_id"`
	ProductID     uuid.UUID            `json:"product_id"`
	Quantity      int64                `json:"quantity"`
	UnitPrice     int64                `json:"unit_price"`
	TotalPrice    int64                `json:"total_price"`
	Status        enums.PurchaseStatus `json:"status"`
	LedgerBalance int64                `json:"ledger_balance"`
}

// CashInSettledEvent is emitted when a cash-in credit lands and the purchase
// it references is marked paid.
type CashInSettledEvent struct {
	OperationID   uuid.UUID `json:"operation_id"`
	PurchaseID    uuid.UUID `json:"purchase_id"`
	VendorID      int64     `json:"vendor_id"`
	Amount        int64     `json:"amount"`
	LedgerBalance int64     `json:"ledger_balance"`
}
