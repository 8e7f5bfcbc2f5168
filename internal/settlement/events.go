package settlement

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/outbox/payloads"
)

func purchasePlacedPayload(operationID uuid.UUID, purchase *models.Purchase, balance int64) payloads.PurchasePlacedEvent {
	event := payloads.PurchasePlacedEvent{
		OperationID:   operationID,
		LedgerBalance: balance,
	}
	if purchase != nil {
		event.PurchaseID = purchase.ID
		event.VendorID = purchase.VendorID
		event.ProductID = purchase.ProductID
		event.Quantity = purchase.Quantity
		event.UnitPrice = purchase.UnitPrice
		event.TotalPrice = purchase.TotalPrice
		event.Status = purchase.Status
	}
	return event
}

func cashInSettledPayload(operationID uuid.UUID, input CashInInput, balance int64) payloads.CashInSettledEvent {
	return payloads.CashInSettledEvent{
		OperationID:   operationID,
		PurchaseID:    input.PurchaseID,
		VendorID:      input.VendorID,
		Amount:        input.Amount,
		LedgerBalance: balance,
	}
}
