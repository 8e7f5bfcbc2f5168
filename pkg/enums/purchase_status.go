package enums

import "fmt"

// PurchaseStatus maps to the purchases.status column.
type PurchaseStatus string

const (
	PurchaseStatusUnpaid PurchaseStatus = "unpaid"
	PurchaseStatusPaid   PurchaseStatus = "paid"
	// PurchaseStatusFailed is only reached through compensation of a failed placement.
	PurchaseStatusFailed PurchaseStatus = "failed"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusUnpaid,
	PurchaseStatusPaid,
	PurchaseStatusFailed,
}

// IsValid reports whether the value matches a known purchase status.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusPaid || s == PurchaseStatusFailed
}

// ParsePurchaseStatus converts raw input into PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}
