package enums

import "fmt"

// LedgerEntryKind is the direction of a ledger posting.
type LedgerEntryKind string

const (
	// LedgerEntryDebit increases what the shop owes the vendor (balance goes down).
	LedgerEntryDebit LedgerEntryKind = "debit"
	// LedgerEntryCredit records money paid to the vendor (balance goes up).
	LedgerEntryCredit LedgerEntryKind = "credit"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryDebit,
	LedgerEntryCredit,
}

// IsValid reports whether the value matches a known entry kind.
func (k LedgerEntryKind) IsValid() bool {
	for _, candidate := range validLedgerEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Opposite returns the kind that reverses k.
func (k LedgerEntryKind) Opposite() LedgerEntryKind {
	if k == LedgerEntryDebit {
		return LedgerEntryCredit
	}
	return LedgerEntryDebit
}

// Signed applies the kind's direction to a positive amount.
func (k LedgerEntryKind) Signed(amount int64) int64 {
	if k == LedgerEntryDebit {
		return -amount
	}
	return amount
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	for _, candidate := range validLedgerEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry kind %q", value)
}
