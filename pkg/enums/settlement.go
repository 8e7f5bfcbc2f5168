package enums

import "fmt"

// SettlementKind identifies the compound operation recorded in the settlement journal.
type SettlementKind string

const (
	SettlementKindPlacePurchase SettlementKind = "place_purchase"
	SettlementKindSettleCashIn  SettlementKind = "settle_cash_in"
)

var validSettlementKinds = []SettlementKind{
	SettlementKindPlacePurchase,
	SettlementKindSettleCashIn,
}

// IsValid reports whether the value matches a known settlement kind.
func (k SettlementKind) IsValid() bool {
	for _, candidate := range validSettlementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// SettlementStatus tracks a journal row through its lifecycle.
type SettlementStatus string

const (
	SettlementStatusPending             SettlementStatus = "pending"
	SettlementStatusCommitted           SettlementStatus = "committed"
	SettlementStatusCompensated         SettlementStatus = "compensated"
	SettlementStatusFailed              SettlementStatus = "failed"
	SettlementStatusNeedsReconciliation SettlementStatus = "needs_reconciliation"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusCommitted,
	SettlementStatusCompensated,
	SettlementStatusFailed,
	SettlementStatusNeedsReconciliation,
}

// IsValid reports whether the value matches a known settlement status.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}

// SettlementStep names one unit of work inside a compound operation.
type SettlementStep string

const (
	StepRecordPurchase    SettlementStep = "record_purchase"
	StepIncreaseInventory SettlementStep = "increase_inventory"
	StepPostDebit         SettlementStep = "post_debit"
	StepPostCredit        SettlementStep = "post_credit"
	StepMarkPaid          SettlementStep = "mark_paid"
)
