package enums

import "testing"

func TestParsePurchaseStatus(t *testing.T) {
	got, err := ParsePurchaseStatus("unpaid")
	if err != nil || got != PurchaseStatusUnpaid {
		t.Fatalf("expected unpaid, got %q err=%v", got, err)
	}
	if _, err := ParsePurchaseStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if PurchaseStatusUnpaid.IsTerminal() {
		t.Fatal("unpaid must not be terminal")
	}
	if !PurchaseStatusPaid.IsTerminal() || !PurchaseStatusFailed.IsTerminal() {
		t.Fatal("paid and failed must be terminal")
	}
}

func TestLedgerEntryKindSigned(t *testing.T) {
	if LedgerEntryDebit.Signed(50) != -50 {
		t.Fatal("debit should subtract")
	}
	if LedgerEntryCredit.Signed(50) != 50 {
		t.Fatal("credit should add")
	}
	if LedgerEntryDebit.Opposite() != LedgerEntryCredit || LedgerEntryCredit.Opposite() != LedgerEntryDebit {
		t.Fatal("opposite kinds mismatch")
	}
	if LedgerEntryKind("transfer").IsValid() {
		t.Fatal("unexpected valid kind")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	if _, err := ParseOutboxEventType(string(EventCashInSettled)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if _, err := ParseSettlementStatus("needs_reconciliation"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseRole(t *testing.T) {
	got, err := ParseRole("admin")
	if err != nil || got != RoleAdmin {
		t.Fatalf("expected admin, got %q err=%v", got, err)
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if Role("").IsValid() {
		t.Fatal("empty role must be invalid")
	}
}
