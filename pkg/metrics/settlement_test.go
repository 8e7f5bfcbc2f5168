package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSettlementMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)
	m.Observe("place_purchase", "saga", "compensated", 40*time.Millisecond)
	m.Observe("place_purchase", "saga", "compensated", 10*time.Millisecond)
	m.IncCompensation("increase_inventory", false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_operations_total", "status", "compensated"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 compensated operations, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "settlement_compensations_total", "result", "error"); err != nil {
		t.Fatalf("fetch compensations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 failed compensation, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "settlement_operation_duration_seconds", "kind", "place_purchase"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOutboxMetricsAndNilSafety(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("purchase_placed")
	m.IncFailed("purchase_placed", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_failed_total", "terminal", "true"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 terminal failure, got %f", got)
	}

	var nilSettlement *SettlementMetrics
	nilSettlement.Observe("settle_cash_in", "transactional", "committed", time.Second)
	NewOutboxMetrics(nil).IncPublished("cash_in_settled")
}
