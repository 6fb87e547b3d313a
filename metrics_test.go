package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOrderIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(mtxOrders.WithLabelValues("paper", "X", "BUY", "FILLED"))
	observeOrder("paper", "X", SideBuy, StatusFilled)
	after := testutil.ToFloat64(mtxOrders.WithLabelValues("paper", "X", "BUY", "FILLED"))
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %f -> %f", before, after)
	}
}

func TestObserveCooldownSetsGauges(t *testing.T) {
	observeCooldown("X", CooldownState{UntilMs: 123456, FailCount: 3})
	if v := testutil.ToFloat64(mtxCooldownUntilMs.WithLabelValues("X")); v != 123456 {
		t.Fatalf("expected until_ms gauge 123456, got %f", v)
	}
	if v := testutil.ToFloat64(mtxCooldownFailCount.WithLabelValues("X")); v != 3 {
		t.Fatalf("expected fail_count gauge 3, got %f", v)
	}
}
