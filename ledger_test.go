package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestLedgerOpenNewPosition(t *testing.T) {
	l, err := NewPositionLedger("")
	if err != nil {
		t.Fatal(err)
	}
	pos, err := l.ApplyFill("paper", "BTC-USD", SideBuy, d("1"), d("100"), d("0"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Qty.Equal(d("1")) || !pos.AvgCost.Equal(d("100")) {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if !pos.IsLong() {
		t.Fatal("expected long position")
	}
}

func TestLedgerSameSideAveragesIn(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0"), time.Now())
	pos, err := l.ApplyFill("p", "X", SideBuy, d("1"), d("200"), d("0"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Qty.Equal(d("2")) || !pos.AvgCost.Equal(d("150")) {
		t.Fatalf("expected qty=2 avg=150, got %+v", pos)
	}
}

func TestLedgerPartialCloseRealizesPnL(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideBuy, d("2"), d("100"), d("0"), time.Now())
	pos, err := l.ApplyFill("p", "X", SideSell, d("1"), d("110"), d("0"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Qty.Equal(d("1")) {
		t.Fatalf("expected remaining qty 1, got %s", pos.Qty)
	}
	if !pos.RealizedPnL.Equal(d("10")) {
		t.Fatalf("expected realized pnl 10, got %s", pos.RealizedPnL)
	}
}

func TestLedgerFullCloseRemovesPosition(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0"), time.Now())
	l.ApplyFill("p", "X", SideSell, d("1"), d("105"), d("0"), time.Now())
	if l.HasPosition("p", "X") {
		t.Fatal("expected position fully closed")
	}
}

func TestLedgerFlipOnOversizedOppositeFill(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0"), time.Now())
	pos, err := l.ApplyFill("p", "X", SideSell, d("3"), d("90"), d("0"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.IsShort() {
		t.Fatalf("expected flip to short, got qty %s", pos.Qty)
	}
	if !pos.AbsQty().Equal(d("2")) {
		t.Fatalf("expected remainder qty 2, got %s", pos.Qty)
	}
	if !pos.RealizedPnL.Equal(d("-10")) {
		t.Fatalf("expected realized pnl -10 from closing the long, got %s", pos.RealizedPnL)
	}
}

func TestLedgerShortPositionPnLSign(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideSell, d("1"), d("100"), d("0"), time.Now())
	pos, err := l.ApplyFill("p", "X", SideBuy, d("1"), d("90"), d("0"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.RealizedPnL.Equal(d("10")) {
		t.Fatalf("expected realized pnl 10 from covering short at a profit, position: %+v", pos)
	}
}

func TestLedgerRejectsZeroQty(t *testing.T) {
	l, _ := NewPositionLedger("")
	if _, err := l.ApplyFill("p", "X", SideBuy, d("0"), d("100"), d("0"), time.Now()); err == nil {
		t.Fatal("expected error for zero qty fill")
	}
}

func TestLedgerFeeTracking(t *testing.T) {
	l, _ := NewPositionLedger("")
	pos, err := l.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0.5"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !pos.FeePaid.Equal(d("0.5")) {
		t.Fatalf("expected fee_paid 0.5, got %s", pos.FeePaid)
	}
}

func TestLedgerWatermarksClearOnFullClose(t *testing.T) {
	l, _ := NewPositionLedger("")
	l.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0"), time.Now())
	l.UpdateMark("p", "X", d("120"))
	pos, _ := l.Get("p", "X")
	if !pos.HighWater.Equal(d("120")) {
		t.Fatalf("expected high_water updated to 120, got %s", pos.HighWater)
	}
	l.ApplyFill("p", "X", SideSell, d("1"), d("125"), d("0"), time.Now())
	if l.HasPosition("p", "X") {
		t.Fatal("expected position closed")
	}
}

func TestLedgerPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ledger.json"

	l1, err := NewPositionLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l1.ApplyFill("p", "X", SideBuy, d("1"), d("100"), d("0"), time.Now()); err != nil {
		t.Fatal(err)
	}

	l2, err := NewPositionLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	pos, ok := l2.Get("p", "X")
	if !ok {
		t.Fatal("expected position to survive reload")
	}
	if !pos.Qty.Equal(d("1")) {
		t.Fatalf("expected qty 1 after reload, got %s", pos.Qty)
	}
}
