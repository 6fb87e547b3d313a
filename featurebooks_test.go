package main

import "testing"

func TestTradePressureBookClamped(t *testing.T) {
	b := NewTradePressureBook(10)
	b.AddTrade(Trade{TsMs: 1000, Price: 100, Qty: 10, IsBuy: true})
	b.AddTrade(Trade{TsMs: 1001, Price: 100, Qty: 1, IsBuy: false})

	snap := b.Snapshot(1002)
	if snap.Pressure <= 0 || snap.Pressure > 1 {
		t.Fatalf("expected pressure in (0,1], got %f", snap.Pressure)
	}
	if snap.TradeCount != 2 {
		t.Fatalf("expected 2 trades, got %d", snap.TradeCount)
	}
}

func TestTradePressureBookEvictsStale(t *testing.T) {
	b := NewTradePressureBook(1)
	b.AddTrade(Trade{TsMs: 0, Price: 100, Qty: 5, IsBuy: true})

	snap := b.Snapshot(5000)
	if snap.TradeCount != 0 {
		t.Fatalf("expected stale trade evicted, got count %d", snap.TradeCount)
	}
	if snap.Pressure != 0 {
		t.Fatalf("expected zero pressure after eviction, got %f", snap.Pressure)
	}
}

func TestTradeFlowBookFirstSnapshotNoAccel(t *testing.T) {
	b := NewTradeFlowBook(5, 10, 0)
	b.AddTrade(Trade{TsMs: 1000, Price: 10, Qty: 1, IsBuy: true})
	snap := b.Snapshot(1000)
	if snap.NotionalAccel != 0 {
		t.Fatalf("expected zero accel on first snapshot, got %f", snap.NotionalAccel)
	}
}

func TestTradeFlowBookLargeTradeAggregation(t *testing.T) {
	b := NewTradeFlowBook(60, 10, 500)
	b.AddTrade(Trade{TsMs: 1000, Price: 100, Qty: 10, IsBuy: true}) // notional 1000 >= 500
	b.AddTrade(Trade{TsMs: 1001, Price: 100, Qty: 1, IsBuy: false}) // notional 100 < 500

	snap := b.Snapshot(1002)
	if snap.LargeTradeCount != 1 {
		t.Fatalf("expected 1 large trade, got %d", snap.LargeTradeCount)
	}
	if snap.LargeBuyNotional != 1000 {
		t.Fatalf("expected large buy notional 1000, got %f", snap.LargeBuyNotional)
	}
}

func TestTradeFlowBookRecentTradesNewestFirst(t *testing.T) {
	b := NewTradeFlowBook(60, 2, 0)
	b.AddTrade(Trade{TsMs: 1000, Price: 1, Qty: 1, IsBuy: true})
	b.AddTrade(Trade{TsMs: 1001, Price: 2, Qty: 1, IsBuy: true})
	b.AddTrade(Trade{TsMs: 1002, Price: 3, Qty: 1, IsBuy: true})

	recent := b.RecentTrades(1003, 10, 0)
	if len(recent) != 2 {
		t.Fatalf("expected tape capped at 2, got %d", len(recent))
	}
	if recent[0].Price != 3 || recent[1].Price != 2 {
		t.Fatalf("expected newest-first order, got %+v", recent)
	}
}

func TestOrderbookDeltaBookFirstCallZeroDelta(t *testing.T) {
	b := NewOrderbookDeltaBook(5)
	ob := OrderbookSnapshot{
		Symbol: "BTC-USD",
		Bids:   []PriceLevel{{Price: 100, Qty: 1}},
		Asks:   []PriceLevel{{Price: 101, Qty: 1}},
	}
	snap := b.Update("BTC-USD", ob)
	if snap.ImbalanceDelta != 0 || snap.BidDelta != 0 || snap.AskDelta != 0 {
		t.Fatalf("expected zero deltas on first call, got %+v", snap)
	}
}

func TestOrderbookDeltaBookSecondCallDelta(t *testing.T) {
	b := NewOrderbookDeltaBook(5)
	ob1 := OrderbookSnapshot{Symbol: "X", Bids: []PriceLevel{{Price: 100, Qty: 1}}, Asks: []PriceLevel{{Price: 101, Qty: 1}}}
	b.Update("X", ob1)

	ob2 := OrderbookSnapshot{Symbol: "X", Bids: []PriceLevel{{Price: 100, Qty: 2}}, Asks: []PriceLevel{{Price: 101, Qty: 1}}}
	snap := b.Update("X", ob2)
	if snap.BidDelta != 100 {
		t.Fatalf("expected bid delta 100, got %f", snap.BidDelta)
	}
}

func TestDepthNotional(t *testing.T) {
	ob := OrderbookSnapshot{
		Bids: []PriceLevel{{Price: 100, Qty: 2}, {Price: 99, Qty: 1}},
		Asks: []PriceLevel{{Price: 101, Qty: 1}},
	}
	got := DepthNotional(ob, 1)
	want := 100.0*2 + 101.0*1
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestLiquidationClusterBookBucketingAndBias(t *testing.T) {
	b := NewLiquidationClusterBook(30, 10)
	b.AddEvent(Liquidation{TsMs: 1000, Side: LiqBuy, Price: 100, Qty: 5})
	b.AddEvent(Liquidation{TsMs: 1001, Side: LiqSell, Price: 90, Qty: 1})

	snap := b.Snapshot(1002)
	if snap.BuyTotal != 500 {
		t.Fatalf("expected buy total 500, got %f", snap.BuyTotal)
	}
	if snap.Bias() <= 0 {
		t.Fatalf("expected positive bias toward buy liquidations, got %f", snap.Bias())
	}
}

func TestLiquidationClusterBookEvictsStale(t *testing.T) {
	b := NewLiquidationClusterBook(1, 10)
	b.AddEvent(Liquidation{TsMs: 0, Side: LiqBuy, Price: 100, Qty: 1})
	snap := b.Snapshot(5000)
	if snap.BuyTotal != 0 {
		t.Fatalf("expected stale liquidation evicted, got buy total %f", snap.BuyTotal)
	}
}
