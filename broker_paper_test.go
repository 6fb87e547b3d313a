package main

import (
	"context"
	"testing"
)

func TestPaperBrokerPlaceOrderUpdatesPosition(t *testing.T) {
	b := NewPaperBroker(10000)
	b.SetPrice("BTC-USD", 50000)
	ctx := context.Background()

	upd, err := b.PlaceOrder(ctx, OrderRequest{Symbol: "BTC-USD", Side: SideBuy, OrderType: OrderTypeMarket, Qty: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Status != StatusFilled || upd.FilledQty != 0.1 {
		t.Fatalf("expected filled 0.1, got %+v", upd)
	}

	positions, _ := b.GetPositions(ctx)
	if positions["BTC-USD"] != 0.1 {
		t.Fatalf("expected position 0.1, got %f", positions["BTC-USD"])
	}
}

func TestPaperBrokerLimitFillsAtGivenPrice(t *testing.T) {
	b := NewPaperBroker(10000)
	b.SetPrice("X", 100)
	ctx := context.Background()

	upd, err := b.PlaceOrder(ctx, OrderRequest{Symbol: "X", Side: SideBuy, OrderType: OrderTypeLimit, Qty: 1, Price: 99})
	if err != nil {
		t.Fatal(err)
	}
	if upd.AvgFillPrice != 99 {
		t.Fatalf("expected fill at limit price 99, got %f", upd.AvgFillPrice)
	}
}

func TestPaperBrokerRejectsWithNoPrice(t *testing.T) {
	b := NewPaperBroker(10000)
	ctx := context.Background()
	_, err := b.PlaceOrder(ctx, OrderRequest{Symbol: "UNSEEDED", Side: SideBuy, OrderType: OrderTypeMarket, Qty: 1})
	if err == nil {
		t.Fatal("expected error with no seeded price")
	}
}

func TestPaperBrokerGetSymbolRulesDefaultsThenOverride(t *testing.T) {
	b := NewPaperBroker(10000)
	ctx := context.Background()

	r, err := b.GetSymbolRules(ctx, "X")
	if err != nil || r.QtyStep <= 0 {
		t.Fatalf("expected default rules, got %+v err=%v", r, err)
	}

	b.SetSymbolRules("X", SymbolRules{Symbol: "X", QtyStep: 1, MinQty: 1, MaxQty: 100, MinNotional: 50})
	r2, _ := b.GetSymbolRules(ctx, "X")
	if r2.MinNotional != 50 {
		t.Fatalf("expected overridden min notional 50, got %f", r2.MinNotional)
	}
}

func TestPaperBrokerUnsupportedFeaturesReturnErrUnsupported(t *testing.T) {
	b := NewPaperBroker(10000)
	ctx := context.Background()
	if _, err := b.GetOrderUpdate(ctx, "X", "1"); err == nil {
		t.Fatal("expected ErrUnsupported")
	}
	if b.Supports(FeatureCancelOrder) {
		t.Fatal("expected CancelOrder unsupported on paper")
	}
	if !b.Supports(FeatureIOCLimit) {
		t.Fatal("expected IOC limit supported on paper")
	}
}
