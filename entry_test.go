package main

import "testing"

func baseFilters() ScalpFilterConfig {
	return ScalpFilterConfig{
		TradePressureThreshold: 0.2,
		ObImbalanceThreshold:   0.2,
		RSILongTrigger:         70,
		RSIShortMin:            20,
		RSIShortMax:            30,
	}
}

func TestEvaluateHoldsWhenInPosition(t *testing.T) {
	sig := Evaluate(EntryInputs{InPosition: true})
	if sig.Decision != DecisionHold || sig.HoldReason != "IN_POSITION" {
		t.Fatalf("expected IN_POSITION hold, got %+v", sig)
	}
}

func TestEvaluateHoldsBelowMinTradeValue(t *testing.T) {
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100}),
		Filters: ScalpFilterConfig{Min1mTradeValue: 1_000_000},
	}
	sig := Evaluate(in)
	if sig.HoldReason != "MIN_TRADE_VALUE" {
		t.Fatalf("expected MIN_TRADE_VALUE hold, got %+v", sig)
	}
}

func TestEvaluateBuyOnStrongLongPressure(t *testing.T) {
	filters := baseFilters()
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100, 101}),
		Ind:     IndicatorSet{RSI14: 50},
		Orderbook: OrderbookSnapshot{
			Bids: []PriceLevel{{Price: 99, Qty: 10}},
			Asks: []PriceLevel{{Price: 101, Qty: 10}},
		},
		OBDelta:  DeltaSnapshot{ImbalanceNow: 0.5},
		Pressure: PressureSnapshot{Pressure: 0.5},
		Filters:  filters,
	}
	sig := Evaluate(in)
	if sig.Decision != DecisionBuy {
		t.Fatalf("expected BUY, got %+v", sig)
	}
	if sig.Score <= 0 {
		t.Fatalf("expected positive composite score, got %f", sig.Score)
	}
}

func TestEvaluateSellOnStrongShortPressure(t *testing.T) {
	filters := baseFilters()
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100, 99}),
		Ind:     IndicatorSet{RSI14: 25},
		Orderbook: OrderbookSnapshot{
			Bids: []PriceLevel{{Price: 99, Qty: 10}},
			Asks: []PriceLevel{{Price: 101, Qty: 10}},
		},
		OBDelta:  DeltaSnapshot{ImbalanceNow: -0.5},
		Pressure: PressureSnapshot{Pressure: -0.5},
		Filters:  filters,
	}
	sig := Evaluate(in)
	if sig.Decision != DecisionSell {
		t.Fatalf("expected SELL, got %+v", sig)
	}
}

func TestEvaluateHoldsOnWeakTradePressure(t *testing.T) {
	filters := baseFilters()
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100, 100}),
		Ind:     IndicatorSet{RSI14: 50},
		Orderbook: OrderbookSnapshot{
			Bids: []PriceLevel{{Price: 99, Qty: 10}},
			Asks: []PriceLevel{{Price: 101, Qty: 10}},
		},
		OBDelta:  DeltaSnapshot{ImbalanceNow: 0.05},
		Pressure: PressureSnapshot{Pressure: 0.05},
		Filters:  filters,
	}
	sig := Evaluate(in)
	if sig.Decision != DecisionHold || sig.HoldReason != "TRADE_PRESSURE_THRESHOLD" {
		t.Fatalf("expected holding on weak pressure, got %+v", sig)
	}
}

func TestEvaluateRSICrossRequiresCrossing(t *testing.T) {
	filters := baseFilters()
	filters.UseRSICross = true
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100, 101}),
		Ind:     IndicatorSet{RSI14Prev: 75, RSI14: 80}, // already above trigger, no cross
		Orderbook: OrderbookSnapshot{
			Bids: []PriceLevel{{Price: 99, Qty: 10}},
			Asks: []PriceLevel{{Price: 101, Qty: 10}},
		},
		OBDelta:  DeltaSnapshot{ImbalanceNow: 0.5},
		Pressure: PressureSnapshot{Pressure: 0.5},
		Filters:  filters,
	}
	sig := Evaluate(in)
	if sig.Decision != DecisionHold {
		t.Fatalf("expected hold without an RSI cross, got %+v", sig)
	}
}

func TestEvaluateAttachesLiqHintPriceOnBuy(t *testing.T) {
	filters := baseFilters()
	in := EntryInputs{
		Candles: candlesFromCloses([]float64{100, 101}),
		Ind:     IndicatorSet{RSI14: 50},
		Orderbook: OrderbookSnapshot{
			Bids: []PriceLevel{{Price: 99, Qty: 10}},
			Asks: []PriceLevel{{Price: 101, Qty: 10}},
		},
		OBDelta:  DeltaSnapshot{ImbalanceNow: 0.5},
		Pressure: PressureSnapshot{Pressure: 0.5},
		Liq: LiquidationSnapshot{
			TopBuyBucket: LiqBucket{Price: 98.5, Notional: 1000},
		},
		Filters: filters,
	}
	sig := Evaluate(in)
	if sig.Decision != DecisionBuy {
		t.Fatalf("expected BUY, got %+v", sig)
	}
	if sig.LiqHintPrice != 98.5 {
		t.Fatalf("expected liq hint price 98.5, got %f", sig.LiqHintPrice)
	}
}
