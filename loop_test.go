package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fakeMarketData supplies fixed candles/orderbook/last-price fixtures,
// decoupled from the PaperBroker used for order execution in these tests.
type fakeMarketData struct {
	candles []Candle
	ob      OrderbookSnapshot
}

func (f *fakeMarketData) GetRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	return f.candles, nil
}
func (f *fakeMarketData) GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error) {
	return f.ob, nil
}
func (f *fakeMarketData) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if len(f.candles) == 0 {
		return 0, nil
	}
	return f.candles[len(f.candles)-1].Close, nil
}

func flatFilters() ScalpFilterConfig {
	// Every gating threshold at zero so every veto filter passes; RSI bounds
	// widened to [0,100] so the threshold-only regime check never vetoes.
	return ScalpFilterConfig{RSILongTrigger: 100, RSIShortMin: 0, RSIShortMax: 100}
}

func testConfig(symbol string) *Config {
	return &Config{
		Mode: ModePaper, Venue: "paper", Strategy: StrategyScalp, Symbols: []string{symbol},
		PollSec: 1, StateDir: "state",
		Sizing: SizingConfig{OrderSizingMode: SizingEquityPct, TradeEquityFrac: 0.1, Leverage: 1, MinNotionalPolicy: PolicyBump, MinNotionalBuffer: 1.0},
		Exits:  ExitConfig{StopLossPct: 0.01, TrailingStopPct: 0, TakeProfitNetPct: 0.02, FeeRate: 0.0004, SlippageRate: 0.0002},
		Filters: flatFilters(),
		Execution: ExecutionConfig{ConfirmMaxAttempts: 1, ConfirmBaseSleepSec: 0.01},
		Risk:    RiskConfig{MaxDailyLoss: 0.5, MaxPositionPerSymbol: 1.0, AccountTag: "acct1"},
		Cooldown: CooldownConfig{BackoffMult: 2, MaxSec: 60, FailWindowSec: 300, AfterEntryFillSec: 0, AfterExitFillSec: 0},
		Streams: StreamConfig{PressureWindowSec: 15, FlowWindowSec: 5, LiquidationWindowSec: 30, LiquidationBucketBps: 10},
	}
}

func risingCandles(n int, start, step float64) []Candle {
	out := make([]Candle, n)
	t := time.Now().Add(-time.Duration(n) * time.Minute)
	px := start
	for i := 0; i < n; i++ {
		out[i] = Candle{Time: t, Open: px, High: px + 1, Low: px - 1, Close: px + step, Volume: 1000}
		px += step
		t = t.Add(time.Minute)
	}
	return out
}

func newTestEngine(t *testing.T, symbol string, candles []Candle) (*Engine, *PaperBroker) {
	t.Helper()
	broker := NewPaperBroker(10000)
	broker.SetPrice(symbol, candles[len(candles)-1].Close)
	data := &fakeMarketData{
		candles: candles,
		ob: OrderbookSnapshot{
			Symbol: symbol,
			Bids:   []PriceLevel{{Price: candles[len(candles)-1].Close - 0.5, Qty: 500}},
			Asks:   []PriceLevel{{Price: candles[len(candles)-1].Close + 0.5, Qty: 100}},
		},
	}
	ledger, err := NewPositionLedger("")
	if err != nil {
		t.Fatal(err)
	}
	exposure := NewSharedExposureStore("", 30)
	journal, err := NewJournal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(symbol)
	eng := NewEngine(cfg, broker, data, ledger, exposure, journal, zerolog.Nop())
	return eng, broker
}

func TestEngineEntersOnStrongPressureAndImbalance(t *testing.T) {
	symbol := "X"
	candles := risingCandles(300, 100, 0.01)
	eng, broker := newTestEngine(t, symbol, candles)

	// Force a directional signal: strong buy pressure + bid-heavy book.
	books := eng.booksFor(symbol)
	nowMs := time.Now().UnixMilli()
	for i := 0; i < 20; i++ {
		books.pressure.AddTrade(Trade{TsMs: nowMs, Price: 103, Qty: 10, IsBuy: true})
	}
	eng.cfg.Filters = ScalpFilterConfig{
		TradePressureThreshold: 0.1, ObImbalanceThreshold: 0,
		RSILongTrigger: 100, RSIShortMin: 0, RSIShortMax: 100,
	}

	eng.tick(context.Background())

	pos, ok := eng.ledger.Get("paper", symbol)
	if !ok || pos.IsFlat() {
		t.Fatalf("expected an open position after entry tick, got %+v ok=%v", pos, ok)
	}
	if !pos.IsLong() {
		t.Fatalf("expected a long position, got qty=%s", pos.Qty)
	}
	_ = broker
}

func TestEngineHoldsWhenNoDirection(t *testing.T) {
	symbol := "X"
	candles := risingCandles(300, 100, 0)
	eng, _ := newTestEngine(t, symbol, candles)
	eng.cfg.Filters = ScalpFilterConfig{TradePressureThreshold: 0.5, ObImbalanceThreshold: 0.5}

	eng.tick(context.Background())

	if _, ok := eng.ledger.Get("paper", symbol); ok {
		t.Fatal("expected no position to open when no direction signal fires")
	}
}

func TestEngineExitsOnStopLoss(t *testing.T) {
	symbol := "X"
	candles := risingCandles(300, 100, 0.01)
	eng, broker := newTestEngine(t, symbol, candles)

	// Seed an existing long position well above the current (lower) price.
	if _, err := eng.ledger.ApplyFill("paper", symbol, SideBuy, decimal.NewFromFloat(1), decimal.NewFromFloat(200), decimal.NewFromFloat(0), time.Now()); err != nil {
		t.Fatal(err)
	}
	broker.SetPrice(symbol, 150) // > 1% below avg cost of 200 => stop triggers

	// tickSymbol recomputes lastPrice from the orderbook mid, so align it too.
	data := eng.data.(*fakeMarketData)
	data.candles = risingCandles(300, 150, 0)
	data.ob = OrderbookSnapshot{
		Symbol: symbol,
		Bids:   []PriceLevel{{Price: 149.5, Qty: 100}},
		Asks:   []PriceLevel{{Price: 150.5, Qty: 100}},
	}

	eng.tick(context.Background())

	pos, ok := eng.ledger.Get("paper", symbol)
	if ok && !pos.IsFlat() {
		t.Fatalf("expected stop-loss to close the position, still open: %+v", pos)
	}
}

func TestEngineCooldownBlocksEntryAfterFailure(t *testing.T) {
	symbol := "X"
	candles := risingCandles(300, 100, 0.01)
	eng, _ := newTestEngine(t, symbol, candles)

	nowMs := time.Now().UnixMilli()
	eng.cooldown.OnEntryFailed(symbol, FailurePayload{HTTPStatus: 429}, nowMs)

	eng.cfg.Filters = ScalpFilterConfig{
		TradePressureThreshold: 0.1,
		RSILongTrigger: 100, RSIShortMin: 0, RSIShortMax: 100,
	}
	books := eng.booksFor(symbol)
	for i := 0; i < 20; i++ {
		books.pressure.AddTrade(Trade{TsMs: nowMs, Price: 103, Qty: 10, IsBuy: true})
	}

	eng.tick(context.Background())

	if _, ok := eng.ledger.Get("paper", symbol); ok {
		t.Fatal("expected cooldown to block entry even with a qualifying signal")
	}
}
