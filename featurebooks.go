// FILE: featurebooks.go
// Package main – Rolling feature books over streaming trade/orderbook/
// liquidation events (§4.1).
//
// The trade-pressure, trade-flow and liquidation books share one shape: an
// ordered slice of timestamped events that drops events older than the window
// on every add (measured from the added event's timestamp), and a
// snapshot(now_ms) that trims stale events again before reporting. Only the
// pressure book keeps running sums across add/evict; the flow and liquidation
// books re-sum the window at each snapshot. OrderbookDeltaBook keeps only the
// previous per-symbol notionals. Each book owns its own sync.RWMutex (writer =
// stream goroutine, reader = control loop), the same split the enrichment
// pack's FlowTracker uses for its mutex-guarded deque of fills; Snapshot takes
// the write lock because it evicts.
package main

import (
	"math"
	"sync"
)

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ---- TradePressureBook ----

type PressureSnapshot struct {
	Pressure      float64
	Notional      float64
	TradeCount    int
	LastUpdateMs  int64
	StalenessSec  float64
}

type pressureEvent struct {
	tsMs    int64
	notional float64
	isBuy   bool
}

// TradePressureBook tracks taker buy vs sell notional over a rolling window.
type TradePressureBook struct {
	mu        sync.RWMutex
	windowMs  int64
	events    []pressureEvent
	buyTotal  float64
	sellTotal float64
	lastTsMs  int64
}

// NewTradePressureBook creates a book with the given rolling window in seconds.
// windowSec <= 0 defaults to 15s (§4.1).
func NewTradePressureBook(windowSec int) *TradePressureBook {
	if windowSec <= 0 {
		windowSec = 15
	}
	return &TradePressureBook{windowMs: int64(windowSec) * 1000}
}

// AddTrade records one trade print and evicts events older than the window
// measured from its timestamp. Malformed events are discarded silently.
func (b *TradePressureBook) AddTrade(t Trade) {
	if t.Price <= 0 || t.Qty <= 0 || t.TsMs <= 0 {
		return
	}
	n := t.Notional()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, pressureEvent{tsMs: t.TsMs, notional: n, isBuy: t.IsBuy})
	if t.IsBuy {
		b.buyTotal += n
	} else {
		b.sellTotal += n
	}
	if t.TsMs > b.lastTsMs {
		b.lastTsMs = t.TsMs
	}
	b.evictLocked(t.TsMs)
}

// evictLocked drops events older than nowMs-windowMs. Caller holds the write lock.
func (b *TradePressureBook) evictLocked(nowMs int64) {
	cutoff := nowMs - b.windowMs
	i := 0
	for i < len(b.events) && b.events[i].tsMs < cutoff {
		if b.events[i].isBuy {
			b.buyTotal -= b.events[i].notional
		} else {
			b.sellTotal -= b.events[i].notional
		}
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
	if b.buyTotal < 0 {
		b.buyTotal = 0
	}
	if b.sellTotal < 0 {
		b.sellTotal = 0
	}
}

// Snapshot evicts stale events then returns the clamped pressure ratio.
func (b *TradePressureBook) Snapshot(nowMs int64) PressureSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(nowMs)

	total := b.buyTotal + b.sellTotal
	pressure := 0.0
	if total > 0 {
		pressure = clamp((b.buyTotal-b.sellTotal)/total, -1, 1)
	}
	staleness := 0.0
	if b.lastTsMs > 0 {
		staleness = float64(nowMs-b.lastTsMs) / 1000.0
	}
	return PressureSnapshot{
		Pressure:     pressure,
		Notional:     total,
		TradeCount:   len(b.events),
		LastUpdateMs: b.lastTsMs,
		StalenessSec: staleness,
	}
}

// ---- TradeFlowBook ----

const flowEMAAlpha = 0.08
const flowEMAEps = 1e-9

type FlowSnapshot struct {
	WindowSec        int
	TradeCount       int
	BuyNotional      float64
	SellNotional     float64
	TotalNotional    float64
	NotionalRate     float64
	NotionalAccel    float64
	RateEMA          float64
	AccelEMA         float64
	RateZ            float64
	AccelZ           float64
	LargeTradeCount  int
	LargeBuyNotional float64
	LargeSellNotional float64
	LargeTradeShare  float64
}

type flowTrade struct {
	tsMs     int64
	price    float64
	qty      float64
	isBuy    bool
	notional float64
}

// TradeFlowBook computes notional rate/acceleration with EMA-normalized
// z-scores, plus a bounded recent-trade tape independent of the window.
type TradeFlowBook struct {
	mu     sync.RWMutex
	windowMs int64
	events []flowTrade

	tapeCap int
	tape    []flowTrade // newest appended at the end

	largeMinNotional float64

	havePrev   bool
	prevTsMs   int64
	prevRate   float64

	rateEMA    float64
	rateDevEMA float64
	accelEMA   float64
	accelDevEMA float64
	haveEMA    bool
}

// NewTradeFlowBook creates a book with the given rolling window in seconds
// (defaults to 5s per §4.1), a recent-trade tape of tapeCap (defaults to 50),
// and the large-trade notional threshold.
func NewTradeFlowBook(windowSec, tapeCap int, largeMinNotional float64) *TradeFlowBook {
	if windowSec <= 0 {
		windowSec = 5
	}
	if tapeCap <= 0 {
		tapeCap = 50
	}
	return &TradeFlowBook{windowMs: int64(windowSec) * 1000, tapeCap: tapeCap, largeMinNotional: largeMinNotional}
}

// AddTrade records one trade print, updating both the windowed aggregate
// (evicting events older than the window measured from its timestamp) and
// the bounded recent-trade tape.
func (b *TradeFlowBook) AddTrade(t Trade) {
	if t.Price <= 0 || t.Qty <= 0 || t.TsMs <= 0 {
		return
	}
	ft := flowTrade{tsMs: t.TsMs, price: t.Price, qty: t.Qty, isBuy: t.IsBuy, notional: t.Notional()}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, ft)
	b.evictLocked(t.TsMs)

	b.tape = append(b.tape, ft)
	if len(b.tape) > b.tapeCap {
		b.tape = b.tape[len(b.tape)-b.tapeCap:]
	}
}

func (b *TradeFlowBook) evictLocked(nowMs int64) {
	cutoff := nowMs - b.windowMs
	i := 0
	for i < len(b.events) && b.events[i].tsMs < cutoff {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}

func ema(prev, value, alpha float64) float64 {
	return (1-alpha)*prev + alpha*value
}

// Snapshot evicts stale events, computes the windowed aggregate, and updates
// the EMA-based rate/accel z-scores.
func (b *TradeFlowBook) Snapshot(nowMs int64) FlowSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(nowMs)

	var buyN, sellN, largeBuyN, largeSellN float64
	var largeCount int
	for _, e := range b.events {
		if e.isBuy {
			buyN += e.notional
		} else {
			sellN += e.notional
		}
		if b.largeMinNotional > 0 && e.notional >= b.largeMinNotional {
			largeCount++
			if e.isBuy {
				largeBuyN += e.notional
			} else {
				largeSellN += e.notional
			}
		}
	}
	total := buyN + sellN
	windowSec := float64(b.windowMs) / 1000.0
	rate := 0.0
	if windowSec > 0 {
		rate = total / windowSec
	}

	accel := 0.0
	if b.havePrev {
		dt := float64(nowMs-b.prevTsMs) / 1000.0
		if dt > 0 {
			accel = (rate - b.prevRate) / dt
		}
	}

	if !b.haveEMA {
		b.rateEMA = rate
		b.accelEMA = accel
		b.rateDevEMA = 0
		b.accelDevEMA = 0
		b.haveEMA = true
	} else {
		b.rateDevEMA = ema(b.rateDevEMA, math.Abs(rate-b.rateEMA), flowEMAAlpha)
		b.rateEMA = ema(b.rateEMA, rate, flowEMAAlpha)
		b.accelDevEMA = ema(b.accelDevEMA, math.Abs(accel-b.accelEMA), flowEMAAlpha)
		b.accelEMA = ema(b.accelEMA, accel, flowEMAAlpha)
	}

	rateZ := (rate - b.rateEMA) / math.Max(b.rateDevEMA, flowEMAEps)
	accelZ := (accel - b.accelEMA) / math.Max(b.accelDevEMA, flowEMAEps)

	b.prevTsMs = nowMs
	b.prevRate = rate
	b.havePrev = true

	largeShare := 0.0
	if total > 0 {
		largeShare = (largeBuyN + largeSellN) / total
	}

	return FlowSnapshot{
		WindowSec:         int(windowSec),
		TradeCount:        len(b.events),
		BuyNotional:       buyN,
		SellNotional:      sellN,
		TotalNotional:     total,
		NotionalRate:      rate,
		NotionalAccel:     accel,
		RateEMA:           b.rateEMA,
		AccelEMA:          b.accelEMA,
		RateZ:             rateZ,
		AccelZ:            accelZ,
		LargeTradeCount:   largeCount,
		LargeBuyNotional:  largeBuyN,
		LargeSellNotional: largeSellN,
		LargeTradeShare:   largeShare,
	}
}

// RecentTrades returns up to limit trades newest-first, optionally bounded by
// maxAgeMs (0 = no age limit).
func (b *TradeFlowBook) RecentTrades(nowMs int64, limit int, maxAgeMs int64) []Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Trade, 0, limit)
	for i := len(b.tape) - 1; i >= 0; i-- {
		e := b.tape[i]
		if maxAgeMs > 0 && nowMs-e.tsMs > maxAgeMs {
			continue
		}
		out = append(out, Trade{TsMs: e.tsMs, Price: e.price, Qty: e.qty, IsBuy: e.isBuy})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ---- OrderbookDeltaBook ----

type DeltaSnapshot struct {
	BidNotional     float64
	AskNotional     float64
	ImbalanceNow    float64
	ImbalanceDelta  float64
	BidDelta        float64
	AskDelta        float64
}

type prevSide struct {
	bidNotional float64
	askNotional float64
	haveData    bool
}

// OrderbookDeltaBook tracks per-symbol top-N-level bid/ask notional and
// reports the delta in imbalance between successive updates.
type OrderbookDeltaBook struct {
	mu     sync.RWMutex
	levels int
	prev   map[string]prevSide
}

// NewOrderbookDeltaBook creates a book comparing the top `levels` price rungs
// (default 10 if levels <= 0).
func NewOrderbookDeltaBook(levels int) *OrderbookDeltaBook {
	if levels <= 0 {
		levels = 10
	}
	return &OrderbookDeltaBook{levels: levels, prev: make(map[string]prevSide)}
}

func sumLevels(levels []PriceLevel, n int) float64 {
	var sum float64
	for i := 0; i < len(levels) && i < n; i++ {
		sum += levels[i].Price * levels[i].Qty
	}
	return sum
}

// Update computes the bid/ask notional for ob and returns the delta versus
// the previous call for this symbol. The first call for a symbol returns all
// zero deltas (§8 invariant).
func (b *OrderbookDeltaBook) Update(symbol string, ob OrderbookSnapshot) DeltaSnapshot {
	bidN := sumLevels(ob.Bids, b.levels)
	askN := sumLevels(ob.Asks, b.levels)

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.prev[symbol]
	b.prev[symbol] = prevSide{bidNotional: bidN, askNotional: askN, haveData: true}

	imbNow := imbalance(bidN, askN)
	if !had || !prev.haveData {
		return DeltaSnapshot{BidNotional: bidN, AskNotional: askN, ImbalanceNow: imbNow}
	}

	imbPrev := imbalance(prev.bidNotional, prev.askNotional)
	return DeltaSnapshot{
		BidNotional:    bidN,
		AskNotional:    askN,
		ImbalanceNow:   imbNow,
		ImbalanceDelta: imbNow - imbPrev,
		BidDelta:       bidN - prev.bidNotional,
		AskDelta:       askN - prev.askNotional,
	}
}

func imbalance(bidN, askN float64) float64 {
	total := bidN + askN
	if total <= 0 {
		return 0
	}
	return clamp((bidN-askN)/total, -1, 1)
}

// DepthNotional sums (bid+ask) notional over the top `levels` price rungs,
// without mutating book state. Feeds entry filter #2 (§4.9).
func DepthNotional(ob OrderbookSnapshot, levels int) float64 {
	return sumLevels(ob.Bids, levels) + sumLevels(ob.Asks, levels)
}

// ---- LiquidationClusterBook ----

type LiqBucket struct {
	Price    float64
	Notional float64
}

type LiquidationSnapshot struct {
	BuyTotal     float64
	SellTotal    float64
	TopBuyBucket LiqBucket
	TopSellBucket LiqBucket
}

// Bias returns the (buy-sell)/(buy+sell) imbalance used by the composite
// score's liq component (§4.9), 0 when both totals are 0. The sign is not
// aligned to trade direction here; compositeScore flips it for SELL.
func (s LiquidationSnapshot) Bias() float64 {
	total := s.BuyTotal + s.SellTotal
	if total <= 0 {
		return 0
	}
	return (s.BuyTotal - s.SellTotal) / total
}

type liqEvent struct {
	tsMs  int64
	side  LiquidationSide
	price float64
	qty   float64
}

// LiquidationClusterBook buckets forced-order notional by price, separately
// per side, inside a rolling window.
type LiquidationClusterBook struct {
	mu        sync.RWMutex
	windowMs  int64
	bucketBps float64
	events    []liqEvent
}

// NewLiquidationClusterBook creates a book with the given window (default 30s)
// and bucket size in bps of price (default 10bps).
func NewLiquidationClusterBook(windowSec int, bucketBps float64) *LiquidationClusterBook {
	if windowSec <= 0 {
		windowSec = 30
	}
	if bucketBps <= 0 {
		bucketBps = 10
	}
	return &LiquidationClusterBook{windowMs: int64(windowSec) * 1000, bucketBps: bucketBps}
}

// AddEvent records a liquidation print and drops events older than the
// window measured from its timestamp. Malformed events are discarded.
func (b *LiquidationClusterBook) AddEvent(ev Liquidation) {
	if ev.Price <= 0 || ev.Qty <= 0 || ev.TsMs <= 0 {
		return
	}
	if ev.Side != LiqBuy && ev.Side != LiqSell {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, liqEvent{tsMs: ev.TsMs, side: ev.Side, price: ev.Price, qty: ev.Qty})
	cutoff := ev.TsMs - b.windowMs
	i := 0
	for i < len(b.events) && b.events[i].tsMs < cutoff {
		i++
	}
	b.events = b.events[i:]
}

func (b *LiquidationClusterBook) bucketOf(price float64) float64 {
	step := price * b.bucketBps / 10000.0
	if step <= 0 {
		return price
	}
	return math.Round(price/step) * step
}

// Snapshot trims stale events then buckets remaining notional per side,
// returning each side's top bucket.
func (b *LiquidationClusterBook) Snapshot(nowMs int64) LiquidationSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := nowMs - b.windowMs
	i := 0
	for i < len(b.events) && b.events[i].tsMs < cutoff {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}

	buyBuckets := make(map[float64]float64)
	sellBuckets := make(map[float64]float64)
	var buyTotal, sellTotal float64

	for _, e := range b.events {
		bucket := b.bucketOf(e.price)
		notional := e.price * e.qty
		if e.side == LiqBuy {
			buyBuckets[bucket] += notional
			buyTotal += notional
		} else {
			sellBuckets[bucket] += notional
			sellTotal += notional
		}
	}

	return LiquidationSnapshot{
		BuyTotal:      buyTotal,
		SellTotal:     sellTotal,
		TopBuyBucket:  argmaxBucket(buyBuckets),
		TopSellBucket: argmaxBucket(sellBuckets),
	}
}

func argmaxBucket(buckets map[float64]float64) LiqBucket {
	var best LiqBucket
	for price, notional := range buckets {
		if notional > best.Notional {
			best = LiqBucket{Price: price, Notional: notional}
		}
	}
	return best
}

// HintPriceForSide returns the top bucket price for the forced-order side
// (used as a limit-price hint for the IOC ladder, §4.9), or 0 if none.
func (s LiquidationSnapshot) HintPriceForSide(side LiquidationSide) float64 {
	if side == LiqBuy {
		return s.TopBuyBucket.Price
	}
	return s.TopSellBucket.Price
}
