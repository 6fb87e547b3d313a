// FILE: loop.go
// Package main – Per-venue control loop (§4.10).
//
// Generalizes a single ticker-driven loop (one goroutine ticking a single
// symbol) to a flat slice of tracked symbols ticked in sequence within one
// venue process, per §5's one-process-per-venue/account concurrency model.
// The seven-step sequence per tick mirrors the original fetch-equity /
// fetch-candles / evaluate-exit-then-entry / report-exposure / sleep shape.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MarketData is the read-only market surface the control loop consumes.
// Any Broker satisfies it structurally; callers may point it at a different
// adapter than the one used for execution (e.g. a bridge broker supplying
// candles/orderbook while a paper broker fills orders in backtest/demo mode).
type MarketData interface {
	GetRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error)
	GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// symbolBooks bundles the per-symbol feature books a stream goroutine writes
// into and the control loop reads snapshots from (§5).
type symbolBooks struct {
	pressure *TradePressureBook
	flow     *TradeFlowBook
	liq      *LiquidationClusterBook
}

// Engine runs the control loop for every symbol configured on one venue.
type Engine struct {
	cfg      *Config
	broker   Broker
	data     MarketData
	exec     *ExecutionEngine
	ledger   *PositionLedger
	risk     *RiskGate
	cooldown *CooldownManager
	exits    *ExitManager
	exposure *SharedExposureStore
	journal  *Journal
	obDelta  *OrderbookDeltaBook
	books    map[string]*symbolBooks
	log      zerolog.Logger

	dayStartEquity float64
	dayStartDate   string
}

// NewEngine wires the full dependency graph for one venue process.
func NewEngine(cfg *Config, broker Broker, data MarketData, ledger *PositionLedger, exposure *SharedExposureStore, journal *Journal, log zerolog.Logger) *Engine {
	if data == nil {
		data = broker
	}
	e := &Engine{
		cfg:      cfg,
		broker:   broker,
		data:     data,
		exec:     NewExecutionEngine(broker, cfg.Execution, log),
		ledger:   ledger,
		risk:     NewRiskGate(exposure, log),
		cooldown: NewCooldownManager(cfg.Cooldown),
		exits:    NewExitManager(),
		exposure: exposure,
		journal:  journal,
		obDelta:  NewOrderbookDeltaBook(10),
		books:    make(map[string]*symbolBooks),
		log:      Component(log, "engine"),
	}
	e.cooldown.OnTransition(func(symbol string, st CooldownState, category FailureCategory) {
		observeCooldown(symbol, st)
		if err := e.journal.AppendCooldownEvent(symbol, st, category, time.Now().UTC()); err != nil {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("append cooldown event failed")
		}
	})
	for _, symbol := range cfg.Symbols {
		e.booksFor(symbol)
	}
	return e
}

func (e *Engine) booksFor(symbol string) *symbolBooks {
	if b, ok := e.books[symbol]; ok {
		return b
	}
	b := &symbolBooks{
		pressure: NewTradePressureBook(e.cfg.Streams.PressureWindowSec),
		flow:     NewTradeFlowBook(e.cfg.Streams.FlowWindowSec, 200, 0),
		liq:      NewLiquidationClusterBook(e.cfg.Streams.LiquidationWindowSec, float64(e.cfg.Streams.LiquidationBucketBps)),
	}
	e.books[symbol] = b
	return b
}

// PressureBook, FlowBook, and LiquidationBook expose the per-symbol feature
// books so a stream goroutine can be wired to feed them directly.
func (e *Engine) PressureBook(symbol string) *TradePressureBook    { return e.booksFor(symbol).pressure }
func (e *Engine) FlowBook(symbol string) *TradeFlowBook            { return e.booksFor(symbol).flow }
func (e *Engine) LiquidationBook(symbol string) *LiquidationClusterBook { return e.booksFor(symbol).liq }

// Run ticks every symbol once per PollInterval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.PollInterval()
	for {
		start := time.Now()
		e.tick(ctx)
		elapsed := time.Since(start)
		sleepFor := interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

// tick implements step 1 (equity/day-start) and step 6 (throttled equity +
// positions snapshot) of §4.10, ticking every symbol in between.
func (e *Engine) tick(ctx context.Context) {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	equity, err := e.broker.GetEquity(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("get equity failed, skipping tick")
		return
	}
	e.rebaseDayStart(now, equity)
	observeEquity(e.cfg.Venue, e.cfg.Risk.AccountTag, equity)

	for _, symbol := range e.cfg.Symbols {
		e.tickSymbol(ctx, symbol, now, nowMs, equity)
	}

	snap := EquitySnapshot{
		Ts: now, TsMs: nowMs, Venue: e.cfg.Venue, AccountTag: e.cfg.Risk.AccountTag,
		Mode: e.cfg.Mode, Strategy: e.cfg.Strategy, Simulated: e.cfg.Mode != ModeLive, Equity: equity,
	}
	if _, err := e.journal.AppendEquityThrottled(snap); err != nil {
		e.log.Warn().Err(err).Msg("append equity snapshot failed")
	}
	if err := e.journal.WritePositions(e.cfg.Venue, e.ledger.All()); err != nil {
		e.log.Warn().Err(err).Msg("write positions snapshot failed")
	}
}

func (e *Engine) rebaseDayStart(now time.Time, equity float64) {
	today := now.Format("2006-01-02")
	if e.dayStartDate != today {
		e.dayStartDate = today
		e.dayStartEquity = equity
	}
}

// tickSymbol implements steps 2-5 of §4.10 for one symbol (Run does the
// step-7 sleep): gather
// market state and feature snapshots, evaluate the exit rule if a position
// is open, otherwise the entry pipeline, execute any resulting order, and
// report the updated exposure.
func (e *Engine) tickSymbol(ctx context.Context, symbol string, now time.Time, nowMs int64, equity float64) {
	log := e.log.With().Str("symbol", symbol).Logger()

	candles, err := e.data.GetRecentCandles(ctx, symbol, 900)
	if err != nil || len(candles) == 0 {
		log.Warn().Err(err).Msg("no candles available, skipping symbol this tick")
		return
	}
	ind := ComputeIndicators(candles)
	last := candles[len(candles)-1]
	lastPrice := last.Close

	ob, err := e.data.GetOrderbook(ctx, symbol, 10)
	if err != nil {
		log.Debug().Err(err).Msg("orderbook unavailable, using empty book")
	}
	if bid, ask := ob.BestBidAsk(); bid > 0 && ask > 0 {
		lastPrice = (bid + ask) / 2
	}

	delta := e.obDelta.Update(symbol, ob)
	books := e.booksFor(symbol)
	pressure := books.pressure.Snapshot(nowMs)
	flow := books.flow.Snapshot(nowMs)
	liq := books.liq.Snapshot(nowMs)
	observeFeatureBookStaleness(symbol, "pressure", pressure.StalenessSec)

	markDec := decimal.NewFromFloat(lastPrice)
	if err := e.ledger.UpdateMark(e.cfg.Venue, symbol, markDec); err != nil {
		log.Warn().Err(err).Msg("update mark failed")
	}
	pos, hasPos := e.ledger.Get(e.cfg.Venue, symbol)

	snap := BotSnapshot{
		Venue: e.cfg.Venue, Symbol: symbol, Mode: e.cfg.Mode, UpdatedAt: now,
		Position: pos, LastPrice: lastPrice, Cooldown: e.cooldown.Get(symbol), Equity: equity,
	}

	if hasPos && !pos.IsFlat() {
		e.evaluateExit(ctx, symbol, pos, lastPrice, ob, nowMs, &snap)
	} else {
		e.evaluateEntry(ctx, symbol, candles, ind, ob, delta, pressure, flow, liq, lastPrice, equity, nowMs, &snap)
	}

	if err := e.journal.WriteBotSnapshot(snap); err != nil {
		log.Warn().Err(err).Msg("write bot snapshot failed")
	}

	pos, _ = e.ledger.Get(e.cfg.Venue, symbol)
	absNotional := pos.AbsQty().InexactFloat64() * lastPrice
	if err := e.exposure.Report(SharedExposureEntry{
		AccountTag: e.cfg.Risk.AccountTag, Venue: e.cfg.Venue, Symbol: symbol,
		Equity: equity, AbsNotional: absNotional, TsMs: nowMs,
	}); err != nil {
		log.Warn().Err(err).Msg("report shared exposure failed")
	}
}

func (e *Engine) evaluateExit(ctx context.Context, symbol string, pos Position, lastPrice float64, ob OrderbookSnapshot, nowMs int64, snap *BotSnapshot) {
	log := e.log.With().Str("symbol", symbol).Logger()

	decision := e.exits.Evaluate(pos, lastPrice, pos.HighWater.InexactFloat64(), pos.LowWater.InexactFloat64(), ExitConfigParams{
		StopLossPct: e.cfg.Exits.StopLossPct, TrailingStopPct: e.cfg.Exits.TrailingStopPct,
		TakeProfitNetPct: e.cfg.Exits.TakeProfitNetPct, FeeRate: e.cfg.Exits.FeeRate, SlippageRate: e.cfg.Exits.SlippageRate,
	})
	if decision.Reason == ExitNone {
		return
	}

	req := OrderRequest{
		Venue: e.cfg.Venue, Symbol: symbol, Side: decision.Side, OrderType: OrderTypeMarket,
		Qty: pos.AbsQty().InexactFloat64(), ClientOrderID: uuid.New().String(),
		Meta: OrderMeta{ExitReason: string(decision.Reason)},
	}

	approved, reason := e.risk.Approve(PortfolioState{Equity: snap.Equity, AccountTag: e.cfg.Risk.AccountTag},
		RiskSignal{Side: decision.Side, ExitReason: string(decision.Reason)}, 0, e.riskCaps(), nowMs)
	if !approved {
		observeRiskRejection(symbol, reason)
		log.Warn().Str("reason", reason).Msg("exit unexpectedly rejected by risk gate")
		return
	}

	upd := e.executeOrder(ctx, req, ob)
	observeOrder(e.cfg.Venue, symbol, decision.Side, upd.Status)

	if !upd.Successful() {
		log.Warn().Str("status", string(upd.Status)).Msg("exit order did not fill")
		return
	}

	prevRealizedNet := pos.RealizedPnLNet
	newPos, err := e.ledger.ApplyFill(e.cfg.Venue, symbol, decision.Side, decimal.NewFromFloat(upd.FilledQty),
		decimal.NewFromFloat(upd.AvgFillPrice), decimal.NewFromFloat(upd.Fee), time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("apply exit fill failed")
		return
	}
	grossDelta := newPos.RealizedPnL.Sub(pos.RealizedPnL).InexactFloat64()
	netDelta := newPos.RealizedPnLNet.Sub(prevRealizedNet).InexactFloat64()
	observeExit(symbol, decision.Reason, decision.Side)
	observeRealizedPnL(e.cfg.Venue, symbol, newPos.RealizedPnLNet.InexactFloat64())

	if err := e.journal.AppendFill(FillRecord{
		Ts: time.Now().UTC(), Venue: e.cfg.Venue, AccountTag: e.cfg.Risk.AccountTag, Mode: e.cfg.Mode,
		Simulated: e.cfg.Mode != ModeLive, Symbol: symbol, Side: decision.Side, Qty: upd.FilledQty,
		Price: upd.AvgFillPrice, Fee: upd.Fee, OrderID: upd.OrderID, ClientOrderID: upd.ClientOrderID,
		OrderStatus: upd.Status, Reason: string(decision.Reason),
		RealizedGrossDelta: &grossDelta, RealizedNetDelta: &netDelta,
	}); err != nil {
		log.Warn().Err(err).Msg("append fill failed")
	}

	e.cooldown.OnExitFilled(symbol, nowMs)
	snap.Position = newPos
}

func (e *Engine) evaluateEntry(ctx context.Context, symbol string, candles []Candle, ind IndicatorSet, ob OrderbookSnapshot,
	delta DeltaSnapshot, pressure PressureSnapshot, flow FlowSnapshot, liq LiquidationSnapshot,
	lastPrice, equity float64, nowMs int64, snap *BotSnapshot) {
	log := e.log.With().Str("symbol", symbol).Logger()

	if allowed, reason := e.cooldown.AllowEntry(symbol, nowMs); !allowed {
		snap.LastDecision = DecisionHold
		snap.LastHoldReason = reason
		return
	}

	sig := Evaluate(EntryInputs{
		Candles: candles, Ind: ind, Orderbook: ob, OBDelta: delta,
		Pressure: pressure, Flow: flow, Liq: liq, Filters: e.cfg.Filters,
	})
	observeDecision(symbol, sig.Decision, sig.HoldReason)
	snap.LastDecision = sig.Decision
	snap.LastHoldReason = sig.HoldReason
	snap.LastScore = sig.Score
	if sig.Decision == DecisionHold {
		return
	}

	side := SignalToSide(sig.Decision)
	sizing := e.sizeEntry(ctx, equity, lastPrice, symbol)
	if sizing.Rejected {
		log.Debug().Str("reason", string(sizing.Reason)).Msg("entry sizing rejected")
		if err := e.journal.AppendSizingEvent(symbol, SizingInput{}, sizing, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Msg("append sizing event failed")
		}
		return
	}

	notional := sizing.Notional.InexactFloat64()
	approved, reason := e.risk.Approve(
		PortfolioState{Equity: equity, DayStartEquity: e.dayStartEquity, AccountTag: e.cfg.Risk.AccountTag},
		RiskSignal{Side: side, IntentOpenShort: side == SideSell}, notional, e.riskCaps(), nowMs)
	if !approved {
		observeRiskRejection(symbol, reason)
		return
	}

	req := OrderRequest{
		Venue: e.cfg.Venue, Symbol: symbol, Side: side, OrderType: OrderTypeMarket,
		Qty: sizing.Qty.InexactFloat64(), ClientOrderID: uuid.New().String(),
		Meta: OrderMeta{LiqHintPrice: sig.LiqHintPrice},
	}

	upd := e.executeOrder(ctx, req, ob)
	observeOrder(e.cfg.Venue, symbol, side, upd.Status)

	if !upd.Successful() {
		st := e.cooldown.OnEntryFailed(symbol, FailurePayload{Message: fmt.Sprintf("entry order status=%s", upd.Status)}, nowMs)
		snap.Cooldown = st
		return
	}

	newPos, err := e.ledger.ApplyFill(e.cfg.Venue, symbol, side, decimal.NewFromFloat(upd.FilledQty),
		decimal.NewFromFloat(upd.AvgFillPrice), decimal.NewFromFloat(upd.Fee), time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("apply entry fill failed")
		return
	}

	if err := e.journal.AppendFill(FillRecord{
		Ts: time.Now().UTC(), Venue: e.cfg.Venue, AccountTag: e.cfg.Risk.AccountTag, Mode: e.cfg.Mode,
		Simulated: e.cfg.Mode != ModeLive, Symbol: symbol, Side: side, Qty: upd.FilledQty,
		Price: upd.AvgFillPrice, Fee: upd.Fee, OrderID: upd.OrderID, ClientOrderID: upd.ClientOrderID,
		OrderStatus: upd.Status, Signal: string(sig.Decision),
	}); err != nil {
		log.Warn().Err(err).Msg("append fill failed")
	}

	e.cooldown.OnEntryFilled(symbol, nowMs)
	snap.Position = newPos
}

// sizeEntry converts the configured sizing mode into a SizingInput and runs
// AdjustSize (§4.3) against the venue's lot-size rules.
func (e *Engine) sizeEntry(ctx context.Context, equity, lastPrice float64, symbol string) SizingResult {
	leverage := e.cfg.Sizing.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	var intendedNotional float64
	switch e.cfg.Sizing.OrderSizingMode {
	case SizingFixed:
		intendedNotional = e.cfg.Sizing.IntendedNotional
	default:
		intendedNotional = equity * e.cfg.Sizing.TradeEquityFrac * leverage
	}
	if lastPrice <= 0 {
		return SizingResult{Rejected: true, Reason: RejectMinNotional}
	}
	qty := intendedNotional / lastPrice

	rules := SymbolRules{Symbol: symbol, QtyStep: 0.0001, MinQty: 0.0001, MaxQty: 1_000_000}
	if e.broker.Supports(FeatureGetSymbolRules) {
		if r, err := e.broker.GetSymbolRules(ctx, symbol); err == nil {
			rules = r
		}
	}

	return AdjustSize(SizingInput{
		Qty: decimal.NewFromFloat(qty), LastPrice: decimal.NewFromFloat(lastPrice),
		Equity: decimal.NewFromFloat(equity), IntendedNotional: decimal.NewFromFloat(intendedNotional),
		IntendedMargin: decimal.NewFromFloat(intendedNotional / leverage), Leverage: decimal.NewFromFloat(leverage),
		Rules: rules, Policy: e.cfg.Sizing.MinNotionalPolicy,
		MinNotionalBuffer: decimal.NewFromFloat(e.cfg.Sizing.MinNotionalBuffer),
		MaxOverMarginFrac: decimal.NewFromFloat(e.cfg.Sizing.AutoBumpMaxOverMarginFrac),
		MaxEquityFrac:     decimal.NewFromFloat(e.cfg.Sizing.AutoBumpMaxEquityFrac),
	})
}

func (e *Engine) riskCaps() RiskCaps {
	return RiskCaps{
		MaxDailyLoss: e.cfg.Risk.MaxDailyLoss, MaxPositionPerSymbol: e.cfg.Risk.MaxPositionPerSymbol,
		MaxAccountNotional: e.cfg.Risk.MaxAccountNotional, MaxTotalNotional: e.cfg.Risk.MaxTotalNotional,
		MaxAccountExposureFrac: e.cfg.Risk.MaxAccountExposureFrac, MaxTotalExposureFrac: e.cfg.Risk.MaxTotalExposureFrac,
		SpotOnly: e.cfg.Risk.SpotOnly,
	}
}

// executeOrder routes through the IOC ladder when the broker supports it and
// the config enables it for this order's intent, otherwise places a single
// market order.
func (e *Engine) executeOrder(ctx context.Context, req OrderRequest, ob OrderbookSnapshot) OrderUpdate {
	useIOC := e.cfg.Execution.EntryUseIOC
	if req.Meta.ExitReason != "" {
		useIOC = e.cfg.Execution.ExitUseIOC
	}
	if !useIOC || !e.broker.Supports(FeatureIOCLimit) {
		return e.exec.Execute(ctx, req)
	}
	bid, ask := ob.BestBidAsk()
	if bid <= 0 || ask <= 0 {
		return e.exec.Execute(ctx, req)
	}
	prices := BuildIOCLadder(req.Side, bid, ask, e.cfg.Execution.IOCPricePadBps, e.cfg.Execution.IOCMaxChaseBps, req.Meta.LiqHintPrice)
	return e.exec.ExecuteIOCLimitPricesThenMarket(ctx, req, prices, true)
}
