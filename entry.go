// FILE: entry.go
// Package main – Entry decision pipeline (§4.9).
//
// Replaces a micro-model + EMA4/EMA8 crossover decide() entirely with a
// deterministic 12-filter pipeline. The Signal/Decision/SignalToSide types
// are kept and re-purposed below to carry this pipeline's output instead of
// the EMA crossover's.
package main

import "math"

// Decision is the entry pipeline's verdict for one symbol on one tick.
type Decision string

const (
	DecisionHold Decision = "HOLD"
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
)

// SignalToSide maps a directional decision to the order side that opens it.
func SignalToSide(d Decision) OrderSide {
	if d == DecisionSell {
		return SideSell
	}
	return SideBuy
}

// EntrySignal is the pipeline's full output: the decision, the reason it
// held (if any), the composite score, and the liquidation hint price to feed
// the IOC ladder.
type EntrySignal struct {
	Decision     Decision
	HoldReason   string
	Score        float64
	LiqHintPrice float64
}

func hold(reason string) EntrySignal { return EntrySignal{Decision: DecisionHold, HoldReason: reason} }

// EntryInputs bundles everything filter-by-filter the pipeline reads.
type EntryInputs struct {
	InPosition bool

	Candles []Candle // ascending, most recent last
	Ind     IndicatorSet

	Orderbook  OrderbookSnapshot
	OBDelta    DeltaSnapshot
	Pressure   PressureSnapshot
	Flow       FlowSnapshot
	Liq        LiquidationSnapshot

	Filters ScalpFilterConfig
}

// Evaluate runs the full 12-filter pipeline against in, short-circuiting on
// the first failing filter with HOLD(<reason>).
func Evaluate(in EntryInputs) EntrySignal {
	if in.InPosition {
		return hold("IN_POSITION")
	}
	if len(in.Candles) == 0 {
		return hold("NO_CANDLES")
	}
	last := in.Candles[len(in.Candles)-1]
	f := in.Filters

	// 1. Trade value.
	if f.Min1mTradeValue > 0 && last.Volume*last.Close < f.Min1mTradeValue {
		return hold("MIN_TRADE_VALUE")
	}

	// 2. Orderbook depth notional (top 10 levels).
	depth := DepthNotional(in.Orderbook, 10)
	if f.MinOrderbookNotional > 0 && depth < f.MinOrderbookNotional {
		return hold("MIN_ORDERBOOK_NOTIONAL")
	}

	// 3. Volume surge.
	if f.MinVolSurge > 0 && in.Ind.VolSurge < f.MinVolSurge {
		return hold("MIN_VOL_SURGE")
	}

	bid, ask := in.Orderbook.BestBidAsk()
	mid := (bid + ask) / 2

	// 4. Spread.
	if f.MaxSpreadBps > 0 && mid > 0 {
		spreadBps := (ask - bid) / mid * 10000
		if spreadBps > f.MaxSpreadBps {
			return hold("MAX_SPREAD_BPS")
		}
	}

	// 5. 1m range.
	if f.Max1mRangePct > 0 && last.Close > 0 {
		rangePct := (last.High - last.Low) / last.Close
		if rangePct > f.Max1mRangePct {
			return hold("MAX_1M_RANGE_PCT")
		}
	}

	// 6. 1m body.
	if f.Max1mBodyPct > 0 && last.Open > 0 {
		bodyPct := math.Abs(last.Close-last.Open) / last.Open
		if bodyPct > f.Max1mBodyPct {
			return hold("MAX_1M_BODY_PCT")
		}
	}

	// 7. Trade-pressure notional.
	if f.MinTradePressureNotional > 0 && in.Pressure.Notional < f.MinTradePressureNotional {
		return hold("MIN_TRADE_PRESSURE_NOTIONAL")
	}

	// 8. Trade-pressure ratio.
	if f.TradePressureThreshold > 0 && math.Abs(in.Pressure.Pressure) < f.TradePressureThreshold {
		return hold("TRADE_PRESSURE_THRESHOLD")
	}

	// 9. Orderbook imbalance.
	if f.ObImbalanceThreshold > 0 && math.Abs(in.OBDelta.ImbalanceNow) < f.ObImbalanceThreshold {
		return hold("OB_IMBALANCE_THRESHOLD")
	}

	// 10. Orderbook imbalance delta.
	if f.MinObImbDelta > 0 && math.Abs(in.OBDelta.ImbalanceDelta) < f.MinObImbDelta {
		return hold("MIN_OB_IMB_DELTA")
	}

	// 11. Flow rate / trade count / large share.
	if f.MinFlowRateZ > 0 && math.Abs(in.Flow.RateZ) < f.MinFlowRateZ {
		return hold("MIN_FLOW_RATE_Z")
	}
	if f.MinTradeCount > 0 && in.Flow.TradeCount < f.MinTradeCount {
		return hold("MIN_TRADE_COUNT")
	}
	if f.MinLargeTradeShare > 0 && in.Flow.LargeTradeShare < f.MinLargeTradeShare {
		return hold("MIN_LARGE_TRADE_SHARE")
	}

	// Direction selection.
	longOK := in.Pressure.Pressure >= f.TradePressureThreshold &&
		in.OBDelta.ImbalanceNow >= f.ObImbalanceThreshold
	shortOK := in.Pressure.Pressure <= -f.TradePressureThreshold &&
		in.OBDelta.ImbalanceNow <= -f.ObImbalanceThreshold

	if f.MinObImbDelta > 0 {
		longOK = longOK && in.OBDelta.ImbalanceDelta >= f.MinObImbDelta
		shortOK = shortOK && in.OBDelta.ImbalanceDelta <= -f.MinObImbDelta
	}
	if f.MinFlowAccelZ > 0 {
		longOK = longOK && in.Flow.AccelZ >= f.MinFlowAccelZ
		shortOK = shortOK && in.Flow.AccelZ <= -f.MinFlowAccelZ
	}

	// 12. RSI regime.
	rsiLongOK, rsiShortOK := evaluateRSIRegime(in.Ind, f)
	longOK = longOK && rsiLongOK
	shortOK = shortOK && rsiShortOK

	if f.RequireReversalCandle {
		longOK = longOK && last.Close >= last.Open
		shortOK = shortOK && last.Close <= last.Open
	}

	var decision Decision
	switch {
	case longOK && !shortOK:
		decision = DecisionBuy
	case shortOK && !longOK:
		decision = DecisionSell
	default:
		return hold("NO_DIRECTION")
	}

	score := compositeScore(in, decision)

	sig := EntrySignal{Decision: decision, Score: score}
	if decision == DecisionBuy {
		sig.LiqHintPrice = in.Liq.HintPriceForSide(LiqBuy)
	} else {
		sig.LiqHintPrice = in.Liq.HintPriceForSide(LiqSell)
	}
	return sig
}

// evaluateRSIRegime implements the Wilder-RSI cross/threshold rules.
func evaluateRSIRegime(ind IndicatorSet, f ScalpFilterConfig) (longOK, shortOK bool) {
	if f.UseRSICross {
		longOK = ind.RSI14Prev < f.RSILongTrigger && ind.RSI14 >= f.RSILongTrigger
		shortOK = ind.RSI14Prev > f.RSIShortMax && ind.RSI14 >= f.RSIShortMin && ind.RSI14 <= f.RSIShortMax
		return longOK, shortOK
	}
	longOK = ind.RSI14 <= f.RSILongTrigger
	shortOK = ind.RSI14 >= f.RSIShortMin && ind.RSI14 <= f.RSIShortMax
	return longOK, shortOK
}

const epsScore = 1e-9

func normComponent(x, threshold float64) float64 {
	if threshold > 0 {
		return clamp(math.Abs(x)/math.Max(threshold, epsScore), 0, 1)
	}
	return math.Tanh(math.Abs(x) / 0.25)
}

func dirAlignedTanh(z float64, long bool) float64 {
	if !long {
		z = -z
	}
	return math.Tanh(math.Max(0, z)/3)
}

// compositeScore computes the weighted composite score (§4.9); it is
// informational only and never gates entry beyond the filters above.
func compositeScore(in EntryInputs, decision Decision) float64 {
	f := in.Filters
	long := decision == DecisionBuy

	tp := normComponent(in.Pressure.Pressure, f.TradePressureThreshold)
	ob := normComponent(in.OBDelta.ImbalanceNow, f.ObImbalanceThreshold)

	var obDelta, flowRate, flowAccel, tradeCount, largeShare float64
	if f.MinObImbDelta > 0 {
		obDelta = normComponent(in.OBDelta.ImbalanceDelta, f.MinObImbDelta)
	}
	if f.MinFlowRateZ > 0 {
		flowRate = normComponent(in.Flow.RateZ, f.MinFlowRateZ)
	}
	if f.MinFlowAccelZ > 0 {
		flowAccel = normComponent(in.Flow.AccelZ, f.MinFlowAccelZ)
	}
	if f.MinTradeCount > 0 {
		tradeCount = clamp(float64(in.Flow.TradeCount)/float64(f.MinTradeCount), 0, 1)
	}
	if f.MinLargeTradeShare > 0 {
		largeShare = clamp(in.Flow.LargeTradeShare/f.MinLargeTradeShare, 0, 1)
	}

	rateZ := dirAlignedTanh(in.Flow.RateZ, long)
	accelZ := dirAlignedTanh(in.Flow.AccelZ, long)

	bias := in.Liq.Bias()
	if !long {
		bias = -bias
	}
	liq := clamp(math.Max(0, bias)/0.6, 0, 1)

	return 0.80*tp + 0.80*ob + 0.35*obDelta + 0.35*flowRate + 0.35*flowAccel +
		0.25*tradeCount + 0.20*largeShare + 0.30*rateZ + 0.30*accelZ + 0.25*liq
}
