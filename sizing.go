// FILE: sizing.go
// Package main – Exchange-rules order sizing (§4.3).
//
// Grounded on a snap-to-step sizing routine (math.Floor(base/step)*step,
// pre-submit min-notional checks), upgraded to decimal.Decimal throughout
// to avoid float step-drift at small tick sizes.
package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SizingRejectReason enumerates why AdjustSize refused to size an order.
type SizingRejectReason string

const (
	RejectNone            SizingRejectReason = ""
	RejectMinNotional     SizingRejectReason = "MIN_NOTIONAL"
	RejectQtyAboveMax     SizingRejectReason = "QTY_ABOVE_MAX"
	RejectMarginExceeded  SizingRejectReason = "MARGIN_EXCEEDED"
)

// SizingInput bundles the parameters AdjustSize needs.
type SizingInput struct {
	Qty              decimal.Decimal
	LastPrice        decimal.Decimal
	Equity           decimal.Decimal
	IntendedNotional decimal.Decimal
	IntendedMargin   decimal.Decimal
	Leverage         decimal.Decimal // 1 for spot
	Rules            SymbolRules
	Policy           MinNotionalPolicy
	MinNotionalBuffer   decimal.Decimal // e.g. 1.05
	MaxOverMarginFrac   decimal.Decimal
	MaxEquityFrac       decimal.Decimal
}

// SizingResult is the outcome of AdjustSize.
type SizingResult struct {
	Qty      decimal.Decimal
	Notional decimal.Decimal
	Rejected bool
	Reason   SizingRejectReason
}

func floorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	units := qty.Div(step).Floor()
	return units.Mul(step)
}

func ceilToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	units := qty.Div(step).Ceil()
	return units.Mul(step)
}

// AdjustSize implements the five-step algorithm of §4.3.
func AdjustSize(in SizingInput) SizingResult {
	step := decimal.NewFromFloat(in.Rules.QtyStep)
	minQty := decimal.NewFromFloat(in.Rules.MinQty)
	maxQty := decimal.NewFromFloat(in.Rules.MaxQty)
	minNotional := decimal.NewFromFloat(in.Rules.MinNotional)

	qty := floorToStep(in.Qty, step)
	if qty.LessThan(minQty) {
		qty = minQty
	}

	notional := qty.Mul(in.LastPrice)

	if in.Rules.MinNotional > 0 && notional.LessThan(minNotional) {
		switch in.Policy {
		case PolicySkip:
			return SizingResult{Rejected: true, Reason: RejectMinNotional}

		case PolicyBump:
			adj, ok := bumpToMinNotional(qty, step, minQty, in.LastPrice, minNotional, in.MinNotionalBuffer)
			if !ok {
				return SizingResult{Rejected: true, Reason: RejectMinNotional}
			}
			qty = adj
			notional = qty.Mul(in.LastPrice)

		case PolicyAuto:
			buffer := in.MinNotionalBuffer
			if buffer.IsZero() {
				buffer = decimal.NewFromFloat(1.0)
			}

			adj, ok := bumpToMinNotional(qty, step, minQty, in.LastPrice, minNotional, buffer)
			if !ok {
				return SizingResult{Rejected: true, Reason: RejectMinNotional}
			}
			qty = adj
			notional = qty.Mul(in.LastPrice)

			// reqMargin derives from the post-bump notional: the order the
			// broker actually places, not the pre-rounding target.
			leverage := in.Leverage
			if leverage.IsZero() {
				leverage = decimal.NewFromFloat(1.0)
			}
			reqMargin := notional.Div(leverage)

			overMarginCap := in.IntendedMargin.Mul(decimal.NewFromFloat(1).Add(in.MaxOverMarginFrac))
			equityCap := in.Equity.Mul(in.MaxEquityFrac)

			if in.IntendedMargin.GreaterThan(decimal.Zero) && reqMargin.GreaterThan(overMarginCap) {
				return SizingResult{Rejected: true, Reason: RejectMarginExceeded}
			}
			if in.MaxEquityFrac.GreaterThan(decimal.Zero) && reqMargin.GreaterThan(equityCap) {
				return SizingResult{Rejected: true, Reason: RejectMarginExceeded}
			}

		default:
			return SizingResult{Rejected: true, Reason: RejectMinNotional}
		}
	}

	if in.Rules.MaxQty > 0 && qty.GreaterThan(maxQty) {
		return SizingResult{Rejected: true, Reason: RejectQtyAboveMax}
	}

	return SizingResult{Qty: qty, Notional: notional}
}

// bumpToMinNotional raises qty to clear minNotional*buffer, rounding up to
// the step, and re-enforces the minimum quantity floor.
func bumpToMinNotional(qty, step, minQty, lastPrice, minNotional, buffer decimal.Decimal) (decimal.Decimal, bool) {
	if lastPrice.LessThanOrEqual(decimal.Zero) {
		return qty, false
	}
	if buffer.IsZero() {
		buffer = decimal.NewFromFloat(1.0)
	}
	target := minNotional.Mul(buffer)
	needed := target.Div(lastPrice)
	bumped := ceilToStep(needed, step)
	if bumped.LessThan(minQty) {
		bumped = minQty
	}
	return bumped, true
}

func (r SizingRejectReason) Error() string {
	if r == RejectNone {
		return ""
	}
	return fmt.Sprintf("sizing rejected: %s", string(r))
}
