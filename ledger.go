// FILE: ledger.go
// Package main – Per-(venue,symbol) position ledger with long/short flip
// accounting and realized P&L (§4.2).
//
// Persistence follows a write-temp-then-rename idiom: never write the live
// state file in place, always stage to a sibling temp file and os.Rename
// over it so a crash mid write never corrupts the on-disk ledger.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Position is one aggregate position for a (venue, symbol) pair. Qty is
// signed: positive is long, negative is short, zero is flat.
type Position struct {
	Venue           string          `json:"venue"`
	Symbol          string          `json:"symbol"`
	Qty             decimal.Decimal `json:"qty"`
	AvgCost         decimal.Decimal `json:"avg_cost"`
	HighWater       decimal.Decimal `json:"high_water"`
	LowWater        decimal.Decimal `json:"low_water"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	RealizedPnLNet  decimal.Decimal `json:"realized_pnl_net"`
	FeePaid         decimal.Decimal `json:"fee_paid"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Side reports the directional side of this position: BUY=long, SELL=short.
// Meaningless (returns BUY) on a flat position.
func (p Position) Side() OrderSide {
	if p.Qty.IsNegative() {
		return SideSell
	}
	return SideBuy
}

// IsLong / IsShort / IsFlat classify the position by the sign of Qty.
func (p Position) IsLong() bool  { return p.Qty.IsPositive() }
func (p Position) IsShort() bool { return p.Qty.IsNegative() }
func (p Position) IsFlat() bool  { return p.Qty.IsZero() }

// AbsQty returns the unsigned size of the position.
func (p Position) AbsQty() decimal.Decimal { return p.Qty.Abs() }

// UnrealizedPnL returns the position's unrealized P&L at the current mark.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.Qty.IsZero() {
		return decimal.Zero
	}
	diff := p.MarkPrice.Sub(p.AvgCost)
	return diff.Mul(p.Qty) // sign of Qty carries long/short automatically
}

type ledgerState struct {
	Positions map[string]Position `json:"positions"`
}

// PositionLedger tracks one Position per (venue,symbol) key and persists the
// whole book atomically on every mutation.
type PositionLedger struct {
	mu    sync.RWMutex
	path  string
	state ledgerState
}

func ledgerKey(venue, symbol string) string { return venue + ":" + symbol }

// NewPositionLedger loads the ledger from path if present, else starts empty.
func NewPositionLedger(path string) (*PositionLedger, error) {
	l := &PositionLedger{path: path, state: ledgerState{Positions: make(map[string]Position)}}
	if path == "" {
		return l, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return l, nil
	}
	var st ledgerState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("ledger: parse %s: %w", path, err)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]Position)
	}
	l.state = st
	return l, nil
}

// Get returns the current position for (venue,symbol), or the zero value and
// false if none is open.
func (l *PositionLedger) Get(venue, symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.state.Positions[ledgerKey(venue, symbol)]
	return p, ok
}

// HasPosition reports whether a non-zero position exists for (venue,symbol).
func (l *PositionLedger) HasPosition(venue, symbol string) bool {
	p, ok := l.Get(venue, symbol)
	return ok && !p.Qty.IsZero()
}

// UpdateMark refreshes the mark price and the side-appropriate watermark
// (high_water while long, low_water while short), then persists.
func (l *PositionLedger) UpdateMark(venue, symbol string, mark decimal.Decimal) error {
	l.mu.Lock()
	key := ledgerKey(venue, symbol)
	p, ok := l.state.Positions[key]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	p.MarkPrice = mark
	switch {
	case p.IsLong():
		if p.HighWater.IsZero() || mark.GreaterThan(p.HighWater) {
			p.HighWater = mark
		}
	case p.IsShort():
		if p.LowWater.IsZero() || mark.LessThan(p.LowWater) {
			p.LowWater = mark
		}
	}
	l.state.Positions[key] = p
	snapshot := l.snapshotLocked()
	l.mu.Unlock()
	return l.persist(snapshot)
}

// ApplyFill folds one fill into the ledger per the four cases of §4.2:
// covering/averaging into a short on a BUY, averaging into a long on a BUY,
// and the mirrored SELL cases, with P&L realized on any closed portion and
// a flip opened at the fill price if the fill overshoots the existing size.
func (l *PositionLedger) ApplyFill(venue, symbol string, side OrderSide, qty, price, fee decimal.Decimal, now time.Time) (Position, error) {
	if qty.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return Position{}, fmt.Errorf("ledger: invalid fill qty=%s price=%s", qty, price)
	}

	l.mu.Lock()
	key := ledgerKey(venue, symbol)
	existing := l.state.Positions[key]

	var result Position
	if side == SideBuy {
		result = applyBuy(existing, qty, price, now)
	} else {
		result = applySell(existing, qty, price, now)
	}
	result.Venue, result.Symbol = venue, symbol
	result.FeePaid = existing.FeePaid.Add(fee)
	result.RealizedPnLNet = result.RealizedPnL.Sub(result.FeePaid)

	if result.Qty.IsZero() {
		result.AvgCost = decimal.Zero
		result.HighWater = decimal.Zero
		result.LowWater = decimal.Zero
		delete(l.state.Positions, key)
	} else {
		l.state.Positions[key] = result
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	if err := l.persist(snapshot); err != nil {
		return result, err
	}
	return result, nil
}

// applyBuy handles a BUY fill: covers a short first (case 1), then averages
// into / opens a long with any remainder (case 2).
func applyBuy(existing Position, qty, price decimal.Decimal, now time.Time) Position {
	result := existing
	result.UpdatedAt = now

	if existing.IsShort() {
		shortQty := existing.Qty.Abs()
		closeQty := decimal.Min(qty, shortQty)
		realizedDelta := closeQty.Mul(existing.AvgCost.Sub(price))
		result.RealizedPnL = existing.RealizedPnL.Add(realizedDelta)
		result.Qty = existing.Qty.Add(closeQty) // moves toward zero

		remainder := qty.Sub(closeQty)
		if result.Qty.IsZero() {
			result.AvgCost = decimal.Zero
			result.HighWater = decimal.Zero
			result.LowWater = decimal.Zero
		}
		if remainder.GreaterThan(decimal.Zero) {
			result.Qty = remainder
			result.AvgCost = price
			result.HighWater = price
			result.LowWater = price
		}
		return result
	}

	// long or flat: average in
	newQty := existing.Qty.Add(qty)
	if existing.IsLong() {
		result.AvgCost = existing.AvgCost.Mul(existing.Qty).Add(price.Mul(qty)).Div(newQty)
	} else {
		result.AvgCost = price
	}
	result.Qty = newQty
	if result.HighWater.IsZero() || price.GreaterThan(result.HighWater) {
		result.HighWater = price
	}
	if result.LowWater.IsZero() {
		result.LowWater = price
	}
	return result
}

// applySell handles a SELL fill: closes a long first (case 3), then averages
// into / opens a short with any remainder (case 4).
func applySell(existing Position, qty, price decimal.Decimal, now time.Time) Position {
	result := existing
	result.UpdatedAt = now

	if existing.IsLong() {
		longQty := existing.Qty
		closeQty := decimal.Min(qty, longQty)
		realizedDelta := closeQty.Mul(price.Sub(existing.AvgCost))
		result.RealizedPnL = existing.RealizedPnL.Add(realizedDelta)
		result.Qty = existing.Qty.Sub(closeQty)

		remainder := qty.Sub(closeQty)
		if result.Qty.IsZero() {
			result.AvgCost = decimal.Zero
			result.HighWater = decimal.Zero
			result.LowWater = decimal.Zero
		}
		if remainder.GreaterThan(decimal.Zero) {
			result.Qty = remainder.Neg()
			result.AvgCost = price
			result.HighWater = price
			result.LowWater = price
		}
		return result
	}

	// short or flat: average in
	existingAbs := existing.Qty.Abs()
	newAbs := existingAbs.Add(qty)
	if existing.IsShort() {
		result.AvgCost = existing.AvgCost.Mul(existingAbs).Add(price.Mul(qty)).Div(newAbs)
	} else {
		result.AvgCost = price
	}
	result.Qty = newAbs.Neg()
	if result.LowWater.IsZero() || price.LessThan(result.LowWater) {
		result.LowWater = price
	}
	if result.HighWater.IsZero() {
		result.HighWater = price
	}
	return result
}

func (l *PositionLedger) snapshotLocked() ledgerState {
	cp := ledgerState{Positions: make(map[string]Position, len(l.state.Positions))}
	for k, v := range l.state.Positions {
		cp.Positions[k] = v
	}
	return cp
}

// persist writes st to l.path atomically (no lock held: must be called with
// a copy of state taken under the lock, matching trader.go's pattern of
// releasing the lock before file I/O).
func (l *PositionLedger) persist(st ledgerState) error {
	if l.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal: %w", err)
	}
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: close temp: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: rename temp: %w", err)
	}
	return nil
}

// All returns a shallow copy of every open position, keyed by "venue:symbol".
func (l *PositionLedger) All() map[string]Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Position, len(l.state.Positions))
	for k, v := range l.state.Positions {
		out[k] = v
	}
	return out
}
