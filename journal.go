// FILE: journal.go
// Package main – Append-only/atomic state writers (§6 persisted state layout).
//
// Two write idioms, both grounded on a saveStateFrom-style routine
// (marshal, write temp file, os.Rename): jsonl tapes that append a line per
// event (fills, equity snapshots, cooldown/sizing debug tapes), and
// atomically-rewritten JSON snapshots (positions, global risk, per-bot
// dashboard state).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal owns the state directory and writes every destination file in it.
// Its one mutex guards only the equity-snapshot throttle; the file writes
// themselves take no lock.
type Journal struct {
	dir string

	mu          sync.Mutex
	lastEquityAt time.Time
}

// NewJournal ensures dir and dir/bots exist and returns a ready Journal.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = "state"
	}
	if err := os.MkdirAll(filepath.Join(dir, "bots"), 0755); err != nil {
		return nil, fmt.Errorf("journal: create state dir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) path(name string) string { return filepath.Join(j.dir, name) }

func appendJSONLine(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("journal: append %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("journal: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("journal: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("journal: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("journal: rename temp: %w", err)
	}
	return nil
}

// FillRecord is one state/fills.jsonl line.
type FillRecord struct {
	Ts                 time.Time `json:"ts"`
	Venue              string    `json:"venue"`
	AccountTag         string    `json:"account_tag"`
	Mode               Mode      `json:"mode"`
	Simulated          bool      `json:"simulated"`
	Symbol             string    `json:"symbol"`
	Side               OrderSide `json:"side"`
	Qty                float64   `json:"qty"`
	Price              float64   `json:"price"`
	Fee                float64   `json:"fee"`
	OrderID            string    `json:"order_id"`
	ClientOrderID      string    `json:"client_order_id"`
	OrderStatus        OrderStatus `json:"order_status"`
	Reason             string    `json:"reason,omitempty"`
	RealizedGrossDelta *float64  `json:"realized_gross_delta,omitempty"`
	RealizedNetDelta   *float64  `json:"realized_net_delta,omitempty"`
	Signal             string    `json:"signal,omitempty"`
}

// AppendFill records one fill event.
func (j *Journal) AppendFill(r FillRecord) error {
	return appendJSONLine(j.path("fills.jsonl"), r)
}

// EquitySnapshot is one state/equity_history.jsonl line.
type EquitySnapshot struct {
	Ts         time.Time    `json:"ts"`
	TsMs       int64        `json:"ts_ms"`
	Venue      string       `json:"venue"`
	AccountTag string       `json:"account_tag"`
	Mode       Mode         `json:"mode"`
	Strategy   StrategyName `json:"strategy"`
	Simulated  bool         `json:"simulated"`
	Equity     float64      `json:"equity"`
}

// AppendEquityThrottled writes an equity snapshot only if at least 60s have
// elapsed since the last one (per §4.10 step 6), returning whether it wrote.
func (j *Journal) AppendEquityThrottled(snap EquitySnapshot) (bool, error) {
	j.mu.Lock()
	if time.Since(j.lastEquityAt) < 60*time.Second {
		j.mu.Unlock()
		return false, nil
	}
	j.lastEquityAt = snap.Ts
	j.mu.Unlock()

	if err := appendJSONLine(j.path("equity_history.jsonl"), snap); err != nil {
		return false, err
	}
	return true, nil
}

// AppendCooldownEvent records a cooldown state transition.
func (j *Journal) AppendCooldownEvent(symbol string, st CooldownState, category FailureCategory, ts time.Time) error {
	return appendJSONLine(j.path("cooldown_history.jsonl"), map[string]any{
		"ts":          ts,
		"symbol":      symbol,
		"until_ms":    st.UntilMs,
		"fail_count":  st.FailCount,
		"last_reason": st.LastReason,
		"category":    category,
	})
}

// AppendSizingEvent records one AdjustSize decision.
func (j *Journal) AppendSizingEvent(symbol string, in SizingInput, out SizingResult, ts time.Time) error {
	return appendJSONLine(j.path("sizing_history.jsonl"), map[string]any{
		"ts":       ts,
		"symbol":   symbol,
		"qty_in":   in.Qty.String(),
		"qty_out":  out.Qty.String(),
		"notional": out.Notional.String(),
		"rejected": out.Rejected,
		"reason":   out.Reason,
	})
}

// WritePositions atomically rewrites state/positions_<venue>.json.
func (j *Journal) WritePositions(venue string, positions map[string]Position) error {
	return writeJSONAtomic(j.path(fmt.Sprintf("positions_%s.json", venue)), positions)
}

// GlobalRiskDoc mirrors the shared exposure store's on-disk shape for the
// state/global_risk.json snapshot consumers read directly.
type GlobalRiskDoc struct {
	Bots        map[string]SharedExposureEntry `json:"bots"`
	UpdatedAtMs int64                          `json:"updated_at_ms"`
}

// WriteGlobalRisk atomically rewrites state/global_risk.json.
func (j *Journal) WriteGlobalRisk(doc GlobalRiskDoc) error {
	return writeJSONAtomic(j.path("global_risk.json"), doc)
}

// BotSnapshot is the full per-symbol UI snapshot rewritten every tick,
// consumed by the out-of-scope dashboard server (§2.3).
type BotSnapshot struct {
	Venue         string         `json:"venue"`
	Symbol        string         `json:"symbol"`
	Mode          Mode           `json:"mode"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Position      Position       `json:"position"`
	LastPrice     float64        `json:"last_price"`
	Cooldown      CooldownState  `json:"cooldown"`
	LastDecision  Decision       `json:"last_decision"`
	LastHoldReason string        `json:"last_hold_reason,omitempty"`
	LastScore     float64        `json:"last_score"`
	Equity        float64        `json:"equity"`
}

// WriteBotSnapshot atomically rewrites state/bots/<venue>_<symbol>.json.
func (j *Journal) WriteBotSnapshot(snap BotSnapshot) error {
	name := fmt.Sprintf("%s_%s.json", snap.Venue, snap.Symbol)
	return writeJSONAtomic(j.path(filepath.Join("bots", name)), snap)
}
