// FILE: exposure.go
// Package main – File-backed shared exposure store (§4.4).
//
// A single JSON document shared across bot processes on the same host,
// keyed by "{account_tag}:{venue}:{symbol}". Writers read-modify-write with
// atomic rename, the same write-temp-then-rename idiom used for state saves
// elsewhere in this codebase.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SharedExposureEntry is one bot process's latest self-reported exposure.
type SharedExposureEntry struct {
	AccountTag  string  `json:"account_tag"`
	Venue       string  `json:"venue"`
	Symbol      string  `json:"symbol"`
	Equity      float64 `json:"equity"`
	AbsNotional float64 `json:"abs_notional"`
	TsMs        int64   `json:"ts_ms"`
}

type exposureDoc struct {
	Bots        map[string]SharedExposureEntry `json:"bots"`
	UpdatedAtMs int64                           `json:"updated_at_ms"`
}

// ExposureSummary is the aggregated view a risk gate consults before
// approving an entry.
type ExposureSummary struct {
	AccountEquity      map[string]float64 // account_tag -> MAX(equity)
	AccountNotional    map[string]float64 // account_tag -> SUM(abs_notional)
	TotalEquity        float64
	TotalNotional      float64
}

// SharedExposureStore persists SharedExposureEntry rows to a single file and
// aggregates across bot processes on read.
type SharedExposureStore struct {
	mu        sync.Mutex
	path      string
	maxAgeSec int64
}

func NewSharedExposureStore(path string, maxAgeSec int64) *SharedExposureStore {
	if maxAgeSec <= 0 {
		maxAgeSec = 30
	}
	return &SharedExposureStore{path: path, maxAgeSec: maxAgeSec}
}

func botKey(accountTag, venue, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", accountTag, venue, symbol)
}

// Report upserts this bot's own exposure entry and persists the document.
func (s *SharedExposureStore) Report(entry SharedExposureEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	doc.Bots[botKey(entry.AccountTag, entry.Venue, entry.Symbol)] = entry
	doc.UpdatedAtMs = entry.TsMs
	return s.writeLocked(doc)
}

// Summarize reads the document and aggregates per §4.4's rules: equity is
// MAX across bots sharing an account_tag (property of the account, not a
// sum), abs_notional is SUM (exposure composes). Stale entries are excluded.
// File read errors return a zero summary and the error — callers MUST treat
// that as fail-open (approve on local rules only), never as a block.
func (s *SharedExposureStore) Summarize(nowMs int64) (ExposureSummary, error) {
	s.mu.Lock()
	doc, err := s.readLocked()
	s.mu.Unlock()
	if err != nil {
		return ExposureSummary{}, err
	}

	cutoff := nowMs - s.maxAgeSec*1000
	out := ExposureSummary{
		AccountEquity:   make(map[string]float64),
		AccountNotional: make(map[string]float64),
	}
	for _, e := range doc.Bots {
		if e.TsMs < cutoff {
			continue
		}
		if e.Equity > out.AccountEquity[e.AccountTag] {
			out.AccountEquity[e.AccountTag] = e.Equity
		}
		out.AccountNotional[e.AccountTag] += e.AbsNotional
	}
	for _, eq := range out.AccountEquity {
		out.TotalEquity += eq
	}
	for _, n := range out.AccountNotional {
		out.TotalNotional += n
	}
	return out, nil
}

func (s *SharedExposureStore) readLocked() (exposureDoc, error) {
	doc := exposureDoc{Bots: make(map[string]SharedExposureEntry)}
	if s.path == "" {
		return doc, nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("exposure: read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("exposure: parse %s: %w", s.path, err)
	}
	if doc.Bots == nil {
		doc.Bots = make(map[string]SharedExposureEntry)
	}
	return doc, nil
}

func (s *SharedExposureStore) writeLocked(doc exposureDoc) error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("exposure: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".exposure-*.tmp")
	if err != nil {
		return fmt.Errorf("exposure: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("exposure: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("exposure: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("exposure: rename temp: %w", err)
	}
	return nil
}

// NowMs is a small helper for callers that need epoch-millis without
// importing time directly at every call site.
func NowMs(t time.Time) int64 { return t.UnixMilli() }
