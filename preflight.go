// FILE: preflight.go
// Package main – Startup sanity checks, run once before the control loop
// takes its first tick (§2.3).
//
// Grounded on a shouldFatalNoStateMount/isMounted-style check: fail fast,
// before a single order can be placed, rather than discover a broken mount
// or an unknown symbol mid-trade. Extended here to also probe broker
// reachability and per-symbol rules, since a multi-venue engine has more
// that can be silently wrong at boot than a single-exchange bot does.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Preflight validates cfg and broker reachability before Engine.Run starts.
// It fails fast on anything that would otherwise only surface as a confusing
// mid-session error: an unwritable state directory, an unreachable broker, a
// symbol the venue doesn't actually list.
func Preflight(ctx context.Context, cfg *Config, broker Broker) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("preflight: config: %w", err)
	}
	if err := checkStateDirWritable(cfg.StateDir); err != nil {
		return fmt.Errorf("preflight: state dir: %w", err)
	}
	if err := checkBrokerReachable(ctx, broker); err != nil {
		return fmt.Errorf("preflight: broker: %w", err)
	}
	for _, symbol := range cfg.Symbols {
		if err := checkSymbol(ctx, broker, symbol); err != nil {
			return fmt.Errorf("preflight: symbol %s: %w", symbol, err)
		}
	}
	return nil
}

// checkStateDirWritable mirrors shouldFatalNoStateMount: the directory must
// exist (or be creatable) and accept a temp-file write. Unlike that original
// check, this one does not fatal on a missing mount point — paper/backtest
// runs routinely use a throwaway state dir outside a container volume.
func checkStateDirWritable(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "preflight-*.tmp")
	if err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// checkBrokerReachable confirms the broker answers a cheap read before the
// engine commits to it. GetEquity is mandatory on every Broker implementation.
func checkBrokerReachable(ctx context.Context, broker Broker) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := broker.GetEquity(ctx); err != nil {
		return fmt.Errorf("GetEquity: %w", err)
	}
	if broker.Supports(FeatureSyncTime) {
		if err := broker.SyncTime(ctx); err != nil {
			return fmt.Errorf("SyncTime: %w", err)
		}
	}
	return nil
}

// checkSymbol confirms a symbol is actually tradeable on the venue: candles
// must be fetchable, and symbol rules (when the venue exposes them) must
// resolve to sane step sizes rather than zero values that would later make
// AdjustSize silently reject every order.
func checkSymbol(ctx context.Context, broker Broker, symbol string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Paper mode legitimately has no candle feed of its own (candles arrive
	// from a separate MarketData source); only enforce this against venues
	// that claim to serve market data directly.
	if candles, err := broker.GetRecentCandles(ctx, symbol, 2); err == nil {
		if len(candles) == 0 {
			return fmt.Errorf("no candles returned, symbol may be delisted or misspelled")
		}
	} else if !errors.Is(err, errPaperNoCandleFeed) {
		return fmt.Errorf("GetRecentCandles: %w", err)
	}

	if !broker.Supports(FeatureGetSymbolRules) {
		return nil
	}
	rules, err := broker.GetSymbolRules(ctx, symbol)
	if err != nil {
		return fmt.Errorf("GetSymbolRules: %w", err)
	}
	if rules.QtyStep <= 0 || rules.MinQty <= 0 {
		return fmt.Errorf("symbol rules look unset: qty_step=%v min_qty=%v", rules.QtyStep, rules.MinQty)
	}
	return nil
}

// stateFilePath derives the position ledger's persistence file,
// <venue>.state.json, from the state directory.
func stateFilePath(stateDir, venue string) string {
	return filepath.Join(stateDir, fmt.Sprintf("%s.state.json", venue))
}
