package main

import (
	"context"
	"testing"
)

func preflightConfig(symbol, stateDir string) *Config {
	return &Config{
		Mode: ModePaper, Venue: "paper", Strategy: StrategyScalp, Symbols: []string{symbol},
		PollSec: 1, StateDir: stateDir,
		Sizing: SizingConfig{OrderSizingMode: SizingEquityPct, TradeEquityFrac: 0.1, Leverage: 1, MinNotionalPolicy: PolicyBump},
		Risk:   RiskConfig{MaxDailyLoss: 0.05},
	}
}

func TestPreflightPassesForHealthyPaperBroker(t *testing.T) {
	broker := NewPaperBroker(10000)
	cfg := preflightConfig("X", t.TempDir())

	if err := Preflight(context.Background(), cfg, broker); err != nil {
		t.Fatalf("expected preflight to pass, got %v", err)
	}
}

func TestPreflightFailsOnInvalidConfig(t *testing.T) {
	broker := NewPaperBroker(10000)
	cfg := preflightConfig("X", t.TempDir())
	cfg.Symbols = nil

	if err := Preflight(context.Background(), cfg, broker); err == nil {
		t.Fatal("expected preflight to reject a config with no symbols")
	}
}

func TestPreflightFailsOnUnwritableStateDir(t *testing.T) {
	broker := NewPaperBroker(10000)
	// A path under a file (not a directory) can never be created as a dir.
	cfg := preflightConfig("X", "/dev/null/not-a-real-dir")

	if err := Preflight(context.Background(), cfg, broker); err == nil {
		t.Fatal("expected preflight to reject an unwritable state dir")
	}
}

func TestPreflightRejectsUnsetSymbolRules(t *testing.T) {
	broker := NewPaperBroker(10000)
	broker.SetSymbolRules("X", SymbolRules{Symbol: "X"}) // zero QtyStep/MinQty
	cfg := preflightConfig("X", t.TempDir())

	if err := Preflight(context.Background(), cfg, broker); err == nil {
		t.Fatal("expected preflight to reject symbol rules with zero step sizes")
	}
}
