// FILE: risk.go
// Package main – Pre-trade risk gate (§4.5).
//
// Grounded on the enrichment pack's internal/risk/manager.go for the
// per-market + global headroom shape and its fail-open posture toward
// store errors, adapted from an async kill-channel into a synchronous
// Approve() the control loop calls inline before every entry.
package main

import "github.com/rs/zerolog"

// RiskCaps bundles the configured limits Approve checks against.
type RiskCaps struct {
	MaxDailyLoss              float64
	MaxPositionPerSymbol      float64
	MaxAccountNotional        float64
	MaxTotalNotional          float64
	MaxAccountExposureFrac    float64
	MaxTotalExposureFrac      float64
	SpotOnly                  bool // venue cannot hold a short position
}

// sharedCapsEnabled reports whether any shared-store cap is actually
// constraining (per §4.5 step 4's "if enabled" clause).
func (c RiskCaps) sharedCapsEnabled() bool {
	return c.MaxAccountNotional > 0 ||
		c.MaxTotalNotional > 0 ||
		(c.MaxAccountExposureFrac > 0 && c.MaxAccountExposureFrac < 1) ||
		(c.MaxTotalExposureFrac > 0 && c.MaxTotalExposureFrac < 1)
}

// RiskSignal is the intent the gate is asked to approve or reject.
type RiskSignal struct {
	Side             OrderSide
	ExitReason       string // non-empty => this is a closing order
	IntentOpenShort  bool   // SELL intends to open/add to a short position
	IntentCoverShort bool   // BUY intends to cover an existing short
}

// isExitIntent mirrors §4.5 step 1: exits, covering a short, or a plain
// sell with no short-open intent are always allowed through.
func (s RiskSignal) isExitIntent() bool {
	if s.ExitReason != "" {
		return true
	}
	if s.Side == SideSell && !s.IntentOpenShort {
		return true
	}
	if s.Side == SideBuy && s.IntentCoverShort {
		return true
	}
	return false
}

// PortfolioState is the account-level numbers Approve needs.
type PortfolioState struct {
	Equity            float64
	DayStartEquity    float64
	ExistingNotional  float64 // existing notional already committed to this symbol
	CurrentlyShort    bool
	AccountTag        string
}

// RiskGate evaluates entries against local and shared-store caps.
type RiskGate struct {
	exposure *SharedExposureStore
	log      zerolog.Logger
}

func NewRiskGate(exposure *SharedExposureStore, log zerolog.Logger) *RiskGate {
	return &RiskGate{exposure: exposure, log: Component(log, "risk")}
}

// Approve implements the five ordered checks of §4.5, with a SPOT_NO_SHORT
// check between the exit pass-through and the daily-loss stop. Exits are never
// gated; shared-store I/O errors fail open (approve on local rules alone).
func (g *RiskGate) Approve(portfolio PortfolioState, signal RiskSignal, intendedNotional float64, caps RiskCaps, nowMs int64) (bool, string) {
	if signal.isExitIntent() {
		return true, ""
	}

	if caps.SpotOnly && signal.Side == SideSell && signal.IntentOpenShort {
		return false, "SPOT_NO_SHORT"
	}

	if portfolio.DayStartEquity > 0 {
		drawdown := (portfolio.Equity - portfolio.DayStartEquity) / portfolio.DayStartEquity
		if caps.MaxDailyLoss > 0 && drawdown <= -caps.MaxDailyLoss {
			return false, "DAILY_LOSS_STOP"
		}
	}

	if portfolio.Equity > 0 && caps.MaxPositionPerSymbol > 0 {
		frac := (portfolio.ExistingNotional + intendedNotional) / portfolio.Equity
		if frac > caps.MaxPositionPerSymbol {
			return false, "PER_SYMBOL_CAP"
		}
	}

	if caps.sharedCapsEnabled() && g.exposure != nil {
		summary, err := g.exposure.Summarize(nowMs)
		if err != nil {
			g.log.Warn().Err(err).Msg("shared exposure store unavailable, failing open")
			return true, ""
		}

		acctNotional := summary.AccountNotional[portfolio.AccountTag]
		acctEquity := summary.AccountEquity[portfolio.AccountTag]

		if caps.MaxAccountNotional > 0 && acctNotional+intendedNotional > caps.MaxAccountNotional {
			return false, "SHARED_ACCOUNT_NOTIONAL_CAP"
		}
		if caps.MaxTotalNotional > 0 && summary.TotalNotional+intendedNotional > caps.MaxTotalNotional {
			return false, "SHARED_TOTAL_NOTIONAL_CAP"
		}
		if caps.MaxAccountExposureFrac > 0 && acctEquity > 0 &&
			acctNotional+intendedNotional > caps.MaxAccountExposureFrac*acctEquity {
			return false, "MAX_ACCOUNT_EXPOSURE"
		}
		if caps.MaxTotalExposureFrac > 0 && summary.TotalEquity > 0 &&
			summary.TotalNotional+intendedNotional > caps.MaxTotalExposureFrac*summary.TotalEquity {
			return false, "SHARED_TOTAL_EXPOSURE_FRAC"
		}
	}

	return true, ""
}
