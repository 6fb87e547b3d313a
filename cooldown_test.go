package main

import "testing"

func TestClassifyRateLimit(t *testing.T) {
	if got := Classify(FailurePayload{HTTPStatus: 429}); got != FailRateLimit {
		t.Fatalf("expected rate_limit, got %s", got)
	}
}

func TestClassifyUnauthorizedByCode(t *testing.T) {
	if got := Classify(FailurePayload{Code: -2015}); got != FailUnauthorized {
		t.Fatalf("expected unauthorized, got %s", got)
	}
}

func TestClassifyInsufficientMarginByMessage(t *testing.T) {
	got := Classify(FailurePayload{Message: "Account has insufficient margin balance"})
	if got != FailInsufficientMargin {
		t.Fatalf("expected insufficient_margin, got %s", got)
	}
}

func TestClassifyMinNotionalByMessage(t *testing.T) {
	got := Classify(FailurePayload{Message: "Filter failure: NOTIONAL, no smaller than minimum"})
	if got != FailMinNotional && got != FailFilterFail {
		t.Fatalf("expected min_notional or filter_fail, got %s", got)
	}
}

func TestClassifyHTTP400Fallback(t *testing.T) {
	got := Classify(FailurePayload{HTTPStatus: 400, Message: "weird unclassified error"})
	if got != FailHTTP400 {
		t.Fatalf("expected http400 fallback, got %s", got)
	}
}

func TestCooldownAllowEntryBeforeAndAfter(t *testing.T) {
	m := NewCooldownManager(CooldownConfig{BackoffMult: 2, MaxSec: 3600, FailWindowSec: 900})
	ok, _ := m.AllowEntry("X", 1000)
	if !ok {
		t.Fatal("expected entry allowed with no prior failures")
	}

	m.OnEntryFailed("X", FailurePayload{HTTPStatus: 429}, 1000)
	ok, reason := m.AllowEntry("X", 1500)
	if ok {
		t.Fatalf("expected entry blocked during cooldown, reason=%s", reason)
	}

	ok, _ = m.AllowEntry("X", 1000+6000)
	if !ok {
		t.Fatal("expected entry allowed after cooldown elapses")
	}
}

func TestCooldownNeverShortensOutstanding(t *testing.T) {
	m := NewCooldownManager(CooldownConfig{BackoffMult: 2, MaxSec: 3600, FailWindowSec: 900})
	st1 := m.OnEntryFailed("X", FailurePayload{Code: -2015}, 1000) // unauthorized, 600s base
	m.OnEntryFailed("X", FailurePayload{HTTPStatus: 429}, 1001)    // rate_limit, 5s base — should not shorten
	st2 := m.Get("X")
	if st2.UntilMs < st1.UntilMs {
		t.Fatalf("expected cooldown to never shorten: %d < %d", st2.UntilMs, st1.UntilMs)
	}
}

func TestCooldownBackoffGrowsWithRepeatedFailures(t *testing.T) {
	m := NewCooldownManager(CooldownConfig{BackoffMult: 2, MaxSec: 3600, FailWindowSec: 900})
	st1 := m.OnEntryFailed("X", FailurePayload{HTTPStatus: 429}, 1000) // 5s base
	firstDelay := st1.UntilMs - 1000

	resumeAt := st1.UntilMs + 1
	st2 := m.OnEntryFailed("X", FailurePayload{HTTPStatus: 429}, resumeAt) // 2nd failure, fail_count=2
	secondDelay := st2.UntilMs - resumeAt

	if secondDelay <= firstDelay {
		t.Fatalf("expected growing backoff, first=%dms second=%dms", firstDelay, secondDelay)
	}
}

func TestCooldownOnEntryFilledResetsFailCount(t *testing.T) {
	m := NewCooldownManager(CooldownConfig{BackoffMult: 2, MaxSec: 3600, FailWindowSec: 900, AfterEntryFillSec: 1})
	m.OnEntryFailed("X", FailurePayload{HTTPStatus: 429}, 1000)
	m.OnEntryFilled("X", 100000)
	st := m.Get("X")
	if st.FailCount != 0 {
		t.Fatalf("expected fail count reset to 0, got %d", st.FailCount)
	}
}
