package main

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalAppendFillWritesLine(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.AppendFill(FillRecord{Ts: time.Now(), Venue: "paper", Symbol: "X", Side: SideBuy, Qty: 1, Price: 100}); err != nil {
		t.Fatal(err)
	}
	lines := countLines(t, filepath.Join(dir, "fills.jsonl"))
	if lines != 1 {
		t.Fatalf("expected 1 line, got %d", lines)
	}
}

func TestJournalEquityThrottledSkipsWithinWindow(t *testing.T) {
	dir := t.TempDir()
	j, _ := NewJournal(dir)

	wrote1, err := j.AppendEquityThrottled(EquitySnapshot{Ts: time.Now(), Equity: 1000})
	if err != nil || !wrote1 {
		t.Fatalf("expected first write to succeed, wrote=%v err=%v", wrote1, err)
	}

	wrote2, err := j.AppendEquityThrottled(EquitySnapshot{Ts: time.Now(), Equity: 1001})
	if err != nil || wrote2 {
		t.Fatalf("expected second write to be throttled, wrote=%v err=%v", wrote2, err)
	}

	lines := countLines(t, filepath.Join(dir, "equity_history.jsonl"))
	if lines != 1 {
		t.Fatalf("expected 1 line after throttling, got %d", lines)
	}
}

func TestJournalWritePositionsAtomic(t *testing.T) {
	dir := t.TempDir()
	j, _ := NewJournal(dir)
	positions := map[string]Position{"X": {Venue: "paper", Symbol: "X", Qty: d("1")}}
	if err := j.WritePositions("paper", positions); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "positions_paper.json")); err != nil {
		t.Fatal(err)
	}
}

func TestJournalWriteBotSnapshotCreatesNestedFile(t *testing.T) {
	dir := t.TempDir()
	j, _ := NewJournal(dir)
	err := j.WriteBotSnapshot(BotSnapshot{Venue: "paper", Symbol: "X", UpdatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bots", "paper_X.json")); err != nil {
		t.Fatal(err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}
