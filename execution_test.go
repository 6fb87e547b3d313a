package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildIOCLadderBuySide(t *testing.T) {
	prices := BuildIOCLadder(SideBuy, 99, 100, 5, 15, 0)
	if len(prices) == 0 {
		t.Fatal("expected non-empty ladder")
	}
	for i := 1; i < len(prices); i++ {
		if prices[i] < prices[i-1] {
			t.Fatalf("expected non-decreasing chase prices for BUY, got %v", prices)
		}
	}
}

func TestBuildIOCLadderSellSide(t *testing.T) {
	prices := BuildIOCLadder(SideSell, 100, 101, 5, 15, 0)
	for i := 1; i < len(prices); i++ {
		if prices[i] > prices[i-1] {
			t.Fatalf("expected non-increasing chase prices for SELL, got %v", prices)
		}
	}
}

func TestBuildIOCLadderHintPriceClampsBuy(t *testing.T) {
	prices := BuildIOCLadder(SideBuy, 99, 100, 5, 5, 200)
	if prices[0] != 200 {
		t.Fatalf("expected hint price to raise the ladder floor, got %v", prices)
	}
}

func TestExecuteFillsImmediatelyOnPaperBroker(t *testing.T) {
	pb := NewPaperBroker(10000)
	pb.SetPrice("X", 100)
	eng := NewExecutionEngine(pb, ExecutionConfig{}, zerolog.Nop())

	upd := eng.Execute(context.Background(), OrderRequest{
		Venue: "paper", Symbol: "X", Side: SideBuy, OrderType: OrderTypeMarket, Qty: 1,
	})
	if upd.Status != StatusFilled || upd.FilledQty != 1 {
		t.Fatalf("expected immediate fill, got %+v", upd)
	}
}

func TestExecuteIOCLimitPricesThenMarketAggregatesLegs(t *testing.T) {
	pb := NewPaperBroker(10000)
	pb.SetPrice("X", 100)
	eng := NewExecutionEngine(pb, ExecutionConfig{}, zerolog.Nop())

	upd := eng.ExecuteIOCLimitPricesThenMarket(context.Background(),
		OrderRequest{Venue: "paper", Symbol: "X", Side: SideBuy, Qty: 2},
		[]float64{100.5},
		true,
	)
	if upd.Status != StatusFilled || upd.FilledQty != 2 {
		t.Fatalf("expected fully filled aggregate, got %+v", upd)
	}
}

type rejectingBroker struct{ *PaperBroker }

func (r *rejectingBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderUpdate, error) {
	return OrderUpdate{}, errUnreachable
}

var errUnreachable = &brokerErr{"unreachable"}

type brokerErr struct{ msg string }

func (e *brokerErr) Error() string { return e.msg }

func TestExecuteCollapsesBrokerErrorToRejected(t *testing.T) {
	rb := &rejectingBroker{PaperBroker: NewPaperBroker(10000)}
	eng := NewExecutionEngine(rb, ExecutionConfig{}, zerolog.Nop())

	upd := eng.Execute(context.Background(), OrderRequest{
		Venue: "paper", Symbol: "X", Side: SideBuy, OrderType: OrderTypeMarket, Qty: 1,
	})
	if upd.Status != StatusRejected {
		t.Fatalf("expected synthetic rejected update, got %+v", upd)
	}
}
