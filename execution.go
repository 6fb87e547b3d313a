// FILE: execution.go
// Package main – IOC ladder execution engine (§4.8).
//
// Generalizes a maker-first/post-only async-channel protocol (pending-order
// channel drain loop, PendingOpen, repriceUpdatePending) from a single
// post-only limit order with a repricing loop into a synchronous IOC ladder:
// the repricing idea becomes the ladder's successive pad widening, and the
// async drain-channel idea becomes the post-trade confirmation poll below.
package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ExecutionEngine places orders through a Broker, wrapping every broker call
// in a per-venue circuit breaker that short-circuits after repeated
// transport failures, independent of (and faster-reacting than) the
// cooldown manager's entry-level backoff.
type ExecutionEngine struct {
	broker Broker
	cfg    ExecutionConfig
	log    zerolog.Logger

	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

// NewExecutionEngine builds an engine against broker, tuned by cfg.
func NewExecutionEngine(broker Broker, cfg ExecutionConfig, log zerolog.Logger) *ExecutionEngine {
	if cfg.ConfirmMaxAttempts <= 0 {
		cfg.ConfirmMaxAttempts = 3
	}
	if cfg.ConfirmBaseSleepSec <= 0 {
		cfg.ConfirmBaseSleepSec = 1
	}
	return &ExecutionEngine{
		broker:   broker,
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *ExecutionEngine) breakerFor(venue string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[venue]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker:" + venue,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			observeBreakerState(venue, float64(to))
		},
	})
	e.breakers[venue] = cb
	return cb
}

// Execute places a single order, wrapped by the venue's circuit breaker.
// Adapter errors (including an open breaker) collapse into a synthetic
// REJECTED update rather than propagating, then runs post-trade
// confirmation polling.
func (e *ExecutionEngine) Execute(ctx context.Context, req OrderRequest) OrderUpdate {
	cb := e.breakerFor(req.Venue)

	result, err := cb.Execute(func() (interface{}, error) {
		return e.broker.PlaceOrder(ctx, req)
	})
	if err != nil {
		e.log.Warn().Err(err).Str("venue", req.Venue).Str("symbol", req.Symbol).Msg("place order failed")
		return OrderUpdate{
			Venue: req.Venue, Symbol: req.Symbol, ClientOrderID: req.ClientOrderID,
			Status: StatusRejected, Ts: time.Now().UTC(),
		}
	}

	upd := result.(OrderUpdate)
	return e.confirm(ctx, upd)
}

// confirm polls GetOrderUpdate (if supported) when the initial response
// looks like it's still in flight: no fill yet, non-terminal status, but an
// order_id we can poll against.
func (e *ExecutionEngine) confirm(ctx context.Context, upd OrderUpdate) OrderUpdate {
	if upd.FilledQty != 0 || upd.Terminal() || upd.OrderID == "" {
		return upd
	}
	if !e.broker.Supports(FeatureGetOrderUpdate) {
		return upd
	}

	for attempt := 1; attempt <= e.cfg.ConfirmMaxAttempts; attempt++ {
		sleepSec := e.cfg.ConfirmBaseSleepSec * (1 + 0.75*float64(attempt))
		select {
		case <-ctx.Done():
			return upd
		case <-time.After(time.Duration(sleepSec * float64(time.Second))):
		}

		next, err := e.broker.GetOrderUpdate(ctx, upd.Symbol, upd.OrderID)
		if err != nil {
			continue
		}
		if next.FilledQty > 0 || next.Terminal() {
			return next
		}
	}
	return upd
}

// ExecuteIOCLimitPricesThenMarket walks prices as a ladder of LIMIT-IOC
// orders, falling back to a MARKET order for any remainder when
// fallbackMarket is true, and synthesizes one aggregated OrderUpdate.
func (e *ExecutionEngine) ExecuteIOCLimitPricesThenMarket(ctx context.Context, req OrderRequest, prices []float64, fallbackMarket bool) OrderUpdate {
	remaining := req.Qty
	filledTotal := 0.0
	wsum := 0.0
	feeTotal := 0.0
	var legIDs []string

	applyLeg := func(upd OrderUpdate, fallbackPx float64) {
		if upd.FilledQty <= 0 {
			return
		}
		px := upd.AvgFillPrice
		if px <= 0 {
			px = fallbackPx
		}
		filledTotal += upd.FilledQty
		wsum += upd.FilledQty * px
		feeTotal += upd.Fee
		remaining -= upd.FilledQty
		if upd.OrderID != "" {
			legIDs = append(legIDs, upd.OrderID)
		}
	}

	for _, px := range prices {
		if remaining <= 0 {
			break
		}
		legReq := req
		legReq.OrderType = OrderTypeLimit
		legReq.Price = px
		legReq.Qty = remaining
		legReq.Meta.TimeInForce = "IOC"

		upd := e.Execute(ctx, legReq)
		applyLeg(upd, px)
	}

	if remaining > 0 && fallbackMarket {
		legReq := req
		legReq.OrderType = OrderTypeMarket
		legReq.Qty = remaining
		lastPx, err := e.broker.GetLastPrice(ctx, req.Symbol)
		if err != nil {
			lastPx = 0
		}
		upd := e.Execute(ctx, legReq)
		applyLeg(upd, lastPx)
	}

	status := StatusRejected
	if remaining <= 0 && filledTotal > 0 {
		status = StatusFilled
	} else if filledTotal > 0 {
		status = StatusPartiallyFilled
	}

	avgPx := 0.0
	if filledTotal > 0 {
		avgPx = wsum / filledTotal
	}

	return OrderUpdate{
		Venue:         req.Venue,
		OrderID:       strings.Join(legIDs, "+"),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        status,
		FilledQty:     filledTotal,
		AvgFillPrice:  avgPx,
		Fee:           feeTotal,
		Ts:            time.Now().UTC(),
	}
}

// BuildIOCLadder constructs up to 3 successively wider-padded prices, per
// side, from best bid/ask, dedup'd consecutively, optionally clamped toward
// an intent hint price (e.g. from a liquidation cluster).
func BuildIOCLadder(side OrderSide, bestBid, bestAsk, padBps, maxChaseBps, hintPrice float64) []float64 {
	if padBps <= 0 {
		padBps = 1
	}
	if maxChaseBps <= 0 {
		maxChaseBps = padBps
	}
	pads := []float64{padBps, (padBps + maxChaseBps) / 2, maxChaseBps}

	priceAt := func(pad float64) float64 {
		var px float64
		if side == SideBuy {
			px = bestAsk * (1 + pad/10000)
			if hintPrice > 0 && px < hintPrice {
				px = hintPrice
			}
		} else {
			px = bestBid * (1 - pad/10000)
			if hintPrice > 0 && px > hintPrice {
				px = hintPrice
			}
		}
		return px
	}

	var out []float64
	for _, pad := range pads {
		px := priceAt(pad)
		if len(out) > 0 && out[len(out)-1] == px {
			continue
		}
		out = append(out, px)
	}
	return out
}

// ErrNoLadder is a sentinel error for an empty IOC price ladder; no function
// in this package returns it.
var ErrNoLadder = errors.New("execution: empty ioc price ladder")
