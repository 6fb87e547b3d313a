// FILE: broker_paper.go
// Package main – In-memory paper broker.
//
// Kept the single mutable last price and uuid-based order IDs, but now
// implements the full Broker interface (IOC-limit + market fills, position
// tracking, symbol rules) so the paper venue can drive the same control loop
// as a live one. Equity stays at its starting value; fills do not change it.
package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker simulates fills against a single mutable last-trade price per
// symbol; there is no real order book, so every order fills immediately at
// (or near) that price.
type PaperBroker struct {
	mu        sync.Mutex
	lastPrice map[string]float64
	equity    float64
	positions map[string]float64
	rules     map[string]SymbolRules
	defaultStep float64
	defaultMinNotional float64
}

// NewPaperBroker seeds starting equity and a default lot-size rule applied
// to any symbol not explicitly registered via SetSymbolRules.
func NewPaperBroker(startingEquity float64) *PaperBroker {
	return &PaperBroker{
		lastPrice:          make(map[string]float64),
		equity:             startingEquity,
		positions:          make(map[string]float64),
		rules:              make(map[string]SymbolRules),
		defaultStep:        0.0001,
		defaultMinNotional: 10,
	}
}

func (p *PaperBroker) Name() string { return "paper" }

func (p *PaperBroker) Supports(feature BrokerFeature) bool {
	switch feature {
	case FeatureGetSymbolRules, FeatureIOCLimit:
		return true
	default:
		return false
	}
}

// SetPrice is test/bootstrap plumbing: records the latest mark for symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[symbol] = price
}

// SetSymbolRules registers explicit lot-size rules for a symbol.
func (p *PaperBroker) SetSymbolRules(symbol string, rules SymbolRules) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[symbol] = rules
}

func (p *PaperBroker) priceLocked(symbol string) float64 {
	if px, ok := p.lastPrice[symbol]; ok && px > 0 {
		return px
	}
	return 0
}

// PlaceOrder fills immediately: LIMIT orders fill at req.Price (simulating a
// marketable IOC against the paper book), MARKET orders fill at the last
// known price. Both update the broker's internal position totals; equity is
// not changed by fills.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderUpdate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fillPrice := req.Price
	if req.OrderType == OrderTypeMarket || fillPrice <= 0 {
		fillPrice = p.priceLocked(req.Symbol)
	}
	if fillPrice <= 0 {
		return OrderUpdate{}, errors.New("paper: no price available to fill order")
	}
	if req.Qty <= 0 {
		return OrderUpdate{}, errors.New("paper: qty must be > 0")
	}

	delta := req.Qty
	if req.Side == SideSell {
		delta = -delta
	}
	p.positions[req.Symbol] += delta
	p.lastPrice[req.Symbol] = fillPrice

	return OrderUpdate{
		Venue:         p.Name(),
		OrderID:       uuid.New().String(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        StatusFilled,
		FilledQty:     req.Qty,
		AvgFillPrice:  fillPrice,
		Ts:            time.Now().UTC(),
	}, nil
}

func (p *PaperBroker) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	px := p.priceLocked(symbol)
	if px <= 0 {
		return 0, errors.New("paper: no price seeded for " + symbol)
	}
	return px, nil
}

func (p *PaperBroker) GetEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity, nil
}

func (p *PaperBroker) GetPositions(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out, nil
}

// errPaperNoCandleFeed is returned by GetRecentCandles; preflight checks
// tolerate it since paper mode consumes market data from a separate source.
var errPaperNoCandleFeed = errors.New("paper broker has no candle feed; feed candles externally")

// GetRecentCandles is unsupported in paper mode: paper trading consumes
// market data from elsewhere (bridge/CSV), not from the paper broker itself.
func (p *PaperBroker) GetRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	return nil, errPaperNoCandleFeed
}

func (p *PaperBroker) GetSymbolRules(ctx context.Context, symbol string) (SymbolRules, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rules[symbol]; ok {
		return r, nil
	}
	return SymbolRules{
		Symbol: symbol, QtyStep: p.defaultStep, MinQty: p.defaultStep,
		MaxQty: 1_000_000, MinNotional: p.defaultMinNotional,
	}, nil
}

func (p *PaperBroker) GetOrderUpdate(ctx context.Context, symbol, orderID string) (OrderUpdate, error) {
	return OrderUpdate{}, ErrUnsupported{Feature: FeatureGetOrderUpdate}
}
func (p *PaperBroker) GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error) {
	return OrderbookSnapshot{}, ErrUnsupported{Feature: FeatureGetOrderbook}
}
func (p *PaperBroker) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return ErrUnsupported{Feature: FeatureSetLeverage}
}
func (p *PaperBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return ErrUnsupported{Feature: FeatureCancelOrder}
}
func (p *PaperBroker) ListOpenOrders(ctx context.Context, symbol string) ([]OrderUpdate, error) {
	return nil, ErrUnsupported{Feature: FeatureListOpenOrders}
}
func (p *PaperBroker) GetDualSidePosition(ctx context.Context) (bool, error) {
	return false, nil
}
func (p *PaperBroker) SyncTime(ctx context.Context) error { return nil }
func (p *PaperBroker) Close() error                       { return nil }

// parseProductSymbols splits a product like "BTC-USD" into ("BTC", "USD"),
// for adapters that need to report per-asset balances.
func parseProductSymbols(product string) (base string, quote string) {
	product = strings.TrimSpace(product)
	parts := strings.Split(product, "-")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "", ""
}
