// FILE: broker_bridge.go
// Package main – HTTP broker adapter fronting a generic trading sidecar.
//
// Kept the flexible-parsing fallback for normalizing whatever JSON shape the
// sidecar returns into the canonical OrderUpdate, but replaced a raw
// net/http.Client with resty's request builder and added a token-bucket
// limiter over outbound calls.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// BridgeBroker talks to a local HTTP sidecar that fronts a venue's REST API.
// It is not venue-specific itself (§1): the wire shape it speaks is generic
// order/price/candle JSON, normalized at this boundary.
type BridgeBroker struct {
	name    string
	client  *resty.Client
	limiter *rate.Limiter
}

// NewBridgeBroker builds a client against base, rate-limited to
// requestsPerSec with a burst of the same size (defaults: 10/10).
func NewBridgeBroker(name, base string, requestsPerSec float64) *BridgeBroker {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	base = strings.TrimRight(base, "/")
	if requestsPerSec <= 0 {
		requestsPerSec = 10
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", "scalpcore/bridge").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	return &BridgeBroker{
		name:    name,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)),
	}
}

func (bb *BridgeBroker) Name() string { return bb.name }

func (bb *BridgeBroker) Supports(feature BrokerFeature) bool {
	switch feature {
	case FeatureGetOrderUpdate, FeatureGetSymbolRules, FeatureGetOrderbook, FeatureCancelOrder, FeatureIOCLimit:
		return true
	default:
		return false
	}
}

// wait blocks for limiter headroom before every outbound call.
func (bb *BridgeBroker) wait(ctx context.Context) error {
	return bb.limiter.Wait(ctx)
}

func (bb *BridgeBroker) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := bb.wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Price string `json:"price"`
	}
	resp, err := bb.client.R().SetContext(ctx).SetResult(&out).
		SetPathParam("symbol", symbol).
		Get("/product/{symbol}")
	if err != nil {
		return 0, fmt.Errorf("bridge: get last price: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bridge: get last price %d: %s", resp.StatusCode(), resp.String())
	}
	return strconv.ParseFloat(out.Price, 64)
}

func (bb *BridgeBroker) GetEquity(ctx context.Context) (float64, error) {
	if err := bb.wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Equity float64 `json:"equity"`
	}
	resp, err := bb.client.R().SetContext(ctx).SetResult(&out).Get("/account/equity")
	if err != nil {
		return 0, fmt.Errorf("bridge: get equity: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bridge: get equity %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Equity, nil
}

func (bb *BridgeBroker) GetPositions(ctx context.Context) (map[string]float64, error) {
	if err := bb.wait(ctx); err != nil {
		return nil, err
	}
	var out map[string]float64
	resp, err := bb.client.R().SetContext(ctx).SetResult(&out).Get("/account/positions")
	if err != nil {
		return nil, fmt.Errorf("bridge: get positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge: get positions %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (bb *BridgeBroker) GetRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	if err := bb.wait(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 300
	}
	type row struct {
		Start  any `json:"start"`
		Open   any `json:"open"`
		High   any `json:"high"`
		Low    any `json:"low"`
		Close  any `json:"close"`
		Volume any `json:"volume"`
	}
	var rows []row
	resp, err := bb.client.R().SetContext(ctx).SetResult(&rows).
		SetQueryParam("product_id", symbol).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get("/candles")
	if err != nil {
		return nil, fmt.Errorf("bridge: get candles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge: get candles %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{
			Time:   parseBridgeTime(r.Start),
			Open:   parseBridgeFloat(r.Open),
			High:   parseBridgeFloat(r.High),
			Low:    parseBridgeFloat(r.Low),
			Close:  parseBridgeFloat(r.Close),
			Volume: parseBridgeFloat(r.Volume),
		})
	}
	return out, nil
}

// PlaceOrder posts the order and normalizes whatever JSON shape the sidecar
// returns into the canonical OrderUpdate, the same flexible-parsing fallback
// a market-quote placement path needs against an SDK response it doesn't
// fully control.
func (bb *BridgeBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderUpdate, error) {
	if err := bb.wait(ctx); err != nil {
		return OrderUpdate{}, err
	}
	body := map[string]any{
		"product_id":      req.Symbol,
		"side":            strings.ToUpper(string(req.Side)),
		"order_type":      strings.ToUpper(string(req.OrderType)),
		"qty":             req.Qty,
		"price":           req.Price,
		"client_order_id": req.ClientOrderID,
		"time_in_force":   req.Meta.TimeInForce,
		"reduce_only":     req.Meta.ReduceOnly,
	}

	var raw map[string]any
	resp, err := bb.client.R().SetContext(ctx).SetBody(body).SetResult(&raw).Post("/order")
	if err != nil {
		return OrderUpdate{}, fmt.Errorf("bridge: place order: %w", err)
	}
	if resp.IsError() {
		return OrderUpdate{}, fmt.Errorf("bridge: place order %d: %s", resp.StatusCode(), resp.String())
	}
	return normalizeOrderUpdate(bb.name, req.Symbol, req.ClientOrderID, raw), nil
}

func (bb *BridgeBroker) GetOrderUpdate(ctx context.Context, symbol, orderID string) (OrderUpdate, error) {
	if err := bb.wait(ctx); err != nil {
		return OrderUpdate{}, err
	}
	var raw map[string]any
	resp, err := bb.client.R().SetContext(ctx).SetResult(&raw).
		SetQueryParam("product_id", symbol).
		SetQueryParam("order_id", orderID).
		Get("/order")
	if err != nil {
		return OrderUpdate{}, fmt.Errorf("bridge: get order: %w", err)
	}
	if resp.IsError() {
		return OrderUpdate{}, fmt.Errorf("bridge: get order %d: %s", resp.StatusCode(), resp.String())
	}
	return normalizeOrderUpdate(bb.name, symbol, "", raw), nil
}

func (bb *BridgeBroker) GetSymbolRules(ctx context.Context, symbol string) (SymbolRules, error) {
	if err := bb.wait(ctx); err != nil {
		return SymbolRules{}, err
	}
	var out SymbolRules
	resp, err := bb.client.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("product_id", symbol).
		Get("/symbol_rules")
	if err != nil {
		return SymbolRules{}, fmt.Errorf("bridge: get symbol rules: %w", err)
	}
	if resp.IsError() {
		return SymbolRules{}, fmt.Errorf("bridge: get symbol rules %d: %s", resp.StatusCode(), resp.String())
	}
	out.Symbol = symbol
	out.RefreshedAt = time.Now().UTC()
	return out, nil
}

func (bb *BridgeBroker) GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error) {
	if err := bb.wait(ctx); err != nil {
		return OrderbookSnapshot{}, err
	}
	if depth <= 0 {
		depth = 10
	}
	var out struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
	}
	resp, err := bb.client.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("product_id", symbol).
		SetQueryParam("depth", strconv.Itoa(depth)).
		Get("/orderbook")
	if err != nil {
		return OrderbookSnapshot{}, fmt.Errorf("bridge: get orderbook: %w", err)
	}
	if resp.IsError() {
		return OrderbookSnapshot{}, fmt.Errorf("bridge: get orderbook %d: %s", resp.StatusCode(), resp.String())
	}

	ob := OrderbookSnapshot{Symbol: symbol, TsMs: time.Now().UnixMilli()}
	for _, lvl := range out.Bids {
		ob.Bids = append(ob.Bids, PriceLevel{Price: lvl[0], Qty: lvl[1]})
	}
	for _, lvl := range out.Asks {
		ob.Asks = append(ob.Asks, PriceLevel{Price: lvl[0], Qty: lvl[1]})
	}
	return ob, nil
}

func (bb *BridgeBroker) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return ErrUnsupported{Feature: FeatureSetLeverage}
}

func (bb *BridgeBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := bb.wait(ctx); err != nil {
		return err
	}
	resp, err := bb.client.R().SetContext(ctx).
		SetQueryParam("product_id", symbol).
		SetQueryParam("order_id", orderID).
		Delete("/order")
	if err != nil {
		return fmt.Errorf("bridge: cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge: cancel order %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (bb *BridgeBroker) ListOpenOrders(ctx context.Context, symbol string) ([]OrderUpdate, error) {
	return nil, ErrUnsupported{Feature: FeatureListOpenOrders}
}
func (bb *BridgeBroker) GetDualSidePosition(ctx context.Context) (bool, error) {
	return false, ErrUnsupported{Feature: FeatureGetDualSidePosition}
}
func (bb *BridgeBroker) SyncTime(ctx context.Context) error { return nil }
func (bb *BridgeBroker) Close() error                       { return nil }

// --- normalization helpers ---

func parseBridgeFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func parseBridgeTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if tt, err := time.Parse(time.RFC3339, t); err == nil {
			return tt
		}
		if sec, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	case float64:
		return time.Unix(int64(t), 0).UTC()
	}
	return time.Time{}
}

// normalizeOrderUpdate reads a flexible set of key aliases out of an
// arbitrary sidecar JSON response, the same best-effort parsing a
// market-quote placement fallback needs against an SDK response it doesn't
// fully control.
func normalizeOrderUpdate(venue, symbol, clientOrderID string, m map[string]any) OrderUpdate {
	readStr := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := m[k]; ok {
				switch t := v.(type) {
				case string:
					if strings.TrimSpace(t) != "" {
						return t
					}
				case float64:
					return strconv.FormatFloat(t, 'f', -1, 64)
				}
			}
		}
		return ""
	}

	orderID := readStr("order_id", "orderId", "id")
	statusStr := strings.ToUpper(readStr("status", "order_status"))
	price := parseBridgeFloat(m["avg_price"])
	if price == 0 {
		price = parseBridgeFloat(m["average_price"])
	}
	filled := parseBridgeFloat(m["filled_qty"])
	if filled == 0 {
		filled = parseBridgeFloat(m["filled_size"])
	}
	fee := parseBridgeFloat(m["fee"])

	status := StatusNew
	switch statusStr {
	case string(StatusFilled):
		status = StatusFilled
	case string(StatusPartiallyFilled):
		status = StatusPartiallyFilled
	case string(StatusCanceled):
		status = StatusCanceled
	case string(StatusRejected):
		status = StatusRejected
	default:
		if filled > 0 {
			status = StatusFilled
		}
	}

	return OrderUpdate{
		Venue:         venue,
		OrderID:       orderID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Status:        status,
		FilledQty:     filled,
		AvgFillPrice:  price,
		Fee:           fee,
		Ts:            time.Now().UTC(),
		Raw:           m,
	}
}
