// FILE: broker.go
// Package main – Venue-agnostic broker adapter interface (§6).
//
// A superset of a single-venue Broker interface, generalized to a
// mandatory/optional split: core methods every venue must implement, plus a
// capability set gated by Supports(feature), the same way a paper broker
// stubs out unsupported maker-first behavior.
package main

import "context"

// BrokerFeature names an optional broker capability.
type BrokerFeature string

const (
	FeatureGetOrderUpdate      BrokerFeature = "get_order_update"
	FeatureGetSymbolRules      BrokerFeature = "get_symbol_rules"
	FeatureGetOrderbook        BrokerFeature = "get_orderbook"
	FeatureSetLeverage         BrokerFeature = "set_leverage"
	FeatureCancelOrder         BrokerFeature = "cancel_order"
	FeatureListOpenOrders      BrokerFeature = "list_open_orders"
	FeatureGetDualSidePosition BrokerFeature = "get_dual_side_position"
	FeatureSyncTime            BrokerFeature = "sync_time"
	FeatureClose               BrokerFeature = "close"
	FeatureIOCLimit            BrokerFeature = "ioc_limit"
)

// Broker is what the execution engine and control loop depend on. Every
// venue adapter (paper, bridge) implements the mandatory methods; optional
// behavior is probed with Supports before being invoked.
type Broker interface {
	Name() string
	Supports(feature BrokerFeature) bool

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderUpdate, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetEquity(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) (map[string]float64, error)
	GetRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error)

	// Optional capabilities; callers check Supports first. Most of these return
	// (zero value, ErrUnsupported) on an adapter without the feature, but
	// SyncTime and Close return nil and PaperBroker.GetDualSidePosition
	// returns (false, nil).
	GetOrderUpdate(ctx context.Context, symbol, orderID string) (OrderUpdate, error)
	GetSymbolRules(ctx context.Context, symbol string) (SymbolRules, error)
	GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error
	CancelOrder(ctx context.Context, symbol, orderID string) error
	ListOpenOrders(ctx context.Context, symbol string) ([]OrderUpdate, error)
	GetDualSidePosition(ctx context.Context) (bool, error)
	SyncTime(ctx context.Context) error
	Close() error
}

// ErrUnsupported is returned by optional Broker methods on adapters that
// don't implement the corresponding feature.
type ErrUnsupported struct{ Feature BrokerFeature }

func (e ErrUnsupported) Error() string { return "broker: unsupported feature " + string(e.Feature) }
