// FILE: streams.go
// Package main – WebSocket trade/liquidation stream ingestion (§5).
//
// One goroutine per trade stream and one for the liquidation stream, each
// dialing gorilla/websocket and writing only into feature books; the control
// loop only reads snapshots. Stream-to-book handoff uses a buffered channel
// with a safeSend idiom: a full buffer is drained of its one stale entry and
// resent, rather than blocking the WS read loop.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TradeParser decodes one raw WS message into a Trade. ok=false means the
// message was a non-trade control frame (heartbeat, subscribe ack) and
// should be silently skipped.
type TradeParser func(raw []byte) (t Trade, ok bool, err error)

// LiquidationParser decodes one raw WS message into a Liquidation.
type LiquidationParser func(raw []byte) (liq Liquidation, ok bool, err error)

// safeSendTrade delivers res even if the buffer is momentarily full: drop
// the one stale buffered item and resend the latest, so a stalled consumer
// never backs up the WS read loop.
func safeSendTrade(ch chan Trade, t Trade) {
	select {
	case ch <- t:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- t:
		default:
		}
	}
}

func safeSendLiquidation(ch chan Liquidation, l Liquidation) {
	select {
	case ch <- l:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- l:
		default:
		}
	}
}

// TradeStream dials url and feeds parsed trades into pressure/flow books
// until ctx is canceled. Reconnects with backoff on read errors.
type TradeStream struct {
	url    string
	parse  TradeParser
	log    zerolog.Logger
	out    chan Trade
}

// NewTradeStream builds a stream with a buffered handoff channel (cap 256).
func NewTradeStream(url string, parse TradeParser, log zerolog.Logger) *TradeStream {
	return &TradeStream{url: url, parse: parse, log: Component(log, "trade_stream"), out: make(chan Trade, 256)}
}

// Trades returns the channel feature books should drain.
func (s *TradeStream) Trades() <-chan Trade { return s.out }

// Run dials and reads until ctx is canceled, reconnecting with backoff.
func (s *TradeStream) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *TradeStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("read error, reconnecting")
			}
			return
		}
		t, ok, err := s.parse(raw)
		if err != nil {
			s.log.Debug().Err(err).Msg("parse error, skipping message")
			continue
		}
		if !ok {
			continue
		}
		safeSendTrade(s.out, t)
	}
}

// LiquidationStream mirrors TradeStream for the forced-order feed.
type LiquidationStream struct {
	url   string
	parse LiquidationParser
	log   zerolog.Logger
	out   chan Liquidation
}

func NewLiquidationStream(url string, parse LiquidationParser, log zerolog.Logger) *LiquidationStream {
	return &LiquidationStream{url: url, parse: parse, log: Component(log, "liquidation_stream"), out: make(chan Liquidation, 256)}
}

func (s *LiquidationStream) Liquidations() <-chan Liquidation { return s.out }

func (s *LiquidationStream) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *LiquidationStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("read error, reconnecting")
			}
			return
		}
		l, ok, err := s.parse(raw)
		if err != nil {
			s.log.Debug().Err(err).Msg("parse error, skipping message")
			continue
		}
		if !ok {
			continue
		}
		safeSendLiquidation(s.out, l)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// GenericTradeMessage is the flexible wire shape a venue's trade stream is
// assumed to speak when no venue-specific parser is supplied: price/qty as
// either string or float64, and a taker-side string ("buy"/"sell").
type GenericTradeMessage struct {
	Price any    `json:"price"`
	Qty   any    `json:"qty"`
	Side  string `json:"side"`
	TsMs  any    `json:"ts_ms"`
}

// ParseGenericTrade is the default TradeParser, tolerant of mixed
// string/float64 wire shapes the same way broker_bridge.go's candle parsing
// is.
func ParseGenericTrade(raw []byte) (Trade, bool, error) {
	var m GenericTradeMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Trade{}, false, err
	}
	price := parseBridgeFloat(m.Price)
	qty := parseBridgeFloat(m.Qty)
	if price <= 0 || qty <= 0 {
		return Trade{}, false, nil
	}
	tsMs := int64(parseBridgeFloat(m.TsMs))
	if tsMs <= 0 {
		tsMs = time.Now().UnixMilli()
	}
	return Trade{TsMs: tsMs, Price: price, Qty: qty, IsBuy: m.Side == "buy" || m.Side == "BUY"}, true, nil
}

// GenericLiquidationMessage mirrors GenericTradeMessage for forced orders.
type GenericLiquidationMessage struct {
	Price any    `json:"price"`
	Qty   any    `json:"qty"`
	Side  string `json:"side"`
	TsMs  any    `json:"ts_ms"`
}

// ParseGenericLiquidation is the default LiquidationParser.
func ParseGenericLiquidation(raw []byte) (Liquidation, bool, error) {
	var m GenericLiquidationMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Liquidation{}, false, err
	}
	price := parseBridgeFloat(m.Price)
	qty := parseBridgeFloat(m.Qty)
	if price <= 0 || qty <= 0 {
		return Liquidation{}, false, nil
	}
	tsMs := int64(parseBridgeFloat(m.TsMs))
	if tsMs <= 0 {
		tsMs = time.Now().UnixMilli()
	}
	side := LiqSell
	if m.Side == "buy" || m.Side == "BUY" {
		side = LiqBuy
	}
	return Liquidation{TsMs: tsMs, Side: side, Price: price, Qty: qty}, true, nil
}
