// FILE: main.go
// Package main – Program entrypoint: CLI, HTTP metrics server, and the
// boot sequence that wires config, broker, streams, and the control loop.
//
// A single flag.Parse() boot path (-backtest, -live, -interval) is
// generalized here into a cobra root command with "run" and
// "validate-config" subcommands, since a multi-venue engine has enough
// distinct startup concerns (one process per venue/account, per §5) to
// outgrow a flat flag set. The boot order itself — load config, wire broker,
// preflight, start the metrics server, run until signaled, shut down
// gracefully — mirrors the original step-by-step main().
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "scalpcore",
		Short: "Multi-venue algorithmic scalping engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateConfigCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the config file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("config ok: venue=%s strategy=%s symbols=%v mode=%s\n", cfg.Venue, cfg.Strategy, cfg.Symbols, cfg.Mode)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the control loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(stdCtx context.Context) error {
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log := NewLogger(cfg.Logging)
	log.Info().Str("venue", cfg.Venue).Str("mode", string(cfg.Mode)).Strs("symbols", cfg.Symbols).Msg("booting")

	broker, err := newBroker(cfg, log)
	if err != nil {
		return fmt.Errorf("wire broker: %w", err)
	}
	defer func() { _ = broker.Close() }()

	ctx, cancel := signal.NotifyContext(stdCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := Preflight(ctx, cfg, broker); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	if broker.Supports(FeatureSyncTime) {
		if err := broker.SyncTime(ctx); err != nil {
			log.Warn().Err(err).Msg("time sync failed")
		}
	}

	ledger, err := NewPositionLedger(stateFilePath(cfg.StateDir, cfg.Venue))
	if err != nil {
		return fmt.Errorf("position ledger: %w", err)
	}

	exposurePath := cfg.Risk.GlobalRiskPath
	if exposurePath == "" {
		exposurePath = filepath.Join(cfg.StateDir, "global_risk.json")
	}
	exposure := NewSharedExposureStore(exposurePath, 30)

	journal, err := NewJournal(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	engine := NewEngine(cfg, broker, broker, ledger, exposure, journal, log)
	wireStreams(ctx, cfg, engine, log)

	srv := startMetricsServer(cfg.MetricsPort, log)
	defer shutdownServer(srv, log)

	engine.Run(ctx)
	log.Info().Msg("shutdown complete")
	return nil
}

// newBroker picks the venue adapter by config, switching on cfg.Mode/cfg.BridgeURL
// the way a BROKER env var selects an adapter in a single-venue boot path.
func newBroker(cfg *Config, log zerolog.Logger) (Broker, error) {
	switch cfg.Mode {
	case ModePaper:
		return NewPaperBroker(10000), nil
	default:
		if cfg.BridgeURL == "" {
			return nil, errors.New("bridge_url is required outside paper mode")
		}
		return NewBridgeBroker(cfg.Venue, cfg.BridgeURL, 10), nil
	}
}

// wireStreams starts, per symbol, a trade stream goroutine when
// streams.use_ws_trades is set and a liquidation stream goroutine when
// streams.use_liquidation_stream is set, dialing the bridge sidecar with its
// http(s) scheme swapped for ws(s) and feeding the engine's per-symbol
// feature books directly (§5's stream-to-book handoff).
func wireStreams(ctx context.Context, cfg *Config, engine *Engine, log zerolog.Logger) {
	if cfg.BridgeURL == "" {
		return
	}
	streamLog := Component(log, "streams")
	wsBase := strings.Replace(cfg.BridgeURL, "http", "ws", 1)
	for _, symbol := range cfg.Symbols {
		symbol := symbol
		if cfg.Streams.UseWSTrades {
			tradeURL := fmt.Sprintf("%s/stream/trades/%s", wsBase, symbol)
			ts := NewTradeStream(tradeURL, ParseGenericTrade, streamLog)
			go ts.Run(ctx)
			go pumpTrades(ctx, ts, engine.PressureBook(symbol), engine.FlowBook(symbol))
		}

		if cfg.Streams.UseLiquidationStream {
			liqURL := fmt.Sprintf("%s/stream/liquidations/%s", wsBase, symbol)
			ls := NewLiquidationStream(liqURL, ParseGenericLiquidation, streamLog)
			go ls.Run(ctx)
			go pumpLiquidations(ctx, ls, engine.LiquidationBook(symbol))
		}
	}
}

func pumpTrades(ctx context.Context, s *TradeStream, pressure *TradePressureBook, flow *TradeFlowBook) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.Trades():
			if !ok {
				return
			}
			pressure.AddTrade(t)
			flow.AddTrade(t)
		}
	}
}

func pumpLiquidations(ctx context.Context, s *LiquidationStream, liq *LiquidationClusterBook) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.Liquidations():
			if !ok {
				return
			}
			liq.AddEvent(ev)
		}
	}
}

func startMetricsServer(port int, log zerolog.Logger) *http.Server {
	if port <= 0 {
		port = 8080
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Info().Int("port", port).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, log zerolog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
}
