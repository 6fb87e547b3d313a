// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// Reads a YAML file with SCALP_* environment overrides via viper, instead of
// a .env-scanning loadConfigFromEnv(). Structure mirrors the grouped
// sub-config pattern from the enrichment pack's internal/config.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects how orders are actually routed.
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
	ModeDemo  Mode = "demo"
)

// StrategyName selects which entry strategy runs; this core implements scalp.
type StrategyName string

const (
	StrategyScalp   StrategyName = "scalp"
	StrategyBlender StrategyName = "blender" // external/legacy; out of scope
)

// MinNotionalPolicy controls how the sizing adjuster handles under-notional orders.
type MinNotionalPolicy string

const (
	PolicySkip MinNotionalPolicy = "skip"
	PolicyBump MinNotionalPolicy = "bump"
	PolicyAuto MinNotionalPolicy = "auto"
)

// OrderSizingMode selects between a fixed notional and an equity-percentage budget.
type OrderSizingMode string

const (
	SizingFixed     OrderSizingMode = "fixed"
	SizingEquityPct OrderSizingMode = "equity_pct"
)

// SizingConfig tunes the exchange-rules sizing adjuster (§4.3).
type SizingConfig struct {
	OrderSizingMode            OrderSizingMode   `mapstructure:"order_sizing_mode"`
	IntendedNotional           float64           `mapstructure:"intended_notional"`
	TradeEquityFrac            float64           `mapstructure:"trade_equity_frac"`
	Leverage                   float64           `mapstructure:"leverage"`
	MinNotionalPolicy          MinNotionalPolicy `mapstructure:"min_notional_policy"`
	MinNotionalBuffer          float64           `mapstructure:"min_notional_buffer"`
	AutoBumpMaxOverNotionalFrac float64          `mapstructure:"auto_bump_max_over_notional_frac"`
	AutoBumpMaxEquityFrac      float64           `mapstructure:"auto_bump_max_equity_frac"`
	AutoBumpMaxOverMarginFrac  float64           `mapstructure:"auto_bump_max_over_margin_frac"`
}

// ExitConfig tunes the exit manager (§4.7).
type ExitConfig struct {
	StopLossPct      float64 `mapstructure:"stop_loss_pct"`
	TrailingStopPct  float64 `mapstructure:"trailing_stop_pct"`
	TakeProfitNetPct float64 `mapstructure:"take_profit_net_pct"`
	FeeRate          float64 `mapstructure:"fee_rate"`
	SlippageRate     float64 `mapstructure:"slippage_rate"`
}

// ScalpFilterConfig tunes the entry decision pipeline (§4.9).
type ScalpFilterConfig struct {
	Min1mTradeValue      float64 `mapstructure:"min_1m_trade_value"`
	MinOrderbookNotional float64 `mapstructure:"min_orderbook_notional"`
	MinVolSurge          float64 `mapstructure:"min_vol_surge"`
	MaxSpreadBps         float64 `mapstructure:"max_spread_bps"`
	Max1mRangePct        float64 `mapstructure:"max_1m_range_pct"`
	Max1mBodyPct         float64 `mapstructure:"max_1m_body_pct"`
	MinTradePressureNotional float64 `mapstructure:"min_trade_pressure_notional"`
	TradePressureThreshold   float64 `mapstructure:"trade_pressure_threshold"`
	ObImbalanceThreshold     float64 `mapstructure:"ob_imbalance_threshold"`
	MinObImbDelta            float64 `mapstructure:"min_ob_imb_delta"`
	MinFlowRateZ             float64 `mapstructure:"min_flow_rate_z"`
	MinFlowAccelZ            float64 `mapstructure:"min_flow_accel_z"`
	MinTradeCount            int     `mapstructure:"min_trade_count"`
	MinLargeTradeShare       float64 `mapstructure:"min_large_trade_share"`

	UseRSICross        bool    `mapstructure:"use_rsi_cross"`
	RSILongTrigger     float64 `mapstructure:"rsi_long_trigger"`
	RSIShortMin        float64 `mapstructure:"rsi_short_min"`
	RSIShortMax        float64 `mapstructure:"rsi_short_max"`
	RequireReversalCandle bool `mapstructure:"require_reversal_candle"`
}

// ExecutionConfig tunes the IOC ladder execution engine (§4.8).
type ExecutionConfig struct {
	EntryUseIOC         bool    `mapstructure:"entry_use_ioc"`
	ExitUseIOC          bool    `mapstructure:"exit_use_ioc"`
	IOCPricePadBps      float64 `mapstructure:"ioc_price_pad_bps"`
	IOCMaxChaseBps      float64 `mapstructure:"ioc_max_chase_bps"`
	ConfirmMaxAttempts  int     `mapstructure:"confirm_max_attempts"`
	ConfirmBaseSleepSec float64 `mapstructure:"confirm_base_sleep_sec"`
}

// RiskConfig tunes the risk gate (§4.5).
type RiskConfig struct {
	MaxPositionPerSymbol   float64 `mapstructure:"max_position_per_symbol"`
	MaxDailyLoss           float64 `mapstructure:"max_daily_loss"`
	MaxAccountExposureFrac float64 `mapstructure:"max_account_exposure_frac"`
	MaxTotalExposureFrac   float64 `mapstructure:"max_total_exposure_frac"`
	MaxAccountNotional     float64 `mapstructure:"max_account_notional"`
	MaxTotalNotional       float64 `mapstructure:"max_total_notional"`
	AccountTag             string  `mapstructure:"account_tag"`
	GlobalRiskPath         string  `mapstructure:"global_risk_path"`
	SpotOnly               bool    `mapstructure:"spot_only"`
}

// CooldownConfig tunes cause-specific backoff (§4.6).
type CooldownConfig struct {
	BackoffMult     float64            `mapstructure:"backoff_mult"`
	MaxSec          float64            `mapstructure:"max_sec"`
	FailWindowSec   float64            `mapstructure:"fail_window_sec"`
	AfterExitFillSec float64           `mapstructure:"after_exit_fill_sec"`
	AfterEntryFillSec float64          `mapstructure:"after_entry_fill_sec"`
	BaseSecByCategory map[string]float64 `mapstructure:"base_sec_by_category"`
}

// StreamConfig tunes WS ingestion (§5, §2.2).
type StreamConfig struct {
	UseWSTrades           bool `mapstructure:"use_ws_trades"`
	UseLiquidationStream  bool `mapstructure:"use_liquidation_stream"`
	PressureWindowSec     int  `mapstructure:"pressure_window_sec"`
	FlowWindowSec         int  `mapstructure:"flow_window_sec"`
	LiquidationWindowSec  int  `mapstructure:"liquidation_window_sec"`
	LiquidationBucketBps  int  `mapstructure:"liquidation_bucket_bps"`
}

// LoggingConfig tunes the process-wide logger (§2.1).
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the top-level configuration handed to the engine at startup.
type Config struct {
	Mode            Mode             `mapstructure:"mode"`
	TradingEnabled  bool             `mapstructure:"trading_enabled"`
	Venue           string           `mapstructure:"venue"`
	Strategy        StrategyName     `mapstructure:"strategy"`
	Symbols         []string         `mapstructure:"symbols"`
	PollSec         int              `mapstructure:"poll_sec"`
	EntryTF         string           `mapstructure:"entry_tf"`
	StateDir        string           `mapstructure:"state_dir"`
	MetricsPort     int              `mapstructure:"metrics_port"`
	BridgeURL       string           `mapstructure:"bridge_url"`

	Sizing    SizingConfig      `mapstructure:"sizing"`
	Exits     ExitConfig        `mapstructure:"exits"`
	Filters   ScalpFilterConfig `mapstructure:"filters"`
	Execution ExecutionConfig   `mapstructure:"execution"`
	Risk      RiskConfig        `mapstructure:"risk"`
	Cooldown  CooldownConfig    `mapstructure:"cooldown"`
	Streams   StreamConfig      `mapstructure:"streams"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// PollInterval returns the configured tick period as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	if c.PollSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollSec) * time.Second
}

// Load reads config from a YAML file with SCALP_* env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SCALP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModePaper)
	v.SetDefault("trading_enabled", true)
	v.SetDefault("strategy", StrategyScalp)
	v.SetDefault("poll_sec", 5)
	v.SetDefault("entry_tf", "1m")
	v.SetDefault("state_dir", "state")
	v.SetDefault("metrics_port", 8080)

	v.SetDefault("sizing.order_sizing_mode", SizingEquityPct)
	v.SetDefault("sizing.trade_equity_frac", 0.2)
	v.SetDefault("sizing.leverage", 1.0)
	v.SetDefault("sizing.min_notional_policy", PolicyBump)
	v.SetDefault("sizing.min_notional_buffer", 1.02)
	v.SetDefault("sizing.auto_bump_max_over_notional_frac", 0.5)
	v.SetDefault("sizing.auto_bump_max_equity_frac", 0.5)
	v.SetDefault("sizing.auto_bump_max_over_margin_frac", 0.5)

	v.SetDefault("exits.fee_rate", 0.0004)
	v.SetDefault("exits.slippage_rate", 0.0002)

	v.SetDefault("execution.ioc_price_pad_bps", 5.0)
	v.SetDefault("execution.ioc_max_chase_bps", 15.0)
	v.SetDefault("execution.confirm_max_attempts", 5)
	v.SetDefault("execution.confirm_base_sleep_sec", 0.5)

	v.SetDefault("risk.max_position_per_symbol", 0.5)
	v.SetDefault("risk.max_daily_loss", 0.05)
	v.SetDefault("risk.max_account_exposure_frac", 1.0)
	v.SetDefault("risk.max_total_exposure_frac", 1.0)

	v.SetDefault("cooldown.backoff_mult", 2.0)
	v.SetDefault("cooldown.max_sec", 900.0)
	v.SetDefault("cooldown.fail_window_sec", 1800.0)
	v.SetDefault("cooldown.after_exit_fill_sec", 5.0)

	v.SetDefault("streams.pressure_window_sec", 15)
	v.SetDefault("streams.flow_window_sec", 5)
	v.SetDefault("streams.liquidation_window_sec", 30)
	v.SetDefault("streams.liquidation_bucket_bps", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol is required")
	}
	if c.Venue == "" {
		return fmt.Errorf("venue is required")
	}
	switch c.Sizing.OrderSizingMode {
	case SizingFixed, SizingEquityPct:
	default:
		return fmt.Errorf("sizing.order_sizing_mode must be one of: fixed, equity_pct")
	}
	if c.Sizing.OrderSizingMode == SizingEquityPct && c.Sizing.TradeEquityFrac <= 0 {
		return fmt.Errorf("sizing.trade_equity_frac must be > 0 in equity_pct mode")
	}
	if c.Sizing.Leverage <= 0 {
		return fmt.Errorf("sizing.leverage must be > 0")
	}
	switch c.Sizing.MinNotionalPolicy {
	case PolicySkip, PolicyBump, PolicyAuto:
	default:
		return fmt.Errorf("sizing.min_notional_policy must be one of: skip, bump, auto")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be > 0")
	}
	return nil
}
