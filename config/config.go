package config

import (
	"fmt"
	"strings"

	"bitunix-trading-bot/internal/engine"

	"github.com/spf13/viper"
)

// Config is the root configuration for the trading system. Values come from
// config.yaml when present, overridden by environment variables (prefix
// BITUNIX_, dots replaced by underscores, e.g. BITUNIX_LLM_API_KEY).
type Config struct {
	Exchange ExchangeConfig    `json:"exchange" mapstructure:"exchange"`
	LLM      LLMConfig         `json:"llm" mapstructure:"llm"`
	Trading  TradingConfig     `json:"trading" mapstructure:"trading"`
	Risk     RiskConfig        `json:"risk" mapstructure:"risk"`
	Engine   engine.RuleParams `json:"engine" mapstructure:"engine"`
	Logging  LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ExchangeConfig holds exchange connection settings
type ExchangeConfig struct {
	Name         string `json:"name" mapstructure:"name"`
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	APISecret    string `json:"api_secret" mapstructure:"api_secret"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	WSURL        string `json:"ws_url" mapstructure:"ws_url"`
	PaperTrading bool   `json:"paper_trading" mapstructure:"paper_trading"`
}

// LLMConfig holds the setup validation LLM settings
type LLMConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	BaseURL        string  `json:"base_url" mapstructure:"base_url"`
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// TradingConfig holds trading loop settings
type TradingConfig struct {
	Symbols              []string `json:"symbols" mapstructure:"symbols"`
	Timeframes           []string `json:"timeframes" mapstructure:"timeframes"`
	CycleIntervalSeconds int      `json:"cycle_interval_seconds" mapstructure:"cycle_interval_seconds"`
	AccountBalance       float64  `json:"account_balance" mapstructure:"account_balance"`
}

// RiskConfig holds risk management limits. Risk-per-confidence is expressed
// in R multiples keyed by AI confidence level; MaxRiskPerDay caps the summed
// percent of account balance put at risk across a day's trades.
type RiskConfig struct {
	MaxTradesPerDay     int     `json:"max_trades_per_day" mapstructure:"max_trades_per_day"`
	MaxRiskPerDay       float64 `json:"max_risk_per_day" mapstructure:"max_risk_per_day"`
	MaxDrawdown         float64 `json:"max_drawdown" mapstructure:"max_drawdown"`
	CooldownAfterLosses int     `json:"cooldown_after_losses" mapstructure:"cooldown_after_losses"`
	RiskPerTradePct     float64 `json:"risk_per_trade_pct" mapstructure:"risk_per_trade_pct"`

	RiskMultLow  float64 `json:"risk_mult_low" mapstructure:"risk_mult_low"`
	RiskMultMid  float64 `json:"risk_mult_mid" mapstructure:"risk_mult_mid"`
	RiskMultHigh float64 `json:"risk_mult_high" mapstructure:"risk_mult_high"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	Output  string `json:"output" mapstructure:"output"`
	Console bool   `json:"console" mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.name", "bitunix")
	v.SetDefault("exchange.base_url", "https://fapi.bitunix.com")
	v.SetDefault("exchange.ws_url", "wss://fapi.bitunix.com/public")
	v.SetDefault("exchange.paper_trading", true)

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("trading.symbols", []string{"BTCUSDT"})
	v.SetDefault("trading.timeframes", []string{"1d", "4h", "15m", "5m"})
	v.SetDefault("trading.cycle_interval_seconds", 60)
	v.SetDefault("trading.account_balance", 10000.0)

	v.SetDefault("risk.max_trades_per_day", 5)
	v.SetDefault("risk.max_risk_per_day", 10.0)
	v.SetDefault("risk.max_drawdown", 20.0)
	v.SetDefault("risk.cooldown_after_losses", 3)
	v.SetDefault("risk.risk_per_trade_pct", 1.0)
	v.SetDefault("risk.risk_mult_low", 0.5)
	v.SetDefault("risk.risk_mult_mid", 1.0)
	v.SetDefault("risk.risk_mult_high", 2.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.console", false)

	// engine params default to the tuned values; the config file can
	// override any single knob
	for key, val := range map[string]interface{}{
		"engine.min_bars_1d":               120,
		"engine.min_bars_4h":               120,
		"engine.min_bars_15m":              300,
		"engine.pivot_left":                2,
		"engine.pivot_right":               2,
		"engine.min_level_touches":         2,
		"engine.max_level_age_bars_1d":     80,
		"engine.max_level_age_bars_4h":     120,
		"engine.tolerance_pct_floor":       0.003,
		"engine.tolerance_atr_mult":        0.35,
		"engine.breakout_max_age_bars_1d":  6,
		"engine.breakout_close_buffer_atr": 0.15,
		"engine.retest_max_bars_15m":       160,
		"engine.reclaim_lookahead_15m":     24,
		"engine.close_pos_min":             0.60,
		"engine.close_pos_max_bear":        0.40,
		"engine.wick_frac_min":             0.45,
		"engine.min_atr_pct_1d":            0.007,
		"engine.min_atr_pct_4h":            0.004,
		"engine.cooldown_minutes":          90,
		"engine.dedupe_level_pct":          0.0015,
	} {
		v.SetDefault(key, val)
	}
}

// Load reads config.yaml from the given directory (or the working directory
// when empty) and applies environment overrides. A missing config file is not
// an error: defaults plus environment variables form a complete config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BITUNIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce sane behavior
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	if c.Trading.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("trading.cycle_interval_seconds must be positive")
	}
	if c.Trading.AccountBalance <= 0 {
		return fmt.Errorf("trading.account_balance must be positive")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if c.Engine.MinLevelTouches < 1 {
		return fmt.Errorf("engine.min_level_touches must be at least 1")
	}
	if c.Engine.PivotLeft < 1 || c.Engine.PivotRight < 1 {
		return fmt.Errorf("engine pivot windows must be at least 1")
	}
	if !c.Exchange.PaperTrading && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange credentials required for live trading")
	}
	return nil
}

// RiskMultiplier maps an AI confidence level to its R multiple
func (c *RiskConfig) RiskMultiplier(confidence string) float64 {
	switch strings.ToUpper(confidence) {
	case "HIGH":
		return c.RiskMultHigh
	case "MID", "MEDIUM":
		return c.RiskMultMid
	default:
		return c.RiskMultLow
	}
}
