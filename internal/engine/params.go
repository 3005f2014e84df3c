package engine

// RuleParams holds every tunable of the rule engine. A RuleEngine copies its
// params at construction, so they are immutable per instance.
type RuleParams struct {
	// Data requirements
	MinBars1D  int `json:"min_bars_1d" mapstructure:"min_bars_1d"`
	MinBars4H  int `json:"min_bars_4h" mapstructure:"min_bars_4h"`
	MinBars15M int `json:"min_bars_15m" mapstructure:"min_bars_15m"`

	// Pivot / level detection
	PivotLeft         int `json:"pivot_left" mapstructure:"pivot_left"`
	PivotRight        int `json:"pivot_right" mapstructure:"pivot_right"`
	MinLevelTouches   int `json:"min_level_touches" mapstructure:"min_level_touches"`
	MaxLevelAgeBars1D int `json:"max_level_age_bars_1d" mapstructure:"max_level_age_bars_1d"`
	MaxLevelAgeBars4H int `json:"max_level_age_bars_4h" mapstructure:"max_level_age_bars_4h"`

	// Dynamic tolerance (zone width)
	TolerancePctFloor float64 `json:"tolerance_pct_floor" mapstructure:"tolerance_pct_floor"`
	ToleranceATRMult  float64 `json:"tolerance_atr_mult" mapstructure:"tolerance_atr_mult"`

	// Breakout / retest logic
	BreakoutMaxAgeBars1D   int     `json:"breakout_max_age_bars_1d" mapstructure:"breakout_max_age_bars_1d"`
	BreakoutCloseBufferATR float64 `json:"breakout_close_buffer_atr" mapstructure:"breakout_close_buffer_atr"`
	RetestMaxBars15M       int     `json:"retest_max_bars_15m" mapstructure:"retest_max_bars_15m"`
	ReclaimLookahead15M    int     `json:"reclaim_lookahead_15m" mapstructure:"reclaim_lookahead_15m"`

	// Candle quality gates
	ClosePosMin     float64 `json:"close_pos_min" mapstructure:"close_pos_min"`
	ClosePosMaxBear float64 `json:"close_pos_max_bear" mapstructure:"close_pos_max_bear"`
	WickFracMin     float64 `json:"wick_frac_min" mapstructure:"wick_frac_min"`

	// Volatility gates (tune per market)
	MinATRPct1D float64 `json:"min_atr_pct_1d" mapstructure:"min_atr_pct_1d"`
	MinATRPct4H float64 `json:"min_atr_pct_4h" mapstructure:"min_atr_pct_4h"`

	// Anti-spam
	CooldownMinutes int     `json:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	DedupeLevelPct  float64 `json:"dedupe_level_pct" mapstructure:"dedupe_level_pct"`
}

// DefaultRuleParams returns the tuned defaults
func DefaultRuleParams() RuleParams {
	return RuleParams{
		MinBars1D:  120,
		MinBars4H:  120,
		MinBars15M: 300,

		PivotLeft:         2,
		PivotRight:        2,
		MinLevelTouches:   2,
		MaxLevelAgeBars1D: 80,
		MaxLevelAgeBars4H: 120,

		TolerancePctFloor: 0.003, // 0.3% minimum zone
		ToleranceATRMult:  0.35,  // zone expands with ATR

		BreakoutMaxAgeBars1D:   6,
		BreakoutCloseBufferATR: 0.15, // breakout close must exceed level by this*ATR (or pct floor)
		RetestMaxBars15M:       160,  // ~40h on 15m
		ReclaimLookahead15M:    24,   // next 6h of 15m candles for reclaim

		ClosePosMin:     0.60, // bullish close location in candle range
		ClosePosMaxBear: 0.40, // bearish close location in candle range
		WickFracMin:     0.45, // wick must be >= this fraction of full candle range

		MinATRPct1D: 0.007, // 0.7% daily ATR as % of price
		MinATRPct4H: 0.004, // 0.4% 4h ATR as % of price

		CooldownMinutes: 90,
		DedupeLevelPct:  0.0015, // 0.15% level similarity
	}
}
