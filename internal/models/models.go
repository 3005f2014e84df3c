package models

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle interval
type Timeframe string

const (
	TimeframeOneDay     Timeframe = "1d"
	TimeframeFourHours  Timeframe = "4h"
	TimeframeFifteenMin Timeframe = "15m"
	TimeframeFiveMin    Timeframe = "5m"
)

// ParseTimeframe converts a timeframe string to a known Timeframe
func ParseTimeframe(s string) (Timeframe, bool) {
	switch Timeframe(s) {
	case TimeframeOneDay, TimeframeFourHours, TimeframeFifteenMin, TimeframeFiveMin:
		return Timeframe(s), true
	}
	return "", false
}

// Duration returns the bar duration for the timeframe
func (tf Timeframe) Duration() (time.Duration, error) {
	switch tf {
	case TimeframeOneDay:
		return 24 * time.Hour, nil
	case TimeframeFourHours:
		return 4 * time.Hour, nil
	case TimeframeFifteenMin:
		return 15 * time.Minute, nil
	case TimeframeFiveMin:
		return 5 * time.Minute, nil
	}
	return 0, fmt.Errorf("unsupported timeframe: %s", tf)
}

// MarketData is one timeframe snapshot produced by the market monitor.
// OHLCV rows are [timestamp, open, high, low, close, volume] in exchange order.
type MarketData struct {
	Symbol    string      `json:"symbol"`
	Timeframe Timeframe   `json:"timeframe"`
	Timestamp time.Time   `json:"timestamp"`
	OHLCV     [][]float64 `json:"ohlcv"`
	IsClosed  bool        `json:"is_closed"`
}

// PatternType represents supported trading pattern types
type PatternType string

const (
	BreakoutRetest      PatternType = "breakout_retest"
	SupportBounce       PatternType = "support_bounce"
	ResistanceRejection PatternType = "resistance_rejection"
)

// Bar is a single OHLCV bar carried inside a setup context
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// LevelInfo describes the level geometry backing a setup. Exactly one of
// Support/Resistance is set depending on the pattern direction.
type LevelInfo struct {
	Support    *float64 `json:"support,omitempty"`
	Resistance *float64 `json:"resistance,omitempty"`
	ZoneLow    float64  `json:"zone_low"`
	ZoneHigh   float64  `json:"zone_high"`
	Touches    int      `json:"touches"`
	Tolerance  float64  `json:"tolerance"`
}

// VolatilityInfo is the ATR snapshot taken when the setup was detected
type VolatilityInfo struct {
	ATR14  float64 `json:"atr_14"`
	ATRPct float64 `json:"atr_pct"`
}

// BreakoutInfo captures the daily breakout bar (breakout-retest only)
type BreakoutInfo struct {
	BarTime time.Time `json:"daily_breakout_bar_time"`
	Bar     Bar       `json:"daily_breakout_bar_ohlc"`
}

// RetestInfo captures the 15m retest touch and reclaim confirmation
// (breakout-retest only)
type RetestInfo struct {
	TouchBarTime   time.Time `json:"touch_bar_time"`
	ConfirmBarTime time.Time `json:"confirm_bar_time"`
	ConfirmBar     Bar       `json:"confirm_bar_ohlc"`
}

// QualityInfo is the deterministic triage score. Advisory only, it never
// gates emission. Exactly one of Breakout/Bar is set, matching the pattern
// type the same way the context's Breakout/SignalBar sections do.
type QualityInfo struct {
	Score   int `json:"score_0_10"`
	Touches int `json:"touches"`

	Breakout *BreakoutQuality `json:"breakout,omitempty"`
	Bar      *BarQuality      `json:"bar,omitempty"`
}

// BreakoutQuality scores the daily breakout bar and the 15m retest depth
// (breakout-retest only)
type BreakoutQuality struct {
	ClosePosition    float64 `json:"close_position"`
	VolumeBoost      bool    `json:"volume_boost"`
	RetestDepthVsATR float64 `json:"retest_depth_vs_atr"`
}

// BarQuality scores the single bounce/rejection signal bar
type BarQuality struct {
	WickFraction  float64 `json:"wick_fraction"`
	ClosePosition float64 `json:"close_position"`
	DepthVsATR    float64 `json:"depth_vs_atr"`
}

// SetupContext is the structured payload attached to a setup event
type SetupContext struct {
	DirectionBias string          `json:"direction_bias"`
	Level         LevelInfo       `json:"level"`
	Volatility    VolatilityInfo  `json:"volatility"`
	Breakout      *BreakoutInfo   `json:"breakout,omitempty"`
	Retest        *RetestInfo     `json:"retest,omitempty"`
	SignalBar     *Bar            `json:"signal_bar,omitempty"`
	Quality       QualityInfo     `json:"quality"`
	Checklist     []string        `json:"human_validation_checklist"`
	TriggerPrice  float64         `json:"trigger_price,omitempty"`
}

// PrimaryLevel returns the price the dedup filter keys similarity on:
// support, then resistance, then the trigger price fallback.
func (c *SetupContext) PrimaryLevel() float64 {
	if c.Level.Support != nil {
		return *c.Level.Support
	}
	if c.Level.Resistance != nil {
		return *c.Level.Resistance
	}
	return c.TriggerPrice
}

// SetupEvent is a "worth-a-human-look" candidate emitted by the rule engine
type SetupEvent struct {
	EventID     string       `json:"event_id"`
	Symbol      string       `json:"symbol"`
	PatternType PatternType  `json:"pattern_type"`
	Timestamp   time.Time    `json:"timestamp"`
	Timeframes  []Timeframe  `json:"timeframes"`
	Context     SetupContext `json:"context"`
}

// AIDecision represents the AI validation verdict
type AIDecision string

const (
	DecisionTrade   AIDecision = "TRADE"
	DecisionNoTrade AIDecision = "NO_TRADE"
	DecisionWait    AIDecision = "WAIT"
)

// AIConfidence represents AI confidence levels
type AIConfidence string

const (
	ConfidenceLow  AIConfidence = "LOW"
	ConfidenceMid  AIConfidence = "MID"
	ConfidenceHigh AIConfidence = "HIGH"
)

// NextCheckType is how a WAIT decision should be re-evaluated
type NextCheckType string

const (
	NextCheckTime  NextCheckType = "time"
	NextCheckEvent NextCheckType = "event"
)

// NextCheck specifies when/what to re-check after a WAIT decision
type NextCheck struct {
	Type  NextCheckType `json:"type"`
	Value string        `json:"value"`
}

// AIDecisionOutput is the AI decision engine result
type AIDecisionOutput struct {
	Decision   AIDecision   `json:"decision"`
	Confidence AIConfidence `json:"confidence"`
	ReasonCode string       `json:"reason_code"`
	NextCheck  *NextCheck   `json:"next_check,omitempty"`

	// trade parameters, only present when decision is TRADE
	EntryPrice *float64 `json:"entry_price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Side       string   `json:"side,omitempty"`
}

// OrderSide represents order direction
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType represents order execution type
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// TradeOrder is an order handed to the execution engine
type TradeOrder struct {
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	OrderType  OrderType `json:"order_type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price,omitempty"` // limit orders only
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	RiskAmount float64   `json:"risk_amount"`
}

// TradeStatus represents trade lifecycle state
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// Trade is an executed (possibly still open) trade
type Trade struct {
	TradeID    string      `json:"trade_id"`
	Symbol     string      `json:"symbol"`
	Side       OrderSide   `json:"side"`
	EntryPrice float64     `json:"entry_price"`
	Quantity   float64     `json:"quantity"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Status     TradeStatus `json:"status"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
	PnL        float64     `json:"pnl,omitempty"`
	RMultiple  float64     `json:"r_multiple,omitempty"`
}
