package engine

import (
	"math"

	"bitunix-trading-bot/internal/models"

	"github.com/google/uuid"
)

// minBarsAfterBreakout is the minimum number of 15m bars that must exist at
// or after the daily breakout bar before a retest can be evaluated.
const minBarsAfterBreakout = 40

// checkBreakoutRetest detects the breakout + retest pattern (long bias):
// a multi-touch daily resistance, a recent daily close above it, a 15m touch
// of the zone after the breakout, and a 15m close reclaiming the zone.
func (e *RuleEngine) checkBreakoutRetest(md map[models.Timeframe]models.MarketData) *models.SetupEvent {
	daily, okD := md[models.TimeframeOneDay]
	intra, okI := md[models.TimeframeFifteenMin]
	if !okD || !okI {
		return nil
	}

	d := NormalizeSeries(daily.OHLCV)
	i15 := NormalizeSeries(intra.OHLCV)

	if len(d) < e.params.MinBars1D || len(i15) < e.params.MinBars15M {
		return nil
	}

	atr, ok := ATR(d, 14)
	if !ok {
		return nil
	}

	lastClose := d[len(d)-1].Close
	atrPct := atr / math.Max(lastClose, 1e-12)
	if atrPct < e.params.MinATRPct1D {
		return nil
	}

	level := e.findLevel(d, LevelResistance, atr, e.params.MaxLevelAgeBars1D)
	if level == nil {
		return nil
	}

	resistance := level.Price
	tol := level.Tolerance

	// Breakout must be a recent daily close above resistance
	breakoutIdx := e.findRecentBreakoutClose(d, resistance, atr, e.params.BreakoutMaxAgeBars1D)
	if breakoutIdx < 0 {
		return nil
	}
	breakoutBar := d[breakoutIdx]

	// Retest must occur after the breakout, on 15m
	var after []Candle
	for idx, c := range i15 {
		if !c.Time.Before(breakoutBar.Time) {
			after = i15[idx:]
			break
		}
	}
	if len(after) < minBarsAfterBreakout {
		return nil
	}

	zoneLow := resistance - tol
	zoneHigh := resistance + tol

	touchIdx := -1
	for idx, c := range after {
		if intersectsZone(c, zoneLow, zoneHigh) {
			touchIdx = idx
		}
	}
	if touchIdx < 0 {
		return nil
	}

	// Use the most recent touch, but not too old
	if len(after)-1-touchIdx > e.params.RetestMaxBars15M {
		return nil
	}

	// Reclaim confirmation: first candle after the touch closing back above
	// the zone with a strong bullish body
	confirmIdx := -1
	for k := touchIdx + 1; k < len(after) && k <= touchIdx+e.params.ReclaimLookahead15M; k++ {
		if e.bullishReclaim(after[k], zoneHigh) {
			confirmIdx = k
			break
		}
	}
	if confirmIdx < 0 {
		return nil
	}

	signalBar := after[confirmIdx]
	quality := e.qualityBreakoutRetest(d, breakoutIdx, level.Touches, atr, resistance, signalBar)

	return &models.SetupEvent{
		EventID:     uuid.NewString(),
		Symbol:      daily.Symbol,
		PatternType: models.BreakoutRetest,
		Timestamp:   signalBar.Time,
		Timeframes:  []models.Timeframe{models.TimeframeOneDay, models.TimeframeFifteenMin},
		Context: models.SetupContext{
			DirectionBias: "long",
			Level: models.LevelInfo{
				Resistance: &resistance,
				ZoneLow:    zoneLow,
				ZoneHigh:   zoneHigh,
				Touches:    level.Touches,
				Tolerance:  tol,
			},
			Volatility: models.VolatilityInfo{ATR14: atr, ATRPct: atrPct},
			Breakout: &models.BreakoutInfo{
				BarTime: breakoutBar.Time,
				Bar:     toBar(breakoutBar),
			},
			Retest: &models.RetestInfo{
				TouchBarTime:   after[touchIdx].Time,
				ConfirmBarTime: signalBar.Time,
				ConfirmBar:     toBar(signalBar),
			},
			Quality: quality,
			Checklist: []string{
				"Is the daily breakout candle a real close above resistance (not just wick)?",
				"Did the retest respect the zone without deep acceptance below?",
				"Is market regime supportive (trend/range/news)?",
				"Any nearby overhead liquidity/next resistance too close?",
			},
		},
	}
}

// findRecentBreakoutClose scans backward over the last maxAgeBars bars for
// the most recent bar whose close crosses above level+buffer while the
// previous close sat at or below it. The breakout bar itself must close in
// the upper part of its range. Returns -1 when no qualifying bar exists.
func (e *RuleEngine) findRecentBreakoutClose(candles []Candle, level, atr float64, maxAgeBars int) int {
	buffer := math.Max(level*0.002, atr*e.params.BreakoutCloseBufferATR)
	threshold := level + buffer

	start := len(candles) - maxAgeBars - 1
	if start < 1 {
		start = 1
	}
	for i := len(candles) - 1; i >= start; i-- {
		if candles[i].Close > threshold && candles[i-1].Close <= threshold {
			if closePosition(candles[i]) >= e.params.ClosePosMin {
				return i
			}
		}
	}
	return -1
}

// bullishReclaim: close back above the zone top with a bullish body and a
// strong close location
func (e *RuleEngine) bullishReclaim(c Candle, reclaimAbove float64) bool {
	if c.Close <= reclaimAbove {
		return false
	}
	if c.Close <= c.Open {
		return false
	}
	return closePosition(c) >= e.params.ClosePosMin
}

func toBar(c Candle) models.Bar {
	return models.Bar{
		Time:   c.Time,
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}
