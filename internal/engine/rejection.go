package engine

import (
	"math"

	"bitunix-trading-bot/internal/models"

	"github.com/google/uuid"
)

// checkResistanceRejection detects the resistance rejection pattern (short
// bias), symmetric to the support bounce: the most recent 4h bar probes a
// multi-touch resistance zone and rejects with a long upper wick, a weak
// close location, a bearish body, and a close at or below the level.
func (e *RuleEngine) checkResistanceRejection(md map[models.Timeframe]models.MarketData) *models.SetupEvent {
	data, ok := md[models.TimeframeFourHours]
	if !ok {
		return nil
	}

	h4 := NormalizeSeries(data.OHLCV)
	if len(h4) < e.params.MinBars4H {
		return nil
	}

	atr, ok := ATR(h4, 14)
	if !ok {
		return nil
	}

	lastClose := h4[len(h4)-1].Close
	atrPct := atr / math.Max(lastClose, 1e-12)
	if atrPct < e.params.MinATRPct4H {
		return nil
	}

	level := e.findLevel(h4, LevelResistance, atr, e.params.MaxLevelAgeBars4H)
	if level == nil {
		return nil
	}

	resistance := level.Price
	tol := level.Tolerance
	zoneLow := resistance - tol
	zoneHigh := resistance + tol

	last := h4[len(h4)-1]
	if !intersectsZone(last, zoneLow, zoneHigh) {
		return nil
	}
	if !e.bearishRejection(last) {
		return nil
	}
	if last.Close > resistance {
		return nil
	}

	quality := e.qualityBounceRejection(level.Touches, atr, resistance, last, LevelResistance)

	signalBar := toBar(last)
	return &models.SetupEvent{
		EventID:     uuid.NewString(),
		Symbol:      data.Symbol,
		PatternType: models.ResistanceRejection,
		Timestamp:   last.Time,
		Timeframes:  []models.Timeframe{models.TimeframeFourHours},
		Context: models.SetupContext{
			DirectionBias: "short",
			Level: models.LevelInfo{
				Resistance: &resistance,
				ZoneLow:    zoneLow,
				ZoneHigh:   zoneHigh,
				Touches:    level.Touches,
				Tolerance:  tol,
			},
			Volatility: models.VolatilityInfo{ATR14: atr, ATRPct: atrPct},
			SignalBar:  &signalBar,
			Quality:    quality,
			Checklist: []string{
				"Is the resistance clean and respected on higher timeframe?",
				"Did price sweep liquidity above resistance and reject?",
				"Is downside room sufficient before next support?",
				"Any catalyst risk (news/earnings/macro)?",
			},
		},
	}
}

// bearishRejection: long upper wick, close in the lower portion of the range
// and a bearish body (the body requirement reduces noise)
func (e *RuleEngine) bearishRejection(c Candle) bool {
	rng := math.Max(c.High-c.Low, 1e-12)
	upperWick := c.High - math.Max(c.Open, c.Close)

	if upperWick/rng < e.params.WickFracMin {
		return false
	}
	if closePosition(c) > e.params.ClosePosMaxBear {
		return false
	}
	return c.Close < c.Open
}
