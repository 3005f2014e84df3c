package engine

import (
	"math"

	"bitunix-trading-bot/internal/models"

	"github.com/google/uuid"
)

// checkSupportBounce detects the support bounce pattern (long bias): a
// multi-touch 4h support whose zone the most recent bar sweeps and rejects
// with a long lower wick, a strong close, and a close at or above the level.
func (e *RuleEngine) checkSupportBounce(md map[models.Timeframe]models.MarketData) *models.SetupEvent {
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

	level := e.findLevel(h4, LevelSupport, atr, e.params.MaxLevelAgeBars4H)
	if level == nil {
		return nil
	}

	support := level.Price
	tol := level.Tolerance
	zoneLow := support - tol
	zoneHigh := support + tol

	last := h4[len(h4)-1]
	if !intersectsZone(last, zoneLow, zoneHigh) {
		return nil
	}
	if !e.bullishRejection(last) {
		return nil
	}
	// avoid "falling knife" closes below the level
	if last.Close < support {
		return nil
	}

	quality := e.qualityBounceRejection(level.Touches, atr, support, last, LevelSupport)

	signalBar := toBar(last)
	return &models.SetupEvent{
		EventID:     uuid.NewString(),
		Symbol:      data.Symbol,
		PatternType: models.SupportBounce,
		Timestamp:   last.Time,
		Timeframes:  []models.Timeframe{models.TimeframeFourHours},
		Context: models.SetupContext{
			DirectionBias: "long",
			Level: models.LevelInfo{
				Support:   &support,
				ZoneLow:   zoneLow,
				ZoneHigh:  zoneHigh,
				Touches:   level.Touches,
				Tolerance: tol,
			},
			Volatility: models.VolatilityInfo{ATR14: atr, ATRPct: atrPct},
			SignalBar:  &signalBar,
			Quality:    quality,
			Checklist: []string{
				"Is this support obvious on a higher timeframe too?",
				"Was this a sweep + reclaim, or just noise inside a range?",
				"Any major news/earnings/macro event nearby?",
				"Where is next resistance (room for R)?",
			},
		},
	}
}

// bullishRejection: long lower wick relative to the full candle plus a close
// in the upper portion of the range
func (e *RuleEngine) bullishRejection(c Candle) bool {
	rng := math.Max(c.High-c.Low, 1e-12)
	lowerWick := math.Min(c.Open, c.Close) - c.Low

	if lowerWick/rng < e.params.WickFracMin {
		return false
	}
	return closePosition(c) >= e.params.ClosePosMin
}
