package engine

import (
	"math"

	"bitunix-trading-bot/internal/models"
)

// qualityBreakoutRetest produces the deterministic 0..10 triage score for a
// breakout-retest candidate: touch count (capped at 4), breakout close
// location bucket, a volume boost when the breakout bar out-trades 1.2x its
// 20-bar average, and how shallow the retest stayed relative to ATR.
func (e *RuleEngine) qualityBreakoutRetest(daily []Candle, breakoutIdx, touches int, atr, level float64, confirmBar Candle) models.QualityInfo {
	br := daily[breakoutIdx]
	closePos := closePosition(br)

	volMA, ok := volumeSMA(daily, breakoutIdx, 20)
	volOK := ok && volMA > 0 && br.Volume > 1.2*volMA

	// retest depth: did it hold near the level?
	depth := level - confirmBar.Low

	score := min(touches, 4)
	switch {
	case closePos >= 0.70:
		score += 2
	case closePos >= 0.60:
		score++
	}
	if volOK {
		score += 2
	}
	switch {
	case depth <= 0.5*atr:
		score += 2
	case depth <= 1.0*atr:
		score++
	}

	return models.QualityInfo{
		Score:   min(score, 10),
		Touches: touches,
		Breakout: &models.BreakoutQuality{
			ClosePosition:    closePos,
			VolumeBoost:      volOK,
			RetestDepthVsATR: depth / math.Max(atr, 1e-12),
		},
	}
}

// qualityBounceRejection scores a bounce/rejection candidate from its wick
// fraction, close location, and zone penetration depth relative to ATR.
func (e *RuleEngine) qualityBounceRejection(touches int, atr, level float64, signalBar Candle, kind LevelKind) models.QualityInfo {
	closePos := closePosition(signalBar)
	rng := math.Max(signalBar.High-signalBar.Low, 1e-12)

	var wick, depth float64
	if kind == LevelSupport {
		wick = (math.Min(signalBar.Open, signalBar.Close) - signalBar.Low) / rng
		depth = (level - signalBar.Low) / math.Max(atr, 1e-12)
	} else {
		wick = (signalBar.High - math.Max(signalBar.Open, signalBar.Close)) / rng
		depth = (signalBar.High - level) / math.Max(atr, 1e-12)
	}

	score := min(touches, 4)
	switch {
	case wick >= 0.55:
		score += 2
	case wick >= 0.45:
		score++
	}
	if (kind == LevelSupport && closePos >= 0.70) || (kind == LevelResistance && closePos <= 0.30) {
		score += 2
	} else {
		score++
	}
	switch {
	case depth <= 0.8:
		score += 2
	case depth <= 1.5:
		score++
	}

	return models.QualityInfo{
		Score:   min(score, 10),
		Touches: touches,
		Bar: &models.BarQuality{
			WickFraction:  wick,
			ClosePosition: closePos,
			DepthVsATR:    depth,
		},
	}
}
