package engine

import "math"

// ATR computes the average true range over the trailing `period` bars as a
// simple moving average of true ranges. The first bar's previous close is
// defined as its own close, so there is no look-behind. Returns ok=false when
// fewer than period+1 bars are available; callers treat that as "cannot
// evaluate here", not as an error.
func ATR(candles []Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += trueRange(candles, i)
	}
	return sum / float64(period), true
}

func trueRange(candles []Candle, i int) float64 {
	c := candles[i]
	prevClose := c.Close
	if i > 0 {
		prevClose = candles[i-1].Close
	}
	return math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// closePosition locates the close inside the bar's full range, 0..1
func closePosition(c Candle) float64 {
	rng := math.Max(c.High-c.Low, 1e-12)
	return (c.Close - c.Low) / rng
}

// intersectsZone reports whether the bar's range overlaps [zoneLow, zoneHigh]
func intersectsZone(c Candle, zoneLow, zoneHigh float64) bool {
	return c.Low <= zoneHigh && c.High >= zoneLow
}

// volumeSMA averages volume over the `period` bars ending at endIdx inclusive.
// ok=false when the window does not fit.
func volumeSMA(candles []Candle, endIdx, period int) (float64, bool) {
	if endIdx+1 < period {
		return 0, false
	}
	sum := 0.0
	for i := endIdx - period + 1; i <= endIdx; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period), true
}
