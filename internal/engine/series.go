package engine

import (
	"math"
	"sort"
	"time"
)

// Candle is one normalized OHLCV bar with a canonical UTC timestamp
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// msEpochCutoff separates second-epoch from millisecond-epoch timestamps.
// Crude but practical: second epochs stay below 1e11 until the year 5138.
const msEpochCutoff = 1e11

// NormalizeSeries cleans a raw OHLCV snapshot into an ascending candle series:
// rows with non-finite fields or inconsistent OHLC geometry are dropped
// silently, rows are sorted by timestamp and duplicate timestamps collapse to
// the first occurrence after sorting. The timestamp unit (seconds vs
// milliseconds) is inferred from the magnitude of the newest timestamp.
// Malformed rows never produce errors; they are filtered.
func NormalizeSeries(rows [][]float64) []Candle {
	type rawBar struct {
		ts                             float64
		open, high, low, close, volume float64
	}

	valid := make([]rawBar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		b := rawBar{row[0], row[1], row[2], row[3], row[4], row[5]}
		if !isFinite(b.ts) || !isFinite(b.open) || !isFinite(b.high) ||
			!isFinite(b.low) || !isFinite(b.close) || !isFinite(b.volume) {
			continue
		}
		// OHLC geometry: low <= min(open,close) <= max(open,close) <= high
		if b.low > math.Min(b.open, b.close) || b.high < math.Max(b.open, b.close) {
			continue
		}
		valid = append(valid, b)
	}

	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].ts < valid[j].ts })

	// Collapse duplicate timestamps, keeping the first after sort
	deduped := valid[:1]
	for _, b := range valid[1:] {
		if b.ts != deduped[len(deduped)-1].ts {
			deduped = append(deduped, b)
		}
	}

	// Epoch unit inference from the most recent timestamp
	millis := deduped[len(deduped)-1].ts > msEpochCutoff

	out := make([]Candle, len(deduped))
	for i, b := range deduped {
		var t time.Time
		if millis {
			t = time.UnixMilli(int64(b.ts)).UTC()
		} else {
			t = time.Unix(int64(b.ts), 0).UTC()
		}
		out[i] = Candle{
			Time:   t,
			Open:   b.open,
			High:   b.high,
			Low:    b.low,
			Close:  b.close,
			Volume: b.volume,
		}
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
