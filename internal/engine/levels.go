package engine

import (
	"math"
	"sort"
)

// LevelKind distinguishes support from resistance levels
type LevelKind string

const (
	LevelSupport    LevelKind = "support"
	LevelResistance LevelKind = "resistance"
)

// Level is a clustered multi-touch support or resistance price zone,
// computed transiently inside a single matcher invocation.
type Level struct {
	Price          float64
	Tolerance      float64
	Touches        int
	LastTouchIndex int
	Kind           LevelKind
}

// pivotPoints marks strict pivots: bar i is a pivot iff its value is the
// unique extreme of the symmetric window [i-left, i+right]. Two bars tied at
// the window extreme disqualify both.
func pivotPoints(values []float64, left, right int, findMax bool) []bool {
	n := len(values)
	piv := make([]bool, n)

	for i := left; i < n-right; i++ {
		extreme := values[i-left]
		for j := i - left + 1; j <= i+right; j++ {
			if findMax && values[j] > extreme {
				extreme = values[j]
			} else if !findMax && values[j] < extreme {
				extreme = values[j]
			}
		}

		if values[i] != extreme {
			continue
		}
		count := 0
		for j := i - left; j <= i+right; j++ {
			if values[j] == extreme {
				count++
			}
		}
		piv[i] = count == 1
	}
	return piv
}

// findLevel discovers the best multi-touch level of the requested kind:
// strict pivots, restricted to the last maxAgeBars bars, clustered within a
// volatility-driven tolerance. Among qualifying clusters the one with the
// deterministic score touches*10000 + lastTouchIndex wins; the level price is
// the median of the clustered pivot prices. Returns nil when no cluster
// reaches MinLevelTouches.
func (e *RuleEngine) findLevel(candles []Candle, kind LevelKind, atr float64, maxAgeBars int) *Level {
	n := len(candles)
	if n == 0 {
		return nil
	}

	lastClose := candles[n-1].Close
	tol := math.Max(lastClose*e.params.TolerancePctFloor, atr*e.params.ToleranceATRMult)

	values := make([]float64, n)
	for i, c := range candles {
		if kind == LevelResistance {
			values[i] = c.High
		} else {
			values[i] = c.Low
		}
	}

	piv := pivotPoints(values, e.params.PivotLeft, e.params.PivotRight, kind == LevelResistance)

	minRecent := n - 1 - maxAgeBars
	var pivPrices []float64
	var pivIdx []int
	for i, isPivot := range piv {
		if isPivot && i >= minRecent {
			pivPrices = append(pivPrices, values[i])
			pivIdx = append(pivIdx, i)
		}
	}

	if len(pivPrices) < e.params.MinLevelTouches {
		return nil
	}

	var best *Level
	bestScore := 0
	for j := range pivPrices {
		var cluster []float64
		lastTouch := 0
		for k := range pivPrices {
			if math.Abs(pivPrices[k]-pivPrices[j]) <= tol {
				cluster = append(cluster, pivPrices[k])
				if pivIdx[k] > lastTouch {
					lastTouch = pivIdx[k]
				}
			}
		}
		if len(cluster) < e.params.MinLevelTouches {
			continue
		}

		score := len(cluster)*10000 + lastTouch
		if best == nil || score > bestScore {
			best = &Level{
				Price:          median(cluster),
				Tolerance:      tol,
				Touches:        len(cluster),
				LastTouchIndex: lastTouch,
				Kind:           kind,
			}
			bestScore = score
		}
	}
	return best
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
