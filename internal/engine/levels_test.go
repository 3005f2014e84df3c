package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(p RuleParams) *RuleEngine {
	return NewRuleEngine(p, zerolog.Nop())
}

func TestPivotTieDisqualifiesBothBars(t *testing.T) {
	highs := []float64{1, 2, 5, 5, 2, 1}

	piv := pivotPoints(highs, 2, 2, true)

	for i, isPivot := range piv {
		assert.False(t, isPivot, "bar %d must not be a pivot when the window maximum is tied", i)
	}
}

func TestPivotUniqueExtremeDetected(t *testing.T) {
	highs := []float64{1, 2, 5, 3, 2, 1}
	lows := []float64{5, 4, 1, 3, 4, 5}

	pivHigh := pivotPoints(highs, 2, 2, true)
	pivLow := pivotPoints(lows, 2, 2, false)

	assert.True(t, pivHigh[2])
	assert.True(t, pivLow[2])

	// window edges are never pivots
	assert.False(t, pivHigh[0])
	assert.False(t, pivHigh[len(highs)-1])
}

// synthetic daily series: flat base bars with three distinct pivot highs
// clustered around 100 (within 0.1%)
func clusteredHighSeries() []Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pivotHighs := map[int]float64{10: 100.0, 20: 100.05, 30: 99.95}

	candles := make([]Candle, 40)
	for i := range candles {
		high := 95.0
		if h, ok := pivotHighs[i]; ok {
			high = h
		}
		candles[i] = Candle{
			Time:   base.Add(time.Duration(i) * 24 * time.Hour),
			Open:   92,
			High:   high,
			Low:    90,
			Close:  93,
			Volume: 1000,
		}
	}
	return candles
}

func TestFindLevelClustersTouchesAroundMedian(t *testing.T) {
	p := DefaultRuleParams()
	p.MinLevelTouches = 2
	e := newTestEngine(p)

	level := e.findLevel(clusteredHighSeries(), LevelResistance, 1.0, 80)

	require.NotNil(t, level)
	assert.Equal(t, 3, level.Touches)
	assert.InDelta(t, 100.0, level.Price, 0.001)
	assert.Equal(t, LevelResistance, level.Kind)
	assert.Equal(t, 30, level.LastTouchIndex)
}

func TestFindLevelRespectsMaxAge(t *testing.T) {
	p := DefaultRuleParams()
	p.MinLevelTouches = 2
	e := newTestEngine(p)

	// only pivots within 5 bars of the newest bar survive; all three sit
	// further back, so no cluster can form
	level := e.findLevel(clusteredHighSeries(), LevelResistance, 1.0, 5)
	assert.Nil(t, level)
}

func TestFindLevelRequiresMinTouches(t *testing.T) {
	p := DefaultRuleParams()
	p.MinLevelTouches = 4
	e := newTestEngine(p)

	level := e.findLevel(clusteredHighSeries(), LevelResistance, 1.0, 80)
	assert.Nil(t, level)
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 100.0, median([]float64{99.95, 100.0, 100.05}), 1e-9)
	assert.InDelta(t, 2.5, median([]float64{1, 2, 3, 4}), 1e-9)
}
