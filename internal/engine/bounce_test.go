package engine

import (
	"testing"
	"time"

	"bitunix-trading-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bounce4hRows builds 40 bars with three pivot lows clustered at 100 and a
// final bar that sweeps into the zone and closes strongly off the low.
func bounce4hRows() [][]float64 {
	pivotLows := map[int]float64{15: 100.0, 22: 99.95, 29: 100.05}

	rows := make([][]float64, 40)
	for i := range rows {
		ts := float64(fixtureStart.Add(time.Duration(i) * 4 * time.Hour).UnixMilli())
		if i == 39 { // sweep + reclaim bar
			rows[i] = row(ts, 105.5, 107, 100.5, 106.3, 700)
			continue
		}
		low := 105.0
		if l, ok := pivotLows[i]; ok {
			low = l
		}
		rows[i] = row(ts, 107, 110, low, 108, 500)
	}
	return rows
}

func bounceSnapshot() map[string]models.MarketData {
	return map[string]models.MarketData{
		"4h": {
			Symbol:    "ETHUSDT",
			Timeframe: models.TimeframeFourHours,
			Timestamp: fixtureStart.Add(40 * 4 * time.Hour),
			OHLCV:     bounce4hRows(),
			IsClosed:  true,
		},
	}
}

func TestSupportBounceEndToEnd(t *testing.T) {
	e := newTestEngine(breakoutParams())

	setups := e.DetectSetups(bounceSnapshot())
	require.Len(t, setups, 1)

	ev := setups[0]
	assert.Equal(t, models.SupportBounce, ev.PatternType)
	assert.Equal(t, "ETHUSDT", ev.Symbol)
	assert.Equal(t, []models.Timeframe{models.TimeframeFourHours}, ev.Timeframes)
	assert.Equal(t, fixtureStart.Add(39*4*time.Hour), ev.Timestamp)

	ctx := ev.Context
	assert.Equal(t, "long", ctx.DirectionBias)
	require.NotNil(t, ctx.Level.Support)
	assert.InDelta(t, 100.0, *ctx.Level.Support, 1e-9)
	assert.Nil(t, ctx.Level.Resistance)
	assert.Equal(t, 3, ctx.Level.Touches)
	assert.Less(t, ctx.Level.ZoneLow, 100.0)
	assert.Greater(t, ctx.Level.ZoneHigh, 100.0)

	require.NotNil(t, ctx.SignalBar)
	assert.InDelta(t, 106.3, ctx.SignalBar.Close, 1e-9)

	// 3 touches + long wick (+2) + strong close (+2) + shallow sweep (+2)
	assert.Equal(t, 9, ctx.Quality.Score)
	require.NotNil(t, ctx.Quality.Bar)
	assert.Nil(t, ctx.Quality.Breakout)
	assert.GreaterOrEqual(t, ctx.Quality.Bar.WickFraction, 0.55)
	assert.Len(t, ctx.Checklist, 4)
}

func TestSupportBounceRejectsCloseBelowLevel(t *testing.T) {
	e := newTestEngine(breakoutParams())

	snapshot := bounceSnapshot()
	rows := snapshot["4h"].OHLCV
	// same sweep, but the close never reclaims the level: wick and close
	// position still pass, the falling-knife guard must not
	rows[39] = row(rows[39][0], 99.8, 99.9, 96.0, 99.3, 700)

	assert.Empty(t, e.DetectSetups(snapshot))
}

func TestSupportBounceRejectsShortWick(t *testing.T) {
	e := newTestEngine(breakoutParams())

	snapshot := bounceSnapshot()
	rows := snapshot["4h"].OHLCV
	// bar touches the zone but has almost no lower wick
	rows[39] = row(rows[39][0], 101.6, 107, 101.5, 106.3, 700)

	assert.Empty(t, e.DetectSetups(snapshot))
}

func TestSupportBounceRejectsQuietVolatility(t *testing.T) {
	p := breakoutParams()
	p.MinATRPct4H = 0.10 // series runs near 5% ATR
	e := newTestEngine(p)

	assert.Empty(t, e.DetectSetups(bounceSnapshot()))
}

// rejection4hRows mirrors the bounce fixture around a resistance cluster at
// 100: the final bar probes above the zone and closes weak and bearish.
func rejection4hRows() [][]float64 {
	pivotHighs := map[int]float64{15: 100.0, 22: 100.05, 29: 99.95}

	rows := make([][]float64, 40)
	for i := range rows {
		ts := float64(fixtureStart.Add(time.Duration(i) * 4 * time.Hour).UnixMilli())
		if i == 39 { // probe + rejection bar
			rows[i] = row(ts, 94.5, 99.5, 93, 93.6, 700)
			continue
		}
		high := 95.0
		if h, ok := pivotHighs[i]; ok {
			high = h
		}
		rows[i] = row(ts, 92, high, 90, 93, 500)
	}
	return rows
}

func rejectionSnapshot() map[string]models.MarketData {
	return map[string]models.MarketData{
		"4h": {
			Symbol:    "SOLUSDT",
			Timeframe: models.TimeframeFourHours,
			Timestamp: fixtureStart.Add(40 * 4 * time.Hour),
			OHLCV:     rejection4hRows(),
			IsClosed:  true,
		},
	}
}

func TestResistanceRejectionEndToEnd(t *testing.T) {
	e := newTestEngine(breakoutParams())

	setups := e.DetectSetups(rejectionSnapshot())
	require.Len(t, setups, 1)

	ev := setups[0]
	assert.Equal(t, models.ResistanceRejection, ev.PatternType)
	assert.Equal(t, "SOLUSDT", ev.Symbol)
	assert.Equal(t, fixtureStart.Add(39*4*time.Hour), ev.Timestamp)

	ctx := ev.Context
	assert.Equal(t, "short", ctx.DirectionBias)
	require.NotNil(t, ctx.Level.Resistance)
	assert.InDelta(t, 100.0, *ctx.Level.Resistance, 1e-9)
	assert.Nil(t, ctx.Level.Support)
	assert.Equal(t, 3, ctx.Level.Touches)

	require.NotNil(t, ctx.SignalBar)
	assert.InDelta(t, 93.6, ctx.SignalBar.Close, 1e-9)

	assert.Equal(t, 9, ctx.Quality.Score)
	require.NotNil(t, ctx.Quality.Bar)
	assert.Nil(t, ctx.Quality.Breakout)
	assert.LessOrEqual(t, ctx.Quality.Bar.ClosePosition, 0.30)
	assert.Len(t, ctx.Checklist, 4)
}

func TestResistanceRejectionRequiresBearishBody(t *testing.T) {
	e := newTestEngine(breakoutParams())

	snapshot := rejectionSnapshot()
	rows := snapshot["4h"].OHLCV
	// same wick and close location, but a bullish body
	rows[39] = row(rows[39][0], 93.4, 99.5, 93, 93.6, 700)

	assert.Empty(t, e.DetectSetups(snapshot))
}
