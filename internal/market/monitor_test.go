package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitunix-trading-bot/internal/exchange"
	"bitunix-trading-bot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	klines map[string][][]float64
	errs   map[string]error
	last   float64
	calls  map[string]int
}

func (s *stubSource) GetKlines(_ context.Context, _ string, timeframe string, _ int) ([][]float64, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[timeframe]++
	if err := s.errs[timeframe]; err != nil {
		return nil, err
	}
	return s.klines[timeframe], nil
}

func (s *stubSource) GetTicker(_ context.Context, symbol string) (*exchange.Ticker, error) {
	if s.last == 0 {
		return nil, errors.New("ticker unavailable")
	}
	return &exchange.Ticker{Symbol: symbol, Last: s.last}, nil
}

func candleRow(ts time.Time, close float64) []float64 {
	return []float64{float64(ts.UnixMilli()), close - 1, close + 2, close - 2, close, 100}
}

func TestFetchMarksClosedBarWhenIntervalElapsed(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	src := &stubSource{klines: map[string][][]float64{
		"4h": {
			candleRow(now.Add(-8*time.Hour), 100),
			candleRow(now.Add(-4*time.Hour), 101), // closed exactly at now
		},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	data, err := m.Fetch(context.Background(), "4h", 100)
	require.NoError(t, err)

	assert.True(t, data.IsClosed)
	assert.Equal(t, models.TimeframeFourHours, data.Timeframe)
	assert.Equal(t, "BTCUSDT", data.Symbol)
	assert.Len(t, data.OHLCV, 2)
}

func TestFetchMarksOpenBarAsNotClosed(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	src := &stubSource{klines: map[string][][]float64{
		"4h": {
			candleRow(now.Add(-3*time.Hour), 100), // still 1h to go
		},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	data, err := m.Fetch(context.Background(), "4h", 100)
	require.NoError(t, err)
	assert.False(t, data.IsClosed)
}

func TestFetchAcceptsSecondPrecisionEpochs(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(-20 * time.Minute)
	src := &stubSource{klines: map[string][][]float64{
		"15m": {
			{float64(open.Unix()), 99, 102, 98, 100, 100},
		},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"15m"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	data, err := m.Fetch(context.Background(), "15m", 100)
	require.NoError(t, err)
	assert.True(t, data.IsClosed)
}

func TestFetchRejectsUnknownTimeframe(t *testing.T) {
	m := NewMonitor(&stubSource{}, "BTCUSDT", []string{"4h"}, zerolog.Nop())

	_, err := m.Fetch(context.Background(), "2h", 100)
	assert.Error(t, err)
}

func TestFetchAllSkipsFailingTimeframes(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	src := &stubSource{
		klines: map[string][][]float64{
			"4h": {candleRow(now.Add(-8*time.Hour), 100)},
		},
		errs: map[string]error{"1d": errors.New("rate limited")},
	}

	m := NewMonitor(src, "BTCUSDT", []string{"1d", "4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	result := m.FetchAll(context.Background(), 100)
	require.Len(t, result, 1)
	_, ok := result["4h"]
	assert.True(t, ok)

	// the successful fetch is cached
	cached, ok := m.Cached("4h")
	assert.True(t, ok)
	assert.Len(t, cached.OHLCV, 1)
}

func TestFetchAllServesStreamFreshCache(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(-2 * time.Hour)
	src := &stubSource{klines: map[string][][]float64{
		"4h": {candleRow(open, 100)},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	_, err := m.Fetch(context.Background(), "4h", 100)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls["4h"])

	// a streamed update keeps the cache fresh, so the next snapshot does not
	// hit REST and carries the streamed close
	m.ApplyKline(exchange.KlineEvent{
		Symbol: "BTCUSDT", Timeframe: "4h", Time: open.UnixMilli(),
		Open: 99, High: 104, Low: 97, Close: 103, Volume: 150, IsClosed: false,
	})
	result := m.FetchAll(context.Background(), 100)
	require.Len(t, result, 1)
	assert.Equal(t, 1, src.calls["4h"])
	assert.InDelta(t, 103.0, result["4h"].OHLCV[0][4], 1e-9)
	assert.False(t, result["4h"].IsClosed)

	// once the cache goes stale, FetchAll falls back to REST
	now = now.Add(5 * time.Minute)
	result = m.FetchAll(context.Background(), 100)
	require.Len(t, result, 1)
	assert.Equal(t, 2, src.calls["4h"])
	assert.InDelta(t, 100.0, result["4h"].OHLCV[0][4], 1e-9)
}

func TestSnapshotsUnaffectedByLaterStreamUpdates(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(-2 * time.Hour)
	src := &stubSource{klines: map[string][][]float64{
		"4h": {candleRow(open, 100)},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	data, err := m.Fetch(context.Background(), "4h", 100)
	require.NoError(t, err)

	m.ApplyKline(exchange.KlineEvent{
		Symbol: "BTCUSDT", Timeframe: "4h", Time: open.UnixMilli(),
		Open: 99, High: 104, Low: 97, Close: 103, Volume: 150, IsClosed: false,
	})

	// the snapshot handed out before the update keeps its original rows
	assert.InDelta(t, 100.0, data.OHLCV[0][4], 1e-9)
	cached, ok := m.Cached("4h")
	require.True(t, ok)
	assert.InDelta(t, 103.0, cached.OHLCV[0][4], 1e-9)
}

func TestApplyKlineUpdatesCachedSnapshot(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(-2 * time.Hour)
	src := &stubSource{klines: map[string][][]float64{
		"4h": {candleRow(open, 100)},
	}}

	m := NewMonitor(src, "BTCUSDT", []string{"4h"}, zerolog.Nop())
	m.now = func() time.Time { return now }

	_, err := m.Fetch(context.Background(), "4h", 100)
	require.NoError(t, err)

	// same bar open time replaces the last row in place
	m.ApplyKline(exchange.KlineEvent{
		Symbol: "BTCUSDT", Timeframe: "4h", Time: open.UnixMilli(),
		Open: 99, High: 104, Low: 97, Close: 103, Volume: 150, IsClosed: false,
	})
	cached, ok := m.Cached("4h")
	require.True(t, ok)
	require.Len(t, cached.OHLCV, 1)
	assert.InDelta(t, 103.0, cached.OHLCV[0][4], 1e-9)
	assert.False(t, cached.IsClosed)

	// a new bar open time appends
	m.ApplyKline(exchange.KlineEvent{
		Symbol: "BTCUSDT", Timeframe: "4h", Time: open.Add(4 * time.Hour).UnixMilli(),
		Open: 103, High: 105, Low: 102, Close: 104, Volume: 80, IsClosed: true,
	})
	cached, _ = m.Cached("4h")
	assert.Len(t, cached.OHLCV, 2)
	assert.True(t, cached.IsClosed)

	// never-fetched timeframes are ignored
	m.ApplyKline(exchange.KlineEvent{Symbol: "BTCUSDT", Timeframe: "1d", Time: open.UnixMilli()})
	_, ok = m.Cached("1d")
	assert.False(t, ok)
}

func TestLatestPrice(t *testing.T) {
	m := NewMonitor(&stubSource{last: 105.5}, "BTCUSDT", nil, zerolog.Nop())

	price, err := m.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 105.5, price, 1e-9)

	m2 := NewMonitor(&stubSource{}, "BTCUSDT", nil, zerolog.Nop())
	_, err = m2.LatestPrice(context.Background())
	assert.Error(t, err)
}
