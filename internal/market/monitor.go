package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitunix-trading-bot/internal/exchange"
	"bitunix-trading-bot/internal/models"

	"github.com/rs/zerolog"
)

// KlineSource provides raw market data. *exchange.Client satisfies it; tests
// substitute a stub.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([][]float64, error)
	GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error)
}

// Monitor fetches OHLCV snapshots for one symbol across a fixed set of
// timeframes. It is a pure data provider: no trading logic lives here.
type Monitor struct {
	mu sync.RWMutex

	source     KlineSource
	symbol     string
	timeframes []string
	cache      map[string]models.MarketData
	logger     zerolog.Logger

	// maxCacheAge bounds how long a stream-fed cache entry may stand in for
	// a REST fetch
	maxCacheAge time.Duration

	// now is swappable for tests
	now func() time.Time
}

func NewMonitor(source KlineSource, symbol string, timeframes []string, logger zerolog.Logger) *Monitor {
	return &Monitor{
		source:      source,
		symbol:      symbol,
		timeframes:  timeframes,
		cache:       make(map[string]models.MarketData),
		logger:      logger.With().Str("component", "market_monitor").Str("symbol", symbol).Logger(),
		maxCacheAge: 30 * time.Second,
		now:         time.Now,
	}
}

// Fetch loads OHLCV data for a single timeframe and marks whether the newest
// bar has closed.
func (m *Monitor) Fetch(ctx context.Context, timeframe string, limit int) (models.MarketData, error) {
	tf, ok := models.ParseTimeframe(timeframe)
	if !ok {
		return models.MarketData{}, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	rows, err := m.source.GetKlines(ctx, m.symbol, timeframe, limit)
	if err != nil {
		return models.MarketData{}, fmt.Errorf("failed to fetch %s klines: %w", timeframe, err)
	}

	data := models.MarketData{
		Symbol:    m.symbol,
		Timeframe: tf,
		Timestamp: m.now().UTC(),
		OHLCV:     rows,
		IsClosed:  m.lastBarClosed(rows, tf),
	}

	// the cache keeps its own copy of the series so streamed updates never
	// touch a snapshot already handed to a caller
	cached := data
	cached.OHLCV = cloneRows(rows)
	m.mu.Lock()
	m.cache[timeframe] = cached
	m.mu.Unlock()

	m.logger.Debug().Str("timeframe", timeframe).Int("candles", len(rows)).
		Bool("is_closed", data.IsClosed).Msg("Fetched OHLCV")
	return data, nil
}

// FetchAll assembles the full snapshot. Timeframes whose cache was refreshed
// recently (by a streamed kline or an earlier fetch) are served from the
// cache; the rest go over REST. Failures on individual timeframes are logged
// and skipped so one flaky endpoint does not blank the whole snapshot.
func (m *Monitor) FetchAll(ctx context.Context, limit int) map[string]models.MarketData {
	result := make(map[string]models.MarketData, len(m.timeframes))
	fromCache := 0
	for _, tf := range m.timeframes {
		if data, ok := m.freshCached(tf); ok {
			result[tf] = data
			fromCache++
			continue
		}
		data, err := m.Fetch(ctx, tf, limit)
		if err != nil {
			m.logger.Error().Err(err).Str("timeframe", tf).Msg("Failed to fetch timeframe")
			continue
		}
		result[tf] = data
	}

	m.logger.Info().Int("successful", len(result)).Int("total", len(m.timeframes)).
		Int("from_cache", fromCache).Msg("Assembled market snapshot")
	return result
}

// freshCached returns a copy of the cached snapshot when it is recent enough
// to stand in for a REST fetch. IsClosed is recomputed because the bar may
// have closed since the last update.
func (m *Monitor) freshCached(timeframe string) (models.MarketData, bool) {
	m.mu.RLock()
	data, ok := m.cache[timeframe]
	if ok {
		data.OHLCV = cloneRows(data.OHLCV)
	}
	m.mu.RUnlock()

	if !ok || m.now().Sub(data.Timestamp) > m.maxCacheAge {
		return models.MarketData{}, false
	}
	data.IsClosed = m.lastBarClosed(data.OHLCV, data.Timeframe)
	return data, true
}

// ApplyKline folds a streamed candle update into the cached snapshot for its
// timeframe. Updates for timeframes that have never been fetched are dropped;
// the next Fetch establishes the baseline.
func (m *Monitor) ApplyKline(ev exchange.KlineEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.cache[ev.Timeframe]
	if !ok {
		return
	}

	row := []float64{float64(ev.Time), ev.Open, ev.High, ev.Low, ev.Close, ev.Volume}
	if n := len(data.OHLCV); n > 0 && data.OHLCV[n-1][0] == row[0] {
		data.OHLCV[n-1] = row
	} else {
		data.OHLCV = append(data.OHLCV, row)
	}
	data.IsClosed = ev.IsClosed
	data.Timestamp = m.now().UTC()
	m.cache[ev.Timeframe] = data
}

// Cached returns a copy of the last snapshot stored for a timeframe
func (m *Monitor) Cached(timeframe string) (models.MarketData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.cache[timeframe]
	if !ok {
		return models.MarketData{}, false
	}
	data.OHLCV = cloneRows(data.OHLCV)
	return data, true
}

// cloneRows copies the outer slice so the cache and handed-out snapshots
// never share it. Row contents are never modified in place, so sharing the
// inner slices is safe.
func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	copy(out, rows)
	return out
}

// LatestPrice fetches the current last-trade price
func (m *Monitor) LatestPrice(ctx context.Context) (float64, error) {
	ticker, err := m.source.GetTicker(ctx, m.symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest price: %w", err)
	}
	return ticker.Last, nil
}

// lastBarClosed reports whether the newest bar's interval has fully elapsed.
// An empty series counts as closed. Second-precision epochs are tolerated the
// same way series normalization tolerates them.
func (m *Monitor) lastBarClosed(rows [][]float64, tf models.Timeframe) bool {
	if len(rows) == 0 || len(rows[len(rows)-1]) == 0 {
		return true
	}

	dur, err := tf.Duration()
	if err != nil {
		return true
	}

	ts := rows[len(rows)-1][0]
	var open time.Time
	if ts >= 1e11 {
		open = time.UnixMilli(int64(ts)).UTC()
	} else {
		open = time.Unix(int64(ts), 0).UTC()
	}

	return !m.now().UTC().Before(open.Add(dur))
}
