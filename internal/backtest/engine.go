package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"bitunix-trading-bot/internal/engine"
	"bitunix-trading-bot/internal/models"

	"github.com/rs/zerolog"
)

// candlesPerDay maps a timeframe to its daily bar count, used to size
// historical fetches
var candlesPerDay = map[string]int{
	"1d":  1,
	"4h":  6,
	"15m": 96,
	"5m":  288,
}

// Fetcher loads historical klines. *exchange.Client satisfies it.
type Fetcher interface {
	GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([][]float64, error)
}

// Validator mirrors the AI decision engine contract so backtests can swap in
// the deterministic mock.
type Validator interface {
	ValidateSetup(ctx context.Context, setup models.SetupEvent, marketData map[string]models.MarketData) models.AIDecisionOutput
}

// Signal is one detected-and-validated setup from a backtest run
type Signal struct {
	Timestamp   time.Time           `json:"timestamp"`
	Symbol      string              `json:"symbol"`
	PatternType models.PatternType  `json:"pattern_type"`
	Decision    models.AIDecision   `json:"decision"`
	Confidence  models.AIConfidence `json:"confidence"`
	ReasonCode  string              `json:"reason_code"`
	EntryPrice  *float64            `json:"entry_price,omitempty"`
	StopLoss    *float64            `json:"stop_loss,omitempty"`
	TakeProfit  *float64            `json:"take_profit,omitempty"`
	Side        string              `json:"side,omitempty"`
	Quality     int                 `json:"quality_score"`
}

// Engine replays historical snapshots day by day through a fresh rule engine
// instance. The focus is signal behavior, not PnL.
type Engine struct {
	fetcher Fetcher
	params  engine.RuleParams
	logger  zerolog.Logger
}

func NewEngine(fetcher Fetcher, params engine.RuleParams, logger zerolog.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		params:  params,
		logger:  logger.With().Str("component", "backtest").Logger(),
	}
}

// Run simulates the last N days for a symbol. Each simulated day sees only
// the candles that had closed by that day's open, so the rule engine operates
// on exactly what it would have seen live.
func (e *Engine) Run(ctx context.Context, symbol string, days int, timeframes []string, validator Validator) ([]Signal, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}

	hasDaily := false
	for _, tf := range timeframes {
		if tf == "1d" {
			hasDaily = true
		}
		if _, ok := candlesPerDay[tf]; !ok {
			return nil, fmt.Errorf("unsupported timeframe for backtest: %s", tf)
		}
	}
	if !hasDaily {
		return nil, fmt.Errorf("backtest requires the 1d timeframe to step day by day")
	}

	e.logger.Info().Str("symbol", symbol).Int("days", days).
		Strs("timeframes", timeframes).Msg("Starting backtest")

	const lookbackCandles = 50
	allData := make(map[string][][]float64, len(timeframes))
	for _, tf := range timeframes {
		limit := days*candlesPerDay[tf] + lookbackCandles
		rows, err := e.fetcher.GetKlines(ctx, symbol, tf, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s history: %w", tf, err)
		}
		allData[tf] = rows
	}

	daily := allData["1d"]
	if len(daily) < days {
		return nil, fmt.Errorf("not enough daily candles: have %d, need %d", len(daily), days)
	}

	var signals []Signal
	startIdx := len(daily) - days

	for dayIdx := startIdx; dayIdx < len(daily); dayIdx++ {
		currentTS := daily[dayIdx][0]

		// fresh engine per day keeps dedup state from leaking across the
		// replay
		ruleEngine := engine.NewRuleEngine(e.params, e.logger)

		snapshot := make(map[string]models.MarketData, len(allData))
		for tf, rows := range allData {
			slice := sliceThrough(rows, currentTS)
			if len(slice) < 20 {
				continue
			}
			tfParsed, _ := models.ParseTimeframe(tf)
			snapshot[tf] = models.MarketData{
				Symbol:    symbol,
				Timeframe: tfParsed,
				Timestamp: toTime(currentTS),
				OHLCV:     slice,
				IsClosed:  true,
			}
		}
		if len(snapshot) == 0 {
			continue
		}

		setups := ruleEngine.DetectSetups(snapshot)
		if len(setups) == 0 {
			continue
		}

		for _, setup := range setups {
			decision := validator.ValidateSetup(ctx, setup, snapshot)
			signals = append(signals, Signal{
				Timestamp:   toTime(currentTS),
				Symbol:      symbol,
				PatternType: setup.PatternType,
				Decision:    decision.Decision,
				Confidence:  decision.Confidence,
				ReasonCode:  decision.ReasonCode,
				EntryPrice:  decision.EntryPrice,
				StopLoss:    decision.StopLoss,
				TakeProfit:  decision.TakeProfit,
				Side:        decision.Side,
				Quality:     setup.Context.Quality.Score,
			})
		}
	}

	e.logger.Info().Int("signal_count", len(signals)).Msg("Backtest complete")
	return signals, nil
}

// sliceThrough keeps the candles that had opened at or before the cutoff
func sliceThrough(rows [][]float64, cutoff float64) [][]float64 {
	out := make([][]float64, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 && r[0] <= cutoff {
			out = append(out, r)
		}
	}
	return out
}

func toTime(ts float64) time.Time {
	if ts >= 1e11 {
		return time.UnixMilli(int64(ts)).UTC()
	}
	return time.Unix(int64(ts), 0).UTC()
}

// MockValidator is a deterministic stand-in for the AI decision engine so
// backtests run without external calls. Long setups become TRADE/MID with a
// structural stop and 1:2 target; rejections stay NO_TRADE.
type MockValidator struct{}

func (MockValidator) ValidateSetup(_ context.Context, setup models.SetupEvent, marketData map[string]models.MarketData) models.AIDecisionOutput {
	noTrade := models.AIDecisionOutput{
		Decision:   models.DecisionNoTrade,
		Confidence: models.ConfidenceLow,
		ReasonCode: "MOCK_NO_TRADE",
	}

	var level float64
	switch setup.PatternType {
	case models.BreakoutRetest:
		if setup.Context.Level.Resistance == nil {
			return noTrade
		}
		level = *setup.Context.Level.Resistance
	case models.SupportBounce:
		if setup.Context.Level.Support == nil {
			return noTrade
		}
		level = *setup.Context.Level.Support
	default:
		return noTrade
	}

	entry := lastClose(marketData)
	if entry <= 0 {
		return noTrade
	}

	stopLoss := level * 0.99
	slDistancePct := math.Abs(entry-stopLoss) / entry * 100
	if slDistancePct < 0.1 || slDistancePct > 10 {
		return models.AIDecisionOutput{
			Decision:   models.DecisionNoTrade,
			Confidence: models.ConfidenceLow,
			ReasonCode: "MOCK_INVALID_SL",
		}
	}
	takeProfit := entry + (entry-stopLoss)*2

	return models.AIDecisionOutput{
		Decision:   models.DecisionTrade,
		Confidence: models.ConfidenceMid,
		ReasonCode: "MOCK_TRADE",
		EntryPrice: &entry,
		StopLoss:   &stopLoss,
		TakeProfit: &takeProfit,
		Side:       "buy",
	}
}

// lastClose pulls the newest daily close from the snapshot, falling back to
// any timeframe when 1d is absent
func lastClose(marketData map[string]models.MarketData) float64 {
	if data, ok := marketData["1d"]; ok {
		if c := closeOf(data.OHLCV); c > 0 {
			return c
		}
	}
	for _, data := range marketData {
		if c := closeOf(data.OHLCV); c > 0 {
			return c
		}
	}
	return 0
}

func closeOf(rows [][]float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	last := rows[len(rows)-1]
	if len(last) < 6 {
		return 0
	}
	return last[4]
}
