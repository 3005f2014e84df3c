package engine

import (
	"bitunix-trading-bot/internal/models"

	"github.com/rs/zerolog"
)

// RuleEngine is the deterministic setup detection engine. It emits
// "worth-a-human-look" setup events, not trade decisions. The only state it
// carries across calls is the dedup/cooldown table; everything else is
// recomputed from the snapshot on every call.
//
// A single instance is safe for sequential multi-symbol use. Concurrent calls
// against the same instance require external mutual exclusion (or one
// instance per symbol), because the dedup table is mutated in place.
type RuleEngine struct {
	params      RuleParams
	lastEmitted map[dedupeKey]dedupeRecord
	logger      zerolog.Logger
}

// NewRuleEngine creates a rule engine with the given params
func NewRuleEngine(params RuleParams, logger zerolog.Logger) *RuleEngine {
	e := &RuleEngine{
		params:      params,
		lastEmitted: make(map[dedupeKey]dedupeRecord),
		logger:      logger.With().Str("component", "rule_engine").Logger(),
	}
	e.logger.Info().Interface("params", params).Msg("Rule engine initialized")
	return e
}

// Params returns a copy of the engine parameters
func (e *RuleEngine) Params() RuleParams {
	return e.params
}

type matcherFunc func(map[models.Timeframe]models.MarketData) *models.SetupEvent

// DetectSetups scans a multi-timeframe snapshot and returns the admitted
// setup events in fixed matcher order (breakout-retest, support-bounce,
// resistance-rejection). Unknown timeframe keys are ignored. If any higher
// timeframe bar is still forming, detection is skipped entirely so that no
// matcher ever sees provisional OHLC values.
func (e *RuleEngine) DetectSetups(marketData map[string]models.MarketData) []models.SetupEvent {
	md := normalizeTimeframeKeys(marketData)

	if hasOpenHTFBar(md) {
		e.logger.Info().Msg("Skipping setup detection: HTF bar not closed")
		return nil
	}

	matchers := []matcherFunc{
		e.checkBreakoutRetest,
		e.checkSupportBounce,
		e.checkResistanceRejection,
	}

	var setups []models.SetupEvent
	for _, match := range matchers {
		ev := match(md)
		if ev != nil && e.shouldEmit(*ev) {
			setups = append(setups, *ev)
		}
	}

	e.logger.Info().Int("setup_count", len(setups)).Msg("Detected setups")
	return setups
}

// normalizeTimeframeKeys keeps only recognized timeframe keys
func normalizeTimeframeKeys(marketData map[string]models.MarketData) map[models.Timeframe]models.MarketData {
	out := make(map[models.Timeframe]models.MarketData, len(marketData))
	for k, v := range marketData {
		if tf, ok := models.ParseTimeframe(k); ok {
			out[tf] = v
		}
	}
	return out
}

// hasOpenHTFBar reports whether any higher timeframe bar is still open
func hasOpenHTFBar(md map[models.Timeframe]models.MarketData) bool {
	for _, tf := range []models.Timeframe{models.TimeframeOneDay, models.TimeframeFourHours} {
		if data, ok := md[tf]; ok && !data.IsClosed {
			return true
		}
	}
	return false
}
