package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"bitunix-trading-bot/internal/models"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

const systemPrompt = `You are a professional trading setup validator.
Your role is STRICTLY LIMITED to:
1. Validate the quality of an already-detected trading setup
2. Check for conflicts across timeframes
3. Assess market conditions (trending, choppy, clean)

You MUST respond ONLY with valid JSON in this exact format:
{
  "decision": "TRADE" | "NO_TRADE" | "WAIT",
  "confidence": "LOW" | "MID" | "HIGH",
  "reason_code": "CLEAN_SETUP" | "HTF_CONFLICT" | "CHOPPY" | "INSUFFICIENT_MOMENTUM" | "GOOD_STRUCTURE",
  "next_check": {
    "type": "time" | "event",
    "value": "15m" | "close_above_level"
  }
}

Decision guidelines:
- TRADE: Setup looks clean, timeframes align, good structure
- NO_TRADE: Conflicting signals, choppy, poor structure
- WAIT: Setup has potential but needs confirmation (provide next_check)

Confidence guidelines:
- HIGH: All timeframes align, clean structure, strong momentum
- MID: Setup is good but some minor concerns
- LOW: Setup is questionable or marginal

You CANNOT:
- Set prices, stop losses, or take profits
- Determine position sizes
- Execute trades
- Make predictions about future prices

Focus on:
- Timeframe alignment
- Market structure quality
- Momentum and trend strength
- Support/resistance clarity`

// Completer abstracts the LLM transport so the decision engine can be tested
// without network access.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DecisionEngine validates detected setups with an LLM. The AI is purely
// advisory: it can agree, disagree, or ask to wait, but it never invents
// prices or sizes positions. Any transport or parse failure degrades to a
// safe NO_TRADE/LOW verdict instead of propagating an error.
type DecisionEngine struct {
	client Completer
	logger zerolog.Logger
}

func NewDecisionEngine(client Completer, logger zerolog.Logger) *DecisionEngine {
	return &DecisionEngine{
		client: client,
		logger: logger.With().Str("component", "ai_decision").Logger(),
	}
}

// indicatorSnapshot is a compact technical context handed to the LLM
type indicatorSnapshot struct {
	RSI14      float64 `json:"rsi_14"`
	EMA20      float64 `json:"ema_20"`
	EMA50      float64 `json:"ema_50"`
	MACDHist   float64 `json:"macd_hist"`
	LastClose  float64 `json:"last_close"`
	BarsInView int     `json:"bars_in_view"`
}

type validateInput struct {
	Setup      models.SetupEvent            `json:"setup"`
	MarketData map[string][][]float64       `json:"market_data"`
	Indicators map[string]indicatorSnapshot `json:"indicators"`
}

// ValidateSetup asks the LLM to validate a setup against recent market data
func (d *DecisionEngine) ValidateSetup(ctx context.Context, setup models.SetupEvent, marketData map[string]models.MarketData) models.AIDecisionOutput {
	d.logger.Info().Str("event_id", setup.EventID).
		Str("pattern_type", string(setup.PatternType)).Msg("Validating setup with AI")

	if d.client == nil {
		return safeDefault("AI_DISABLED")
	}

	input := d.prepareInput(setup, marketData)

	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", setup.EventID).Msg("Failed to encode AI input")
		return safeDefault("AI_ERROR")
	}

	userPrompt := fmt.Sprintf(`Validate this trading setup:

%s

Respond ONLY with the JSON decision object. No explanations or additional text.`, payload)

	response, err := d.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", setup.EventID).Msg("LLM call failed")
		return safeDefault("AI_ERROR")
	}

	decision := d.parseResponse(response)
	d.logger.Info().Str("event_id", setup.EventID).
		Str("decision", string(decision.Decision)).
		Str("confidence", string(decision.Confidence)).
		Str("reason_code", decision.ReasonCode).Msg("AI validation complete")
	return decision
}

// prepareInput trims each timeframe to its last 20 candles and attaches an
// indicator snapshot computed over the full series.
func (d *DecisionEngine) prepareInput(setup models.SetupEvent, marketData map[string]models.MarketData) validateInput {
	candles := make(map[string][][]float64, len(marketData))
	indicators := make(map[string]indicatorSnapshot, len(marketData))

	for tf, data := range marketData {
		rows := data.OHLCV
		if len(rows) > 20 {
			candles[tf] = rows[len(rows)-20:]
		} else {
			candles[tf] = rows
		}
		if snap, ok := computeIndicators(rows); ok {
			indicators[tf] = snap
		}
	}

	return validateInput{
		Setup:      setup,
		MarketData: candles,
		Indicators: indicators,
	}
}

// computeIndicators derives momentum/trend context from closes. Needs enough
// bars for the slowest lookback (EMA 50), otherwise reports nothing.
func computeIndicators(rows [][]float64) (indicatorSnapshot, bool) {
	closes := make([]float64, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		closes = append(closes, r[4])
	}
	if len(closes) < 51 {
		return indicatorSnapshot{}, false
	}

	rsi := talib.Rsi(closes, 14)
	ema20 := talib.Ema(closes, 20)
	ema50 := talib.Ema(closes, 50)
	_, _, hist := talib.Macd(closes, 12, 26, 9)

	last := len(closes) - 1
	return indicatorSnapshot{
		RSI14:      rsi[last],
		EMA20:      ema20[last],
		EMA50:      ema50[last],
		MACDHist:   hist[last],
		LastClose:  closes[last],
		BarsInView: len(closes),
	}, true
}

func (d *DecisionEngine) parseResponse(response string) models.AIDecisionOutput {
	var out models.AIDecisionOutput
	if err := json.Unmarshal([]byte(response), &out); err != nil {
		d.logger.Error().Err(err).Str("response", response).Msg("Failed to parse AI response")
		return safeDefault("PARSE_ERROR")
	}

	switch out.Decision {
	case models.DecisionTrade, models.DecisionNoTrade, models.DecisionWait:
	default:
		d.logger.Error().Str("decision", string(out.Decision)).Msg("Unknown AI decision")
		return safeDefault("PARSE_ERROR")
	}

	switch out.Confidence {
	case models.ConfidenceLow, models.ConfidenceMid, models.ConfidenceHigh:
	default:
		out.Confidence = models.ConfidenceLow
	}
	return out
}

func safeDefault(reasonCode string) models.AIDecisionOutput {
	return models.AIDecisionOutput{
		Decision:   models.DecisionNoTrade,
		Confidence: models.ConfidenceLow,
		ReasonCode: reasonCode,
	}
}
