package risk

import (
	"context"
	"testing"

	"bitunix-trading-bot/config"
	"bitunix-trading-bot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxTradesPerDay:     5,
		MaxRiskPerDay:       10.0,
		MaxDrawdown:         20.0,
		CooldownAfterLosses: 3,
		RiskPerTradePct:     1.0,
		RiskMultLow:         0.5,
		RiskMultMid:         1.0,
		RiskMultHigh:        2.0,
	}
}

func newTestEngine() *Engine {
	return NewEngine(testRiskConfig(), 10000, nil, zerolog.Nop())
}

func tradeDecision(confidence models.AIConfidence) models.AIDecisionOutput {
	return models.AIDecisionOutput{
		Decision:   models.DecisionTrade,
		Confidence: confidence,
		ReasonCode: "CLEAN_SETUP",
	}
}

func longSetup(support float64) models.SetupEvent {
	return models.SetupEvent{
		EventID:     "ev-1",
		Symbol:      "BTCUSDT",
		PatternType: models.SupportBounce,
		Context: models.SetupContext{
			DirectionBias: "long",
			Level:         models.LevelInfo{Support: &support},
		},
	}
}

func TestShouldExecuteRejectsNonTradeDecisions(t *testing.T) {
	e := newTestEngine()

	assert.False(t, e.ShouldExecute(models.AIDecisionOutput{Decision: models.DecisionNoTrade}))
	assert.False(t, e.ShouldExecute(models.AIDecisionOutput{Decision: models.DecisionWait}))
	assert.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
}

func TestShouldExecuteEnforcesDailyTradeLimit(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceLow), 105)
		require.NoError(t, err)
		_, err = e.Execute(ctx, order, 105)
		require.NoError(t, err)
	}

	assert.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceLow)))
}

func TestShouldExecuteEnforcesDailyRiskBudget(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxRiskPerDay = 1.5
	e := NewEngine(cfg, 10000, nil, zerolog.Nop())
	ctx := context.Background()

	// first HIGH confidence trade consumes 2R worth of risk budget... which
	// already exceeds 1.5, so it is rejected up front
	assert.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceHigh)))

	// a MID trade (1R) fits, and afterwards another MID does not
	require.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
	order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceMid), 105)
	require.NoError(t, err)
	_, err = e.Execute(ctx, order, 105)
	require.NoError(t, err)

	assert.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
}

func TestDailyRiskBudgetAccountsForRiskPerTradePct(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxRiskPerDay = 4.0
	cfg.RiskPerTradePct = 2.0
	e := NewEngine(cfg, 10000, nil, zerolog.Nop())
	ctx := context.Background()

	// each MID trade risks 2% of the account, so the 4% daily cap fits two
	for i := 0; i < 2; i++ {
		require.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
		order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceMid), 105)
		require.NoError(t, err)
		assert.InDelta(t, 200.0, order.RiskAmount, 1e-9)
		_, err = e.Execute(ctx, order, 105)
		require.NoError(t, err)
	}

	assert.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
}

func TestCreateOrderSizesPositionByRisk(t *testing.T) {
	e := newTestEngine()

	order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceMid), 105)
	require.NoError(t, err)

	// MID = 1R, 1% of 10000 = 100 risked
	assert.InDelta(t, 100.0, order.RiskAmount, 1e-9)
	assert.Equal(t, models.SideBuy, order.Side)
	assert.Equal(t, models.OrderMarket, order.OrderType)

	// stop sits 0.5% below the support level
	assert.InDelta(t, 99.5, order.StopLoss, 1e-9)

	// quantity = risk / stop distance
	assert.InDelta(t, 100.0/5.5, order.Quantity, 1e-9)

	// target at 1:2 risk/reward
	assert.InDelta(t, 105+2*5.5, order.TakeProfit, 1e-9)
}

func TestCreateOrderShortUsesResistanceStop(t *testing.T) {
	e := newTestEngine()

	resistance := 100.0
	setup := models.SetupEvent{
		EventID:     "ev-2",
		Symbol:      "BTCUSDT",
		PatternType: models.ResistanceRejection,
		Context: models.SetupContext{
			DirectionBias: "short",
			Level:         models.LevelInfo{Resistance: &resistance},
		},
	}

	order, err := e.CreateOrder(setup, tradeDecision(models.ConfidenceHigh), 95)
	require.NoError(t, err)

	assert.Equal(t, models.SideSell, order.Side)
	assert.InDelta(t, 100.5, order.StopLoss, 1e-9)
	assert.InDelta(t, 95-2*5.5, order.TakeProfit, 1e-9)

	// HIGH = 2R of 1% each
	assert.InDelta(t, 200.0, order.RiskAmount, 1e-9)
}

func TestCreateOrderRejectsInvalidPrice(t *testing.T) {
	e := newTestEngine()

	_, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceMid), 0)
	assert.Error(t, err)
}

func TestExecutePaperFillsAtCurrentPrice(t *testing.T) {
	e := newTestEngine()

	order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceMid), 105)
	require.NoError(t, err)

	trade, err := e.Execute(context.Background(), order, 105)
	require.NoError(t, err)

	assert.Equal(t, models.TradeOpen, trade.Status)
	assert.InDelta(t, 105.0, trade.EntryPrice, 1e-9)
	assert.Equal(t, order.TradeID, trade.TradeID)
}

func TestUpdateResultSettlesPnLAndRMultiple(t *testing.T) {
	e := newTestEngine()

	trade := models.Trade{
		TradeID:    "t-1",
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		EntryPrice: 105,
		Quantity:   10,
		StopLoss:   99.5,
		Status:     models.TradeOpen,
	}

	e.UpdateResult(&trade, 116, "TAKE_PROFIT")

	assert.Equal(t, models.TradeClosed, trade.Status)
	require.NotNil(t, trade.ClosedAt)
	assert.InDelta(t, 110.0, trade.PnL, 1e-9)
	assert.InDelta(t, 2.0, trade.RMultiple, 1e-9)
	assert.InDelta(t, 10110.0, e.Balance(), 1e-9)
}

func TestCooldownActivatesAfterConsecutiveLosses(t *testing.T) {
	e := newTestEngine()

	for i := 0; i < 3; i++ {
		trade := models.Trade{
			TradeID:    "t-loss",
			Side:       models.SideBuy,
			EntryPrice: 105,
			Quantity:   1,
			StopLoss:   99.5,
			Status:     models.TradeOpen,
		}
		e.UpdateResult(&trade, 99.5, "STOP_LOSS")
	}

	assert.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))

	e.ClearCooldown()
	assert.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
}

func TestWinResetsLossStreak(t *testing.T) {
	e := newTestEngine()

	losing := func() models.Trade {
		return models.Trade{
			Side: models.SideBuy, EntryPrice: 105, Quantity: 1, StopLoss: 99.5,
			Status: models.TradeOpen,
		}
	}

	l1, l2 := losing(), losing()
	e.UpdateResult(&l1, 99.5, "STOP_LOSS")
	e.UpdateResult(&l2, 99.5, "STOP_LOSS")

	win := losing()
	e.UpdateResult(&win, 116, "TAKE_PROFIT")

	l3 := losing()
	e.UpdateResult(&l3, 99.5, "STOP_LOSS")

	// streak restarted after the win, cooldown must not be active yet
	assert.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceMid)))
}

func TestResetDailyClearsBudgets(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		order, err := e.CreateOrder(longSetup(100), tradeDecision(models.ConfidenceLow), 105)
		require.NoError(t, err)
		_, err = e.Execute(ctx, order, 105)
		require.NoError(t, err)
	}
	require.False(t, e.ShouldExecute(tradeDecision(models.ConfidenceLow)))

	e.ResetDaily()
	assert.True(t, e.ShouldExecute(tradeDecision(models.ConfidenceLow)))
}
