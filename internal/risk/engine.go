package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"bitunix-trading-bot/config"
	"bitunix-trading-bot/internal/exchange"
	"bitunix-trading-bot/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderPlacer is the slice of the exchange client the engine needs for live
// execution. Nil means paper trading.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, order exchange.OrderRequest) (*exchange.OrderResponse, error)
}

// Engine executes trades mechanically under fixed risk rules. The AI decides
// IF a trade happens; this engine alone decides size, stop, and target, with
// no interpretation room.
type Engine struct {
	mu sync.Mutex

	cfg            config.RiskConfig
	accountBalance float64
	placer         OrderPlacer
	logger         zerolog.Logger

	dailyTrades       int
	dailyRiskUsed     float64
	consecutiveLosses int
	inCooldown        bool
}

func NewEngine(cfg config.RiskConfig, accountBalance float64, placer OrderPlacer, logger zerolog.Logger) *Engine {
	e := &Engine{
		cfg:            cfg,
		accountBalance: accountBalance,
		placer:         placer,
		logger:         logger.With().Str("component", "risk_engine").Logger(),
	}
	e.logger.Info().Float64("account_balance", accountBalance).Msg("Execution & risk engine initialized")
	return e
}

// ShouldExecute applies the fixed risk gates to an AI verdict
func (e *Engine) ShouldExecute(decision models.AIDecisionOutput) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if decision.Decision != models.DecisionTrade {
		e.logger.Info().Str("decision", string(decision.Decision)).Msg("Trade rejected: AI decision is not TRADE")
		return false
	}
	if e.dailyTrades >= e.cfg.MaxTradesPerDay {
		e.logger.Warn().Int("daily_trades", e.dailyTrades).Msg("Trade rejected: daily trade limit reached")
		return false
	}

	// riskPct is what Execute will charge for this trade: the confidence R
	// multiple times the per-trade risk percentage of the account
	riskPct := e.cfg.RiskMultiplier(string(decision.Confidence)) * e.cfg.RiskPerTradePct
	if e.dailyRiskUsed+riskPct > e.cfg.MaxRiskPerDay {
		e.logger.Warn().Float64("daily_risk_used", e.dailyRiskUsed).
			Float64("risk_for_trade", riskPct).Msg("Trade rejected: daily risk limit would be exceeded")
		return false
	}
	if e.inCooldown {
		e.logger.Warn().Msg("Trade rejected: in cooldown period")
		return false
	}
	return true
}

// CreateOrder builds a market order from the setup structure. The stop goes
// behind the level with a small buffer, the target at a fixed 1:2 risk/reward.
func (e *Engine) CreateOrder(setup models.SetupEvent, decision models.AIDecisionOutput, currentPrice float64) (models.TradeOrder, error) {
	if currentPrice <= 0 {
		return models.TradeOrder{}, fmt.Errorf("invalid current price %.8f", currentPrice)
	}

	e.mu.Lock()
	balance := e.accountBalance
	e.mu.Unlock()

	riskR := e.cfg.RiskMultiplier(string(decision.Confidence))
	riskAmount := balance * (riskR * e.cfg.RiskPerTradePct / 100)

	side := models.SideBuy
	if setup.Context.DirectionBias == "short" {
		side = models.SideSell
	}

	stopLoss := e.structuralStop(setup, side, currentPrice)
	riskPerUnit := math.Abs(currentPrice - stopLoss)
	if riskPerUnit <= 0 {
		return models.TradeOrder{}, fmt.Errorf("degenerate stop distance for setup %s", setup.EventID)
	}
	quantity := riskAmount / riskPerUnit

	var takeProfit float64
	if side == models.SideBuy {
		takeProfit = currentPrice + 2*riskPerUnit
	} else {
		takeProfit = currentPrice - 2*riskPerUnit
	}

	order := models.TradeOrder{
		TradeID:    uuid.NewString(),
		Symbol:     setup.Symbol,
		Side:       side,
		OrderType:  models.OrderMarket,
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		RiskAmount: riskAmount,
	}

	e.logger.Info().Str("trade_id", order.TradeID).Str("symbol", order.Symbol).
		Str("side", string(order.Side)).Float64("quantity", order.Quantity).
		Float64("stop_loss", order.StopLoss).Float64("take_profit", order.TakeProfit).
		Float64("risk_amount", order.RiskAmount).Msg("Trade order created")
	return order, nil
}

// structuralStop places the stop behind the setup's level with a 0.5% buffer,
// falling back to a 2% distance when the setup carries no level.
func (e *Engine) structuralStop(setup models.SetupEvent, side models.OrderSide, currentPrice float64) float64 {
	level := setup.Context.PrimaryLevel()
	if side == models.SideBuy {
		if level > 0 && level < currentPrice {
			return level * 0.995
		}
		return currentPrice * 0.98
	}
	if level > 0 && level > currentPrice {
		return level * 1.005
	}
	return currentPrice * 1.02
}

// Execute places the order (live) or simulates a fill at the current price
// (paper), and charges the trade against the daily budgets.
func (e *Engine) Execute(ctx context.Context, order models.TradeOrder, currentPrice float64) (models.Trade, error) {
	entryPrice := currentPrice

	if e.placer != nil {
		resp, err := e.placer.CreateOrder(ctx, exchange.OrderRequest{
			Symbol:   order.Symbol,
			Side:     sideToExchange(order.Side),
			Type:     "MARKET",
			Quantity: order.Quantity,
		})
		if err != nil {
			return models.Trade{}, fmt.Errorf("order placement failed: %w", err)
		}
		if resp.Price > 0 {
			entryPrice = resp.Price
		}
		e.logger.Info().Str("trade_id", order.TradeID).Str("order_id", resp.OrderID).Msg("Order executed in LIVE mode")
	} else {
		e.logger.Info().Str("trade_id", order.TradeID).Msg("Order executed in PAPER TRADING mode")
	}

	e.mu.Lock()
	e.dailyTrades++
	e.dailyRiskUsed += order.RiskAmount / e.accountBalance * 100
	e.mu.Unlock()

	trade := models.Trade{
		TradeID:    order.TradeID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		EntryPrice: entryPrice,
		Quantity:   order.Quantity,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Status:     models.TradeOpen,
		OpenedAt:   time.Now().UTC(),
	}

	e.logger.Info().Str("trade_id", trade.TradeID).Str("symbol", trade.Symbol).
		Float64("entry_price", trade.EntryPrice).Float64("quantity", trade.Quantity).
		Msg("Trade executed")
	return trade, nil
}

// UpdateResult settles a closed trade: PnL, R-multiple, loss streak, cooldown
// activation, and balance adjustment.
func (e *Engine) UpdateResult(trade *models.Trade, exitPrice float64, reason string) {
	var pnl float64
	if trade.Side == models.SideBuy {
		pnl = (exitPrice - trade.EntryPrice) * trade.Quantity
	} else {
		pnl = (trade.EntryPrice - exitPrice) * trade.Quantity
	}

	risk := math.Abs(trade.EntryPrice-trade.StopLoss) * trade.Quantity
	var rMultiple float64
	if risk > 0 {
		rMultiple = pnl / risk
	}

	now := time.Now().UTC()
	trade.Status = models.TradeClosed
	trade.ClosedAt = &now
	trade.PnL = pnl
	trade.RMultiple = rMultiple

	e.mu.Lock()
	if pnl < 0 {
		e.consecutiveLosses++
	} else {
		e.consecutiveLosses = 0
	}
	if e.consecutiveLosses >= e.cfg.CooldownAfterLosses {
		e.inCooldown = true
		e.logger.Warn().Int("consecutive_losses", e.consecutiveLosses).Msg("Cooldown activated")
	}
	e.accountBalance += pnl
	balance := e.accountBalance
	e.mu.Unlock()

	e.logger.Info().Str("trade_id", trade.TradeID).Float64("exit_price", exitPrice).
		Float64("pnl", pnl).Float64("r_multiple", rMultiple).Str("reason", reason).
		Float64("account_balance", balance).Msg("Trade closed")
}

// ResetDaily clears the per-day budgets; call at the start of a trading day
func (e *Engine) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyTrades = 0
	e.dailyRiskUsed = 0
	e.logger.Info().Msg("Daily limits reset")
}

// ClearCooldown lifts the loss-streak cooldown
func (e *Engine) ClearCooldown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inCooldown = false
	e.consecutiveLosses = 0
	e.logger.Info().Msg("Cooldown cleared")
}

// Balance returns the current account balance
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountBalance
}

func sideToExchange(side models.OrderSide) string {
	if side == models.SideSell {
		return "SELL"
	}
	return "BUY"
}
