package trademonitor

import (
	"sync"

	"bitunix-trading-bot/internal/models"
	"bitunix-trading-bot/internal/risk"

	"github.com/rs/zerolog"
)

// Monitor tracks open trades and closes them mechanically when the stop loss
// or take profit level is hit. No trailing stops, no intervention, no AI
// calls while a trade is open.
type Monitor struct {
	mu sync.Mutex

	engine     *risk.Engine
	openTrades map[string]*models.Trade
	logger     zerolog.Logger
}

func NewMonitor(engine *risk.Engine, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		engine:     engine,
		openTrades: make(map[string]*models.Trade),
		logger:     logger.With().Str("component", "trade_monitor").Logger(),
	}
	m.logger.Info().Msg("Trade monitor initialized")
	return m
}

// Add registers a trade for monitoring
func (m *Monitor) Add(trade models.Trade) {
	m.mu.Lock()
	m.openTrades[trade.TradeID] = &trade
	count := len(m.openTrades)
	m.mu.Unlock()

	m.logger.Info().Str("trade_id", trade.TradeID).Str("symbol", trade.Symbol).
		Int("total_open_trades", count).Msg("Trade added to monitoring")
}

// Check evaluates all open trades against current prices and closes any that
// hit their stop or target. Exits settle exactly at the SL/TP level, not at
// the observed price.
func (m *Monitor) Check(currentPrices map[string]float64) []models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed []models.Trade
	for tradeID, trade := range m.openTrades {
		price, ok := currentPrices[trade.Symbol]
		if !ok {
			continue
		}

		var reason string
		var exitPrice float64
		if trade.Side == models.SideBuy {
			switch {
			case price <= trade.StopLoss:
				reason, exitPrice = "STOP_LOSS", trade.StopLoss
			case price >= trade.TakeProfit:
				reason, exitPrice = "TAKE_PROFIT", trade.TakeProfit
			}
		} else {
			switch {
			case price >= trade.StopLoss:
				reason, exitPrice = "STOP_LOSS", trade.StopLoss
			case price <= trade.TakeProfit:
				reason, exitPrice = "TAKE_PROFIT", trade.TakeProfit
			}
		}

		if reason == "" {
			continue
		}

		m.engine.UpdateResult(trade, exitPrice, reason)
		closed = append(closed, *trade)
		delete(m.openTrades, tradeID)

		m.logger.Info().Str("trade_id", tradeID).Str("symbol", trade.Symbol).
			Str("reason", reason).Float64("exit_price", exitPrice).
			Float64("pnl", trade.PnL).Msg("Trade closed")
	}

	if len(closed) > 0 {
		m.logger.Info().Int("closed_count", len(closed)).
			Int("remaining_open", len(m.openTrades)).Msg("Trade monitoring update")
	}
	return closed
}

// Open returns a snapshot of all open trades
func (m *Monitor) Open() []models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	trades := make([]models.Trade, 0, len(m.openTrades))
	for _, t := range m.openTrades {
		trades = append(trades, *t)
	}
	return trades
}

// Get returns a specific open trade
func (m *Monitor) Get(tradeID string) (models.Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.openTrades[tradeID]
	if !ok {
		return models.Trade{}, false
	}
	return *t, true
}

// Remove drops a trade from monitoring without closing it
func (m *Monitor) Remove(tradeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.openTrades[tradeID]; ok {
		delete(m.openTrades, tradeID)
		m.logger.Info().Str("trade_id", tradeID).Msg("Trade removed from monitoring")
	}
}
