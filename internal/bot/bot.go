package bot

import (
	"context"
	"sync"
	"time"

	"bitunix-trading-bot/internal/engine"
	"bitunix-trading-bot/internal/market"
	"bitunix-trading-bot/internal/models"
	"bitunix-trading-bot/internal/risk"
	"bitunix-trading-bot/internal/trademonitor"

	"github.com/rs/zerolog"
)

// maxRechecks caps how many cycles a WAIT verdict may linger before the
// pending setup expires
const maxRechecks = 5

// Validator abstracts the AI decision engine
type Validator interface {
	ValidateSetup(ctx context.Context, setup models.SetupEvent, marketData map[string]models.MarketData) models.AIDecisionOutput
}

// pendingSetup tracks a setup the AI asked to re-check later
type pendingSetup struct {
	setup        models.SetupEvent
	decision     models.AIDecisionOutput
	firstSeen    time.Time
	recheckCount int
}

// TradingSystem orchestrates one symbol's full workflow: market data in,
// setups detected, AI validated, trades executed and monitored.
type TradingSystem struct {
	mu sync.Mutex

	monitor      *market.Monitor
	ruleEngine   *engine.RuleEngine
	validator    Validator
	riskEngine   *risk.Engine
	tradeMonitor *trademonitor.Monitor
	symbol       string
	fetchLimit   int
	logger       zerolog.Logger

	pending      map[string]*pendingSetup
	tradeHistory []models.Trade
}

func NewTradingSystem(
	monitor *market.Monitor,
	ruleEngine *engine.RuleEngine,
	validator Validator,
	riskEngine *risk.Engine,
	tradeMonitor *trademonitor.Monitor,
	symbol string,
	logger zerolog.Logger,
) *TradingSystem {
	s := &TradingSystem{
		monitor:      monitor,
		ruleEngine:   ruleEngine,
		validator:    validator,
		riskEngine:   riskEngine,
		tradeMonitor: tradeMonitor,
		symbol:       symbol,
		fetchLimit:   400,
		pending:      make(map[string]*pendingSetup),
		logger:       logger.With().Str("component", "trading_system").Str("symbol", symbol).Logger(),
	}
	s.logger.Info().Msg("Trading system initialized")
	return s
}

// RunCycle executes one complete pass: fetch, detect, validate, execute,
// re-check pending WAITs, and sweep open trades against the latest price.
func (s *TradingSystem) RunCycle(ctx context.Context) {
	s.logger.Info().Msg("Starting trading cycle")

	marketData := s.monitor.FetchAll(ctx, s.fetchLimit)
	if len(marketData) == 0 {
		s.logger.Warn().Msg("No market data fetched, skipping cycle")
		return
	}

	setups := s.ruleEngine.DetectSetups(marketData)
	for _, setup := range setups {
		s.processSetup(ctx, setup, marketData)
	}

	s.reevaluatePending(ctx, marketData)

	if price, err := s.monitor.LatestPrice(ctx); err == nil {
		closed := s.tradeMonitor.Check(map[string]float64{s.symbol: price})
		s.mu.Lock()
		s.tradeHistory = append(s.tradeHistory, closed...)
		s.mu.Unlock()
	} else {
		s.logger.Error().Err(err).Msg("Failed to fetch price for trade monitoring")
	}

	s.mu.Lock()
	pendingCount := len(s.pending)
	s.mu.Unlock()
	s.logger.Info().Int("open_trades", len(s.tradeMonitor.Open())).
		Int("pending_setups", pendingCount).Msg("Trading cycle complete")
}

func (s *TradingSystem) processSetup(ctx context.Context, setup models.SetupEvent, marketData map[string]models.MarketData) {
	s.logger.Info().Str("event_id", setup.EventID).
		Str("pattern_type", string(setup.PatternType)).Msg("Processing setup")

	decision := s.validator.ValidateSetup(ctx, setup, marketData)

	switch decision.Decision {
	case models.DecisionTrade:
		s.executeTrade(ctx, setup, decision)
	case models.DecisionWait:
		s.logger.Info().Str("event_id", setup.EventID).
			Interface("next_check", decision.NextCheck).Msg("Setup marked for re-evaluation")
		s.mu.Lock()
		s.pending[setup.EventID] = &pendingSetup{
			setup:     setup,
			decision:  decision,
			firstSeen: time.Now().UTC(),
		}
		s.mu.Unlock()
	default:
		s.logger.Info().Str("event_id", setup.EventID).
			Str("reason", decision.ReasonCode).Msg("Setup rejected by AI")
	}
}

func (s *TradingSystem) executeTrade(ctx context.Context, setup models.SetupEvent, decision models.AIDecisionOutput) {
	if !s.riskEngine.ShouldExecute(decision) {
		s.logger.Warn().Str("event_id", setup.EventID).Msg("Trade execution blocked by risk checks")
		return
	}

	price, err := s.monitor.LatestPrice(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", setup.EventID).Msg("Failed to fetch price for execution")
		return
	}

	order, err := s.riskEngine.CreateOrder(setup, decision, price)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", setup.EventID).Msg("Failed to create trade order")
		return
	}

	trade, err := s.riskEngine.Execute(ctx, order, price)
	if err != nil {
		s.logger.Error().Err(err).Str("trade_id", order.TradeID).Msg("Order execution failed")
		return
	}

	s.tradeMonitor.Add(trade)
	s.logger.Info().Str("trade_id", trade.TradeID).Str("symbol", trade.Symbol).
		Msg("Trade executed and added to monitoring")
}

// reevaluatePending re-runs AI validation for WAIT setups, expiring them
// after maxRechecks cycles.
func (s *TradingSystem) reevaluatePending(ctx context.Context, marketData map[string]models.MarketData) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := make(map[string]*pendingSetup, len(s.pending))
	for id, p := range s.pending {
		snapshot[id] = p
	}
	s.mu.Unlock()

	s.logger.Info().Int("count", len(snapshot)).Msg("Re-evaluating pending setups")

	var done []string
	for eventID, p := range snapshot {
		if p.recheckCount >= maxRechecks {
			s.logger.Info().Str("event_id", eventID).Msg("Setup expired after max re-checks")
			done = append(done, eventID)
			continue
		}

		decision := s.validator.ValidateSetup(ctx, p.setup, marketData)
		switch decision.Decision {
		case models.DecisionTrade:
			s.executeTrade(ctx, p.setup, decision)
			done = append(done, eventID)
		case models.DecisionNoTrade:
			s.logger.Info().Str("event_id", eventID).Msg("Pending setup rejected")
			done = append(done, eventID)
		default:
			p.recheckCount++
			s.logger.Info().Str("event_id", eventID).
				Int("recheck_count", p.recheckCount).Msg("Setup still pending")
		}
	}

	s.mu.Lock()
	for _, id := range done {
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

// RunContinuous runs cycles until the context is cancelled
func (s *TradingSystem) RunContinuous(ctx context.Context, interval time.Duration) {
	s.logger.Info().Dur("interval", interval).Msg("Starting continuous trading")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Trading system stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// Statistics summarizes realized trading performance
type Statistics struct {
	TotalTrades    int     `json:"total_trades"`
	ClosedTrades   int     `json:"closed_trades"`
	OpenTrades     int     `json:"open_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	AccountBalance float64 `json:"account_balance"`
}

// Stats returns current trading statistics
func (s *TradingSystem) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		OpenTrades:     len(s.tradeMonitor.Open()),
		AccountBalance: s.riskEngine.Balance(),
	}
	for _, t := range s.tradeHistory {
		stats.TotalTrades++
		if t.Status != models.TradeClosed {
			continue
		}
		stats.ClosedTrades++
		stats.TotalPnL += t.PnL
		if t.PnL > 0 {
			stats.WinningTrades++
		} else if t.PnL < 0 {
			stats.LosingTrades++
		}
	}
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.ClosedTrades)
	}
	return stats
}
