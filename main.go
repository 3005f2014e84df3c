package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitunix-trading-bot/config"
	"bitunix-trading-bot/internal/ai"
	"bitunix-trading-bot/internal/bot"
	"bitunix-trading-bot/internal/engine"
	"bitunix-trading-bot/internal/exchange"
	"bitunix-trading-bot/internal/logging"
	"bitunix-trading-bot/internal/market"
	"bitunix-trading-bot/internal/risk"
	"bitunix-trading-bot/internal/trademonitor"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml (defaults to working directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Output:  cfg.Logging.Output,
		Console: cfg.Logging.Console,
	})
	logger.Info().Strs("symbols", cfg.Trading.Symbols).
		Bool("paper_trading", cfg.Exchange.PaperTrading).Msg("Starting trading system")

	client := exchange.NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.BaseURL, logger)

	var validator bot.Validator
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		llmClient := ai.NewClient(&ai.ClientConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		validator = ai.NewDecisionEngine(llmClient, logger)
	} else {
		logger.Warn().Msg("LLM validation disabled, every setup degrades to NO_TRADE")
		validator = ai.NewDecisionEngine(nil, logger)
	}

	var placer risk.OrderPlacer
	if !cfg.Exchange.PaperTrading {
		placer = client
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	interval := time.Duration(cfg.Trading.CycleIntervalSeconds) * time.Second
	done := make(chan struct{})

	for _, symbol := range cfg.Trading.Symbols {
		monitor := market.NewMonitor(client, symbol, cfg.Trading.Timeframes, logger)

		stream := exchange.NewKlineStream(cfg.Exchange.WSURL, symbol, cfg.Trading.Timeframes, logger)
		if err := stream.Start(ctx); err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to start kline stream")
		} else {
			go func() {
				for ev := range stream.Events() {
					monitor.ApplyKline(ev)
				}
			}()
		}

		ruleEngine := engine.NewRuleEngine(cfg.Engine, logger)
		riskEngine := risk.NewEngine(cfg.Risk, cfg.Trading.AccountBalance, placer, logger)
		tradeMonitor := trademonitor.NewMonitor(riskEngine, logger)
		system := bot.NewTradingSystem(monitor, ruleEngine, validator, riskEngine, tradeMonitor, symbol, logger)

		go func() {
			system.RunContinuous(ctx, interval)
			done <- struct{}{}
		}()
	}

	for range cfg.Trading.Symbols {
		<-done
	}
	logger.Info().Msg("Trading system shut down")
}
