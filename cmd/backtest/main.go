package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"bitunix-trading-bot/config"
	"bitunix-trading-bot/internal/backtest"
	"bitunix-trading-bot/internal/exchange"
	"bitunix-trading-bot/internal/logging"

	"github.com/rs/zerolog"
)

// Replays the last N days of market data through the rule engine with a
// deterministic validator and prints one JSON signal per line.
func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to backtest")
	days := flag.Int("days", 30, "number of days to replay")
	timeframes := flag.String("timeframes", "1d,4h,15m", "comma-separated timeframes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Output:  "stderr",
		Console: true,
	})

	client := exchange.NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.BaseURL, logger)
	engine := backtest.NewEngine(client, cfg.Engine, logger)

	signals, err := engine.Run(context.Background(), *symbol, *days, strings.Split(*timeframes, ","), backtest.MockValidator{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Backtest failed")
	}

	enc := json.NewEncoder(os.Stdout)
	for _, sig := range signals {
		if err := enc.Encode(sig); err != nil {
			logger.Fatal().Err(err).Msg("Failed to encode signal")
		}
	}
}
