package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// KlineEvent is a single candle update from the public kline stream
type KlineEvent struct {
	Symbol    string
	Timeframe string
	Time      int64 // bar open time, ms epoch
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsClosed  bool
}

// KlineStream maintains a websocket subscription to Bitunix public kline
// channels and fans events out to a channel. It reconnects with exponential
// backoff and re-subscribes after every reconnect.
type KlineStream struct {
	mu sync.Mutex

	wsURL      string
	symbol     string
	timeframes []string
	logger     zerolog.Logger

	conn      *websocket.Conn
	events    chan KlineEvent
	isRunning bool
	stopChan  chan struct{}
}

func NewKlineStream(wsURL, symbol string, timeframes []string, logger zerolog.Logger) *KlineStream {
	return &KlineStream{
		wsURL:      wsURL,
		symbol:     formatSymbol(symbol),
		timeframes: timeframes,
		logger:     logger.With().Str("component", "kline_stream").Str("symbol", symbol).Logger(),
		events:     make(chan KlineEvent, 256),
		stopChan:   make(chan struct{}),
	}
}

// Events returns the stream of candle updates
func (s *KlineStream) Events() <-chan KlineEvent {
	return s.events
}

// Start connects and begins streaming until Stop is called or the context is
// cancelled. The events channel is closed on exit.
func (s *KlineStream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("kline stream already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop terminates the stream
func (s *KlineStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *KlineStream) run(ctx context.Context) {
	defer close(s.events)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Error().Err(err).Dur("backoff", backoff).Msg("Stream connection failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
			if backoff < 60*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		s.readLoop(ctx)
	}
}

func (s *KlineStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	args := make([]map[string]string, 0, len(s.timeframes))
	for _, tf := range s.timeframes {
		interval, ok := intervalMap[tf]
		if !ok {
			continue
		}
		args = append(args, map[string]string{
			"symbol": s.symbol,
			"ch":     "kline_" + interval,
		})
	}

	sub := map[string]interface{}{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	s.logger.Info().Int("channels", len(args)).Msg("Kline stream connected")
	return nil
}

type wsKlineMessage struct {
	Channel string `json:"ch"`
	Symbol  string `json:"symbol"`
	Ts      int64  `json:"ts"`
	Data    struct {
		Time   int64   `json:"time"`
		Open   float64 `json:"open,string"`
		High   float64 `json:"high,string"`
		Low    float64 `json:"low,string"`
		Close  float64 `json:"close,string"`
		Volume float64 `json:"volume,string"`
		Closed bool    `json:"closed"`
	} `json:"data"`
}

func (s *KlineStream) readLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	// server expects periodic pings to keep the connection alive
	pingTicker := time.NewTicker(20 * time.Second)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-pingTicker.C:
				conn.WriteJSON(map[string]interface{}{"op": "ping", "ping": time.Now().Unix()})
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-s.stopChan:
			conn.Close()
			return
		default:
		}

		var msg wsKlineMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Warn().Err(err).Msg("Stream read failed, reconnecting")
			conn.Close()
			return
		}

		tf, ok := timeframeFromChannel(msg.Channel)
		if !ok {
			continue
		}

		ev := KlineEvent{
			Symbol:    msg.Symbol,
			Timeframe: tf,
			Time:      msg.Data.Time,
			Open:      msg.Data.Open,
			High:      msg.Data.High,
			Low:       msg.Data.Low,
			Close:     msg.Data.Close,
			Volume:    msg.Data.Volume,
			IsClosed:  msg.Data.Closed,
		}

		select {
		case s.events <- ev:
		default:
			// slow consumer: drop rather than stall the read loop
			s.logger.Warn().Str("timeframe", tf).Msg("Dropping kline event, buffer full")
		}
	}
}

// timeframeFromChannel maps "kline_240" back to "4h"
func timeframeFromChannel(ch string) (string, bool) {
	interval := strings.TrimPrefix(ch, "kline_")
	if interval == ch {
		return "", false
	}
	for tf, iv := range intervalMap {
		if iv == interval {
			return tf, true
		}
	}
	return "", false
}
