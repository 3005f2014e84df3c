package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlineStreamStopUnblocksRun(t *testing.T) {
	// unreachable endpoint keeps the stream in its reconnect loop
	s := NewKlineStream("ws://127.0.0.1:1", "BTCUSDT", []string{"4h"}, zerolog.Nop())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	s.Stop()
	s.Stop() // idempotent

	select {
	case _, open := <-s.Events():
		assert.False(t, open, "events channel must be closed after Stop")
	case <-time.After(3 * time.Second):
		t.Fatal("events channel not closed after Stop")
	}
}

func TestKlineStreamStopsOnContextCancel(t *testing.T) {
	s := NewKlineStream("ws://127.0.0.1:1", "BTCUSDT", []string{"4h"}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case _, open := <-s.Events():
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("events channel not closed after context cancel")
	}
}

func TestTimeframeFromChannel(t *testing.T) {
	tf, ok := timeframeFromChannel("kline_240")
	require.True(t, ok)
	assert.Equal(t, "4h", tf)

	tf, ok = timeframeFromChannel("kline_1D")
	require.True(t, ok)
	assert.Equal(t, "1d", tf)

	_, ok = timeframeFromChannel("depth_books")
	assert.False(t, ok)

	_, ok = timeframeFromChannel("kline_999")
	assert.False(t, ok)
}
