package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a REST client for the Bitunix exchange API. Bitunix has no
// official SDK, so requests and signing are implemented directly.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(apiKey, apiSecret, baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "bitunix").Logger(),
	}
}

// intervalMap translates canonical timeframes to Bitunix kline intervals
var intervalMap = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360",
	"12h": "720", "1d": "1D", "1w": "1W",
}

// Ticker is the standardized ticker snapshot
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// OrderRequest describes an order to submit
type OrderRequest struct {
	Symbol   string
	Side     string // BUY or SELL
	Type     string // MARKET or LIMIT
	Quantity float64
	Price    float64 // required for LIMIT
}

// OrderResponse is the exchange's view of a submitted order
type OrderResponse struct {
	OrderID  string  `json:"orderId"`
	Symbol   string  `json:"symbol"`
	Status   string  `json:"status"`
	Price    float64 `json:"price,string"`
	Quantity float64 `json:"qty,string"`
}

// Balance holds free and locked amounts per asset
type Balance struct {
	Free   float64
	Locked float64
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign produces the HMAC-SHA256 signature over the key-sorted query string
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, signed bool) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", c.sign(params))
	}

	reqURL := c.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		reqURL += "?" + params.Encode()
	} else {
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-BX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(raw))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("API error %d: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

type klineRow struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open,string"`
	High   float64 `json:"high,string"`
	Low    float64 `json:"low,string"`
	Close  float64 `json:"close,string"`
	Volume float64 `json:"volume,string"`
}

// GetKlines fetches candlestick data as raw OHLCV rows:
// [timestamp, open, high, low, close, volume]
func (c *Client) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([][]float64, error) {
	interval, ok := intervalMap[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	params := url.Values{}
	params.Set("symbol", formatSymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/kline", params, false)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines for %s %s: %w", symbol, timeframe, err)
	}

	var klines []klineRow
	if err := json.Unmarshal(data, &klines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	rows := make([][]float64, len(klines))
	for i, k := range klines {
		rows[i] = []float64{float64(k.Time), k.Open, k.High, k.Low, k.Close, k.Volume}
	}
	c.logger.Debug().Str("symbol", symbol).Str("timeframe", timeframe).Int("candles", len(rows)).Msg("Fetched klines")
	return rows, nil
}

type tickerPayload struct {
	LastPrice float64 `json:"lastPrice,string"`
	BidPrice  float64 `json:"bidPrice,string"`
	AskPrice  float64 `json:"askPrice,string"`
	HighPrice float64 `json:"highPrice,string"`
	LowPrice  float64 `json:"lowPrice,string"`
	Volume    float64 `json:"volume,string"`
}

// GetTicker fetches the latest ticker snapshot for a symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", formatSymbol(symbol))

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/ticker", params, false)
	if err != nil {
		return nil, fmt.Errorf("error fetching ticker for %s: %w", symbol, err)
	}

	var payload tickerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}

	return &Ticker{
		Symbol:    symbol,
		Last:      payload.LastPrice,
		Bid:       payload.BidPrice,
		Ask:       payload.AskPrice,
		High:      payload.HighPrice,
		Low:       payload.LowPrice,
		Volume:    payload.Volume,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// GetBalance fetches per-asset balances (signed endpoint)
func (c *Client) GetBalance(ctx context.Context) (map[string]Balance, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account/balance", nil, true)
	if err != nil {
		return nil, fmt.Errorf("error fetching balance: %w", err)
	}

	var rows []struct {
		Asset  string  `json:"asset"`
		Free   float64 `json:"free,string"`
		Locked float64 `json:"locked,string"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("error parsing balance: %w", err)
	}

	balances := make(map[string]Balance, len(rows))
	for _, r := range rows {
		balances[r.Asset] = Balance{Free: r.Free, Locked: r.Locked}
	}
	return balances, nil
}

// CreateOrder submits an order (signed endpoint)
func (c *Client) CreateOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", formatSymbol(order.Symbol))
	params.Set("side", strings.ToUpper(order.Side))
	params.Set("type", strings.ToUpper(order.Type))
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	if strings.EqualFold(order.Type, "LIMIT") && order.Price > 0 {
		params.Set("price", strconv.FormatFloat(order.Price, 'f', -1, 64))
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order/create", params, true)
	if err != nil {
		return nil, fmt.Errorf("error creating order: %w", err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	c.logger.Info().Str("symbol", order.Symbol).Str("side", order.Side).
		Str("order_id", resp.OrderID).Msg("Order created")
	return &resp, nil
}

// CancelOrder cancels an open order (signed endpoint)
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", formatSymbol(symbol))
	params.Set("orderId", orderID)

	if _, err := c.doRequest(ctx, http.MethodDelete, "/api/v1/order/cancel", params, true); err != nil {
		return fmt.Errorf("error cancelling order %s: %w", orderID, err)
	}
	c.logger.Info().Str("order_id", orderID).Msg("Order cancelled")
	return nil
}

// GetOrder fetches the current state of an order (signed endpoint)
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", formatSymbol(symbol))
	params.Set("orderId", orderID)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/order/query", params, true)
	if err != nil {
		return nil, fmt.Errorf("error fetching order %s: %w", orderID, err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order: %w", err)
	}
	return &resp, nil
}

// formatSymbol strips the pair separator ("BTC/USDT" -> "BTCUSDT")
func formatSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
