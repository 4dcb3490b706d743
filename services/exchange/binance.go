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
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceClient talks to the Binance spot REST API. One instance is
// shared by all scanner workers and executors; user credentials travel
// with each authenticated call.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceClient creates a Binance client with a bounded request timeout
func NewBinanceClient(timeout time.Duration) *BinanceClient {
	return &BinanceClient{
		baseURL:    binanceBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (b *BinanceClient) Name() string { return "binance" }

// symbol converts "BTC/USDT" into Binance's "BTCUSDT" form
func symbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "")
}

// FetchOHLCV pulls klines for pair, oldest first
func (b *BinanceClient) FetchOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol(pair))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	body, err := b.get(ctx, "/api/v3/klines", q, nil)
	if err != nil {
		return nil, err
	}

	// Each kline is a mixed array: numbers for times, strings for prices
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var c Candle
		if err := json.Unmarshal(k[0], &c.OpenTime); err != nil {
			return nil, fmt.Errorf("parse kline open time: %w", err)
		}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for i, dest := range fields {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			*dest = v
		}
		candles = append(candles, c)
	}
	return candles, nil
}

type binanceAccount struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// FetchBalance returns the free balance of asset on the spot account
func (b *BinanceClient) FetchBalance(ctx context.Context, creds Credentials, asset string) (decimal.Decimal, error) {
	body, err := b.get(ctx, "/api/v3/account", b.sign(url.Values{}, creds), &creds)
	if err != nil {
		return decimal.Zero, err
	}

	var account binanceAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return decimal.Zero, fmt.Errorf("parse account: %w", err)
	}

	asset = strings.ToUpper(asset)
	for _, bal := range account.Balances {
		if bal.Asset == asset {
			free, err := decimal.NewFromString(bal.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %q: %w", bal.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

type binanceOrder struct {
	OrderID int64  `json:"orderId"`
	Price   string `json:"price"`
	Status  string `json:"status"`
}

// CreateMarketOrder places a market order for the given side and quantity
func (b *BinanceClient) CreateMarketOrder(ctx context.Context, creds Credentials, pair, side string, quantity decimal.Decimal) (*Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol(pair))
	q.Set("side", strings.ToUpper(side))
	q.Set("type", "MARKET")
	q.Set("quantity", quantity.String())

	body, err := b.post(ctx, "/api/v3/order", b.sign(q, creds), creds)
	if err != nil {
		return nil, err
	}

	var resp binanceOrder
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	order := &Order{OrderID: strconv.FormatInt(resp.OrderID, 10)}
	if resp.Price != "" {
		if price, err := decimal.NewFromString(resp.Price); err == nil {
			order.Price = price
		}
	}
	return order, nil
}

// sign appends the timestamp and HMAC-SHA256 signature Binance requires
// on authenticated endpoints
func (b *BinanceClient) sign(q url.Values, creds Credentials) url.Values {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(q.Encode()))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return q
}

func (b *BinanceClient) get(ctx context.Context, path string, q url.Values, creds *Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		req.Header.Set("X-MBX-APIKEY", creds.Key)
	}
	return b.do(req)
}

func (b *BinanceClient) post(ctx context.Context, path string, q url.Values, creds Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, strings.NewReader(q.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-MBX-APIKEY", creds.Key)
	return b.do(req)
}

func (b *BinanceClient) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExchangeUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrExchangeUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("binance: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
