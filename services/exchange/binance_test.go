package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient(handler http.Handler) (*BinanceClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewBinanceClient(2 * time.Second)
	c.baseURL = srv.URL
	return c, srv
}

func TestFetchOHLCV_ParsesKlines(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s, want BTCUSDT", got)
		}
		w.Write([]byte(`[
			[1700000000000,"100.0","101.5","99.5","101.0","12.5",1700000059999,"0",0,"0","0","0"],
			[1700000060000,"101.0","102.0","100.0","101.8","8.0",1700000119999,"0",0,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	candles, err := c.FetchOHLCV(context.Background(), "BTC/USDT", "1m", 2)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if first.OpenTime != 1700000000000 || first.Open != 100 || first.High != 101.5 ||
		first.Low != 99.5 || first.Close != 101 || first.Volume != 12.5 {
		t.Errorf("unexpected first candle: %+v", first)
	}
}

func TestFetchOHLCV_RateLimitClassified(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := c.FetchOHLCV(context.Background(), "BTC/USDT", "1m", 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestFetchOHLCV_ServerErrorClassified(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := c.FetchOHLCV(context.Background(), "BTC/USDT", "1m", 10)
	if !errors.Is(err, ErrExchangeUnavailable) {
		t.Fatalf("err = %v, want ErrExchangeUnavailable", err)
	}
}

func TestFetchBalance(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Error("missing API key header")
		}
		if r.URL.Query().Get("signature") == "" {
			t.Error("missing request signature")
		}
		w.Write([]byte(`{"balances":[{"asset":"USDT","free":"1234.56"},{"asset":"BTC","free":"0.5"}]}`))
	}))
	defer srv.Close()

	free, err := c.FetchBalance(context.Background(), Credentials{Key: "key", Secret: "secret"}, "usdt")
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}
	if !free.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("free = %s, want 1234.56", free)
	}
}

func TestCreateMarketOrder(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("type"); got != "MARKET" {
			t.Errorf("type = %s, want MARKET", got)
		}
		if got := r.PostForm.Get("side"); got != "BUY" {
			t.Errorf("side = %s, want BUY", got)
		}
		w.Write([]byte(`{"orderId":42,"status":"FILLED","price":"0"}`))
	}))
	defer srv.Close()

	order, err := c.CreateMarketOrder(context.Background(),
		Credentials{Key: "key", Secret: "secret"}, "BTC/USDT", "buy", decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if order.OrderID != "42" {
		t.Errorf("order id = %s, want 42", order.OrderID)
	}
}

func TestRegistry(t *testing.T) {
	binance := NewBinanceClient(time.Second)
	r := NewRegistry(binance)

	c, err := r.Get("binance")
	if err != nil || c != Client(binance) {
		t.Fatalf("Get(binance): %v", err)
	}

	_, err = r.Get("kraken")
	if !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("Get(kraken): err = %v, want ErrUnknownExchange", err)
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "binance" {
		t.Errorf("Names() = %v", names)
	}
}
