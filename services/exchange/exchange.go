// Package exchange defines the capability boundary to external trading
// venues: candle history, balances, and market orders. Implementations
// are selected through an explicit Registry rather than ambient lookup.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownExchange is returned for a name with no registered client
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrRateLimited indicates the venue is throttling us; skippable at
	// scan level, request-failing at execution level
	ErrRateLimited = errors.New("exchange rate limited")
	// ErrExchangeUnavailable covers connectivity and server-side failures
	ErrExchangeUnavailable = errors.New("exchange unavailable")
)

// Candle is one OHLCV bar, oldest-first in returned slices
type Candle struct {
	OpenTime int64   `json:"open_time"` // unix ms
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Credentials are a user's API keys for one venue, passed per
// authenticated call so a single client instance can serve all users.
type Credentials struct {
	Key    string
	Secret string
}

// Order is the venue's acknowledgement of a placed order
type Order struct {
	OrderID string
	Price   decimal.Decimal
}

// Client is the per-exchange capability interface
type Client interface {
	// Name returns the registry key, e.g. "binance".
	Name() string
	// FetchOHLCV returns up to limit candles for pair at timeframe,
	// oldest first.
	FetchOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]Candle, error)
	// FetchBalance returns the free balance of one asset.
	FetchBalance(ctx context.Context, creds Credentials, asset string) (decimal.Decimal, error)
	// CreateMarketOrder places a best-effort single market order.
	CreateMarketOrder(ctx context.Context, creds Credentials, pair, side string, quantity decimal.Decimal) (*Order, error)
}

// Registry maps exchange names to their clients. It is constructed once
// at startup and passed by reference to whoever needs venue access.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry from the given clients
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Get resolves an exchange by name; unknown names fail fast
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}
	return c, nil
}

// Names lists the registered exchanges, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
