// Package trading mediates trade execution against live signals. One
// trade at a time per (user, exchange, pair), enforced by the trade lock.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinsignals/metrics"
	"coinsignals/models"
	"coinsignals/services/cache"
	"coinsignals/services/credentials"
	"coinsignals/services/exchange"
	"coinsignals/services/signals"
	"coinsignals/services/tradelock"
)

var (
	// ErrTradeInProgress means the (user, exchange, pair) lock is held;
	// retryable conflict, never waited on
	ErrTradeInProgress = errors.New("trade already in progress")
	// ErrSignalUnavailable means the signal is missing, expired or consumed
	ErrSignalUnavailable = errors.New("signal unavailable")
	// ErrCredentialsMissing means no validated exchange keys exist
	ErrCredentialsMissing = errors.New("exchange not configured")
	// ErrOrderRejected means the venue refused the market order
	ErrOrderRejected = errors.New("order placement failed")
	// ErrTradeAlreadyClosed rejects a second close of the same trade
	ErrTradeAlreadyClosed = errors.New("trade already closed")
)

// balanceFraction is the share of the free quote balance used when the
// caller does not supply a quantity.
var balanceFraction = decimal.RequireFromString("0.1")

// Request describes one trade execution attempt
type Request struct {
	UserID   uint
	SignalID uint
	Exchange string
	Pair     string
	// Quantity is optional; zero derives it from the quote balance.
	Quantity decimal.Decimal
}

// Executor places market orders against live signals
type Executor struct {
	db       *gorm.DB
	store    cache.Store
	locks    *tradelock.Manager
	registry *exchange.Registry
	creds    *credentials.Service
	metrics  *metrics.Metrics
	lockTTL  time.Duration
}

// NewExecutor creates a trade executor
func NewExecutor(db *gorm.DB, store cache.Store, locks *tradelock.Manager, registry *exchange.Registry, creds *credentials.Service, m *metrics.Metrics, lockTTL time.Duration) *Executor {
	return &Executor{
		db:       db,
		store:    store,
		locks:    locks,
		registry: registry,
		creds:    creds,
		metrics:  m,
		lockTTL:  lockTTL,
	}
}

// Execute runs one lock-guarded trade attempt: validate the signal and
// credentials, place a market order, record the trade, and consume the
// signal. The lock is always released, whatever happens in between.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.Trade, error) {
	start := time.Now()

	token, acquired, err := e.locks.Acquire(ctx, req.UserID, req.Exchange, req.Pair, e.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		e.metrics.TradesTotal.WithLabelValues("failed").Inc()
		return nil, ErrTradeInProgress
	}
	defer func() {
		if err := e.locks.Release(ctx, req.UserID, req.Exchange, req.Pair, token); err != nil {
			log.Printf("[trading] release lock for user %d %s %s: %v", req.UserID, req.Exchange, req.Pair, err)
		}
		e.metrics.TradeExecDur.Observe(time.Since(start).Seconds())
	}()

	trade, err := e.execute(ctx, req)
	if err != nil {
		e.metrics.TradesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	e.metrics.TradesTotal.WithLabelValues("executed").Inc()
	return trade, nil
}

func (e *Executor) execute(ctx context.Context, req Request) (*models.Trade, error) {
	signal, err := e.loadSignal(ctx, req.SignalID)
	if err != nil {
		return nil, err
	}
	if !signal.IsLive(time.Now()) {
		return nil, ErrSignalUnavailable
	}

	creds, err := e.creds.Get(req.UserID, req.Exchange)
	if errors.Is(err, credentials.ErrNotConfigured) {
		return nil, ErrCredentialsMissing
	}
	if err != nil {
		return nil, err
	}

	client, err := e.registry.Get(req.Exchange)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity, err = e.deriveQuantity(ctx, client, creds, signal)
		if err != nil {
			return nil, err
		}
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: empty quote balance", ErrOrderRejected)
	}

	order, err := client.CreateMarketOrder(ctx, creds, req.Pair, signal.Direction, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	trade := &models.Trade{
		UserID:          req.UserID,
		SignalID:        signal.ID,
		Exchange:        req.Exchange,
		Pair:            req.Pair,
		Direction:       signal.Direction,
		EntryPrice:      signal.EntryPrice,
		Quantity:        quantity,
		StopLoss:        signal.StopLoss,
		TakeProfit:      signal.TakeProfit,
		Status:          models.TradeOpen,
		ExchangeOrderID: order.OrderID,
		ExecutedAt:      time.Now(),
	}

	if err := e.db.Create(trade).Error; err != nil {
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	// Consume the signal: one execution deactivates it for everyone.
	if err := e.db.Model(&models.Signal{}).Where("id = ?", signal.ID).
		Update("is_active", false).Error; err != nil {
		log.Printf("[trading] deactivate signal %d: %v", signal.ID, err)
	}
	if err := e.store.Delete(ctx, signals.CacheKey(signal.Exchange, signal.Pair)); err != nil {
		log.Printf("[trading] evict cached signal %s %s: %v", signal.Exchange, signal.Pair, err)
	}

	log.Printf("[trading] user %d executed %s %s %s qty=%s order=%s",
		req.UserID, signal.Direction, req.Exchange, req.Pair, quantity, order.OrderID)
	return trade, nil
}

// loadSignal reads through the cache to the store
func (e *Executor) loadSignal(ctx context.Context, signalID uint) (*models.Signal, error) {
	var signal models.Signal
	err := e.db.First(&signal, signalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSignalUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load signal: %w", err)
	}
	return &signal, nil
}

// deriveQuantity sizes the order at a fixed fraction of the free quote
// balance divided by the entry price.
func (e *Executor) deriveQuantity(ctx context.Context, client exchange.Client, creds exchange.Credentials, signal *models.Signal) (decimal.Decimal, error) {
	quote := quoteAsset(signal.Pair)
	free, err := client.FetchBalance(ctx, creds, quote)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetch balance: %v", ErrOrderRejected, err)
	}
	if signal.EntryPrice.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero entry price", ErrOrderRejected)
	}
	return free.Mul(balanceFraction).DivRound(signal.EntryPrice, 8), nil
}

// quoteAsset extracts the quote side of "BASE/QUOTE"
func quoteAsset(pair string) string {
	for i := len(pair) - 1; i >= 0; i-- {
		if pair[i] == '/' {
			return pair[i+1:]
		}
	}
	return pair
}

// Close settles an open trade at closePrice, computing pnl by direction.
// Only the open -> closed transition is allowed; a second close is
// rejected and leaves the first result untouched.
func (e *Executor) Close(ctx context.Context, tradeID uint, closePrice decimal.Decimal) (*models.Trade, error) {
	var trade models.Trade
	err := e.db.First(&trade, tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trade %d not found", tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("load trade: %w", err)
	}
	if trade.Status != models.TradeOpen {
		return nil, ErrTradeAlreadyClosed
	}

	var pnl decimal.Decimal
	if trade.Direction == models.DirectionBuy {
		pnl = closePrice.Sub(trade.EntryPrice).Mul(trade.Quantity)
	} else {
		pnl = trade.EntryPrice.Sub(closePrice).Mul(trade.Quantity)
	}

	var pnlPercent decimal.Decimal
	if !trade.EntryPrice.IsZero() {
		pnlPercent = pnl.Mul(decimal.NewFromInt(100)).
			DivRound(trade.EntryPrice.Mul(trade.Quantity), 4)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.TradeClosed,
		"pnl":         pnl,
		"pnl_percent": pnlPercent,
		"closed_at":   now,
	}
	// Guarding on status makes the transition race-safe: only one of two
	// concurrent closes can flip the row.
	res := e.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", tradeID, models.TradeOpen).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("close trade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrTradeAlreadyClosed
	}

	trade.Status = models.TradeClosed
	trade.PnL = pnl
	trade.PnLPercent = pnlPercent
	trade.ClosedAt = &now
	return &trade, nil
}
