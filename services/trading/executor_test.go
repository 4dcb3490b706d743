package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coinsignals/metrics"
	"coinsignals/models"
	"coinsignals/services/cache"
	"coinsignals/services/credentials"
	"coinsignals/services/exchange"
	"coinsignals/services/tradelock"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeExchange struct {
	balance  decimal.Decimal
	orderErr error
	orders   int
}

func (f *fakeExchange) Name() string { return "binance" }

func (f *fakeExchange) FetchOHLCV(ctx context.Context, pair, timeframe string, limit int) ([]exchange.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) FetchBalance(ctx context.Context, creds exchange.Credentials, asset string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeExchange) CreateMarketOrder(ctx context.Context, creds exchange.Credentials, pair, side string, qty decimal.Decimal) (*exchange.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders++
	return &exchange.Order{OrderID: "order-1"}, nil
}

type fixture struct {
	db       *gorm.DB
	store    cache.Store
	locks    *tradelock.Manager
	executor *Executor
	exchange *fakeExchange
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, migrate := range []func(*gorm.DB) error{
		models.MigrateSignalModels,
		models.MigrateTradeModels,
		models.MigratePairModels,
		models.MigrateCredentialModels,
	} {
		if err := migrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	creds, err := credentials.NewService(db, testKey)
	if err != nil {
		t.Fatalf("credentials service: %v", err)
	}
	if err := creds.Save(1, "binance", "key", "secret"); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
	if err := creds.MarkValidated(1, "binance"); err != nil {
		t.Fatalf("validate credentials: %v", err)
	}

	fake := &fakeExchange{balance: decimal.RequireFromString("1000")}
	locks := tradelock.NewManager(store)
	executor := NewExecutor(db, store, locks, exchange.NewRegistry(fake), creds, metrics.NewNop(), time.Minute)

	return &fixture{db: db, store: store, locks: locks, executor: executor, exchange: fake}
}

func (f *fixture) liveSignal(t *testing.T) *models.Signal {
	t.Helper()
	signal := &models.Signal{
		Exchange:   "binance",
		Pair:       "BTC/USDT",
		Direction:  models.DirectionBuy,
		EntryPrice: decimal.RequireFromString("100"),
		StopLoss:   decimal.RequireFromString("98"),
		TakeProfit: decimal.RequireFromString("105"),
		Confidence: 80,
		IsActive:   true,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	}
	if err := f.db.Create(signal).Error; err != nil {
		t.Fatalf("create signal: %v", err)
	}
	return signal
}

func (f *fixture) request(signalID uint) Request {
	return Request{UserID: 1, SignalID: signalID, Exchange: "binance", Pair: "BTC/USDT"}
}

func TestExecute_Success(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)
	ctx := context.Background()

	trade, err := f.executor.Execute(ctx, f.request(signal.ID))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if trade.Status != models.TradeOpen {
		t.Errorf("status = %s, want open", trade.Status)
	}
	if trade.ExchangeOrderID != "order-1" {
		t.Errorf("order id = %s", trade.ExchangeOrderID)
	}
	// 10% of 1000 USDT at entry 100 = 1 unit
	if !trade.Quantity.Equal(decimal.RequireFromString("1")) {
		t.Errorf("derived quantity = %s, want 1", trade.Quantity)
	}

	// the consumed signal goes inactive
	var reloaded models.Signal
	if err := f.db.First(&reloaded, signal.ID).Error; err != nil {
		t.Fatalf("reload signal: %v", err)
	}
	if reloaded.IsActive {
		t.Error("executed signal should be deactivated")
	}

	// the lock was released: an immediate re-acquire succeeds
	if _, ok, _ := f.locks.Acquire(ctx, 1, "binance", "BTC/USDT", time.Minute); !ok {
		t.Error("lock should be free after execution")
	}
}

func TestExecute_CallerQuantityWins(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)

	req := f.request(signal.ID)
	req.Quantity = decimal.RequireFromString("0.25")
	trade, err := f.executor.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !trade.Quantity.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("quantity = %s, want 0.25", trade.Quantity)
	}
}

func TestExecute_LockContention(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)
	ctx := context.Background()

	// someone else is mid-trade on the same key
	if _, ok, _ := f.locks.Acquire(ctx, 1, "binance", "BTC/USDT", time.Minute); !ok {
		t.Fatal("pre-acquire failed")
	}

	_, err := f.executor.Execute(ctx, f.request(signal.ID))
	if !errors.Is(err, ErrTradeInProgress) {
		t.Fatalf("err = %v, want ErrTradeInProgress", err)
	}

	var count int64
	f.db.Model(&models.Trade{}).Count(&count)
	if count != 0 {
		t.Errorf("trades recorded = %d, want 0", count)
	}
	if f.exchange.orders != 0 {
		t.Error("no order should be placed under contention")
	}
}

func TestExecute_ExpiredSignal(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)
	f.db.Model(signal).Update("expires_at", time.Now().Add(-time.Minute))
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, f.request(signal.ID))
	if !errors.Is(err, ErrSignalUnavailable) {
		t.Fatalf("err = %v, want ErrSignalUnavailable", err)
	}

	// the lock must be released on the failure path too
	if _, ok, _ := f.locks.Acquire(ctx, 1, "binance", "BTC/USDT", time.Minute); !ok {
		t.Error("lock should be free after a failed execution")
	}
}

func TestExecute_InactiveSignal(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)
	f.db.Model(signal).Update("is_active", false)

	_, err := f.executor.Execute(context.Background(), f.request(signal.ID))
	if !errors.Is(err, ErrSignalUnavailable) {
		t.Fatalf("err = %v, want ErrSignalUnavailable", err)
	}
}

func TestExecute_MissingCredentials(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)

	req := f.request(signal.ID)
	req.UserID = 2 // no keys stored for this user

	_, err := f.executor.Execute(context.Background(), req)
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("err = %v, want ErrCredentialsMissing", err)
	}
}

func TestExecute_OrderRejected(t *testing.T) {
	f := setup(t)
	signal := f.liveSignal(t)
	f.exchange.orderErr = errors.New("MIN_NOTIONAL")
	ctx := context.Background()

	_, err := f.executor.Execute(ctx, f.request(signal.ID))
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}

	var count int64
	f.db.Model(&models.Trade{}).Count(&count)
	if count != 0 {
		t.Errorf("trades recorded = %d, want 0", count)
	}

	// rejected orders must not consume the signal
	var reloaded models.Signal
	f.db.First(&reloaded, signal.ID)
	if !reloaded.IsActive {
		t.Error("signal should stay active after a rejected order")
	}
	if _, ok, _ := f.locks.Acquire(ctx, 1, "binance", "BTC/USDT", time.Minute); !ok {
		t.Error("lock should be free after a rejected order")
	}
}

func TestClose_BuyAndSellPnL(t *testing.T) {
	f := setup(t)

	buy := &models.Trade{
		UserID: 1, Exchange: "binance", Pair: "BTC/USDT",
		Direction:  models.DirectionBuy,
		EntryPrice: decimal.RequireFromString("100"),
		Quantity:   decimal.RequireFromString("2"),
		Status:     models.TradeOpen,
	}
	sell := &models.Trade{
		UserID: 1, Exchange: "binance", Pair: "ETH/USDT",
		Direction:  models.DirectionSell,
		EntryPrice: decimal.RequireFromString("100"),
		Quantity:   decimal.RequireFromString("2"),
		Status:     models.TradeOpen,
	}
	if err := f.db.Create(buy).Error; err != nil {
		t.Fatalf("create buy: %v", err)
	}
	if err := f.db.Create(sell).Error; err != nil {
		t.Fatalf("create sell: %v", err)
	}

	closed, err := f.executor.Close(context.Background(), buy.ID, decimal.RequireFromString("110"))
	if err != nil {
		t.Fatalf("close buy: %v", err)
	}
	// (110-100)*2 = 20, 10% of entry notional
	if !closed.PnL.Equal(decimal.RequireFromString("20")) {
		t.Errorf("buy pnl = %s, want 20", closed.PnL)
	}
	if !closed.PnLPercent.Equal(decimal.RequireFromString("10")) {
		t.Errorf("buy pnl%% = %s, want 10", closed.PnLPercent)
	}

	closed, err = f.executor.Close(context.Background(), sell.ID, decimal.RequireFromString("90"))
	if err != nil {
		t.Fatalf("close sell: %v", err)
	}
	// (100-90)*2 = 20 for the short side
	if !closed.PnL.Equal(decimal.RequireFromString("20")) {
		t.Errorf("sell pnl = %s, want 20", closed.PnL)
	}
	if closed.Status != models.TradeClosed || closed.ClosedAt == nil {
		t.Errorf("close state: status=%s closedAt=%v", closed.Status, closed.ClosedAt)
	}
}

func TestClose_SecondCloseRejected(t *testing.T) {
	f := setup(t)
	trade := &models.Trade{
		UserID: 1, Exchange: "binance", Pair: "BTC/USDT",
		Direction:  models.DirectionBuy,
		EntryPrice: decimal.RequireFromString("100"),
		Quantity:   decimal.RequireFromString("1"),
		Status:     models.TradeOpen,
	}
	if err := f.db.Create(trade).Error; err != nil {
		t.Fatalf("create trade: %v", err)
	}

	first, err := f.executor.Close(context.Background(), trade.ID, decimal.RequireFromString("120"))
	if err != nil {
		t.Fatalf("first close: %v", err)
	}

	_, err = f.executor.Close(context.Background(), trade.ID, decimal.RequireFromString("50"))
	if !errors.Is(err, ErrTradeAlreadyClosed) {
		t.Fatalf("second close: err = %v, want ErrTradeAlreadyClosed", err)
	}

	// the first close's result is untouched
	var reloaded models.Trade
	if err := f.db.First(&reloaded, trade.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.PnL.Equal(first.PnL) {
		t.Errorf("pnl changed after rejected close: %s != %s", reloaded.PnL, first.PnL)
	}
}
