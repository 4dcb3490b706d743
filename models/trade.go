package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade statuses
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// Trade represents a position opened against a signal
type Trade struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index" json:"user_id"`
	SignalID        uint            `gorm:"index" json:"signal_id"`
	Signal          *Signal         `gorm:"foreignKey:SignalID" json:"signal,omitempty"`
	Exchange        string          `json:"exchange"`
	Pair            string          `json:"pair"`
	Direction       string          `json:"direction"` // BUY, SELL
	EntryPrice      decimal.Decimal `gorm:"type:decimal(20,8)" json:"entry_price"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,8)" json:"quantity"`
	StopLoss        decimal.Decimal `gorm:"type:decimal(20,8)" json:"stop_loss"`
	TakeProfit      decimal.Decimal `gorm:"type:decimal(20,8)" json:"take_profit"`
	Status          string          `gorm:"index" json:"status"` // open, closed
	PnL             decimal.Decimal `gorm:"column:pnl;type:decimal(20,8)" json:"pnl"`
	PnLPercent      decimal.Decimal `gorm:"column:pnl_percent;type:decimal(10,4)" json:"pnl_percent"`
	ExchangeOrderID string          `json:"exchange_order_id"`
	ExecutedAt      time.Time       `json:"executed_at"`
	ClosedAt        *time.Time      `json:"closed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MigrateTradeModels runs database migrations for trade models
func MigrateTradeModels(db *gorm.DB) error {
	return db.AutoMigrate(&Trade{})
}
