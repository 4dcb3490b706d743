package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Signal directions
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// Signal represents a time-boxed trading recommendation for an (exchange, pair)
type Signal struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Exchange   string          `gorm:"index:idx_exchange_pair" json:"exchange"`
	Pair       string          `gorm:"index:idx_exchange_pair" json:"pair"`
	Direction  string          `json:"direction"` // BUY, SELL
	EntryPrice decimal.Decimal `gorm:"type:decimal(20,8)" json:"entry_price"`
	StopLoss   decimal.Decimal `gorm:"type:decimal(20,8)" json:"stop_loss"`
	TakeProfit decimal.Decimal `gorm:"type:decimal(20,8)" json:"take_profit"`
	Confidence int             `json:"confidence"` // 0-100
	Indicators string          `gorm:"type:jsonb" json:"indicators"` // IndicatorSet snapshot as JSON
	IsActive   bool            `gorm:"index" json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `gorm:"index" json:"expires_at"`
}

// IsExpired reports whether the signal's validity window has passed
func (s *Signal) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsLive reports whether the signal can still be consumed by a trade
func (s *Signal) IsLive(now time.Time) bool {
	return s.IsActive && !s.IsExpired(now)
}

// MigrateSignalModels runs database migrations for signal models
func MigrateSignalModels(db *gorm.DB) error {
	return db.AutoMigrate(&Signal{})
}
