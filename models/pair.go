package models

import (
	"time"

	"gorm.io/gorm"
)

// TrackedPair is a user's subscription to signals for an (exchange, pair).
// Writes are owned by the subscription flow; the scanner only reads
// active entries.
type TrackedPair struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_user_exchange_pair,unique" json:"user_id"`
	Exchange  string    `gorm:"index:idx_user_exchange_pair,unique" json:"exchange"`
	Pair      string    `gorm:"index:idx_user_exchange_pair,unique" json:"pair"`
	IsActive  bool      `gorm:"index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceToken is a push-notification registration for a user
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex" json:"token"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExchangePair identifies one distinct scan target
type ExchangePair struct {
	Exchange string `json:"exchange"`
	Pair     string `json:"pair"`
}

// ActiveExchangePairs lists distinct active (exchange, pair) combinations,
// bounded to limit to cap per-tick cost.
func ActiveExchangePairs(db *gorm.DB, limit int) ([]ExchangePair, error) {
	var pairs []ExchangePair
	err := db.Model(&TrackedPair{}).
		Select("DISTINCT exchange, pair").
		Where("is_active = ?", true).
		Order("exchange, pair").
		Limit(limit).
		Scan(&pairs).Error
	return pairs, err
}

// UpsertTrackedPair registers a pair for a user, idempotently: re-registering
// an existing subscription just reactivates it.
func UpsertTrackedPair(db *gorm.DB, userID uint, exchange, pair string) (*TrackedPair, error) {
	var tp TrackedPair
	err := db.Where(TrackedPair{UserID: userID, Exchange: exchange, Pair: pair}).
		Attrs(TrackedPair{IsActive: true}).
		FirstOrCreate(&tp).Error
	if err != nil {
		return nil, err
	}
	if !tp.IsActive {
		if err := db.Model(&tp).Update("is_active", true).Error; err != nil {
			return nil, err
		}
		tp.IsActive = true
	}
	return &tp, nil
}

// UpsertDeviceToken registers a push token, reclaiming it if another
// user registered the same device before.
func UpsertDeviceToken(db *gorm.DB, userID uint, token string) (*DeviceToken, error) {
	var dt DeviceToken
	err := db.Where(DeviceToken{Token: token}).
		Attrs(DeviceToken{UserID: userID, IsActive: true}).
		FirstOrCreate(&dt).Error
	if err != nil {
		return nil, err
	}
	if dt.UserID != userID || !dt.IsActive {
		if err := db.Model(&dt).Updates(map[string]interface{}{
			"user_id":   userID,
			"is_active": true,
		}).Error; err != nil {
			return nil, err
		}
		dt.UserID = userID
		dt.IsActive = true
	}
	return &dt, nil
}

// TokensForPair returns active device tokens of all users tracking (exchange, pair)
func TokensForPair(db *gorm.DB, exchange, pair string) ([]string, error) {
	var tokens []string
	err := db.Model(&DeviceToken{}).
		Select("device_tokens.token").
		Joins("JOIN tracked_pairs ON tracked_pairs.user_id = device_tokens.user_id").
		Where("tracked_pairs.exchange = ? AND tracked_pairs.pair = ? AND tracked_pairs.is_active = ? AND device_tokens.is_active = ?",
			exchange, pair, true, true).
		Scan(&tokens).Error
	return tokens, err
}

// MigratePairModels runs database migrations for subscription models
func MigratePairModels(db *gorm.DB) error {
	return db.AutoMigrate(&TrackedPair{}, &DeviceToken{})
}
