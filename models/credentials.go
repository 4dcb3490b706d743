package models

import (
	"time"

	"gorm.io/gorm"
)

// ExchangeCredential stores a user's API keys for one exchange. The secret
// is sealed before it reaches the database; only the credentials service
// can open it.
type ExchangeCredential struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index:idx_user_exchange,unique" json:"user_id"`
	Exchange    string    `gorm:"index:idx_user_exchange,unique" json:"exchange"`
	APIKey      string    `json:"api_key"`
	SecretEnc   string    `json:"-"` // base64(nonce || ciphertext)
	IsValidated bool      `json:"is_validated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MigrateCredentialModels runs database migrations for credential models
func MigrateCredentialModels(db *gorm.DB) error {
	return db.AutoMigrate(&ExchangeCredential{})
}
