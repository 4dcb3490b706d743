// Package credentials stores per-user exchange API keys. Secrets are
// sealed with ChaCha20-Poly1305 before they touch the database, under a
// process-wide key supplied through configuration.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/gorm"

	"coinsignals/models"
	"coinsignals/services/exchange"
)

var (
	// ErrNotConfigured means the user has no validated keys for the exchange
	ErrNotConfigured = errors.New("exchange not configured")
)

// Service reads and writes sealed exchange credentials
type Service struct {
	db  *gorm.DB
	key []byte
}

// NewService creates a credentials service. key is the hex-encoded
// 32-byte sealing key from configuration.
func NewService(db *gorm.DB, key string) (*Service, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("credentials key is not valid hex: %w", err)
	}
	if len(raw) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials key must be %d bytes, got %d", chacha20poly1305.KeySize, len(raw))
	}
	return &Service{db: db, key: raw}, nil
}

// Save seals and upserts the user's API keys for an exchange. Newly
// saved keys start unvalidated.
func (s *Service) Save(userID uint, exchangeName, apiKey, secret string) error {
	sealed, err := s.seal(secret)
	if err != nil {
		return err
	}

	var cred models.ExchangeCredential
	err = s.db.Where(models.ExchangeCredential{UserID: userID, Exchange: exchangeName}).
		FirstOrCreate(&cred).Error
	if err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}

	return s.db.Model(&cred).Updates(map[string]interface{}{
		"api_key":      apiKey,
		"secret_enc":   sealed,
		"is_validated": false,
	}).Error
}

// MarkValidated flags the stored keys as usable for trading
func (s *Service) MarkValidated(userID uint, exchangeName string) error {
	return s.db.Model(&models.ExchangeCredential{}).
		Where("user_id = ? AND exchange = ?", userID, exchangeName).
		Update("is_validated", true).Error
}

// Get returns the decrypted credentials for (user, exchange). Missing or
// unvalidated keys report ErrNotConfigured.
func (s *Service) Get(userID uint, exchangeName string) (exchange.Credentials, error) {
	var cred models.ExchangeCredential
	err := s.db.Where("user_id = ? AND exchange = ?", userID, exchangeName).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return exchange.Credentials{}, ErrNotConfigured
	}
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if !cred.IsValidated {
		return exchange.Credentials{}, ErrNotConfigured
	}

	secret, err := s.open(cred.SecretEnc)
	if err != nil {
		return exchange.Credentials{}, err
	}
	return exchange.Credentials{Key: cred.APIKey, Secret: secret}, nil
}

func (s *Service) seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed secret: %w", err)
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("sealed secret too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed secret: %w", err)
	}
	return string(plaintext), nil
}
