// Package cache provides the TTL key-value tier shared by the market
// scanner and the trade executors. Values are JSON-encoded, always
// TTL-bounded derivatives of the durable store; writes are
// last-writer-wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Store is the cache boundary used by the rest of the pipeline. The
// SetNX / CompareAndDelete pair backs the trade lock.
type Store interface {
	// Get returns the raw value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)
	// SetWithTTL stores a raw value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes a key unconditionally. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// SetNX stores value only if key is absent. Reports whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only if it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) error
	// Close releases the underlying connection, if any.
	Close() error
}

// GetJSON reads key and unmarshals it into dest
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON marshals value and stores it under key with ttl
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.SetWithTTL(ctx, key, string(raw), ttl)
}
