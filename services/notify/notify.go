// Package notify delivers push notifications to subscriber device
// tokens. Delivery is best effort: callers get per-token results back so
// dead registrations can be pruned upstream, and a failed send never
// blocks signal creation.
package notify

import (
	"context"
	"log"
)

// DeliveryResult reports the outcome of one token's delivery
type DeliveryResult struct {
	Token string `json:"token"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Notifier is the boundary to the push delivery service
type Notifier interface {
	// Send pushes one message to tokens and reports per-token outcomes.
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]DeliveryResult, error)
}

// LogNotifier logs instead of delivering; used in development and tests
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]DeliveryResult, error) {
	log.Printf("[notify] %s: %s (%d tokens)", title, body, len(tokens))
	results := make([]DeliveryResult, len(tokens))
	for i, token := range tokens {
		results[i] = DeliveryResult{Token: token, OK: true}
	}
	return results, nil
}
