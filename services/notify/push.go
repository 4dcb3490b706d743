package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushClient delivers notifications through an Expo-compatible push API
type PushClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewPushClient creates a push client for the given endpoint
func NewPushClient(url, apiKey string, timeout time.Duration) *PushClient {
	return &PushClient{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	Data []struct {
		Status  string `json:"status"` // "ok" or "error"
		Message string `json:"message"`
	} `json:"data"`
}

// Send posts one message per token in a single batch request. The
// returned results line up with tokens by index.
func (p *PushClient) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]DeliveryResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	messages := make([]pushMessage, len(tokens))
	for i, token := range tokens {
		messages[i] = pushMessage{To: token, Title: title, Body: body, Data: data}
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("push service status %d", resp.StatusCode)
	}

	var parsed pushResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse push response: %w", err)
	}

	results := make([]DeliveryResult, len(tokens))
	for i, token := range tokens {
		results[i] = DeliveryResult{Token: token, OK: true}
		if i < len(parsed.Data) && parsed.Data[i].Status != "ok" {
			results[i].OK = false
			results[i].Error = parsed.Data[i].Message
		}
	}
	return results, nil
}
