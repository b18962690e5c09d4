package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSGateway implements SMSSender against a JSON SMS API: POST one message,
// read back the delivery status.
type SMSGateway struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

func NewSMSGateway(endpoint, apiKey string) *SMSGateway {
	return &SMSGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *SMSGateway) Send(ctx context.Context, from, to, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"from":    from,
		"to":      to,
		"message": body,
	})
	if err != nil {
		return "", fmt.Errorf("notify: marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("notify: build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("notify: send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("notify: sms gateway returned %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("notify: decode sms response: %w", err)
	}
	return result.Status, nil
}
