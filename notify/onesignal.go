package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultPushEndpoint is the OneSignal notifications API.
const DefaultPushEndpoint = "https://onesignal.com/api/v1/notifications"

// OneSignalClient implements PushGateway against the OneSignal REST API.
type OneSignalClient struct {
	endpoint string
	appID    string
	apiKey   string
	httpc    *http.Client
	log      *slog.Logger
}

// NewOneSignalClient builds a push client. An empty endpoint falls back to
// the public OneSignal API.
func NewOneSignalClient(endpoint, appID, apiKey string, log *slog.Logger) *OneSignalClient {
	if endpoint == "" {
		endpoint = DefaultPushEndpoint
	}
	return &OneSignalClient{
		endpoint: endpoint,
		appID:    appID,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Send posts one notification. The audience tags are serialized as an
// OR-joined filter expression.
func (c *OneSignalClient) Send(ctx context.Context, msg PushMessage) error {
	fields := map[string]any{
		"app_id":         c.appID,
		"tags":           orTagExpression(msg.Tags),
		"data":           msg.Data,
		"title":          map[string]string{"en": msg.Title},
		"contents":       map[string]string{"en": msg.Text},
		"ios_badgeType":  "Increase",
		"ios_badgeCount": 1,
		"android_sound":  msg.AndroidSound,
		"ios_sound":      msg.IOSSound,
	}
	if msg.SendAfter != nil {
		fields["send_after"] = msg.SendAfter.Format("2006-01-02 15:04:05 MST")
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("notify: marshal push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send push: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.log.Info("push notification response",
		"status", resp.StatusCode, "body", string(respBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// orTagExpression renders tags as the gateway's filter list, with an OR
// operator object between consecutive predicates.
func orTagExpression(tags []Tag) []map[string]string {
	expr := make([]map[string]string, 0, 2*len(tags))
	for i, t := range tags {
		if i > 0 {
			expr = append(expr, map[string]string{"operator": "OR"})
		}
		expr = append(expr, map[string]string{
			"key":      t.Key,
			"relation": t.Relation,
			"value":    t.Value,
		})
	}
	return expr
}
