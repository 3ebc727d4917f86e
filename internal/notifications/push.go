package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pusher delivers a notification to a device token.
type Pusher interface {
	Push(ctx context.Context, token, platform, typ string, payload map[string]interface{}) error
}

// GatewayPusher posts notifications to an HTTP push gateway that relays to
// APNs/FCM.
type GatewayPusher struct {
	url    string
	apiKey string
	client *http.Client
}

func NewGatewayPusher(url, apiKey string, timeout time.Duration) *GatewayPusher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &GatewayPusher{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	Token    string                 `json:"token"`
	Platform string                 `json:"platform"`
	Type     string                 `json:"type"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

func (g *GatewayPusher) Push(ctx context.Context, token, platform, typ string, payload map[string]interface{}) error {
	body, err := json.Marshal(pushRequest{Token: token, Platform: platform, Type: typ, Payload: payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogPusher logs pushes instead of delivering them. Used in development and
// when no gateway is configured.
type LogPusher struct {
	logger *zap.Logger
}

func NewLogPusher(logger *zap.Logger) *LogPusher {
	return &LogPusher{logger: logger}
}

func (l *LogPusher) Push(_ context.Context, token, platform, typ string, _ map[string]interface{}) error {
	l.logger.Info("push (log only)",
		zap.String("platform", platform),
		zap.String("type", typ),
		zap.String("token", token))
	return nil
}
