package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DeviceBridgeClient sends chat-app messages through a phone that is paired with a
// local bridge service. The bridge is a single device, so calls are not retried here;
// the circuit breaker in front of it decides when the device counts as unreachable.
type DeviceBridgeClient struct {
	url     string
	token   string
	client  *http.Client
	limiter *RateLimiter
}

// NewDeviceBridgeClient creates a client for the bridge's send endpoint.
func NewDeviceBridgeClient(url, token string, timeout time.Duration, ratePerSecond float64) *DeviceBridgeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DeviceBridgeClient{
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: NewRateLimiter(ratePerSecond, 1),
	}
}

// Configured reports whether a bridge URL is set.
func (c *DeviceBridgeClient) Configured() bool {
	return c != nil && c.url != ""
}

type bridgeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type bridgeResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// SendViaDevice posts the message and returns the bridge's message id.
func (c *DeviceBridgeClient) SendViaDevice(ctx context.Context, to, body string) (string, error) {
	if !c.Configured() {
		return "", errors.New("device bridge not configured")
	}
	reqBody, err := json.Marshal(bridgeRequest{PhoneNumber: to, Message: body})
	if err != nil {
		return "", err
	}
	if err := c.limiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("device bridge rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("device bridge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody := readBody(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", classifyStatus("device-bridge", resp.StatusCode, resp.Header, respBody)
	}

	var br bridgeResponse
	if err := json.Unmarshal(respBody, &br); err != nil {
		return "", fmt.Errorf("decode device bridge response: %w body=%q", err, truncate(string(respBody), maxErrorBody, "..."))
	}
	if br.MessageID == "" {
		return "", fmt.Errorf("missing messageId in device bridge response")
	}
	return br.MessageID, nil
}
