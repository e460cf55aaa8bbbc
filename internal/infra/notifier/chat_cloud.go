package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"guest-delivery/internal/resilience/retry"
)

// DefaultChatCloudBaseURL is the chat-app cloud API root.
const DefaultChatCloudBaseURL = "https://graph.facebook.com/v21.0"

// ChatCredentials are the per-event cloud API credentials.
type ChatCredentials struct {
	Token         string
	PhoneNumberID string
}

// Valid reports whether both parts are present.
func (c ChatCredentials) Valid() bool {
	return c.Token != "" && c.PhoneNumberID != ""
}

// ChatMessage is either free text or a pre-approved template.
type ChatMessage struct {
	To           string
	Body         string
	TemplateName string
	Language     string
}

// ChatCloudClient posts messages to the chat-app cloud API.
type ChatCloudClient struct {
	baseURL  string
	client   *http.Client
	limiter  *RateLimiter
	retryCfg retry.Config
}

// NewChatCloudClient creates a client. An empty baseURL uses DefaultChatCloudBaseURL.
func NewChatCloudClient(baseURL string, timeout time.Duration, ratePerSecond float64) *ChatCloudClient {
	if baseURL == "" {
		baseURL = DefaultChatCloudBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChatCloudClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		limiter:  NewRateLimiter(ratePerSecond, 10),
		retryCfg: retry.ProviderConfig(),
	}
}

type chatText struct {
	Body string `json:"body"`
}

type chatLanguage struct {
	Code string `json:"code"`
}

type chatTemplate struct {
	Name     string       `json:"name"`
	Language chatLanguage `json:"language"`
}

type chatRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *chatText     `json:"text,omitempty"`
	Template         *chatTemplate `json:"template,omitempty"`
}

type chatResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendChat sends msg with the given credentials and returns the cloud message id.
func (c *ChatCloudClient) SendChat(ctx context.Context, creds ChatCredentials, msg ChatMessage) (string, error) {
	if !creds.Valid() {
		return "", &ClientError{Provider: "chat-cloud", StatusCode: http.StatusUnauthorized, Message: "missing credentials"}
	}
	payload := chatRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.To, "+"),
	}
	if msg.TemplateName != "" {
		lang := msg.Language
		if lang == "" {
			lang = "en"
		}
		payload.Type = "template"
		payload.Template = &chatTemplate{Name: msg.TemplateName, Language: chatLanguage{Code: lang}}
	} else {
		payload.Type = "text"
		payload.Text = &chatText{Body: msg.Body}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}
	endpoint := c.baseURL + "/" + url.PathEscape(creds.PhoneNumberID) + "/messages"

	if err := c.limiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("chat-cloud rate limit wait: %w", err)
	}

	var id string
	err = retry.WithBackoff(ctx, c.retryCfg, func() error {
		var sendErr error
		id, sendErr = c.post(ctx, endpoint, creds.Token, body)
		return sendErr
	})
	return id, err
}

func (c *ChatCloudClient) post(ctx context.Context, endpoint, token string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody := readBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus("chat-cloud", resp.StatusCode, resp.Header, respBody)
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Messages) == 0 || cr.Messages[0].ID == "" {
		return "", errors.New("chat response missing message id")
	}
	return cr.Messages[0].ID, nil
}
