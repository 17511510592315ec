package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Channel delivers rendered notification content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

type webhookPayload struct {
	Source  string `json:"source"`
	Event   string `json:"event,omitempty"`
	Content string `json:"content"`
}

// WebhookChannel sends notifications to a webhook endpoint. When a
// signing secret is configured, each request carries a short-lived
// HS256 bearer token so the receiver can verify the origin.
type WebhookChannel struct {
	url      string
	client   *http.Client
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithSigningSecret enables request signing with the given secret.
func WithSigningSecret(secret []byte) WebhookOption {
	return func(ch *WebhookChannel) {
		if len(secret) > 0 {
			ch.secret = secret
		}
	}
}

// WithTokenTTL overrides the signed token lifetime.
func WithTokenTTL(ttl time.Duration) WebhookOption {
	return func(ch *WebhookChannel) {
		if ttl > 0 {
			ch.tokenTTL = ttl
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		issuer:   "vesselwatch",
		tokenTTL: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the content as JSON.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	payload := webhookPayload{
		Source:  w.issuer,
		Content: content,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		token, err := w.signToken()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookChannel) signToken() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    w.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(w.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(w.secret)
}
