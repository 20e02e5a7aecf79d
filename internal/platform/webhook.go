package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookGateway forwards channel sends to an external delivery service
// (for example a Twilio function) as JSON POSTs.
type WebhookGateway struct {
	client *http.Client
	url    string
}

func NewWebhookGateway(url string) *WebhookGateway {
	return &WebhookGateway{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
	}
}

func (g *WebhookGateway) SendSMS(ctx context.Context, phone, text string) error {
	return g.post(ctx, "sms", phone, text)
}

func (g *WebhookGateway) SendEmail(ctx context.Context, address, text string) error {
	return g.post(ctx, "email", address, text)
}

func (g *WebhookGateway) PlaceCall(ctx context.Context, phone string) error {
	return g.post(ctx, "call", phone, "")
}

func (g *WebhookGateway) post(ctx context.Context, kind, to, text string) error {
	payload, err := json.Marshal(map[string]string{
		"kind": kind,
		"to":   to,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("gateway marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s send: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s send: status %d", kind, resp.StatusCode)
	}
	return nil
}
