package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/config"
)

// HTTPEmail delivers mail through a JSON relay endpoint.
type HTTPEmail struct {
	endpoint   string
	apiKey     string
	fromName   string
	fromEmail  string
	replyTo    string
	httpClient *http.Client
}

func NewHTTPEmail(cfg config.EmailProviderConfig) *HTTPEmail {
	return &HTTPEmail{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		fromName:   cfg.FromName,
		fromEmail:  cfg.FromEmail,
		replyTo:    cfg.ReplyTo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type emailPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (e *HTTPEmail) SendEmail(ctx context.Context, to, subject, html string) error {
	payload := emailPayload{
		To:      to,
		From:    fmt.Sprintf("%q <%s>", e.fromName, e.fromEmail),
		ReplyTo: e.replyTo,
		Subject: subject,
		HTML:    html,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email relay returned status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
