package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/config"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioVoice places calls through the Twilio REST API.
type TwilioVoice struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewTwilioVoice(cfg config.VoiceProviderConfig) *TwilioVoice {
	base := cfg.BaseURL
	if base == "" {
		base = twilioAPIBase
	}
	return &TwilioVoice{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioVoice) PlaceCall(ctx context.Context, to, callbackURL string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Url", callbackURL)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", t.baseURL, t.accountSID)
	return postTwilioForm(ctx, t.httpClient, endpoint, t.accountSID, t.authToken, form)
}

// TwilioSMS sends text messages through the Twilio REST API.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewTwilioSMS(cfg config.SMSProviderConfig) *TwilioSMS {
	base := cfg.BaseURL
	if base == "" {
		base = twilioAPIBase
	}
	return &TwilioSMS{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	return postTwilioForm(ctx, t.httpClient, endpoint, t.accountSID, t.authToken, form)
}

func postTwilioForm(ctx context.Context, client *http.Client, endpoint, sid, token string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read twilio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to decode twilio response: %w", err)
	}
	return result.SID, nil
}
