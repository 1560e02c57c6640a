// Package telephony integrates the Twilio voice API: outbound call creation
// and the TwiML documents returned to webhook callbacks.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apolloni/dentcall/internal/reliability"
)

const maxCallAttempts = 3

// Client places calls through the Twilio REST API.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

// ClientConfig configures the Twilio client.
type ClientConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("telephony account SID is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("telephony auth token is required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("telephony from number is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		backoff: func(attempt int) time.Duration {
			return reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)
		},
	}, nil
}

// Call is the subset of the Twilio call resource the agent uses.
type Call struct {
	SID    string `json:"sid"`
	To     string `json:"to"`
	From   string `json:"from"`
	Status string `json:"status"`
}

// APIError is a structured Twilio API error.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

// MakeCall initiates an outbound call that fetches its voice instructions
// from webhookURL. Transient provider statuses are retried with backoff.
func (c *Client) MakeCall(ctx context.Context, to, webhookURL string) (*Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", c.fromNumber)
	data.Set("Url", webhookURL)
	data.Set("Method", http.MethodPost)

	var lastErr error
	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		call, status, err := c.createCall(ctx, endpoint, data)
		if err == nil {
			return call, nil
		}
		lastErr = err
		if !reliability.IsRetryableHTTPStatus(status) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("call to %s failed after %d attempts: %w", to, maxCallAttempts, lastErr)
}

func (c *Client) createCall(ctx context.Context, endpoint string, data url.Values) (*Call, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return nil, resp.StatusCode, fmt.Errorf("twilio status %s: %s", strconv.Itoa(resp.StatusCode), string(body))
		}
		return nil, resp.StatusCode, &apiErr
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parse call resource: %w", err)
	}
	return &call, resp.StatusCode, nil
}
