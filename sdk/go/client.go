// Package fleetsdk is a minimal client for bot processes talking to the
// fleet gateway's REST surface.
package fleetsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the /api/bot surface using an issued bot token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// Media is one posting queue entry.
type Media struct {
	ID            int64  `json:"id"`
	SourceURL     string `json:"source_url"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	MediaType     string `json:"media_type"`
	Category      string `json:"category,omitempty"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	TargetChannel string `json:"target_channel,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Subscriber mirrors the gateway subscriber model.
type Subscriber struct {
	ID               int64  `json:"id"`
	TelegramID       string `json:"telegram_id"`
	TelegramUsername string `json:"telegram_username,omitempty"`
	Name             string `json:"name,omitempty"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
}

// SocialAccount mirrors the gateway social account model.
type SocialAccount struct {
	ID       int64  `json:"id"`
	Platform string `json:"platform"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Ping checks gateway liveness; no token required.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "api/bot/ping", nil, nil)
}

// Heartbeat marks the bot online and bumps its operation counter.
func (c *Client) Heartbeat(ctx context.Context, activity string) (int64, error) {
	var resp struct {
		BotID int64 `json:"botId"`
	}
	err := c.do(ctx, http.MethodPost, "api/bot/heartbeat", map[string]any{"activity": activity}, &resp)
	return resp.BotID, err
}

// SetStatus reports a status transition.
func (c *Client) SetStatus(ctx context.Context, status, activity string) error {
	body := map[string]any{"status": status, "activity": activity}
	return c.do(ctx, http.MethodPost, "api/bot/status", body, nil)
}

// Log appends a diagnostic line.
func (c *Client) Log(ctx context.Context, level, message, metadata string) error {
	body := map[string]any{"level": level, "message": message}
	if metadata != "" {
		body["metadata"] = metadata
	}
	return c.do(ctx, http.MethodPost, "api/bot/log", body, nil)
}

// AddMedia enqueues a captured media item.
func (c *Client) AddMedia(ctx context.Context, sourceURL, mediaType, category, source string) (Media, error) {
	body := map[string]any{
		"sourceUrl": sourceURL,
		"mediaType": mediaType,
		"category":  category,
		"source":    source,
	}
	var resp struct {
		Media Media `json:"media"`
	}
	err := c.do(ctx, http.MethodPost, "api/bot/media", body, &resp)
	return resp.Media, err
}

// PendingMedia returns the oldest pending queue entries.
func (c *Client) PendingMedia(ctx context.Context, limit int) ([]Media, error) {
	endpoint := "api/bot/media/pending"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Media []Media `json:"media"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Media, err
}

// UpdateMediaStatus reports the outcome of a posting attempt.
func (c *Client) UpdateMediaStatus(ctx context.Context, id int64, status string) error {
	endpoint := fmt.Sprintf("api/bot/media/%d", id)
	return c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, nil)
}

// AddSubscriber upserts a subscriber as active.
func (c *Client) AddSubscriber(ctx context.Context, telegramID, username, name, plan string) (Subscriber, error) {
	body := map[string]any{
		"telegramId":       telegramID,
		"telegramUsername": username,
		"name":             name,
		"plan":             plan,
	}
	var resp struct {
		Subscriber Subscriber `json:"subscriber"`
	}
	err := c.do(ctx, http.MethodPost, "api/bot/subscriber", body, &resp)
	return resp.Subscriber, err
}

// AddSocialAccount records a freshly created account.
func (c *Client) AddSocialAccount(ctx context.Context, platform, username, email, password string) (SocialAccount, error) {
	body := map[string]any{
		"platform": platform,
		"username": username,
		"email":    email,
		"password": password,
	}
	var resp struct {
		Account SocialAccount `json:"account"`
	}
	err := c.do(ctx, http.MethodPost, "api/bot/account", body, &resp)
	return resp.Account, err
}

// ListSocialAccounts returns the active accounts.
func (c *Client) ListSocialAccounts(ctx context.Context) ([]SocialAccount, error) {
	var resp struct {
		Accounts []SocialAccount `json:"accounts"`
	}
	err := c.do(ctx, http.MethodGet, "api/bot/accounts/active", nil, &resp)
	return resp.Accounts, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
