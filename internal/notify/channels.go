package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"botfleet/internal/config"
)

// ChannelFromConfig builds the configured owner sink, or nil when the
// channel is "none".
func ChannelFromConfig(cfg config.OwnerConfig) (Channel, error) {
	switch cfg.Channel {
	case "", "none":
		return nil, nil
	case "telegram":
		return NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID)
	case "discord":
		return NewDiscordChannel(cfg.Discord.WebhookID, cfg.Discord.WebhookToken)
	case "webhook":
		return NewWebhookChannel(cfg.Webhook.URL, cfg.Webhook.Secret), nil
	default:
		return nil, fmt.Errorf("unknown owner channel %q", cfg.Channel)
	}
}

// TelegramChannel sends owner alerts as plain Telegram messages.
type TelegramChannel struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramChannel(token string, chatID int64) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram owner channel: %w", err)
	}
	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Notify(ctx context.Context, title, content string) error {
	_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: c.chatID},
		Text:   title + "\n\n" + content,
	})
	return err
}

// DiscordChannel posts owner alerts through a Discord webhook.
type DiscordChannel struct {
	session      *discordgo.Session
	webhookID    string
	webhookToken string
}

func NewDiscordChannel(webhookID, webhookToken string) (*DiscordChannel, error) {
	// Webhook execution needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord owner channel: %w", err)
	}
	return &DiscordChannel{session: session, webhookID: webhookID, webhookToken: webhookToken}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Notify(ctx context.Context, title, content string) error {
	_, err := c.session.WebhookExecute(c.webhookID, c.webhookToken, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: content,
		}},
	}, discordgo.WithContext(ctx))
	return err
}

// WebhookChannel POSTs owner alerts as JSON to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhookChannel(url, secret string) *WebhookChannel {
	return &WebhookChannel{URL: url, Secret: secret, Client: &http.Client{Timeout: defaultSendTimeout}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Notify(ctx context.Context, title, content string) error {
	payload, err := json.Marshal(map[string]string{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fleet-Delivery", uuid.NewString())
	if c.Secret != "" {
		req.Header.Set("X-Fleet-Secret", c.Secret)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
