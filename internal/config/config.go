package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fleet.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Owner OwnerConfig `yaml:"owner"`
}

// OwnerConfig selects the external channel that receives escalation
// forwards. Channel "none" keeps the notification feed only.
type OwnerConfig struct {
	Channel       string  `yaml:"channel"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Telegram      struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Discord struct {
		WebhookID    string `yaml:"webhook_id"`
		WebhookToken string `yaml:"webhook_token"`
	} `yaml:"discord"`
	Webhook struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
}

var ownerChannels = map[string]bool{"none": true, "telegram": true, "discord": true, "webhook": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Owner.Channel == "" {
		c.Owner.Channel = "none"
	}
	if !ownerChannels[c.Owner.Channel] {
		return fmt.Errorf("config.owner.channel must be one of none, telegram, discord, webhook")
	}
	switch c.Owner.Channel {
	case "telegram":
		if c.Owner.Telegram.Token == "" || c.Owner.Telegram.ChatID == 0 {
			return fmt.Errorf("config.owner.telegram requires token and chat_id")
		}
	case "discord":
		if c.Owner.Discord.WebhookID == "" || c.Owner.Discord.WebhookToken == "" {
			return fmt.Errorf("config.owner.discord requires webhook_id and webhook_token")
		}
	case "webhook":
		if c.Owner.Webhook.URL == "" {
			return fmt.Errorf("config.owner.webhook requires url")
		}
	}
	if c.Owner.RatePerSecond < 0 {
		return fmt.Errorf("config.owner.rate_per_second must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fleet.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with fleet config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v0"
	cfg.Owner.Channel = "none"
	cfg.Owner.RatePerSecond = 1
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  # HS256 secret for the operator API. Empty disables the admin surface.
  jwt_secret: ""

owner:
  # Escalation channel for bot_down / payment_received forwards:
  # none, telegram, discord or webhook.
  channel: none
  rate_per_second: 1
  telegram:
    token: ""
    chat_id: 0
  discord:
    webhook_id: ""
    webhook_token: ""
  webhook:
    url: ""
    secret: ""
`
