// Package config loads the delivery provider configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"guest-delivery/internal/domain/entity"
	"guest-delivery/internal/infra/notifier"
	pkgconfig "guest-delivery/internal/pkg/config"
)

// ProviderConfig describes the outbound transports. Credentials are never stored in the
// file: each *_env field names the environment variable holding the secret.
type ProviderConfig struct {
	Email      EmailConfig      `yaml:"email"`
	SMS        SMSConfig        `yaml:"sms"`
	ChatCloud  ChatCloudConfig  `yaml:"chat_cloud"`
	ChatDevice ChatDeviceConfig `yaml:"chat_device"`
	Ledger     LedgerConfig     `yaml:"ledger"`
}

type EmailConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Host          string  `yaml:"host"`
	Port          int     `yaml:"port"`
	Username      string  `yaml:"username"`
	PasswordEnv   string  `yaml:"password_env"`
	From          string  `yaml:"from"`
	FromName      string  `yaml:"from_name"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type SMSConfig struct {
	Enabled             bool    `yaml:"enabled"`
	AccountSID          string  `yaml:"account_sid"`
	AuthTokenEnv        string  `yaml:"auth_token_env"`
	From                string  `yaml:"from"`
	MessagingServiceSID string  `yaml:"messaging_service_sid"`
	RatePerSecond       float64 `yaml:"rate_per_second"`
}

// ChatCloudConfig configures the cloud chat-app API. Per-event credentials live on the
// event, so only the endpoint is configured here.
type ChatCloudConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	Language      string        `yaml:"language"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

type ChatDeviceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	TokenEnv      string        `yaml:"token_env"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// LedgerConfig selects the channel automated invitation sends use.
type LedgerConfig struct {
	Channel entity.Channel `yaml:"channel"`
}

// DefaultProviderConfig has every transport disabled, which leaves only the internal
// channel configured.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Email:      EmailConfig{Port: 587, RatePerSecond: 5},
		SMS:        SMSConfig{RatePerSecond: 1},
		ChatCloud:  ChatCloudConfig{BaseURL: notifier.DefaultChatCloudBaseURL, Timeout: 15 * time.Second, Language: "en", RatePerSecond: 20},
		ChatDevice: ChatDeviceConfig{Timeout: 30 * time.Second, RatePerSecond: 1},
		Ledger:     LedgerConfig{Channel: entity.ChannelChatCloud},
	}
}

// LoadProviderConfig reads path over the defaults. A missing file is not an error: the
// defaults are returned with found=false so the caller can log it.
func LoadProviderConfig(path string) (cfg *ProviderConfig, found bool, err error) {
	cfg = DefaultProviderConfig()
	if path == "" {
		return cfg, false, nil
	}
	// #nosec G304 -- path comes from PROVIDERS_CONFIG or a CLI flag
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read provider config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse provider config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("provider config validation failed: %w", err)
	}
	return cfg, true, nil
}

// Validate checks the enabled sections.
func (c *ProviderConfig) Validate() error {
	if c.Email.Enabled {
		if c.Email.Host == "" {
			return fmt.Errorf("email.host is required when email is enabled")
		}
		if err := entity.ValidateEmail(c.Email.From); err != nil {
			return fmt.Errorf("email.from: %w", err)
		}
		if c.Email.Port <= 0 || c.Email.Port > 65535 {
			return fmt.Errorf("email.port must be between 1 and 65535")
		}
	}
	if c.SMS.Enabled {
		if c.SMS.AccountSID == "" || c.SMS.AuthTokenEnv == "" {
			return fmt.Errorf("sms.account_sid and sms.auth_token_env are required when sms is enabled")
		}
		if c.SMS.From == "" && c.SMS.MessagingServiceSID == "" {
			return fmt.Errorf("sms.from or sms.messaging_service_sid is required")
		}
	}
	if c.ChatCloud.Enabled {
		if err := pkgconfig.ValidateEndpoint(c.ChatCloud.BaseURL); err != nil {
			return fmt.Errorf("chat_cloud.base_url: %w", err)
		}
		if c.ChatCloud.Timeout <= 0 {
			return fmt.Errorf("chat_cloud.timeout must be positive")
		}
	}
	if c.ChatDevice.Enabled {
		if err := pkgconfig.ValidateEndpoint(c.ChatDevice.URL); err != nil {
			return fmt.Errorf("chat_device.url: %w", err)
		}
		if c.ChatDevice.Timeout <= 0 {
			return fmt.Errorf("chat_device.timeout must be positive")
		}
	}
	if !c.Ledger.Channel.PhoneAddressed() {
		return fmt.Errorf("ledger.channel must be a phone-addressed channel, got %q", c.Ledger.Channel)
	}
	return nil
}

// SMTP returns the mailer settings, or a zero config when email is disabled.
func (c *ProviderConfig) SMTP() notifier.SMTPConfig {
	if !c.Email.Enabled {
		return notifier.SMTPConfig{}
	}
	return notifier.SMTPConfig{
		Host:          c.Email.Host,
		Port:          c.Email.Port,
		Username:      c.Email.Username,
		Password:      pkgconfig.Secret(c.Email.PasswordEnv),
		From:          c.Email.From,
		FromName:      c.Email.FromName,
		RatePerSecond: c.Email.RatePerSecond,
	}
}

// Twilio returns the SMS gateway settings, or a zero config when SMS is disabled.
func (c *ProviderConfig) Twilio() notifier.TwilioConfig {
	if !c.SMS.Enabled {
		return notifier.TwilioConfig{}
	}
	return notifier.TwilioConfig{
		AccountSID:          c.SMS.AccountSID,
		AuthToken:           pkgconfig.Secret(c.SMS.AuthTokenEnv),
		From:                c.SMS.From,
		MessagingServiceSID: c.SMS.MessagingServiceSID,
		RatePerSecond:       c.SMS.RatePerSecond,
	}
}

// DeviceBridgeURL returns the bridge endpoint, or "" when the device channel is disabled.
func (c *ProviderConfig) DeviceBridgeURL() string {
	if !c.ChatDevice.Enabled {
		return ""
	}
	return c.ChatDevice.URL
}

// DeviceBridgeToken reads the bridge token from the environment.
func (c *ProviderConfig) DeviceBridgeToken() string {
	return pkgconfig.Secret(c.ChatDevice.TokenEnv)
}
