package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ValidateConfig.
const (
	defaultAddress           = "127.0.0.1"
	defaultPort              = 7780
	defaultDBPath            = "./.mawneychat"
	defaultRemoteTimeout     = 10 * time.Second
	defaultTokenTTL          = 15 * time.Minute
	defaultRemoteRPS         = 10
	defaultRemoteBurst       = 20
	defaultPollInterval      = 5 * time.Second
	minPollInterval          = 500 * time.Millisecond
	defaultCheckTimeout      = 30 * time.Second
	defaultOutboxFlush       = 2 * time.Second
	defaultOutboxAttempts    = 10
	defaultOutboxBaseBackoff = time.Second
	defaultOutboxMaxBackoff  = time.Minute
	defaultMaxAttachment     = 10 * 1024 * 1024 // 10MB
	defaultPreviewLength     = 50
	defaultNotifyMode        = "log"
)

var defaultInvalidIDTokens = []string{"undefined", "null", "NaN"}

// Addr returns the command API address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults to the effective config and validates it.
func ValidateConfig(eff *EffectiveConfigResult) error {
	if eff == nil || eff.Config == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if err := eff.Config.ValidateConfig(); err != nil {
		return err
	}
	eff.Addr = eff.Config.Addr()
	eff.DBPath = eff.Config.Server.DBPath
	return nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error if
// any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if strings.TrimSpace(c.Server.DBPath) == "" {
		c.Server.DBPath = defaultDBPath
	}

	// remote api
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid remote base_url: %q", c.Remote.BaseURL)
		}
		c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	}
	if c.Remote.Timeout.Duration() == 0 {
		c.Remote.Timeout = Duration(defaultRemoteTimeout)
	}
	if c.Remote.TokenTTL.Duration() == 0 {
		c.Remote.TokenTTL = Duration(defaultTokenTTL)
	}
	if c.Remote.RateLimit.RPS <= 0 {
		c.Remote.RateLimit.RPS = defaultRemoteRPS
	}
	if c.Remote.RateLimit.Burst <= 0 {
		c.Remote.RateLimit.Burst = defaultRemoteBurst
	}

	// polling
	if c.Polling.Interval.Duration() == 0 {
		c.Polling.Interval = Duration(defaultPollInterval)
	}
	if c.Polling.Interval.Duration() < minPollInterval {
		return fmt.Errorf("polling interval %s is below the %s minimum", c.Polling.Interval.Duration(), minPollInterval)
	}
	if c.Polling.CheckTimeout.Duration() == 0 {
		c.Polling.CheckTimeout = Duration(defaultCheckTimeout)
	}
	if c.Polling.Cron != "" && !gronx.IsValid(c.Polling.Cron) {
		return fmt.Errorf("invalid polling cron expression: %s", c.Polling.Cron)
	}

	// outbox
	if c.Outbox.FlushInterval.Duration() == 0 {
		c.Outbox.FlushInterval = Duration(defaultOutboxFlush)
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = defaultOutboxAttempts
	}
	if c.Outbox.BaseBackoff.Duration() == 0 {
		c.Outbox.BaseBackoff = Duration(defaultOutboxBaseBackoff)
	}
	if c.Outbox.MaxBackoff.Duration() == 0 {
		c.Outbox.MaxBackoff = Duration(defaultOutboxMaxBackoff)
	}
	if c.Outbox.MaxBackoff.Duration() < c.Outbox.BaseBackoff.Duration() {
		return fmt.Errorf("outbox max_backoff %s is below base_backoff %s", c.Outbox.MaxBackoff.Duration(), c.Outbox.BaseBackoff.Duration())
	}

	// chat
	if len(c.Chat.InvalidIDTokens) == 0 {
		c.Chat.InvalidIDTokens = append([]string{}, defaultInvalidIDTokens...)
	}
	if c.Chat.MaxAttachmentSize.Int64() == 0 {
		c.Chat.MaxAttachmentSize = SizeBytes(defaultMaxAttachment)
	}
	if c.Chat.PreviewLength <= 0 {
		c.Chat.PreviewLength = defaultPreviewLength
	}

	// notify
	if c.Notify.Mode == "" {
		c.Notify.Mode = defaultNotifyMode
	}
	switch c.Notify.Mode {
	case "log":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify mode webhook requires webhook_url")
		}
	default:
		return fmt.Errorf("unknown notify mode: %s", c.Notify.Mode)
	}

	return c.validateUsers()
}

func (c *Config) validateUsers() error {
	ids := make(map[string]struct{}, len(c.Users))
	emails := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		for _, tok := range c.Chat.InvalidIDTokens {
			if strings.Contains(u.ID, tok) {
				return fmt.Errorf("users[%d]: id %q contains reserved token %q", i, u.ID, tok)
			}
		}
		if _, dup := ids[u.ID]; dup {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		ids[u.ID] = struct{}{}
		if u.Email != "" {
			e := strings.ToLower(u.Email)
			if _, dup := emails[e]; dup {
				return fmt.Errorf("users[%d]: duplicate email %q", i, u.Email)
			}
			emails[e] = struct{}{}
		}
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MAWNEYCHAT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
