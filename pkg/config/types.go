package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Account AccountConfig `yaml:"account"`
	Users   []UserEntry   `yaml:"users"`
	Remote  RemoteConfig  `yaml:"remote"`
	Polling PollingConfig `yaml:"polling"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Chat    ChatConfig    `yaml:"chat"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ServerConfig holds the local command API listener and the store path.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// AccountConfig identifies the user this daemon signs in as.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// UserEntry is one record of the static user directory.
type UserEntry struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Email       string         `yaml:"email"`
	Password    string         `yaml:"password"`
	Avatar      string         `yaml:"avatar"`
	Preferences map[string]any `yaml:"preferences"`
}

// RemoteConfig configures the Remote Chat API client.
type RemoteConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Timeout     Duration `yaml:"timeout"`
	TokenSecret string   `yaml:"token_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
	RateLimit   struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// PollingConfig controls the background poller. Cron, when set, takes
// precedence over Interval; 7-field expressions carry a leading seconds field.
type PollingConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	Interval     Duration `yaml:"interval"`
	Cron         string   `yaml:"cron"`
	CheckTimeout Duration `yaml:"check_timeout"`
	NotifyGroups bool     `yaml:"notify_groups"`
}

// IsEnabled reports whether polling should start with the daemon.
func (p PollingConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// OutboxConfig tunes the durable write-ahead outbox.
type OutboxConfig struct {
	FlushInterval Duration `yaml:"flush_interval"`
	MaxAttempts   int      `yaml:"max_attempts"`
	BaseBackoff   Duration `yaml:"base_backoff"`
	MaxBackoff    Duration `yaml:"max_backoff"`
}

// ChatConfig holds state store tunables.
type ChatConfig struct {
	InvalidIDTokens   []string  `yaml:"invalid_id_tokens"`
	MaxAttachmentSize SizeBytes `yaml:"max_attachment_size"`
	PreviewLength     int       `yaml:"preview_length"`
}

// NotifyConfig selects the notification sink: "log" or "webhook".
type NotifyConfig struct {
	Mode       string `yaml:"mode"`
	WebhookURL string `yaml:"webhook_url"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "5MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// String renders the size the way it is usually written in config files.
func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "5s" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
