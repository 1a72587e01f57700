package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	Applied []string
	EnvUsed bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "config", "env", "defaults", optionally suffixed with "+env" and "+flags"
}

// parses command-line flags and returns them as a Flags struct
func ParseConfigFlags(name string, args []string) (Flags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	addrPtr := fs.String("addr", "", "command API listen address (host:port)")
	dbPtr := fs.String("db", "", "Pebble DB path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseSizeBytes(v string) SizeBytes {
	if strings.TrimSpace(v) == "" {
		return SizeBytes(0)
	}
	if u, err := humanize.ParseBytes(v); err == nil {
		return SizeBytes(u)
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return SizeBytes(i)
	}
	return SizeBytes(0)
}

func parseDuration(v string) Duration {
	if strings.TrimSpace(v) == "" {
		return Duration(0)
	}
	if td, err := time.ParseDuration(v); err == nil {
		return Duration(td)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second)))
	}
	return Duration(0)
}

// applies MAWNEYCHAT_* environment overrides onto cfg and reports which were used
func ParseConfigEnvs(cfg *Config) EnvResult {
	var res EnvResult
	get := func(name string) string {
		v := os.Getenv("MAWNEYCHAT_" + name)
		if v != "" {
			res.Applied = append(res.Applied, name)
			res.EnvUsed = true
		}
		return v
	}

	// listener address, ADDR wins over the split host/port pair
	if v := get("ADDR"); v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := get("SERVER_ADDRESS"); host != "" {
			cfg.Server.Address = host
		}
		if port := get("SERVER_PORT"); port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}
	if v := get("DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}

	// logging
	if v := get("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.TrimSpace(v)
	}
	if v := get("LOG_SINK"); v != "" {
		cfg.Logging.Sink = strings.TrimSpace(v)
	}

	// account
	if v := get("ACCOUNT_EMAIL"); v != "" {
		cfg.Account.Email = strings.TrimSpace(v)
	}
	if v := get("ACCOUNT_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// remote
	if v := get("REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = strings.TrimSpace(v)
	}
	if v := get("REMOTE_TIMEOUT"); v != "" {
		cfg.Remote.Timeout = parseDuration(v)
	}
	if v := get("REMOTE_TOKEN_SECRET"); v != "" {
		cfg.Remote.TokenSecret = v
	}
	if v := get("REMOTE_TOKEN_TTL"); v != "" {
		cfg.Remote.TokenTTL = parseDuration(v)
	}
	if v := get("REMOTE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Remote.RateLimit.RPS = f
		}
	}
	if v := get("REMOTE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Remote.RateLimit.Burst = n
		}
	}

	// polling
	if v := get("POLLING_ENABLED"); v != "" {
		b := parseBool(v, true)
		cfg.Polling.Enabled = &b
	}
	if v := get("POLLING_INTERVAL"); v != "" {
		cfg.Polling.Interval = parseDuration(v)
	}
	if v := get("POLLING_CRON"); v != "" {
		cfg.Polling.Cron = strings.TrimSpace(v)
	}
	if v := get("POLLING_CHECK_TIMEOUT"); v != "" {
		cfg.Polling.CheckTimeout = parseDuration(v)
	}
	if v := get("POLLING_NOTIFY_GROUPS"); v != "" {
		cfg.Polling.NotifyGroups = parseBool(v, false)
	}

	// outbox
	if v := get("OUTBOX_FLUSH_INTERVAL"); v != "" {
		cfg.Outbox.FlushInterval = parseDuration(v)
	}
	if v := get("OUTBOX_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Outbox.MaxAttempts = n
		}
	}
	if v := get("OUTBOX_BASE_BACKOFF"); v != "" {
		cfg.Outbox.BaseBackoff = parseDuration(v)
	}
	if v := get("OUTBOX_MAX_BACKOFF"); v != "" {
		cfg.Outbox.MaxBackoff = parseDuration(v)
	}

	// chat
	if v := get("CHAT_INVALID_ID_TOKENS"); v != "" {
		cfg.Chat.InvalidIDTokens = parseList(v)
	}
	if v := get("CHAT_MAX_ATTACHMENT_SIZE"); v != "" {
		cfg.Chat.MaxAttachmentSize = parseSizeBytes(v)
	}
	if v := get("CHAT_PREVIEW_LENGTH"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Chat.PreviewLength = n
		}
	}

	// notify
	if v := get("NOTIFY_MODE"); v != "" {
		cfg.Notify.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := get("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = strings.TrimSpace(v)
	}
	return res
}

// layers the config file (if any), environment overrides and explicit flags
// into one effective config. if --config is set the file must exist.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	cfg := &Config{}
	source := "defaults"
	if fileExists && fileCfg != nil {
		cfg = fileCfg
		source = "config"
	}

	envRes := ParseConfigEnvs(cfg)
	if envRes.EnvUsed {
		if source == "defaults" {
			source = "env"
		} else {
			source += "+env"
		}
	}

	if flags.Set["addr"] || flags.Set["db"] {
		if flags.Set["addr"] {
			h, _, err := net.SplitHostPort(flags.Addr)
			if err != nil {
				return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
			}
			cfg.Server.Address = h
			cfg.Server.Port = parsePortFromAddr(flags.Addr)
		}
		if flags.Set["db"] {
			cfg.Server.DBPath = flags.DB
		}
		source += "+flags"
	}

	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	res.Source = source
	return res, nil
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
