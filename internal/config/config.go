package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

type Config struct {
	Addr string `toml:"addr"`

	DefaultSessionID    string `toml:"default_session_id"`
	DefaultSessionTitle string `toml:"default_session_title"`
	DefaultUserID       string `toml:"default_user_id"` // owner of the default session, empty for none

	ReplyMinDelayMS int    `toml:"reply_min_delay_ms"`
	ReplyMaxDelayMS int    `toml:"reply_max_delay_ms"`
	RulesFile       string `toml:"rules_file"` // empty = embedded rules

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "json", "console" or empty for auto

	ShutdownTimeoutMS int `toml:"shutdown_timeout_ms"`

	// Used by the terminal client.
	ServerURL      string `toml:"server_url"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	PollTimeoutMS  int    `toml:"poll_timeout_ms"`
}

func Default() Config {
	return Config{
		Addr:                ":8080",
		DefaultSessionID:    "default-session",
		DefaultSessionTitle: "Tata Capital Chat",
		ReplyMinDelayMS:     1000,
		ReplyMaxDelayMS:     3000,
		LogLevel:            "info",
		ShutdownTimeoutMS:   5000,
		ServerURL:           "http://127.0.0.1:8080",
		PollIntervalMS:      1000,
		PollTimeoutMS:       10000,
	}
}

// Load builds the config: defaults, then the TOML file at path (if any),
// then .env, then TIA_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	dotenv, err := godotenv.Read()
	if err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrap(err, "read .env")
	}

	if err := applyEnv(&cfg, envLookup(dotenv)); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if strings.TrimSpace(c.DefaultSessionID) == "" {
		return errors.New("default_session_id is required")
	}
	if c.ReplyMinDelayMS < 0 || c.ReplyMaxDelayMS <= c.ReplyMinDelayMS {
		return errors.Errorf("reply delay window [%d, %d) ms is invalid", c.ReplyMinDelayMS, c.ReplyMaxDelayMS)
	}
	if c.PollIntervalMS <= 0 || c.PollTimeoutMS <= 0 {
		return errors.New("poll interval and timeout must be positive")
	}
	if c.ShutdownTimeoutMS <= 0 {
		return errors.New("shutdown_timeout_ms must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "console":
	default:
		return errors.Errorf("log_format %q must be json, console or empty", c.LogFormat)
	}
	return nil
}

func (c Config) ReplyMinDelay() time.Duration { return ms(c.ReplyMinDelayMS) }
func (c Config) ReplyMaxDelay() time.Duration { return ms(c.ReplyMaxDelayMS) }
func (c Config) ShutdownTimeout() time.Duration {
	return ms(c.ShutdownTimeoutMS)
}
func (c Config) PollInterval() time.Duration { return ms(c.PollIntervalMS) }
func (c Config) PollTimeout() time.Duration  { return ms(c.PollTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// envLookup reads the process environment first and falls back to .env entries.
func envLookup(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dotenv[key])
	}
}

func applyEnv(c *Config, lookup func(string) string) error {
	getEnv := func(key, def string) string {
		if v := lookup(key); v != "" {
			return v
		}
		return def
	}

	c.Addr = getEnv("TIA_ADDR", c.Addr)
	if port := lookup("PORT"); port != "" && lookup("TIA_ADDR") == "" {
		c.Addr = ":" + port
	}
	c.DefaultSessionID = getEnv("TIA_DEFAULT_SESSION_ID", c.DefaultSessionID)
	c.DefaultSessionTitle = getEnv("TIA_DEFAULT_SESSION_TITLE", c.DefaultSessionTitle)
	c.DefaultUserID = getEnv("TIA_DEFAULT_USER_ID", c.DefaultUserID)
	c.RulesFile = getEnv("TIA_RULES_FILE", c.RulesFile)
	c.LogLevel = getEnv("TIA_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("TIA_LOG_FORMAT", c.LogFormat)
	c.ServerURL = getEnv("TIA_SERVER_URL", c.ServerURL)

	ints := []struct {
		key string
		dst *int
	}{
		{"TIA_REPLY_MIN_DELAY_MS", &c.ReplyMinDelayMS},
		{"TIA_REPLY_MAX_DELAY_MS", &c.ReplyMaxDelayMS},
		{"TIA_SHUTDOWN_TIMEOUT_MS", &c.ShutdownTimeoutMS},
		{"TIA_POLL_INTERVAL_MS", &c.PollIntervalMS},
		{"TIA_POLL_TIMEOUT_MS", &c.PollTimeoutMS},
	}
	for _, it := range ints {
		v, err := parseInt(it.key, lookup(it.key), *it.dst)
		if err != nil {
			return err
		}
		*it.dst = v
	}
	return nil
}

func parseInt(key, v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.Wrapf(err, "invalid int for %s=%q", key, v)
	}
	return n, nil
}
