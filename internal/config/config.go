// Package config loads and validates dashboard configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CRAWLDASH_SERVER_BASE_URL.
const EnvPrefix = "CRAWLDASH"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Poll       PollConfig       `mapstructure:"poll"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Session    SessionConfig    `mapstructure:"session"`
	Status     StatusConfig     `mapstructure:"status"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig points at the crawl backend.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig configures the backend client.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PollConfig controls the background list refresh.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DashboardConfig controls the job table.
type DashboardConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// DispatcherConfig controls mutation follow-ups.
type DispatcherConfig struct {
	AutoStartDelay time.Duration `mapstructure:"autostart_delay"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`
}

// SessionConfig locates the persisted credential.
type SessionConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// StatusConfig configures the local control server. An empty address disables it.
type StatusConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// EventsConfig configures the event hub and its optional NATS sink.
type EventsConfig struct {
	BufferSize  int    `mapstructure:"buffer_size"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	// Output is stderr, stdout, or a file path.
	Output string `mapstructure:"output"`
}

// Load builds a Config from an optional .env file, an optional config file,
// and the environment, in increasing order of precedence for the last two.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.rate_limit_rps", 10.0)
	v.SetDefault("http.rate_limit_burst", 5)
	v.SetDefault("http.user_agent", "crawldash/0.1")
	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("dashboard.page_size", 10)
	v.SetDefault("dispatcher.autostart_delay", 100*time.Millisecond)
	v.SetDefault("dispatcher.action_timeout", 30*time.Second)
	v.SetDefault("session.token_file", defaultTokenFile())
	v.SetDefault("status.listen_addr", "127.0.0.1:7070")
	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("events.nats_subject", "crawldash.events")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output", "stderr")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".crawldash", "token.json")
	}
	return filepath.Join(dir, "crawldash", "token.json")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute http(s) URL")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must be >= 0")
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("http.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be > 0")
	}
	if c.Dashboard.PageSize <= 0 {
		return fmt.Errorf("dashboard.page_size must be > 0")
	}
	if c.Dispatcher.AutoStartDelay < 0 {
		return fmt.Errorf("dispatcher.autostart_delay must be >= 0")
	}
	if strings.TrimSpace(c.Session.TokenFile) == "" {
		return fmt.Errorf("session.token_file must be set")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be > 0")
	}
	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return fmt.Errorf("events.nats_subject must be set when events.nats_url is set")
	}
	return nil
}
