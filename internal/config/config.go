// Package config loads application configuration from an optional YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides;
// LESSONNOTIFY_DATABASE__URL maps to database.url.
const envPrefix = "LESSONNOTIFY_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Email    EmailConfig    `koanf:"email"`
	SMS      SMSConfig      `koanf:"sms"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DispatchConfig contains dispatch tick settings.
type DispatchConfig struct {
	// Secret guards the tick trigger endpoint; empty disables the
	// guard (local development only).
	Secret      string          `koanf:"secret"`
	BatchSize   int             `koanf:"batch_size"`
	MaxRetries  int             `koanf:"max_retries"`
	RetryDelays []time.Duration `koanf:"retry_delays"`
	Concurrency int             `koanf:"concurrency"`
	SendRate    float64         `koanf:"send_rate"`
	StuckAfter  time.Duration   `koanf:"stuck_after"`
}

// EmailConfig contains email provider settings.
type EmailConfig struct {
	Enabled     bool   `koanf:"enabled"`
	APIBaseURL  string `koanf:"api_base_url"`
	APIKey      string `koanf:"api_key"`
	FromAddress string `koanf:"from_address"`
	OrgName     string `koanf:"org_name"`
	BrandColor  string `koanf:"brand_color"`
}

// SMSConfig contains SMS provider settings.
type SMSConfig struct {
	Enabled    bool   `koanf:"enabled"`
	APIBaseURL string `koanf:"api_base_url"`
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
}

// Default returns the baseline configuration before file and
// environment overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			Migrate:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Dispatch: DispatchConfig{
			BatchSize:   100,
			MaxRetries:  3,
			RetryDelays: []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
			Concurrency: 5,
			SendRate:    10,
			StuckAfter:  10 * time.Minute,
		},
		Email: EmailConfig{
			OrgName:    "LifeQuest Swim Team",
			BrandColor: "#F6871F",
		},
		SMS: SMSConfig{},
	}
}

// Load reads configuration from path (optional; "" skips the file) and
// applies environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration using the CONFIG_FILE environment
// variable for the optional file path.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Dispatch.MaxRetries <= 0 {
		return errors.New("config: dispatch.max_retries must be positive")
	}
	if len(c.Dispatch.RetryDelays) == 0 {
		return errors.New("config: dispatch.retry_delays must not be empty")
	}
	return nil
}
