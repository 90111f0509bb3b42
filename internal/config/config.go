// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the TextPress configuration from the environment and
// an optional YAML settings file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DefaultBlogTitle is used when neither the environment nor the settings
// file names the blog.
const DefaultBlogTitle = "My TextPress Blog"

// Blog describes the blog being served and exported.
type Blog struct {
	Title   string `env:"TITLE" yaml:"title"`
	Tagline string `env:"TAGLINE" yaml:"tagline"`
	URL     string `env:"URL" yaml:"url"`
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver string `env:"TEXTPRESS_DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"TEXTPRESS_DB_PATH" envDefault:"./data/textpress.db"`
	DBDSN    string `env:"TEXTPRESS_DB_DSN"` // MySQL data source name

	ServerHost string `env:"TEXTPRESS_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"TEXTPRESS_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"TEXTPRESS_ENV" envDefault:"development"`
	LogLevel   string `env:"TEXTPRESS_LOG_LEVEL" envDefault:"info"`
	TrustProxy bool   `env:"TEXTPRESS_TRUST_PROXY" envDefault:"false"` // Honour X-Forwarded-For

	// SettingsFile is a YAML file with a "blog" section. Environment values
	// take precedence over it.
	SettingsFile string `env:"TEXTPRESS_SETTINGS_FILE"`
	Blog         Blog   `envPrefix:"TEXTPRESS_BLOG_"`

	// Cache configuration
	RedisURL     string `env:"TEXTPRESS_REDIS_URL"`
	CachePrefix  string `env:"TEXTPRESS_CACHE_PREFIX" envDefault:"textpress:"`
	CacheTTL     int    `env:"TEXTPRESS_CACHE_TTL" envDefault:"3600"`       // Seconds
	CacheMaxSize int    `env:"TEXTPRESS_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// Export configuration
	ExportDir      string  `env:"TEXTPRESS_EXPORT_DIR" envDefault:"./data/exports"`
	ExportSchedule string  `env:"TEXTPRESS_EXPORT_SCHEDULE"` // Cron spec, empty disables the job
	ExportKeep     int     `env:"TEXTPRESS_EXPORT_KEEP" envDefault:"7"`
	ExportRate     float64 `env:"TEXTPRESS_EXPORT_RATE" envDefault:"0.1"` // Export downloads per second per client
	ExportBurst    int     `env:"TEXTPRESS_EXPORT_BURST" envDefault:"3"`

	// Webhooks notified after each scheduled export
	WebhookURLs   []string `env:"TEXTPRESS_WEBHOOK_URLS" envSeparator:","`
	WebhookSecret string   `env:"TEXTPRESS_WEBHOOK_SECRET"`

	SlowQueryMS int `env:"TEXTPRESS_SLOW_QUERY_MS" envDefault:"200"`
}

type settingsFile struct {
	Blog Blog `yaml:"blog"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// DataSource returns the DSN handed to the database driver.
func (c Config) DataSource() string {
	if c.DBDriver == DriverMySQL {
		return c.DBDSN
	}
	return c.DBPath
}

// CacheTTLDuration returns CacheTTL as a duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// SlowQueryThreshold returns SlowQueryMS as a duration.
func (c Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}

// ExportEnabled reports whether the scheduled export job should run.
func (c Config) ExportEnabled() bool {
	return c.ExportSchedule != ""
}

// Load parses environment variables, merges the settings file and returns
// the validated configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.SettingsFile != "" {
		if err := cfg.mergeSettings(cfg.SettingsFile); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeSettings fills blog fields still empty after the environment was
// parsed.
func (c *Config) mergeSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading settings file: %w", err)
	}

	var s settingsFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing settings file %s: %w", path, err)
	}

	if c.Blog.Title == "" {
		c.Blog.Title = s.Blog.Title
	}
	if c.Blog.Tagline == "" {
		c.Blog.Tagline = s.Blog.Tagline
	}
	if c.Blog.URL == "" {
		c.Blog.URL = s.Blog.URL
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Blog.Title == "" {
		c.Blog.Title = DefaultBlogTitle
	}
	if c.Blog.URL == "" {
		c.Blog.URL = "http://" + c.ServerAddr() + "/"
	}
}

// Validate checks the values that cannot be expressed as env tags.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("TEXTPRESS_DB_PATH must not be empty for the sqlite driver")
		}
	case DriverMySQL:
		if c.DBDSN == "" {
			return errors.New("TEXTPRESS_DB_DSN is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown TEXTPRESS_DB_DRIVER %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverMySQL)
	}

	u, err := url.Parse(c.Blog.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("blog URL %q must be absolute", c.Blog.URL)
	}

	if c.ExportSchedule != "" {
		if _, err := cron.ParseStandard(c.ExportSchedule); err != nil {
			return fmt.Errorf("invalid TEXTPRESS_EXPORT_SCHEDULE: %w", err)
		}
	}
	for _, raw := range c.WebhookURLs {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook URL %q", raw)
		}
	}
	if c.ExportKeep < 1 {
		return fmt.Errorf("TEXTPRESS_EXPORT_KEEP must be positive, got %d", c.ExportKeep)
	}
	return nil
}
