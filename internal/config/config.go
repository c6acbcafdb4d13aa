package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the deliverability service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	DNS      DNSConfig      `yaml:"dns"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Spam     SpamConfig     `yaml:"spam"`
	Health   HealthConfig   `yaml:"health"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection for atomic send reservations.
// The service runs without Redis; reservations then fall back to the
// Postgres-backed calculator alone.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// DNSConfig holds DNS verification settings.
type DNSConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured resolver timeout as a duration.
func (c DNSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds SMTP probe settings.
type SMTPConfig struct {
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// ConnectTimeout returns the raw-socket probe timeout as a duration.
func (c SMTPConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// SpamConfig holds the spam scorer threshold.
type SpamConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// HealthConfig holds auto-pause thresholds for account metrics.
type HealthConfig struct {
	BounceRatePause    float64 `yaml:"bounce_rate_pause"`
	ComplaintRatePause float64 `yaml:"complaint_rate_pause"`
	MinSentForPause    int     `yaml:"min_sent_for_pause"`
}

// MonitorConfig holds the background metrics monitor settings.
type MonitorConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// Interval returns the monitor tick interval as a duration.
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Load reads and parses the configuration file, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.DNS.TimeoutSeconds == 0 {
		cfg.DNS.TimeoutSeconds = 10
	}
	if cfg.SMTP.ConnectTimeoutSeconds == 0 {
		cfg.SMTP.ConnectTimeoutSeconds = 5
	}
	if cfg.Spam.Threshold == 0 {
		cfg.Spam.Threshold = 5.0
	}
	if cfg.Health.BounceRatePause == 0 {
		cfg.Health.BounceRatePause = 5.0
	}
	if cfg.Health.ComplaintRatePause == 0 {
		cfg.Health.ComplaintRatePause = 0.1
	}
	if cfg.Health.MinSentForPause == 0 {
		cfg.Health.MinSentForPause = 50
	}
	if cfg.Monitor.IntervalMinutes == 0 {
		cfg.Monitor.IntervalMinutes = 60
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment. A missing config file is
// not an error; defaults plus env vars are enough to run.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
