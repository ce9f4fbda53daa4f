package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alvmarrod/webgraph/internal/version"
)

// Config holds all runtime configuration parameters
type Config struct {
	SeedURL             string `mapstructure:"seed_url"`
	MaxDepth            int    `mapstructure:"max_depth"`
	MaxRedirectionDepth int    `mapstructure:"max_redirection_depth"`
	ConnectTimeoutMs    int    `mapstructure:"connect_timeout_ms"`
	ReadTimeoutMs       int    `mapstructure:"read_timeout_ms"`
	UserAgent           string `mapstructure:"user_agent"`
	ConcurrentWorkers   int    `mapstructure:"concurrent_workers"`
	OutputPath          string `mapstructure:"output_path"`
	MetricsPath         string `mapstructure:"metrics_path"`
	MetricsTextfile     string `mapstructure:"metrics_textfile"`
	LogLevel            string `mapstructure:"log_level"`
}

// Overrides carries values supplied on the command line; zero values are ignored
type Overrides struct {
	SeedURL    string
	OutputPath string
	MaxDepth   *int
	Workers    int
}

// LoadConfig reads configuration from an optional file (JSON, YAML or TOML),
// WEBGRAPH_* environment variables and command line overrides, then validates it
func LoadConfig(path string, overrides Overrides) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyOverrides(&cfg, overrides)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(v *viper.Viper) {
	v.SetDefault("seed_url", "")
	v.SetDefault("max_depth", 3)
	v.SetDefault("max_redirection_depth", 10)
	v.SetDefault("connect_timeout_ms", 5000)
	v.SetDefault("read_timeout_ms", 30000)
	v.SetDefault("user_agent", "webgraph/"+version.Version)
	v.SetDefault("concurrent_workers", 1)
	v.SetDefault("output_path", "webgraph.db")
	v.SetDefault("metrics_path", "metrics.json")
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("log_level", "info")
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.SeedURL != "" {
		cfg.SeedURL = o.SeedURL
	}
	if o.OutputPath != "" {
		cfg.OutputPath = o.OutputPath
	}
	if o.MaxDepth != nil {
		cfg.MaxDepth = *o.MaxDepth
	}
	if o.Workers > 0 {
		cfg.ConcurrentWorkers = o.Workers
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.SeedURL == "" {
		return errors.New("seed_url is required")
	}
	if cfg.MaxDepth < 0 {
		return errors.New("max_depth must be >= 0")
	}
	if cfg.MaxRedirectionDepth < 1 {
		return errors.New("max_redirection_depth must be >= 1")
	}
	if cfg.ConcurrentWorkers < 1 {
		return errors.New("concurrent_workers must be >= 1")
	}
	if cfg.ConnectTimeoutMs < 100 {
		return errors.New("connect_timeout_ms must be >= 100")
	}
	if cfg.ReadTimeoutMs < 100 {
		return errors.New("read_timeout_ms must be >= 100")
	}
	if cfg.OutputPath == "" {
		return errors.New("output_path is required")
	}
	return nil
}

// ConnectTimeout returns the dial timeout for probes
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the read timeout for probes and page downloads
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}
