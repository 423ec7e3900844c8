package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"market-relay/src/helpers"
	"market-relay/src/models"
	"market-relay/src/timeframe"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{MConfig: &models.MConfig{
		Name:     "market-relay",
		Host:     "0.0.0.0",
		Port:     3001,
		LogLevel: "INFO",
		Upstream: models.MUpstreamConfig{
			BaseURL:        "https://api.binance.com/api/v3",
			Symbol:         "SOLUSDT",
			CandleLimit:    100,
			DepthLimit:     20,
			TimeoutSeconds: 10,
			MaxRetries:     0,
			UserAgent:      "market-relay/1.0",
		},
		Session: models.MSessionConfig{
			RefreshIntervalSeconds: 5,
			DefaultTimeframe:       string(timeframe.Default),
			SendBuffer:             16,
		},
		Viewer: models.MViewerConfig{
			URL:                   "ws://localhost:3001/ws",
			Timeframe:             string(timeframe.OneHour),
			ReconnectDelaySeconds: 5,
		},
	}}
}

// -----------------------------------------------------------------------------

// NewConfig loads the YAML file at configPath on top of the defaults, then
// applies .env and environment overrides. A missing file is not an error.
func NewConfig(configPath string) (*Config, error) {
	config := Default()

	// 1. Read the YAML file content
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, helpers.NewConfigurationError(err, "failed to read config file '%s'", configPath)
		}

		// 2. Unmarshal data into the models struct
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config.MConfig); err != nil {
				return nil, helpers.NewConfigurationError(err, "failed to parse config from YAML")
			}
		}
	}

	// 3. Environment overrides
	if err := config.applyEnv(); err != nil {
		return nil, helpers.NewConfigurationError(err, "failed to apply environment overrides")
	}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, helpers.NewConfigurationError(err, "config validation failed")
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() error {
	// Ignore error if .env is missing
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return env.Parse(c.MConfig)
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1 and 65535)", c.Port)
	}

	// Upstream
	for _, raw := range c.BaseURLs() {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream base url: %q", raw)
		}
	}
	if c.Upstream.Symbol == "" {
		return fmt.Errorf("upstream symbol cannot be empty")
	}
	if c.Upstream.CandleLimit <= 0 || c.Upstream.CandleLimit > 1000 {
		return fmt.Errorf("candle limit must be between 1 and 1000, got %d", c.Upstream.CandleLimit)
	}
	if c.Upstream.DepthLimit <= 0 || c.Upstream.DepthLimit > 5000 {
		return fmt.Errorf("depth limit must be between 1 and 5000, got %d", c.Upstream.DepthLimit)
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream timeout must be greater than 0")
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Session
	if c.Session.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be greater than 0")
	}
	if !timeframe.IsSupported(c.Session.DefaultTimeframe) {
		return fmt.Errorf("unsupported default timeframe: %q", c.Session.DefaultTimeframe)
	}
	if c.Session.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be greater than 0")
	}

	// Viewer
	if c.Viewer.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// BaseURLs lists the primary upstream followed by its fallbacks.
func (c *Config) BaseURLs() []string {
	return append([]string{c.Upstream.BaseURL}, c.Upstream.FallbackBaseURLs...)
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
