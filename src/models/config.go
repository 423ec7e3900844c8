package models

import (
	"net"
	"strconv"
	"time"
)

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host" env:"HOST"`
	Port     int             `yaml:"port" env:"PORT"`
	LogLevel string          `yaml:"log_level" env:"LOG_LEVEL"`
	Upstream MUpstreamConfig `yaml:"upstream"`
	Session  MSessionConfig  `yaml:"session"`
	Viewer   MViewerConfig   `yaml:"viewer"`
}

type MUpstreamConfig struct {
	BaseURL          string   `yaml:"base_url" env:"UPSTREAM_BASE_URL"`
	FallbackBaseURLs []string `yaml:"fallback_base_urls,omitempty" env:"UPSTREAM_FALLBACK_BASE_URLS" envSeparator:","`
	Symbol           string   `yaml:"symbol"`
	CandleLimit      int      `yaml:"candle_limit"`
	DepthLimit       int      `yaml:"depth_limit"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MaxRetries       int      `yaml:"retries"`
	UserAgent        string   `yaml:"user_agent"`
}

type MSessionConfig struct {
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	DefaultTimeframe       string `yaml:"default_timeframe"`
	SendBuffer             int    `yaml:"send_buffer"`
}

type MViewerConfig struct {
	URL                   string `yaml:"url" env:"VIEWER_URL"`
	Timeframe             string `yaml:"timeframe"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
}

// -----------------------------------------------------------------------------

// Addr is the listen address of the relay.
func (c *MConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *MConfig) RefreshInterval() time.Duration {
	return time.Duration(c.Session.RefreshIntervalSeconds) * time.Second
}

func (c *MConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

func (c *MConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Viewer.ReconnectDelaySeconds) * time.Second
}
