// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	WebDriver WebDriverConfig `mapstructure:"webdriver" yaml:"webdriver"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Stub      StubConfig      `mapstructure:"stub" yaml:"stub"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// WebDriverConfig points the client at a remote automation session.
type WebDriverConfig struct {
	// URL is the WebDriver server root, e.g. http://127.0.0.1:8910 or
	// http://127.0.0.1:4444/wd/hub.
	URL       string        `mapstructure:"url" yaml:"url"`
	SessionID string        `mapstructure:"session_id" yaml:"session_id"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MultiSession enables rewriting of string scripts that start with
	// "function (" into self-invoking call expressions.
	MultiSession bool `mapstructure:"multi_session" yaml:"multi_session"`
	// RateLimit caps outbound commands per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	UserAgent string  `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes the HTTP transport used to reach the WebDriver server.
type NetworkConfig struct {
	DialTimeout           time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout" yaml:"response_header_timeout"`
	IgnoreTLSErrors       bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2            bool          `mapstructure:"force_http2" yaml:"force_http2"`
	Proxy                 string        `mapstructure:"proxy" yaml:"proxy"`
}

// StubConfig configures the local stub WebDriver server.
type StubConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	SessionID string `mapstructure:"session_id" yaml:"session_id"`
	Title     string `mapstructure:"title" yaml:"title"`
	// W3COnly makes the stub reject the legacy execute endpoint so clients
	// exercise their fallback path.
	W3COnly bool `mapstructure:"w3c_only" yaml:"w3c_only"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "phantomctl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- WebDriver --
	v.SetDefault("webdriver.url", "http://127.0.0.1:8910")
	v.SetDefault("webdriver.session_id", "")
	v.SetDefault("webdriver.timeout", "60s")
	v.SetDefault("webdriver.multi_session", false)
	v.SetDefault("webdriver.rate_limit", 0.0)
	v.SetDefault("webdriver.user_agent", "phantomctl")

	// -- Network --
	v.SetDefault("network.dial_timeout", "5s")
	v.SetDefault("network.response_header_timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", false)
	v.SetDefault("network.proxy", "")

	// -- Stub --
	v.SetDefault("stub.addr", "127.0.0.1:8910")
	v.SetDefault("stub.session_id", "")
	v.SetDefault("stub.title", "WebdriverJS Testpage")
	v.SetDefault("stub.w3c_only", false)
}

// NewConfigFromViper creates a validated configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The session id usually comes from whatever started the browser, so it
	// gets a short env name of its own.
	if err := v.BindEnv("webdriver.session_id", "PHANTOMCTL_SESSION_ID", "WEBDRIVER_SESSION_ID"); err != nil {
		return nil, fmt.Errorf("error binding session id env: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.WebDriver.Validate(); err != nil {
		return fmt.Errorf("webdriver: %w", err)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	return nil
}

// Validate checks the WebDriver settings.
func (w *WebDriverConfig) Validate() error {
	if strings.TrimSpace(w.URL) == "" {
		return fmt.Errorf("webdriver.url is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("webdriver.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webdriver.url must use http or https, got %q", u.Scheme)
	}
	if w.Timeout < 0 {
		return fmt.Errorf("webdriver.timeout must not be negative")
	}
	if w.RateLimit < 0 {
		return fmt.Errorf("webdriver.rate_limit must not be negative")
	}
	return nil
}

// Validate checks the network settings.
func (n *NetworkConfig) Validate() error {
	if n.Proxy == "" {
		return nil
	}
	if _, err := url.Parse(n.Proxy); err != nil {
		return fmt.Errorf("network.proxy is not a valid URL: %w", err)
	}
	return nil
}
