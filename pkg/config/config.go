/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables used to configure the agent
	EnvPrefix = "HEARTBEAT_"

	// Polling and backoff defaults, in the order they are applied
	DefaultActiveDelay          = 240 * time.Second
	DefaultMinReconnectTime     = 5 * time.Second
	DefaultTimeoutReconnectTime = 60 * time.Second
	DefaultMaxReconnectTime     = 600 * time.Second
	DefaultReconnectMultiplier  = 2.0
	DefaultHiddenDelayFactor    = 2.0
)

// Config holds all configuration for the heartbeat agent
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Session       SessionConfig       `koanf:"session"`
	Heartbeat     HeartbeatConfig     `koanf:"heartbeat"`
	HTTPClient    HTTPClientConfig    `koanf:"http_client"`
	Storage       StorageConfig       `koanf:"storage"`
	Logging       LoggingConfig       `koanf:"logging"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig holds the local agent API settings
type ServerConfig struct {
	APIPort         int           `koanf:"api_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SessionConfig describes the learning-platform server and its session resource
type SessionConfig struct {
	BaseURL      string `koanf:"base_url"`      // e.g. http://localhost:8080/
	ResourcePath string `koanf:"resource_path"` // session resource, relative to BaseURL
	SignOutURL   string `koanf:"signout_url"`   // redirect target after an inactivity sign-out
	UserAgent    string `koanf:"user_agent"`    // browser user agent reported with each heartbeat
}

// HeartbeatConfig holds polling cadence and reconnection backoff settings
type HeartbeatConfig struct {
	AutoStart            bool          `koanf:"auto_start"`
	ActiveDelay          time.Duration `koanf:"active_delay"`
	HiddenDelayFactor    float64       `koanf:"hidden_delay_factor"`
	MinReconnectTime     time.Duration `koanf:"min_reconnect_time"`
	TimeoutReconnectTime time.Duration `koanf:"timeout_reconnect_time"`
	MaxReconnectTime     time.Duration `koanf:"max_reconnect_time"`
	ReconnectMultiplier  float64       `koanf:"reconnect_multiplier"`
	CountdownInterval    time.Duration `koanf:"countdown_interval"`
}

// HTTPClientConfig holds request pipeline settings
type HTTPClientConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	// DisconnectionStatusCodes has no default: the set of statuses meaning
	// "server unreachable" is deployment specific and must be configured.
	DisconnectionStatusCodes []int `koanf:"disconnection_status_codes"`
	IncludeNoResponse        bool  `koanf:"include_no_response"`
	MaxErrorBodyBytes        int64 `koanf:"max_error_body_bytes"`
}

// StorageConfig holds persisted flag storage configuration
type StorageConfig struct {
	Type   string       `koanf:"type"`   // "sqlite" or "memory"
	SQLite SQLiteConfig `koanf:"sqlite"` // SQLite-specific configuration
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `koanf:"path"` // Path to SQLite database file
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "json" (default) or "console"
}

// MetricsConfig holds Prometheus metrics server configuration
type MetricsConfig struct {
	// Enabled indicates whether the metrics server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the metrics HTTP server
	Port int `koanf:"port"`
}

// NotificationsConfig holds the notification hub settings
type NotificationsConfig struct {
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	PongTimeout    time.Duration `koanf:"pong_timeout"`
	MaxSubscribers int           `koanf:"max_subscribers"`
}

// LoadConfig loads configuration from file, environment variables, and defaults
// Priority: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), parserFor(configPath)); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return toml.Parser()
	}
}

// envKey maps HEARTBEAT_* variables to config keys
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	switch s {
	case "base_url":
		return "session.base_url"
	case "disconnection_status_codes":
		return "http_client.disconnection_status_codes"
	case "log_level":
		return "logging.level"
	case "user_agent":
		return "session.user_agent"
	default:
		// Double underscore is a literal underscore, single underscore a separator
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
	}
}

// defaultConfig returns a Config struct with default configuration values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIPort:         9095,
			ShutdownTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			BaseURL:      "http://localhost:8080/",
			ResourcePath: "api/auth/session",
			SignOutURL:   "/",
		},
		Heartbeat: HeartbeatConfig{
			AutoStart:            true,
			ActiveDelay:          DefaultActiveDelay,
			HiddenDelayFactor:    DefaultHiddenDelayFactor,
			MinReconnectTime:     DefaultMinReconnectTime,
			TimeoutReconnectTime: DefaultTimeoutReconnectTime,
			MaxReconnectTime:     DefaultMaxReconnectTime,
			ReconnectMultiplier:  DefaultReconnectMultiplier,
			CountdownInterval:    time.Second,
		},
		HTTPClient: HTTPClientConfig{
			Timeout:           30 * time.Second,
			IncludeNoResponse: true,
			MaxErrorBodyBytes: 4096,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/heartbeat.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9096,
		},
		Notifications: NotificationsConfig{
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
			MaxSubscribers: 32,
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.APIPort < 1 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port must be between 1 and 65535, got: %d", c.Server.APIPort)
	}

	if err := c.validateSessionConfig(); err != nil {
		return err
	}

	if err := c.validateHeartbeatConfig(); err != nil {
		return err
	}

	if err := c.validateHTTPClientConfig(); err != nil {
		return err
	}

	validStorageTypes := []string{"sqlite", "memory"}
	isValidType := false
	for _, t := range validStorageTypes {
		if c.Storage.Type == t {
			isValidType = true
			break
		}
	}
	if !isValidType {
		return fmt.Errorf("storage.type must be one of: sqlite, memory, got: %s", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required when storage.type is 'sqlite'")
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if strings.ToLower(c.Logging.Level) == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got: %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got: %d", c.Metrics.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.APIPort {
		return fmt.Errorf("metrics.port must differ from server.api_port (%d)", c.Server.APIPort)
	}

	if c.Notifications.PingInterval <= 0 || c.Notifications.PongTimeout <= c.Notifications.PingInterval {
		return fmt.Errorf("notifications.pong_timeout (%s) must be greater than notifications.ping_interval (%s)",
			c.Notifications.PongTimeout, c.Notifications.PingInterval)
	}

	return nil
}

func (c *Config) validateSessionConfig() error {
	if c.Session.BaseURL == "" {
		return fmt.Errorf("session.base_url is required")
	}
	u, err := url.Parse(c.Session.BaseURL)
	if err != nil {
		return fmt.Errorf("session.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("session.base_url must use http or https, got: %q", u.Scheme)
	}
	if strings.Trim(c.Session.ResourcePath, "/") == "" {
		return fmt.Errorf("session.resource_path is required")
	}
	return nil
}

func (c *Config) validateHeartbeatConfig() error {
	hb := c.Heartbeat

	if hb.ActiveDelay <= 0 {
		return fmt.Errorf("heartbeat.active_delay must be positive, got: %s", hb.ActiveDelay)
	}
	if hb.HiddenDelayFactor < 1 {
		return fmt.Errorf("heartbeat.hidden_delay_factor must be >= 1, got: %g", hb.HiddenDelayFactor)
	}
	if hb.MinReconnectTime <= 0 {
		return fmt.Errorf("heartbeat.min_reconnect_time must be positive, got: %s", hb.MinReconnectTime)
	}
	if hb.TimeoutReconnectTime < hb.MinReconnectTime {
		return fmt.Errorf("heartbeat.timeout_reconnect_time (%s) must be >= heartbeat.min_reconnect_time (%s)",
			hb.TimeoutReconnectTime, hb.MinReconnectTime)
	}
	if hb.MaxReconnectTime < hb.TimeoutReconnectTime {
		return fmt.Errorf("heartbeat.max_reconnect_time (%s) must be >= heartbeat.timeout_reconnect_time (%s)",
			hb.MaxReconnectTime, hb.TimeoutReconnectTime)
	}
	if hb.ReconnectMultiplier <= 1 {
		return fmt.Errorf("heartbeat.reconnect_multiplier must be > 1, got: %g", hb.ReconnectMultiplier)
	}
	if hb.CountdownInterval <= 0 {
		return fmt.Errorf("heartbeat.countdown_interval must be positive, got: %s", hb.CountdownInterval)
	}
	return nil
}

func (c *Config) validateHTTPClientConfig() error {
	if c.HTTPClient.Timeout <= 0 {
		return fmt.Errorf("http_client.timeout must be positive, got: %s", c.HTTPClient.Timeout)
	}
	if len(c.HTTPClient.DisconnectionStatusCodes) == 0 {
		return fmt.Errorf("http_client.disconnection_status_codes is required")
	}
	for _, code := range c.HTTPClient.DisconnectionStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("http_client.disconnection_status_codes contains invalid status: %d", code)
		}
	}
	if c.HTTPClient.MaxErrorBodyBytes < 0 {
		return fmt.Errorf("http_client.max_error_body_bytes must not be negative, got: %d", c.HTTPClient.MaxErrorBodyBytes)
	}
	return nil
}

// IsPersistentMode returns true if flags are persisted to disk
func (c *Config) IsPersistentMode() bool {
	return c.Storage.Type != "memory"
}

// SessionResourceURL returns the absolute URL of the session resource collection
func (c *Config) SessionResourceURL() (*url.URL, error) {
	base, err := url.Parse(c.Session.BaseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.Parse(strings.Trim(c.Session.ResourcePath, "/") + "/")
}
