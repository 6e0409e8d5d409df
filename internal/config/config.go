// Package config provides YAML-based configuration loading for the FlashFood
// sync daemon.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level ffsync configuration, loaded from ffsync.yaml.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Driver    DriverConfig    `yaml:"driver"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// GatewayConfig holds the realtime gateway endpoint. Namespace paths
// (/chat, /orders, /locations) are appended to the base URL.
type GatewayConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig identifies the local user against the gateway.
type AuthConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// ReconnectConfig tunes the transport reconnect loop.
type ReconnectConfig struct {
	BaseDelaySec int `yaml:"base_delay_sec"`
	MaxDelaySec  int `yaml:"max_delay_sec"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TrackingConfig holds the REST collaborator endpoint for authoritative
// order snapshots and an optional periodic refresh schedule.
type TrackingConfig struct {
	RESTBaseURL string `yaml:"rest_base_url"`
	RefreshCron string `yaml:"refresh_cron"` // 5-field cron; empty disables periodic refresh
}

// DriverConfig tunes the driver location subscription.
type DriverConfig struct {
	ArrivalThresholdMin int `yaml:"arrival_threshold_min"`
	InactivityWindowSec int `yaml:"inactivity_window_sec"`
}

// StorageConfig selects the local mirror database. Driver "sqlite" uses
// Path; driver "mysql" uses Host/Port/Database.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// DashboardConfig holds the local dashboard server settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// NotifyConfig controls desktop notifications for arrival and hand-off alerts.
type NotifyConfig struct {
	Command string `yaml:"command"` // shell template, e.g. "notify-send 'FlashFood' '{{.Body}}'"
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Reconnect.BaseDelaySec == 0 {
		c.Reconnect.BaseDelaySec = 2
	}
	if c.Reconnect.MaxDelaySec == 0 {
		c.Reconnect.MaxDelaySec = 120
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = 10
	}
	if c.Driver.ArrivalThresholdMin == 0 {
		c.Driver.ArrivalThresholdMin = 5
	}
	if c.Driver.InactivityWindowSec == 0 {
		c.Driver.InactivityWindowSec = 120
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "ffsync.db"
	}
	if c.Storage.Driver == "mysql" {
		if c.Storage.Host == "" {
			c.Storage.Host = "127.0.0.1"
		}
		if c.Storage.Port == 0 {
			c.Storage.Port = 3306
		}
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}
	if c.Tracking.RESTBaseURL == "" && c.Gateway.URL != "" {
		c.Tracking.RESTBaseURL = httpBase(c.Gateway.URL)
	}
	if c.Auth.Token == "" {
		c.Auth.Token = os.Getenv("FFSYNC_TOKEN")
	}
}

// httpBase derives an http(s) base URL from a ws(s) gateway URL.
func httpBase(url string) string {
	url = strings.Replace(url, "wss://", "https://", 1)
	return strings.Replace(url, "ws://", "http://", 1)
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Gateway.URL == "" {
		errs = append(errs, "gateway.url is required")
	}
	if c.Auth.UserID == "" {
		errs = append(errs, "auth.user_id is required")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required for sqlite")
		}
	case "mysql":
		if c.Storage.Database == "" {
			errs = append(errs, "storage.database is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite, mysql)", c.Storage.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
