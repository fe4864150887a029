// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads the config path from.
const EnvVar = "MTXCHAT_CONFIG"

// Store backend names accepted in store.backend.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
)

// Config is the master configuration for mtxchat.
type Config struct {
	// Store selects and locates the persistent key/value backend.
	Store StoreConfig `yaml:"store"`

	// Server controls how homeserver URLs are formed.
	Server ServerConfig `yaml:"server"`

	// Sync configures the long-poll loop.
	Sync SyncConfig `yaml:"sync"`

	// Network describes connectivity assumptions.
	Network NetworkConfig `yaml:"network"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig configures the key/value store.
type StoreConfig struct {
	// Backend is "dir" (one file per key) or "sqlite".
	// Default: dir
	Backend string `yaml:"backend"`

	// Root is the directory holding the store. The dir backend keeps
	// one subdirectory per namespace under Root; the sqlite backend
	// keeps Root/<namespace>.db.
	// Default: ${HOME}/.local/share/mtxchat
	Root string `yaml:"root"`

	// Namespace isolates this client's keys from other users of Root.
	// Default: mtxchat
	Namespace string `yaml:"namespace"`
}

// ServerConfig controls homeserver addressing.
type ServerConfig struct {
	// Scheme is prepended to the domain to form the server URL.
	// "http" is useful only for local test homeservers.
	// Default: https
	Scheme string `yaml:"scheme"`

	// DefaultDomain is used when user_domain is unset.
	// Default: matrix.org
	DefaultDomain string `yaml:"default_domain"`
}

// SyncConfig configures the sync loop.
type SyncConfig struct {
	// Timeout is the server-side long-poll timeout for one /sync.
	// Default: 60s
	Timeout string `yaml:"timeout"`

	// FilterTemplate is an optional path to a JSONC filter definition
	// merged into every filter this client creates.
	FilterTemplate string `yaml:"filter_template"`

	// RetryInterval is how long `listen` waits before restarting a loop
	// that stopped on a failed cycle.
	// Default: 30s
	RetryInterval string `yaml:"retry_interval"`
}

// NetworkConfig describes connectivity.
type NetworkConfig struct {
	// Hosted declares that the network is always available, so the
	// loop never waits for a connectivity signal before restarting.
	// Default: true
	Hosted bool `yaml:"hosted"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for the /metrics HTTP endpoint. Empty
	// disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration. The config file is
// optional for mtxchat: these values apply when neither --config nor
// MTXCHAT_CONFIG is given, and form the base a loaded file overrides.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Store: StoreConfig{
			Backend:   BackendDir,
			Root:      filepath.Join(homeDir, ".local", "share", "mtxchat"),
			Namespace: "mtxchat",
		},
		Server: ServerConfig{
			Scheme:        "https",
			DefaultDomain: "matrix.org",
		},
		Sync: SyncConfig{
			Timeout:       "60s",
			RetryInterval: "30s",
		},
		Network: NetworkConfig{Hosted: true},
		Log:     LogConfig{Level: "info"},
	}
}

// Load loads configuration from the file named by MTXCHAT_CONFIG.
// Fails if the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your mtxchat.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of [Default], then
// expands ${HOME}, ${MTXCHAT_ROOT} and ${VAR:-default} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Store.Root = expandVars(c.Store.Root, vars)
	vars["MTXCHAT_ROOT"] = c.Store.Root

	c.Sync.FilterTemplate = expandVars(c.Sync.FilterTemplate, vars)
	c.Metrics.Listen = expandVars(c.Metrics.Listen, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Provided vars take
// precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Backend != BackendDir && c.Store.Backend != BackendSQLite {
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", BackendDir, BackendSQLite, c.Store.Backend))
	}
	if c.Store.Root == "" {
		errs = append(errs, fmt.Errorf("store.root is required"))
	}
	if c.Store.Namespace == "" {
		errs = append(errs, fmt.Errorf("store.namespace is required"))
	}
	if c.Server.Scheme != "https" && c.Server.Scheme != "http" {
		errs = append(errs, fmt.Errorf("server.scheme must be https or http, got %q", c.Server.Scheme))
	}
	if c.Server.DefaultDomain == "" {
		errs = append(errs, fmt.Errorf("server.default_domain is required"))
	}
	if _, err := parsePositiveDuration(c.Sync.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("sync.timeout: %w", err))
	}
	if _, err := parsePositiveDuration(c.Sync.RetryInterval); err != nil {
		errs = append(errs, fmt.Errorf("sync.retry_interval: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SyncTimeout returns the parsed long-poll timeout, or 60s if the
// value does not parse. Call Validate first to surface bad values.
func (c *Config) SyncTimeout() time.Duration {
	d, err := parsePositiveDuration(c.Sync.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// SyncRetryInterval returns the parsed retry interval, or 30s if the
// value does not parse.
func (c *Config) SyncRetryInterval() time.Duration {
	d, err := parsePositiveDuration(c.Sync.RetryInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LogLevel maps log.level to an slog.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EnsureStoreRoot creates the store root directory if it does not exist.
func (c *Config) EnsureStoreRoot() error {
	if err := os.MkdirAll(c.Store.Root, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Store.Root, err)
	}
	return nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return d, nil
}
