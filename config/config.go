// Package config loads service configuration from a YAML file with
// environment overrides and validates it on startup so misconfiguration
// fails fast.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied for keys absent from the file and the environment.
const (
	DefaultAddr        = ":8000"
	DefaultDBRootDir   = "./dbs"
	DefaultMaxFileSize = 100 * 1024 * 1024
	DefaultMaxPageSize = 1000
	DefaultSniffWindow = 4096
)

// Config holds all service settings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// DBRootDir is where database files and profiling reports live.
	DBRootDir string `yaml:"db_root_dir"`
	// MaxFileSize is the download ceiling in bytes, enforced while streaming.
	MaxFileSize int64 `yaml:"max_file_size"`
	// MaxPageSize caps the _size and _offset query parameters.
	MaxPageSize int `yaml:"max_page_size"`
	// SniffWindow is how many bytes the delimiter sniffer inspects.
	SniffWindow int `yaml:"sniff_window"`
	// CacheEnabled reuses an existing database instead of refetching.
	CacheEnabled bool `yaml:"cache_enabled"`
	// ReferrersFilter, when non-empty, only serves requests whose Referer
	// matches one of these domains.
	ReferrersFilter []string `yaml:"referrers_filter"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:        DefaultAddr,
		DBRootDir:   DefaultDBRootDir,
		MaxFileSize: DefaultMaxFileSize,
		MaxPageSize: DefaultMaxPageSize,
		SniffWindow: DefaultSniffWindow,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from CSVAPI_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CSVAPI_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CSVAPI_DB_ROOT_DIR"); v != "" {
		c.DBRootDir = v
	}
	if v := os.Getenv("CSVAPI_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxFileSize = n
		}
	}
	if v := os.Getenv("CSVAPI_MAX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPageSize = n
		}
	}
	if v := os.Getenv("CSVAPI_CACHE_ENABLED"); v != "" {
		c.CacheEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("CSVAPI_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CSVAPI_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// validate rejects settings the service cannot run with.
func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DBRootDir == "" {
		return errors.New("db_root_dir is required")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("max_page_size must be positive, got %d", c.MaxPageSize)
	}
	if c.SniffWindow <= 0 {
		return fmt.Errorf("sniff_window must be positive, got %d", c.SniffWindow)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
