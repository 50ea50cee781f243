// Package config provides YAML-based configuration for the console.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port              int    `yaml:"port"`
	BindAddress       string `yaml:"bind_address"`
	EnableCORS        bool   `yaml:"enable_cors"`
	AllowOrigins      string `yaml:"allow_origins"`
	ReadTimeout       int    `yaml:"read_timeout_seconds"`
	WriteTimeout      int    `yaml:"write_timeout_seconds"`
	IdleTimeout       int    `yaml:"idle_timeout_seconds"`
	BodyLimit         string `yaml:"body_limit"`
	EnableCompression bool   `yaml:"enable_compression"`
	CompressionLevel  int    `yaml:"compression_level"`
}

// BackendConfig points the console at the analysis backend.
type BackendConfig struct {
	URL string `yaml:"url"`
	// TimeoutSeconds bounds each backend request. Zero disables the timeout.
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory      string `yaml:"data_directory"`
	DownloadsDirectory string `yaml:"downloads_directory"`
	// HistoryDatabase is the DuckDB file of the question history. Empty keeps
	// the history in memory.
	HistoryDatabase string `yaml:"history_database"`
}

// SessionConfig contains console session settings
type SessionConfig struct {
	MaxSessions            int `yaml:"max_sessions"`
	TimeoutMinutes         int `yaml:"timeout_minutes"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	HistoryLimit           int `yaml:"history_limit"`
	PushIntervalMillis     int `yaml:"push_interval_ms"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level                string `yaml:"level"`
	Format               string `yaml:"format"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:              8090,
			BindAddress:       "0.0.0.0",
			EnableCORS:        true,
			AllowOrigins:      "*",
			ReadTimeout:       60,
			WriteTimeout:      120,
			IdleTimeout:       120,
			BodyLimit:         "64M",
			EnableCompression: true,
			CompressionLevel:  5,
		},
		Backend: BackendConfig{
			URL: "http://127.0.0.1:5000",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			DownloadsDirectory: "./data/downloads",
			HistoryDatabase:    "./data/history.duckdb",
		},
		Session: SessionConfig{
			MaxSessions:            200,
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
			HistoryLimit:           10,
			PushIntervalMillis:     250,
		},
		Log: LogConfig{
			Level:                "info",
			Format:               "text",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# ADA console configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports settings the console cannot run with.
func (c *AppConfig) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}
	return nil
}

// FromEnvironment returns the defaults with environment overrides applied,
// for commands run without a config file.
func FromEnvironment() (*AppConfig, error) {
	config := DefaultConfig()
	config.applyEnvironmentOverrides()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.DownloadsDirectory = filepath.Join(dataDir, "downloads")
		c.Storage.HistoryDatabase = filepath.Join(dataDir, "history.duckdb")
	}
	if url := os.Getenv("ADA_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if email := os.Getenv("ADA_BACKEND_EMAIL"); email != "" {
		c.Backend.Email = email
	}
	if password := os.Getenv("ADA_BACKEND_PASSWORD"); password != "" {
		c.Backend.Password = password
	}
	if level := os.Getenv("ADA_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.DownloadsDirectory)
	resolve(&c.Storage.HistoryDatabase)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// BackendTimeout returns the per-request backend timeout.
func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns the session sweep interval.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Session.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// PushInterval returns how often websocket clients are checked for changes.
func (c *AppConfig) PushInterval() time.Duration {
	if c.Session.PushIntervalMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.Session.PushIntervalMillis) * time.Millisecond
}

// HasCredentials reports whether the console should log in to the backend.
func (c *AppConfig) HasCredentials() bool {
	return c.Backend.Email != "" && c.Backend.Password != ""
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.DownloadsDirectory,
	}
	if c.Storage.HistoryDatabase != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.HistoryDatabase))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
