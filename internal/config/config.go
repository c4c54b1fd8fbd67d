/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides configuration management for the HeapDB tools.

The configuration system supports multiple sources with clear precedence:
 1. Command-line flags (highest priority)
 2. Environment variables
 3. Configuration file
 4. Default values (lowest priority)

Configuration File Format:
The configuration file uses a TOML subset: one "key = value" per line,
"#" comments, optional quotes around strings.

Example configuration file:

	# HeapDB Configuration
	data_dir = "/var/lib/heapdb"
	db_name = "data.db"
	buffer_pool_size = 0  # 0 = auto-size based on available memory
	index_column = "Population"
	collation = "en"
	input_encoding = "latin1"
	output_format = "csv"
	encryption_enabled = false
	log_level = "info"
	log_json = false
	metrics_enabled = false
	metrics_addr = "127.0.0.1:9464"

Data-at-Rest Encryption:
Encryption is disabled by default. When it is enabled the passphrase must
come from HEAPDB_ENCRYPTION_PASSPHRASE or an interactive prompt; it is
never read from or written to the configuration file. A file created
with encryption can only be opened with the same passphrase.

Environment Variables:
  - HEAPDB_DATA_DIR: Directory holding table and index files
  - HEAPDB_DB_NAME: Table file name inside the data directory
  - HEAPDB_BUFFER_POOL_SIZE: Buffer pool size in pages (0 = auto)
  - HEAPDB_INDEX_COLUMN: Column indexed by the loader
  - HEAPDB_COLLATION: Collation for varchar index keys
  - HEAPDB_INPUT_ENCODING: Loader input encoding (utf8, latin1, windows1252)
  - HEAPDB_OUTPUT_FORMAT: Dump output format (csv, json)
  - HEAPDB_ENCRYPTION_ENABLED: Enable data-at-rest encryption (true/false)
  - HEAPDB_ENCRYPTION_PASSPHRASE: Passphrase for encryption key derivation
  - HEAPDB_LOG_LEVEL: Log level (debug, info, warn, error)
  - HEAPDB_LOG_JSON: Enable JSON logging (true/false)
  - HEAPDB_METRICS_ENABLED: Serve Prometheus metrics from the shell
  - HEAPDB_METRICS_ADDR: Listen address for the metrics endpoint
  - HEAPDB_CONFIG_FILE: Path to configuration file
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names for configuration.
const (
	EnvDataDir              = "HEAPDB_DATA_DIR"
	EnvDBName               = "HEAPDB_DB_NAME"
	EnvBufferPoolSize       = "HEAPDB_BUFFER_POOL_SIZE"
	EnvIndexColumn          = "HEAPDB_INDEX_COLUMN"
	EnvCollation            = "HEAPDB_COLLATION"
	EnvInputEncoding        = "HEAPDB_INPUT_ENCODING"
	EnvOutputFormat         = "HEAPDB_OUTPUT_FORMAT"
	EnvEncryptionEnabled    = "HEAPDB_ENCRYPTION_ENABLED"
	EnvEncryptionPassphrase = "HEAPDB_ENCRYPTION_PASSPHRASE"
	EnvLogLevel             = "HEAPDB_LOG_LEVEL"
	EnvLogJSON              = "HEAPDB_LOG_JSON"
	EnvMetricsEnabled       = "HEAPDB_METRICS_ENABLED"
	EnvMetricsAddr          = "HEAPDB_METRICS_ADDR"
	EnvConfigFile           = "HEAPDB_CONFIG_FILE"
)

// Default configuration file paths (searched in order).
var DefaultConfigPaths = []string{
	"/etc/heapdb/heapdb.conf",
	"$HOME/.config/heapdb/heapdb.conf",
	"./heapdb.conf",
}

// Accepted values for the enumerated settings.
var (
	InputEncodings = []string{"utf8", "latin1", "windows1252"}
	OutputFormats  = []string{"csv", "json"}
)

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"metrics_enabled" json:"metrics_enabled"`
	Addr    string `toml:"metrics_addr" json:"metrics_addr"`
}

// Config holds all configuration values for HeapDB.
type Config struct {
	// Storage configuration
	DataDir        string `toml:"data_dir" json:"data_dir"`
	DBName         string `toml:"db_name" json:"db_name"`
	BufferPoolSize int    `toml:"buffer_pool_size" json:"buffer_pool_size"` // pages, 0 = auto

	// Index configuration
	IndexColumn string `toml:"index_column" json:"index_column"` // empty = no index
	Collation   string `toml:"collation" json:"collation"`

	// Loader and dumper
	InputEncoding string `toml:"input_encoding" json:"input_encoding"`
	OutputFormat  string `toml:"output_format" json:"output_format"`

	// Encryption configuration for data at rest
	EncryptionEnabled    bool   `toml:"encryption_enabled" json:"encryption_enabled"`
	EncryptionPassphrase string `toml:"-" json:"-"` // Not persisted to file for security

	// Logging configuration
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"` // Path to loaded config file
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           ".",
		DBName:            "data.db",
		BufferPoolSize:    0,
		IndexColumn:       "",
		Collation:         "binary",
		InputEncoding:     "utf8",
		OutputFormat:      "csv",
		EncryptionEnabled: false,
		LogLevel:          "info",
		LogJSON:           false,
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// DBPath returns the path of the table file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBName)
}

// IndexPath returns the path of the index file for column, next to the
// table file.
func (c *Config) IndexPath(column string) string {
	return c.DBPath() + "." + column
}

// SchemaPath returns the path of the schema file written by the loader.
func (c *Config) SchemaPath() string {
	return c.DBPath() + ".schema"
}

// Passphrase returns the encryption passphrase, or "" when encryption is
// disabled.
func (c *Config) Passphrase() string {
	if !c.EncryptionEnabled {
		return ""
	}
	return c.EncryptionPassphrase
}

// Manager handles configuration loading, validation, and access.
type Manager struct {
	config *Config
	mu     sync.RWMutex

	// Callbacks for configuration changes
	onReload []func(*Config)
}

// NewManager creates a new configuration manager with default values.
func NewManager() *Manager {
	return &Manager{
		config:   DefaultConfig(),
		onReload: make([]func(*Config), 0),
	}
}

// Global manager instance for convenience.
var globalManager = NewManager()

// Global returns the global configuration manager.
func Global() *Manager {
	return globalManager
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Set updates the configuration.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// OnReload registers a callback to be called when configuration is reloaded.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

func (m *Manager) notifyReload() {
	m.mu.RLock()
	callbacks := make([]func(*Config), len(m.onReload))
	copy(callbacks, m.onReload)
	cfg := m.config
	m.mu.RUnlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.DBName == "" {
		errs = append(errs, "db_name cannot be empty")
	}
	if strings.ContainsRune(c.DBName, filepath.Separator) {
		errs = append(errs, fmt.Sprintf("db_name must be a file name, not a path: %s", c.DBName))
	}
	if c.BufferPoolSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid buffer_pool_size: %d (must be >= 0)", c.BufferPoolSize))
	}
	if !oneOf(c.InputEncoding, InputEncodings) {
		errs = append(errs, fmt.Sprintf("invalid input_encoding: %s (must be one of %s)", c.InputEncoding, strings.Join(InputEncodings, ", ")))
	}
	if !oneOf(c.OutputFormat, OutputFormats) {
		errs = append(errs, fmt.Sprintf("invalid output_format: %s (must be one of %s)", c.OutputFormat, strings.Join(OutputFormats, ", ")))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics_addr is required when metrics are enabled")
	}

	// The passphrase is checked by the commands, which can prompt for it.

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoadFromFile loads configuration from a TOML file.
func (m *Manager) LoadFromFile(path string) error {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := parseTOML(string(data), cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

// LoadFromEnv loads configuration from environment variables.
// This merges with existing configuration (env vars override file values).
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvDBName); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv(EnvBufferPoolSize); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.BufferPoolSize = size
		}
	}
	if v := os.Getenv(EnvIndexColumn); v != "" {
		cfg.IndexColumn = v
	}
	if v := os.Getenv(EnvCollation); v != "" {
		cfg.Collation = v
	}
	if v := os.Getenv(EnvInputEncoding); v != "" {
		cfg.InputEncoding = v
	}
	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.OutputFormat = v
	}
	if v := os.Getenv(EnvEncryptionEnabled); v != "" {
		cfg.EncryptionEnabled = parseBool(v)
	}
	if v := os.Getenv(EnvEncryptionPassphrase); v != "" {
		cfg.EncryptionPassphrase = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}

	m.Set(cfg)
}

// FindConfigFile searches for a configuration file in default locations.
// Returns the path to the first file found, or empty string if none found.
func FindConfigFile() string {
	if envPath := os.Getenv(EnvConfigFile); envPath != "" {
		if _, err := os.Stat(os.ExpandEnv(envPath)); err == nil {
			return os.ExpandEnv(envPath)
		}
	}

	for _, path := range DefaultConfigPaths {
		expandedPath := os.ExpandEnv(path)
		if _, err := os.Stat(expandedPath); err == nil {
			return expandedPath
		}
	}

	return ""
}

// Load loads configuration from all sources with proper precedence.
// Order: defaults -> config file -> environment variables
// Command-line flags should be applied after calling this function.
func (m *Manager) Load() error {
	if configPath := FindConfigFile(); configPath != "" {
		if err := m.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	m.LoadFromEnv()
	return nil
}

// Reload reloads configuration from file and environment.
func (m *Manager) Reload() error {
	configPath := m.Get().ConfigFile
	if configPath == "" {
		configPath = FindConfigFile()
	}

	m.Set(DefaultConfig())
	if configPath != "" {
		if err := m.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	m.LoadFromEnv()
	m.notifyReload()
	return nil
}

// parseTOML is a simple TOML parser for our configuration format.
// It handles the subset of TOML we need without external dependencies.
func parseTOML(data string, cfg *Config) error {
	lines := strings.Split(data, "\n")

	for lineNum, line := range lines {
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("line %d: invalid syntax: %s", lineNum+1, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if err := applyConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNum+1, err)
		}
	}

	return nil
}

// applyConfigValue applies a key-value pair to the configuration.
func applyConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "data_dir":
		cfg.DataDir = value
	case "db_name":
		cfg.DBName = value
	case "buffer_pool_size":
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid buffer_pool_size value: %s", value)
		}
		cfg.BufferPoolSize = size
	case "index_column":
		cfg.IndexColumn = value
	case "collation":
		cfg.Collation = value
	case "input_encoding":
		cfg.InputEncoding = value
	case "output_format":
		cfg.OutputFormat = value
	case "encryption_enabled":
		cfg.EncryptionEnabled = parseBool(value)
	case "log_level":
		cfg.LogLevel = value
	case "log_json":
		cfg.LogJSON = parseBool(value)
	case "metrics_enabled":
		cfg.Metrics.Enabled = parseBool(value)
	case "metrics_addr":
		cfg.Metrics.Addr = value
	default:
		// Ignore unknown keys for forward compatibility
	}

	return nil
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("HeapDB Configuration:\n")
	sb.WriteString(fmt.Sprintf("  DB Path:          %s\n", c.DBPath()))
	sb.WriteString(fmt.Sprintf("  Buffer Pool:      %d pages\n", c.BufferPoolSize))
	if c.IndexColumn != "" {
		sb.WriteString(fmt.Sprintf("  Index Column:     %s\n", c.IndexColumn))
	}
	sb.WriteString(fmt.Sprintf("  Collation:        %s\n", c.Collation))
	sb.WriteString(fmt.Sprintf("  Input Encoding:   %s\n", c.InputEncoding))
	sb.WriteString(fmt.Sprintf("  Output Format:    %s\n", c.OutputFormat))
	sb.WriteString(fmt.Sprintf("  Encryption:       %v\n", c.EncryptionEnabled))
	sb.WriteString(fmt.Sprintf("  Log Level:        %s\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("  Log JSON:         %v\n", c.LogJSON))
	if c.Metrics.Enabled {
		sb.WriteString(fmt.Sprintf("  Metrics:          %s\n", c.Metrics.Addr))
	}
	if c.ConfigFile != "" {
		sb.WriteString(fmt.Sprintf("  Config File:      %s\n", c.ConfigFile))
	}
	return sb.String()
}

// IsEncryptionEnabled returns true if data-at-rest encryption is enabled.
func (c *Config) IsEncryptionEnabled() bool {
	return c.EncryptionEnabled
}

// ToTOML returns the configuration as a TOML string.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	sb.WriteString("# HeapDB Configuration File\n\n")
	sb.WriteString("# Storage\n")
	sb.WriteString(fmt.Sprintf("data_dir = \"%s\"\n", c.DataDir))
	sb.WriteString(fmt.Sprintf("db_name = \"%s\"\n", c.DBName))
	sb.WriteString(fmt.Sprintf("buffer_pool_size = %d\n\n", c.BufferPoolSize))
	sb.WriteString("# Index\n")
	sb.WriteString(fmt.Sprintf("index_column = \"%s\"\n", c.IndexColumn))
	sb.WriteString(fmt.Sprintf("collation = \"%s\"\n\n", c.Collation))
	sb.WriteString("# Loader and dumper\n")
	sb.WriteString(fmt.Sprintf("input_encoding = \"%s\"\n", c.InputEncoding))
	sb.WriteString(fmt.Sprintf("output_format = \"%s\"\n\n", c.OutputFormat))
	sb.WriteString("# Data-at-rest encryption\n")
	sb.WriteString("# When enabled, set HEAPDB_ENCRYPTION_PASSPHRASE or enter it when prompted\n")
	sb.WriteString(fmt.Sprintf("encryption_enabled = %v\n\n", c.EncryptionEnabled))
	sb.WriteString("# Logging\n")
	sb.WriteString(fmt.Sprintf("log_level = \"%s\"\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("log_json = %v\n\n", c.LogJSON))
	sb.WriteString("# Metrics\n")
	sb.WriteString(fmt.Sprintf("metrics_enabled = %v\n", c.Metrics.Enabled))
	sb.WriteString(fmt.Sprintf("metrics_addr = \"%s\"\n", c.Metrics.Addr))
	return sb.String()
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	path = os.ExpandEnv(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
