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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DBName != "data.db" {
		t.Errorf("Expected default db_name 'data.db', got '%s'", cfg.DBName)
	}
	if cfg.DBPath() != "data.db" {
		t.Errorf("Expected default DBPath 'data.db', got '%s'", cfg.DBPath())
	}
	if cfg.EncryptionEnabled {
		t.Error("Expected encryption disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.OutputFormat != "csv" || cfg.InputEncoding != "utf8" {
		t.Errorf("Expected csv/utf8 defaults, got %s/%s", cfg.OutputFormat, cfg.InputEncoding)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join("var", "heapdb")

	if want := filepath.Join("var", "heapdb", "data.db"); cfg.DBPath() != want {
		t.Errorf("Expected DBPath %s, got %s", want, cfg.DBPath())
	}
	if want := filepath.Join("var", "heapdb", "data.db.Population"); cfg.IndexPath("Population") != want {
		t.Errorf("Expected IndexPath %s, got %s", want, cfg.IndexPath("Population"))
	}
	if !strings.HasSuffix(cfg.SchemaPath(), "data.db.schema") {
		t.Errorf("Unexpected SchemaPath %s", cfg.SchemaPath())
	}
}

func TestPassphrase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EncryptionPassphrase = "secret"
	if cfg.Passphrase() != "" {
		t.Error("Expected no passphrase while encryption is disabled")
	}
	cfg.EncryptionEnabled = true
	if cfg.Passphrase() != "secret" {
		t.Errorf("Expected passphrase 'secret', got '%s'", cfg.Passphrase())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default", func(*Config) {}, false},
		{"empty db_name", func(c *Config) { c.DBName = "" }, true},
		{"db_name with separator", func(c *Config) { c.DBName = filepath.Join("a", "b.db") }, true},
		{"negative pool size", func(c *Config) { c.BufferPoolSize = -1 }, true},
		{"latin1 input", func(c *Config) { c.InputEncoding = "LATIN1" }, false},
		{"unknown input encoding", func(c *Config) { c.InputEncoding = "ebcdic" }, true},
		{"json output", func(c *Config) { c.OutputFormat = "json" }, false},
		{"unknown output format", func(c *Config) { c.OutputFormat = "xml" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, true},
		{"metrics without addr", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `# Test configuration
data_dir = "/tmp/heapdb"
db_name = 'cities.db'
buffer_pool_size = 512
index_column = "Population"   # indexed by the loader
collation = "sv"
input_encoding = "latin1"
output_format = "json"
log_level = "debug"
log_json = true
metrics_enabled = 1
metrics_addr = ":9000"
some_future_key = "ignored"
`

	configPath := filepath.Join(tmpDir, "heapdb.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.DBPath() != filepath.Join("/tmp/heapdb", "cities.db") {
		t.Errorf("Expected DBPath '/tmp/heapdb/cities.db', got '%s'", cfg.DBPath())
	}
	if cfg.BufferPoolSize != 512 {
		t.Errorf("Expected buffer_pool_size 512, got %d", cfg.BufferPoolSize)
	}
	if cfg.IndexColumn != "Population" || cfg.Collation != "sv" {
		t.Errorf("Expected index Population/sv, got %s/%s", cfg.IndexColumn, cfg.Collation)
	}
	if cfg.InputEncoding != "latin1" || cfg.OutputFormat != "json" {
		t.Errorf("Expected latin1/json, got %s/%s", cfg.InputEncoding, cfg.OutputFormat)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Errorf("Expected debug JSON logging, got %s/%v", cfg.LogLevel, cfg.LogJSON)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9000" {
		t.Errorf("Expected metrics on :9000, got %+v", cfg.Metrics)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	mgr := NewManager()
	if err := mgr.LoadFromFile(filepath.Join(tmpDir, "missing.conf")); err == nil {
		t.Error("Expected error for missing file")
	}

	for _, content := range []string{"no equals sign\n", "buffer_pool_size = lots\n"} {
		path := filepath.Join(tmpDir, "bad.conf")
		os.WriteFile(path, []byte(content), 0644)
		if err := mgr.LoadFromFile(path); err == nil {
			t.Errorf("Expected parse error for %q", content)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvDataDir, "/data")
	t.Setenv(EnvBufferPoolSize, "64")
	t.Setenv(EnvIndexColumn, "Country")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvMetricsEnabled, "true")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.DataDir != "/data" {
		t.Errorf("Expected data_dir '/data' from env, got '%s'", cfg.DataDir)
	}
	if cfg.BufferPoolSize != 64 {
		t.Errorf("Expected buffer_pool_size 64 from env, got %d", cfg.BufferPoolSize)
	}
	if cfg.IndexColumn != "Country" {
		t.Errorf("Expected index_column 'Country' from env, got '%s'", cfg.IndexColumn)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Errorf("Expected debug JSON logging from env, got %s/%v", cfg.LogLevel, cfg.LogJSON)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled from env")
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `db_name = "file.db"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "heapdb.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv(EnvDBName, "env.db")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.DBName != "env.db" {
		t.Errorf("Expected db_name 'env.db' (env override), got '%s'", cfg.DBName)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info' from file, got '%s'", cfg.LogLevel)
	}
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.conf")
	os.WriteFile(configPath, []byte("collation = \"nocase\"\n"), 0644)
	t.Setenv(EnvConfigFile, configPath)

	if FindConfigFile() != configPath {
		t.Fatalf("Expected FindConfigFile to return %s", configPath)
	}
	mgr := NewManager()
	if err := mgr.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if mgr.Get().Collation != "nocase" {
		t.Errorf("Expected collation 'nocase', got '%s'", mgr.Get().Collation)
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBName = "saved.db"
	cfg.IndexColumn = "Population"
	cfg.EncryptionEnabled = true
	cfg.EncryptionPassphrase = "never-written"

	configPath := filepath.Join(t.TempDir(), "subdir", "heapdb.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if strings.Contains(string(data), "never-written") {
		t.Error("Passphrase must not be written to the config file")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	loaded := mgr.Get()
	if loaded.DBName != "saved.db" || loaded.IndexColumn != "Population" || !loaded.EncryptionEnabled {
		t.Errorf("Saved config did not round trip: %+v", loaded)
	}
}

func TestReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "heapdb.conf")
	if err := os.WriteFile(configPath, []byte("buffer_pool_size = 100\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if mgr.Get().BufferPoolSize != 100 {
		t.Errorf("Expected initial pool size 100, got %d", mgr.Get().BufferPoolSize)
	}

	var reloaded *Config
	mgr.OnReload(func(c *Config) {
		reloaded = c
	})

	if err := os.WriteFile(configPath, []byte("buffer_pool_size = 200\nlog_level = debug\n"), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.BufferPoolSize != 200 || cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded 200/debug, got %d/%s", cfg.BufferPoolSize, cfg.LogLevel)
	}
	if reloaded == nil || reloaded.BufferPoolSize != 200 {
		t.Error("Reload callback was not called with the new config")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Fatal("Global() returned nil")
	}
	if mgr != Global() {
		t.Error("Global() returned different instances")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	mgr := NewManager()
	cfg := mgr.Get()
	cfg.DBName = "changed.db"
	if mgr.Get().DBName != "data.db" {
		t.Error("Modifying the result of Get() changed the manager")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IndexColumn = "Population"
	str := cfg.String()

	for _, want := range []string{"DB Path:", "data.db", "Index Column:", "Population", "Encryption:"} {
		if !strings.Contains(str, want) {
			t.Errorf("String() missing %q", want)
		}
	}
}
