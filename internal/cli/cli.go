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
Package cli holds the flag and startup handling shared by the HeapDB
commands.

Every command loads configuration in the same order: defaults, the
config file, HEAPDB_* environment variables, then the flags the user
actually set. Logging is configured from the result and the encryption
passphrase is resolved from the flag, the environment or a prompt.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"heapdb/internal/config"
	herrors "heapdb/internal/errors"
	"heapdb/internal/logging"
	"heapdb/internal/storage/heap"
)

// ErrPassphraseRequired is returned when encryption is enabled and no
// passphrase can be obtained.
var ErrPassphraseRequired = errors.New("encryption is enabled but no passphrase was given")

// Common holds the flags every command accepts.
type Common struct {
	ConfigFile       string
	DataDir          string
	DBName           string
	PoolSize         int
	LogLevel         string
	LogJSON          bool
	Passphrase       string
	PromptPassphrase bool
}

// Register adds the common flags to fs.
func (c *Common) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", "", "Configuration file path")
	fs.StringVar(&c.DataDir, "d", "", "Data directory")
	fs.StringVar(&c.DBName, "db", "", "Table file name inside the data directory")
	fs.IntVar(&c.PoolSize, "pool", 0, "Buffer pool size in pages (0 = auto)")
	fs.StringVar(&c.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&c.LogJSON, "log-json", false, "Log in JSON format")
	fs.StringVar(&c.Passphrase, "passphrase", "", "Encryption passphrase (enables encryption)")
	fs.BoolVar(&c.PromptPassphrase, "prompt-passphrase", false, "Prompt for the encryption passphrase")
}

// Load builds the configuration. fs must already be parsed; only flags
// set on the command line override the file and environment.
func (c *Common) Load(fs *flag.FlagSet) (*config.Config, error) {
	mgr := config.NewManager()
	if c.ConfigFile != "" {
		if err := mgr.LoadFromFile(c.ConfigFile); err != nil {
			return nil, err
		}
		mgr.LoadFromEnv()
	} else if err := mgr.Load(); err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			cfg.DataDir = c.DataDir
		case "db":
			cfg.DBName = c.DBName
		case "pool":
			cfg.BufferPoolSize = c.PoolSize
		case "log-level":
			cfg.LogLevel = c.LogLevel
		case "log-json":
			cfg.LogJSON = c.LogJSON
		case "passphrase":
			cfg.EncryptionEnabled = true
			cfg.EncryptionPassphrase = c.Passphrase
		case "prompt-passphrase":
			cfg.EncryptionEnabled = cfg.EncryptionEnabled || c.PromptPassphrase
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ConfigureLogging(cfg)

	if cfg.EncryptionEnabled && cfg.EncryptionPassphrase == "" {
		if !c.PromptPassphrase && !IsTerminal(os.Stdin) {
			return nil, ErrPassphraseRequired
		}
		pass, err := PromptPassphrase("Encryption passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		if pass == "" {
			return nil, ErrPassphraseRequired
		}
		cfg.EncryptionPassphrase = pass
	}
	return cfg, nil
}

// ConfigureLogging applies the log settings of cfg. Logs go to stderr.
func ConfigureLogging(cfg *config.Config) {
	logging.Configure(logging.Config{
		Level:    logging.ParseLevel(cfg.LogLevel),
		Output:   os.Stderr,
		JSONMode: cfg.LogJSON,
	})
}

// TableOptions returns the heap options for the table file of cfg.
func TableOptions(cfg *config.Config) heap.Options {
	return heap.Options{
		PoolSize:   cfg.BufferPoolSize,
		Passphrase: cfg.Passphrase(),
	}
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PromptPassphrase prompts on stderr and reads a line from the terminal
// without echo.
func PromptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(pass)), nil
}

// ReadSchemaFile reads schema text saved by the loader.
func ReadSchemaFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", herrors.IOError("read schema file", err).WithDetail(path).
			WithHint("Load the table first or pass the schema with -schema")
	}
	return strings.TrimSpace(string(data)), nil
}

// Fatal prints err to stderr and exits with status 1.
func Fatal(err error) {
	PrintError(os.Stderr, err)
	os.Exit(1)
}

// PrintError writes err in the user-facing format.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, herrors.FormatError(err))
}
