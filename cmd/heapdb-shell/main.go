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
Command heapdb-shell is an interactive shell over one heap table.

Commands:

	scan [limit]          Print rows in storage order
	get <rid>             Print one row by RID
	insert <f1,f2,...>    Insert a row
	find <op> <value>     Index scan on the indexed column
	stats                 Table, buffer pool and counter statistics
	schema                Show the schema
	metrics               Counters in Prometheus text format
	help                  Show help
	exit                  Save the index and quit

The schema comes from -schema or from the file saved by heapdb-load.
With -index (or index_column in the configuration) the index file is
loaded, kept up to date by insert and saved on exit. When metrics are
enabled the counters are also served over HTTP at /metrics.

Input that is not a terminal is read line by line, so scripts can be
piped in:

	printf 'insert Chile,Santiago,6310000\nstats\n' | heapdb-shell
*/
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"

	"heapdb/internal/cli"
	"heapdb/internal/config"
	"heapdb/internal/index"
	"heapdb/internal/logging"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/disk"
	"heapdb/internal/storage/heap"
)

var shellLog = logging.NewLogger("shell")

func main() {
	var common cli.Common
	fs := flag.CommandLine
	common.Register(fs)
	schemaText := fs.String("schema", "", "Schema text (default: the file saved by heapdb-load)")
	indexColumn := fs.String("index", "", "Indexed column")
	collation := fs.String("collation", "", "Collation for a new varchar index")
	metricsAddr := fs.String("metrics", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := common.Load(fs)
	if err != nil {
		cli.Fatal(err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "index":
			cfg.IndexColumn = *indexColumn
		case "collation":
			cfg.Collation = *collation
		case "metrics":
			cfg.Metrics = config.MetricsConfig{Enabled: true, Addr: *metricsAddr}
		}
	})

	s, err := openSession(cfg, *schemaText, os.Stdout)
	if err != nil {
		cli.Fatal(err)
	}

	srv := metrics.NewServer(&cfg.Metrics, s.metrics)
	if err := srv.Start(); err != nil {
		shellLog.Warn("Metrics server not started", "error", err)
	}

	if cli.IsTerminal(os.Stdin) {
		err = interactive(s, cfg)
	} else {
		err = batch(s, os.Stdin)
	}

	srv.Stop()
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err != nil {
		cli.Fatal(err)
	}
}

// openSession opens the table of cfg and, when an index column is
// configured, its index. A missing index file starts an empty index.
func openSession(cfg *config.Config, schemaText string, out io.Writer) (*session, error) {
	if schemaText == "" {
		var err error
		if schemaText, err = cli.ReadSchemaFile(cfg.SchemaPath()); err != nil {
			return nil, err
		}
	}
	sch, err := schema.Parse(schemaText)
	if err != nil {
		return nil, err
	}

	m := metrics.Get()
	opts := cli.TableOptions(cfg)
	opts.Metrics = m
	tbl, err := heap.Open(cfg.DBPath(), sch, false, opts)
	if err != nil {
		return nil, err
	}
	s := &session{tbl: tbl, schema: sch, metrics: m, out: out}

	if cfg.IndexColumn != "" {
		if err := s.openIndex(cfg); err != nil {
			tbl.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) openIndex(cfg *config.Config) error {
	col, err := s.schema.ColumnIndex(cfg.IndexColumn)
	if err != nil {
		return err
	}
	path := cfg.IndexPath(cfg.IndexColumn)
	idxOpts := heap.Options{Passphrase: cfg.Passphrase(), Metrics: &metrics.Storage{}}

	var idx *index.Index
	if disk.FileExists(path) {
		idx, err = index.Load(path, idxOpts)
	} else {
		shellLog.Info("No index file, starting an empty index", "path", path)
		idx, err = index.New(s.schema.Column(col).Type, index.Options{Collation: cfg.Collation})
	}
	if err != nil {
		return err
	}
	s.idx, s.idxCol, s.idxName = idx, col, cfg.IndexColumn
	s.save = func() error { return idx.Save(path, idxOpts) }
	return nil
}

// close saves a modified index and closes the table.
func (s *session) close() error {
	var err error
	if s.idx != nil && s.dirty {
		err = s.save()
	}
	if cerr := s.tbl.Close(); err == nil {
		err = cerr
	}
	return err
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".heapdb_history")
}

func newReadline() (*readline.Instance, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, name := range commandNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewEx(&readline.Config{
		Prompt:            "heapdb> ",
		HistoryFile:       historyFilePath(),
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
}

func interactive(s *session, cfg *config.Config) error {
	rl, err := newReadline()
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(s.out, "HeapDB shell on %s. Type help for commands.\n", cfg.DBPath())
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		quit, err := s.exec(line)
		if err != nil {
			cli.PrintError(s.out, err)
		}
		if quit {
			return nil
		}
	}
}

// batch runs one command per input line. Errors are printed and the
// remaining lines still run.
func batch(s *session, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		quit, err := s.exec(sc.Text())
		if err != nil {
			cli.PrintError(s.out, err)
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}
