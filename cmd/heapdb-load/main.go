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
Command heapdb-load loads a CSV file into a heap table.

The first line of the CSV file is the schema, for example

	Country:varchar,Capital:varchar,Population:int

Each following line is one row. For every row inserted the command
prints the RID and the first field. With -index the named column is
indexed and the index is written next to the table. Without -index the
third column is indexed when it holds integers, unless -noindex is set.

Usage:

	heapdb-load [options] [data.csv]

Options:

	-d <dir>            Data directory (default ".")
	-db <name>          Table file name (default "data.db")
	-index <column>     Column to index (default: the third column if it is int or long)
	-noindex            Do not index the default column
	-collation <name>   Collation for varchar index keys: binary, nocase or a locale
	-encoding <name>    Input encoding: utf8, latin1, windows1252
	-append             Append to an existing table instead of replacing it
	-q                  Do not print a line per row
	-passphrase <pass>  Encrypt the table and index
	-config <file>      Configuration file

Environment Variables:

	HEAPDB_INDEX_COLUMN          Default index column
	HEAPDB_ENCRYPTION_PASSPHRASE Encryption passphrase
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"heapdb/internal/cli"
	"heapdb/internal/ingest"
	"heapdb/internal/metrics"
)

func main() {
	var common cli.Common
	fs := flag.CommandLine
	common.Register(fs)
	indexColumn := fs.String("index", "", "Column to index")
	collation := fs.String("collation", "", "Collation for varchar index keys")
	encoding := fs.String("encoding", "", "Input encoding: utf8, latin1, windows1252")
	appendRows := fs.Bool("append", false, "Append to an existing table")
	quiet := fs.Bool("q", false, "Do not print a line per row")
	noIndex := fs.Bool("noindex", false, "Do not index the default key column")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: heapdb-load [options] [data.csv]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
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
		case "encoding":
			cfg.InputEncoding = *encoding
		}
	})

	csvPath := "data.csv"
	if fs.NArg() > 0 {
		csvPath = fs.Arg(0)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	var progress io.Writer = out
	if *quiet {
		progress = nil
	}

	tableOpts := cli.TableOptions(cfg)
	tableOpts.Metrics = metrics.Get()
	opts := ingest.Options{
		Path:        cfg.DBPath(),
		Append:      *appendRows,
		Table:       tableOpts,
		IndexColumn:  cfg.IndexColumn,
		DefaultIndex: !*noIndex,
		IndexPathFor: cfg.IndexPath,
		Collation:    cfg.Collation,
		SchemaPath:   cfg.SchemaPath(),
		Encoding:     cfg.InputEncoding,
		Progress:     progress,
	}

	res, err := ingest.LoadFile(csvPath, opts)
	if err != nil {
		out.Flush()
		cli.Fatal(err)
	}
	out.Flush()

	m := metrics.Get()
	fmt.Fprintf(os.Stderr, "Loaded %s rows (%s) into %s (%d pages, %.2f pages examined per insert)\n",
		humanize.Comma(int64(res.Rows)), humanize.IBytes(m.BytesWritten.Load()), cfg.DBPath(),
		m.PagesAllocated.Load(), m.AveragePagesPerInsert())
	if res.Index != nil {
		fmt.Fprintf(os.Stderr, "Indexed %s (%s entries) in %s\n",
			res.IndexColumn, humanize.Comma(int64(res.Index.Len())), cfg.IndexPath(res.IndexColumn))
	}
}
