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
Command heapdb-dump prints the rows of a heap table.

With -s the table is scanned in storage order. Otherwise the rows are
read through the index saved by heapdb-load: first the rows whose key
is at most -v, then the rows whose key is greater, which together cover
the whole table. -op restricts the output to a single index scan.

Usage:

	heapdb-dump [options]

Options:

	-s                  Full table scan instead of index scans
	-v <value>          Split value for the index scans (default 100000)
	-op <op>            Single index scan: =, <, <=, >, >=, !=
	-index <column>     Indexed column (default from configuration, else the
	                    third column when it is int or long)
	-schema <text>      Schema text (default: the file saved by heapdb-load)
	-f <format>         Output format: csv, json
	-o <file>           Output file (default stdout)
	-z                  Compress output with gzip
	-rid                Include the RID of each row
	-header             Print the schema line (default when stdout is a terminal)

Examples:

	heapdb-dump -s
	heapdb-dump -index Population -op ">=" -v 1000000 -f json
	heapdb-dump -s -z -o cities.csv.gz
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"heapdb/internal/cli"
	"heapdb/internal/config"
	"heapdb/internal/dump"
	herrors "heapdb/internal/errors"
	"heapdb/internal/index"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/heap"
)

// defaultSplit is the key that divides the two default index scans.
const defaultSplit = "100000"

type options struct {
	scan       bool
	value      string
	op         string
	column     string
	schemaText string
	format     string
	output     string
	gzip       bool
	withRID    bool
	header     bool
}

func main() {
	var common cli.Common
	var o options
	fs := flag.CommandLine
	common.Register(fs)
	fs.BoolVar(&o.scan, "s", false, "Full table scan instead of index scans")
	fs.StringVar(&o.value, "v", defaultSplit, "Split value for the index scans")
	fs.StringVar(&o.op, "op", "", "Single index scan operator: =, <, <=, >, >=, !=")
	fs.StringVar(&o.column, "index", "", "Indexed column")
	fs.StringVar(&o.schemaText, "schema", "", "Schema text")
	fs.StringVar(&o.format, "f", "", "Output format: csv, json")
	fs.StringVar(&o.output, "o", "", "Output file (default stdout)")
	fs.BoolVar(&o.gzip, "z", false, "Compress output with gzip")
	fs.BoolVar(&o.withRID, "rid", false, "Include the RID of each row")
	fs.BoolVar(&o.header, "header", false, "Print the schema line")
	flag.Parse()

	cfg, err := common.Load(fs)
	if err != nil {
		cli.Fatal(err)
	}
	headerSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "index":
			cfg.IndexColumn = o.column
		case "f":
			cfg.OutputFormat = o.format
		case "header":
			headerSet = true
		}
	})

	var out io.Writer = os.Stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			cli.Fatal(herrors.IOError("create output", err).WithDetail(o.output))
		}
		defer f.Close()
		out = f
	} else if !headerSet {
		o.header = cli.IsTerminal(os.Stdout)
	}

	if err := run(cfg, o, out); err != nil {
		cli.Fatal(err)
	}
}

func run(cfg *config.Config, o options, out io.Writer) error {
	text := o.schemaText
	if text == "" {
		var err error
		if text, err = cli.ReadSchemaFile(cfg.SchemaPath()); err != nil {
			return err
		}
	}
	s, err := schema.Parse(text)
	if err != nil {
		return err
	}
	format, err := dump.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	tableOpts := cli.TableOptions(cfg)
	tableOpts.Metrics = metrics.Get()
	tbl, err := heap.Open(cfg.DBPath(), s, false, tableOpts)
	if err != nil {
		return err
	}
	defer tbl.Close()

	w := dump.NewWriter(out, s, dump.Options{
		Format:  format,
		Header:  o.header,
		WithRID: o.withRID,
		Gzip:    o.gzip,
	})
	if o.scan {
		err = dump.Scan(tbl, w)
	} else {
		err = indexDump(cfg, o, s, tbl, w)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func indexDump(cfg *config.Config, o options, s *schema.Schema, tbl *heap.Table, w *dump.Writer) error {
	column := cfg.IndexColumn
	if column == "" {
		col, ok := s.DefaultKeyColumn()
		if !ok {
			return herrors.ColumnNotFound("(none)").
				WithHint("Name the indexed column with -index, or use -s for a full scan")
		}
		column = col.Name
	}
	keyCol, err := s.ColumnIndex(column)
	if err != nil {
		return err
	}
	key, err := s.EncodeField(keyCol, o.value)
	if err != nil {
		return err
	}

	idx, err := index.Load(cfg.IndexPath(column), heap.Options{Passphrase: cfg.Passphrase()})
	if err != nil {
		return err
	}
	if idx.KeyType() != s.Column(keyCol).Type {
		return herrors.IndexCorrupted(fmt.Sprintf("index has %s keys, column %s is %s",
			idx.KeyType(), column, s.Column(keyCol).Type), nil)
	}

	if o.op != "" {
		op, err := index.ParseOp(o.op)
		if err != nil {
			return err
		}
		return dump.IndexRange(tbl, idx, op, key, w)
	}
	if err := dump.IndexRange(tbl, idx, index.LE, key, w); err != nil {
		return err
	}
	return dump.IndexRange(tbl, idx, index.GT, key, w)
}
