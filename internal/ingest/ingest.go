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
Package ingest bulk-loads CSV data into a heap table.

The first line of the input is the schema text, for example

	Country:varchar,Capital:varchar,Population:int

and every following line is one row with one field per column. Each row
is checked against the schema before anything is written, encoded with
the codec and inserted. When an index column is configured, the encoded
value of that column is added to an index together with the new RID and
the index is saved next to the table when the load completes. An append
load extends the saved index, or rebuilds it from the table when the
index file is missing.
*/
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	herrors "heapdb/internal/errors"
	"heapdb/internal/index"
	"heapdb/internal/logging"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/disk"
	"heapdb/internal/storage/heap"
)

// progressEvery is the row interval between progress log lines.
const progressEvery = 10000

// Options configures Load.
type Options struct {
	// Path is the table file. An existing file is replaced unless Append is set.
	Path   string
	Append bool

	// Table carries the pool size, passphrase and metrics for the table.
	// The index file uses the same passphrase.
	Table heap.Options

	// IndexColumn names the column to index. When it is empty and
	// DefaultIndex is set, the schema's default key column is indexed if
	// it has one. Otherwise an empty IndexColumn disables the index.
	IndexColumn  string
	DefaultIndex bool
	IndexPath    string
	Collation    string

	// IndexPathFor names the index file when IndexPath is empty.
	IndexPathFor func(column string) string

	// SchemaPath, when set, receives the schema text.
	SchemaPath string

	// Encoding is the input character encoding. Empty means UTF-8.
	Encoding string

	// Progress receives one "<rid> <first field>" line per row.
	Progress io.Writer
}

// Result summarises a load.
type Result struct {
	Schema *schema.Schema
	Rows   int

	// Index is nil when no column was indexed.
	Index       *index.Index
	IndexColumn string
}

var ingestLog = logging.NewLogger("ingest")

// LoadFile loads the CSV file at csvPath.
func LoadFile(csvPath string, opts Options) (*Result, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, herrors.IOError("open csv", err).WithDetail(csvPath)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load reads CSV from r into the table at opts.Path. On a bad row the
// load stops, the rows before it stay in the table and the index is not
// saved.
func Load(r io.Reader, opts Options) (*Result, error) {
	op := logging.StartOp(ingestLog, "load csv", "path", opts.Path)

	res, err := load(r, opts)
	if err != nil {
		op.Done(err, "rows", res.Rows)
		return res, err
	}
	op.Done(nil, "rows", res.Rows)
	return res, nil
}

func load(r io.Reader, opts Options) (*Result, error) {
	res := &Result{}

	in, err := NewDecodingReader(r, opts.Encoding)
	if err != nil {
		return res, herrors.NewStorageError("cannot read input").WithCause(err)
	}

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, herrors.MalformedSchema("empty input, expected a schema line")
	}
	if err != nil {
		return res, herrors.IOError("read schema line", err)
	}
	s, err := schema.Parse(strings.Join(header, ","))
	if err != nil {
		return res, err
	}
	res.Schema = s

	if opts.IndexColumn == "" && opts.DefaultIndex {
		if col, ok := s.DefaultKeyColumn(); ok {
			opts.IndexColumn = col.Name
		}
	}
	if opts.IndexColumn != "" && opts.IndexPath == "" && opts.IndexPathFor != nil {
		opts.IndexPath = opts.IndexPathFor(opts.IndexColumn)
	}

	keyCol := -1
	if opts.IndexColumn != "" {
		res.IndexColumn = opts.IndexColumn
		if keyCol, err = s.ColumnIndex(opts.IndexColumn); err != nil {
			return res, err
		}
		res.Index, err = index.New(s.Column(keyCol).Type, index.Options{Collation: opts.Collation})
		if err != nil {
			return res, err
		}
	}

	if opts.SchemaPath != "" {
		if err := os.WriteFile(opts.SchemaPath, []byte(s.String()+"\n"), 0644); err != nil {
			return res, herrors.IOError("write schema file", err).WithDetail(opts.SchemaPath)
		}
	}

	tbl, err := heap.Open(opts.Path, s, !opts.Append, opts.Table)
	if err != nil {
		return res, err
	}
	if opts.Append && res.Index != nil {
		err = existingIndex(tbl, s, keyCol, res, opts)
	}
	if err == nil {
		err = insertRows(cr, tbl, s, keyCol, res, opts.Progress)
	}
	if cerr := tbl.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, err
	}

	if res.Index != nil && opts.IndexPath != "" {
		if err := res.Index.Save(opts.IndexPath, indexOptions(opts)); err != nil {
			return res, err
		}
	}
	return res, nil
}

func indexOptions(opts Options) heap.Options {
	return heap.Options{
		Passphrase: opts.Table.Passphrase,
		Metrics:    &metrics.Storage{},
	}
}

// existingIndex replaces res.Index with an index covering the rows already
// in tbl: the saved index file when there is one, otherwise one rebuilt
// from a table scan.
func existingIndex(tbl *heap.Table, s *schema.Schema, keyCol int, res *Result, opts Options) error {
	col := s.Column(keyCol)
	if opts.IndexPath != "" && disk.FileExists(opts.IndexPath) {
		idx, err := index.Load(opts.IndexPath, indexOptions(opts))
		if err != nil {
			return err
		}
		if idx.KeyType() != col.Type {
			return herrors.IndexCorrupted(fmt.Sprintf("%s holds %s keys, column '%s' is %s",
				opts.IndexPath, idx.KeyType(), col.Name, col.Type), nil)
		}
		res.Index = idx
		return nil
	}

	return tbl.Scan(func(rid heap.RID, rec []byte) error {
		values, err := s.Decode(rec)
		if err != nil {
			return err
		}
		key, err := s.EncodeField(keyCol, values[keyCol].String())
		if err != nil {
			return err
		}
		return res.Index.Insert(key, rid)
	})
}

func insertRows(cr *csv.Reader, tbl *heap.Table, s *schema.Schema, keyCol int, res *Result, progress io.Writer) error {
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return herrors.IOError("read csv", err)
		}
		line, _ := cr.FieldPos(0)
		if i, ok := validUTF8(fields); !ok {
			return herrors.InvalidField(columnName(s, i), fields[i], "not valid UTF-8").
				WithHint("Set the input encoding, for example latin1")
		}

		rec, err := s.Encode(fields)
		if err != nil {
			return withLine(err, line)
		}
		rid, err := tbl.Insert(rec)
		if err != nil {
			return withLine(err, line)
		}

		if res.Index != nil {
			key, err := s.EncodeField(keyCol, fields[keyCol])
			if err != nil {
				return withLine(err, line)
			}
			if err := res.Index.Insert(key, rid); err != nil {
				return withLine(err, line)
			}
		}

		res.Rows++
		if progress != nil {
			fmt.Fprintf(progress, "%s %s\n", rid, fields[0])
		}
		if res.Rows%progressEvery == 0 {
			ingestLog.Debug("Rows loaded", "rows", res.Rows, "last_rid", rid.String())
		}
	}
}

func columnName(s *schema.Schema, i int) string {
	if i < s.NumColumns() {
		return s.Column(i).Name
	}
	return fmt.Sprintf("#%d", i)
}

// withLine adds the input line to typed errors that carry no detail yet.
func withLine(err error, line int) error {
	var he *herrors.HeapDBError
	if errors.As(err, &he) && he.Detail == "" {
		return he.WithDetail(fmt.Sprintf("line %d", line))
	}
	if errors.As(err, &he) {
		return he.WithDetail(fmt.Sprintf("%s, line %d", he.Detail, line))
	}
	return err
}
