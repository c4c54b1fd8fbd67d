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
Package dump prints heap table rows as text.

Rows are decoded with the table schema and written either as CSV
records quoted the way the loader reads them, or as one JSON object per
line keyed by column name. Rows come from a full table scan or from an
index scan that fetches each RID from the table.
*/
package dump

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	herrors "heapdb/internal/errors"
	"heapdb/internal/index"
	"heapdb/internal/logging"
	"heapdb/internal/schema"
	"heapdb/internal/storage/heap"
)

// Format is an output format.
type Format string

// Output formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (must be csv or json)", s)
}

var dumpLog = logging.NewLogger("dump")

// FormatRow decodes rec with s and formats it as one CSV record without
// the trailing newline.
func FormatRow(s *schema.Schema, rec []byte) (string, error) {
	vals, err := s.Decode(rec)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	if err := cw.Write(fields(vals)); err != nil {
		return "", err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func fields(vals []schema.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

// Options configures a Writer.
type Options struct {
	Format Format

	// Header writes the schema line first in csv format.
	Header bool

	// WithRID adds the RID to each row.
	WithRID bool

	// Gzip compresses the output.
	Gzip bool
}

// Writer writes decoded rows to an underlying writer. Call Close when done.
type Writer struct {
	schema *schema.Schema
	opts   Options
	out    *bufio.Writer
	csv    *csv.Writer
	gz     *gzip.Writer
	rows   int
	header bool
}

// NewWriter returns a Writer for rows of s.
func NewWriter(w io.Writer, s *schema.Schema, opts Options) *Writer {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	dw := &Writer{schema: s, opts: opts}
	if opts.Gzip {
		dw.gz = gzip.NewWriter(w)
		w = dw.gz
	}
	dw.out = bufio.NewWriter(w)
	dw.csv = csv.NewWriter(dw.out)
	return dw
}

// Rows returns the number of rows written.
func (w *Writer) Rows() int {
	return w.rows
}

func (w *Writer) writeHeader() error {
	if w.header || !w.opts.Header || w.opts.Format != FormatCSV {
		return nil
	}
	w.header = true
	var names []string
	if w.opts.WithRID {
		names = append(names, "rid")
	}
	for _, col := range w.schema.Columns() {
		names = append(names, col.Name+":"+string(col.Type))
	}
	return w.csv.Write(names)
}

// WriteRecord decodes and writes one record.
func (w *Writer) WriteRecord(rid heap.RID, rec []byte) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	vals, err := w.schema.Decode(rec)
	if err != nil {
		return herrors.CodecError(fmt.Sprintf("rid %s", rid), err)
	}

	switch w.opts.Format {
	case FormatJSON:
		err = w.writeJSON(rid, vals)
	default:
		err = w.writeCSV(rid, vals)
	}
	if err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *Writer) writeCSV(rid heap.RID, vals []schema.Value) error {
	row := fields(vals)
	if w.opts.WithRID {
		row = append([]string{rid.String()}, row...)
	}
	return w.csv.Write(row)
}

// writeJSON writes one object with the columns in schema order.
func (w *Writer) writeJSON(rid heap.RID, vals []schema.Value) error {
	w.csv.Flush()
	w.out.WriteByte('{')
	if w.opts.WithRID {
		w.out.WriteString(`"rid":`)
		w.out.WriteString(strconv.Quote(rid.String()))
		if len(vals) > 0 {
			w.out.WriteByte(',')
		}
	}
	for i, v := range vals {
		if i > 0 {
			w.out.WriteByte(',')
		}
		name, err := json.Marshal(w.schema.Column(i).Name)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v.Interface())
		if err != nil {
			return err
		}
		w.out.Write(name)
		w.out.WriteByte(':')
		w.out.Write(val)
	}
	w.out.WriteByte('}')
	return w.out.WriteByte('\n')
}

// Flush writes buffered rows through to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.out.Flush()
}

// Close flushes and, when compressing, ends the gzip stream. The
// underlying writer is not closed.
func (w *Writer) Close() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// Scan writes every row of tbl in storage order.
func Scan(tbl *heap.Table, w *Writer) error {
	op := logging.StartOp(dumpLog, "dump scan", "path", tbl.Path())
	before := w.Rows()
	err := tbl.Scan(w.WriteRecord)
	op.Done(err, "rows", w.Rows()-before)
	return err
}

// IndexRange writes the rows whose indexed key satisfies "key op bound",
// in key order. Each RID from the index is fetched from tbl. RIDs that
// no longer name a record are skipped.
func IndexRange(tbl *heap.Table, idx *index.Index, op index.Op, bound []byte, w *Writer) error {
	lop := logging.StartOp(dumpLog, "dump index range", "op", op.String())
	before := w.Rows()

	var err error
	buf := make([]byte, heap.MaxRecordSize)
	scanErr := idx.Scan(op, bound, func(rid heap.RID) bool {
		var n int
		n, err = tbl.Get(rid, buf)
		if err != nil {
			return false
		}
		if n == 0 {
			dumpLog.Debug("Index entry has no record", "rid", rid.String())
			return true
		}
		err = w.WriteRecord(rid, buf[:n])
		return err == nil
	})
	if err == nil {
		err = scanErr
	}
	lop.Done(err, "rows", w.Rows()-before)
	return err
}
