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

package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"heapdb/internal/dump"
	herrors "heapdb/internal/errors"
	"heapdb/internal/index"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/heap"
)

// session executes shell commands against one open table.
type session struct {
	tbl     *heap.Table
	schema  *schema.Schema
	metrics *metrics.Storage
	out     io.Writer

	// idx is nil when no index is loaded. dirty marks inserts since load.
	idx     *index.Index
	idxCol  int
	idxName string
	dirty   bool
	save    func() error
}

type command struct {
	usage string
	help  string
	run   func(s *session, args string) error
}

var commands map[string]command

// commands is filled in init since help and the usage messages read it.
func init() {
	commands = map[string]command{
		"scan":    {"scan [limit]", "Print rows in storage order", (*session).scan},
		"get":     {"get <rid>", "Print the row with the given RID (page.slot or packed)", (*session).get},
		"insert":  {"insert <f1,f2,...>", "Insert a row, fields in schema order", (*session).insert},
		"find":    {"find <op> <value>", "Index scan, op is one of = < <= > >= !=", (*session).find},
		"stats":   {"stats", "Show table, buffer pool and counter statistics", (*session).stats},
		"schema":  {"schema", "Show the schema and the indexed column", (*session).showSchema},
		"metrics": {"metrics", "Print counters in Prometheus text format", (*session).showMetrics},
		"help":    {"help", "Show this help", (*session).help},
	}
}

// commandNames returns the command names for completion, sorted.
func commandNames() []string {
	names := make([]string, 0, len(commands)+2)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "exit", "quit")
	sort.Strings(names)
	return names
}

// exec runs one input line. It reports whether the shell should exit.
func (s *session) exec(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	name, args, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	switch name {
	case "exit", "quit", "\\q":
		return true, nil
	}
	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q, type help", name)
	}
	return false, cmd.run(s, strings.TrimSpace(args))
}

func (s *session) scan(args string) error {
	limit := -1
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 0 {
			return fmt.Errorf("scan limit must be a non-negative number: %s", args)
		}
		limit = n
	}

	w := dump.NewWriter(s.out, s.schema, dump.Options{WithRID: true})
	err := s.tbl.Scan(func(rid heap.RID, rec []byte) error {
		if limit >= 0 && w.Rows() >= limit {
			return heap.ErrStopScan
		}
		return w.WriteRecord(rid, rec)
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "(%d rows)\n", w.Rows())
	return nil
}

func (s *session) get(args string) error {
	rid, err := heap.ParseRID(args)
	if err != nil {
		return err
	}
	rec, err := s.tbl.Fetch(rid)
	if err != nil {
		return err
	}
	row, err := dump.FormatRow(s.schema, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", rid, row)
	return nil
}

func (s *session) insert(args string) error {
	if args == "" {
		return fmt.Errorf("usage: %s", commands["insert"].usage)
	}
	fields := strings.Split(args, ",")
	rec, err := s.schema.Encode(fields)
	if err != nil {
		return err
	}
	rid, err := s.tbl.Insert(rec)
	if err != nil {
		return err
	}
	if s.idx != nil {
		key, err := s.schema.EncodeField(s.idxCol, fields[s.idxCol])
		if err != nil {
			return err
		}
		if err := s.idx.Insert(key, rid); err != nil {
			return err
		}
		s.dirty = true
	}
	fmt.Fprintf(s.out, "%s %s\n", rid, fields[0])
	return nil
}

func (s *session) find(args string) error {
	if s.idx == nil {
		return herrors.ColumnNotFound("(none)").WithHint("Start the shell with -index to use find")
	}
	opText, value, ok := strings.Cut(args, " ")
	if !ok {
		return fmt.Errorf("usage: %s", commands["find"].usage)
	}
	op, err := index.ParseOp(opText)
	if err != nil {
		return err
	}
	key, err := s.schema.EncodeField(s.idxCol, strings.TrimSpace(value))
	if err != nil {
		return err
	}

	w := dump.NewWriter(s.out, s.schema, dump.Options{WithRID: true})
	err = dump.IndexRange(s.tbl, s.idx, op, key, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "(%d rows)\n", w.Rows())
	return nil
}

func (s *session) stats(string) error {
	st, err := s.tbl.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "table:   %s\n", st)
	if st.Pool != nil {
		p := st.Pool
		fmt.Fprintf(s.out, "pool:    size=%d used=%d dirty=%d pinned=%d hits=%d misses=%d hit_rate=%.1f%% writes=%d\n",
			p.PoolSize, p.UsedFrames, p.DirtyPages, p.PinnedPages, p.Hits, p.Misses, p.HitRate, p.PageWrites)
	}
	m := s.metrics
	fmt.Fprintf(s.out, "session: inserted=%d fetched=%d scans=%d pages_allocated=%d pages_per_insert=%.2f errors=%d\n",
		m.RecordsInserted.Load(), m.RecordsFetched.Load(), m.Scans.Load(),
		m.PagesAllocated.Load(), m.AveragePagesPerInsert(), m.Errors.Load())
	if s.idx != nil {
		fmt.Fprintf(s.out, "index:   column=%s entries=%d collation=%s\n", s.idxName, s.idx.Len(), s.idx.Collation())
	}
	return nil
}

func (s *session) showSchema(string) error {
	for i, col := range s.schema.Columns() {
		mark := ""
		if s.idx != nil && i == s.idxCol {
			mark = "  (indexed)"
		}
		fmt.Fprintf(s.out, "%d  %-20s %s%s\n", i, col.Name, col.Type, mark)
	}
	return nil
}

func (s *session) showMetrics(string) error {
	return s.metrics.WriteText(s.out)
}

func (s *session) help(string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-22s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(s.out, "  %-22s %s\n", "exit", "Save the index and leave the shell")
	return nil
}
