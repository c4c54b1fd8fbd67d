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
Package heap implements heap tables: unordered files of variable-length
records addressed by RID.

Architecture Overview:
======================

	┌──────────────────────────────────────────────────────────────────┐
	│                         heap.Table                               │
	│   Insert: first-fit search from page 1, append to slotted page   │
	│   Get/Fetch: decompose RID, read one slot                        │
	│   Scan: every page in file order, every slot in slot order       │
	├──────────────────────────────────────────────────────────────────┤
	│                         PageCache                                │
	│   FixPage / FixFirstPage / FixNextPage / AllocPage / UnfixPage   │
	│   (disk.BufferPool in production)                                │
	└──────────────────────────────────────────────────────────────────┘

The table holds no pages between calls. Every operation fixes the pages
it touches and unfixes them before returning, on error paths too, and
holds at most one page fixed at any time.

Insert Placement:
=================

Insert walks the file from the first page on every call and uses the
first page whose free space can hold the record plus one more slot
entry. When no page has room a new page is allocated. There is no
free-space map, so inserts cost time linear in the number of pages.

Concurrency:
============

A Table is not safe for concurrent use. The buffer pool underneath is,
but insert placement assumes a single writer.
*/
package heap

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	herrors "heapdb/internal/errors"
	"heapdb/internal/logging"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/disk"
)

// ErrStopScan may be returned by a scan callback to end the scan early
// without an error.
var ErrStopScan = errors.New("stop scan")

// PageCache is the page-level interface a Table needs.
type PageCache interface {
	FixPage(id disk.PageID) (*disk.Page, error)
	FixFirstPage() (*disk.Page, error)
	FixNextPage(after disk.PageID) (*disk.Page, error)
	AllocPage() (*disk.Page, error)
	UnfixPage(id disk.PageID, dirty bool) error
	Close() error
}

// prefetcher is implemented by caches that can load pages ahead of a scan.
type prefetcher interface {
	Prefetch(ids ...disk.PageID)
	PageCount() uint32
}

// Options configures Open.
type Options struct {
	// PoolSize is the buffer pool size in pages. 0 sizes it automatically.
	PoolSize int

	// Passphrase encrypts a new file and is required for an encrypted one.
	Passphrase string

	// Metrics receives table counters. nil uses the global instance.
	Metrics *metrics.Storage
}

// Table is an open heap table.
type Table struct {
	cache   PageCache
	schema  *schema.Schema
	path    string
	metrics *metrics.Storage
	logger  *logging.Logger
	closed  bool
}

// Stats describes the pages and records of a table.
type Stats struct {
	Pages     int
	Records   int
	UsedBytes int
	FreeBytes int

	// Pool is set when the page cache is a buffer pool.
	Pool *disk.BufferPoolStats
}

// Open opens the table stored at path. With overwrite set, any existing
// file is destroyed and a new one created. A missing file is created.
// The schema is kept for callers that interpret records; the table
// itself does not use it.
func Open(path string, s *schema.Schema, overwrite bool, opts Options) (*Table, error) {
	logger := logging.NewLogger("heap")

	if overwrite && disk.FileExists(path) {
		if err := disk.DestroyFile(path); err != nil {
			return nil, herrors.IOError("destroy table file", err)
		}
	}

	fileOpts := disk.FileOptions{Passphrase: opts.Passphrase}
	var (
		pf  *disk.PagedFile
		err error
	)
	if disk.FileExists(path) {
		pf, err = disk.OpenFile(path, fileOpts)
	} else {
		pf, err = disk.CreateFile(path, fileOpts)
	}
	if err != nil {
		return nil, herrors.IOError("open table file", err).WithDetail(path)
	}

	t := NewTable(disk.NewBufferPool(pf, opts.PoolSize), s)
	t.path = path
	if opts.Metrics != nil {
		t.metrics = opts.Metrics
	}
	logger.Info("Table opened", "path", path, "pages", pf.PageCount(), "encrypted", pf.Encrypted())
	return t, nil
}

// NewTable binds a table to an already open page cache.
func NewTable(cache PageCache, s *schema.Schema) *Table {
	return &Table{
		cache:   cache,
		schema:  s,
		metrics: metrics.Get(),
		logger:  logging.NewLogger("heap"),
	}
}

// Schema returns the schema the table was opened with.
func (t *Table) Schema() *schema.Schema {
	return t.schema
}

// Path returns the table file path, empty for tables built with NewTable.
func (t *Table) Path() string {
	return t.path
}

// Close flushes and releases the page cache. Closing a nil or closed
// table is a no-op.
func (t *Table) Close() error {
	if t == nil || t.closed {
		return nil
	}
	t.closed = true
	if err := t.cache.Close(); err != nil {
		return herrors.IOError("close table", err)
	}
	t.logger.Info("Table closed", "path", t.path)
	return nil
}

// Insert stores rec and returns its RID. Empty records and records
// longer than MaxRecordSize are rejected before any page is touched.
func (t *Table) Insert(rec []byte) (RID, error) {
	if t.closed {
		return 0, herrors.FileClosed(t.path)
	}
	if len(rec) == 0 {
		return 0, herrors.EmptyRecord()
	}
	if len(rec) > MaxRecordSize {
		return 0, herrors.RecordTooLarge(len(rec), MaxRecordSize)
	}

	examined := 0
	page, err := t.cache.FixFirstPage()
	for err == nil {
		id := page.ID()
		examined++

		sp := SlottedPage(page.Data())
		initialized := sp.Initialized()
		if !initialized {
			sp = InitPage(page.Data())
		}
		if sp.AvailableSpace() >= len(rec) {
			return t.place(page, sp, rec, examined, false)
		}
		if err := t.cache.UnfixPage(id, !initialized); err != nil {
			return 0, t.storageErr("unfix page", id, err)
		}
		page, err = t.cache.FixNextPage(id)
	}
	if !errors.Is(err, disk.ErrEndOfFile) {
		return 0, t.storageErr("fix page", disk.InvalidPageID, err)
	}

	page, err = t.cache.AllocPage()
	if err != nil {
		return 0, t.storageErr("allocate page", disk.InvalidPageID, err)
	}
	return t.place(page, InitPage(page.Data()), rec, examined+1, true)
}

// place appends rec to a fixed page and unfixes it dirty.
func (t *Table) place(page *disk.Page, sp SlottedPage, rec []byte, examined int, allocated bool) (RID, error) {
	id := page.ID()
	slot, err := sp.Append(rec)
	if uerr := t.cache.UnfixPage(id, true); uerr != nil {
		return 0, t.storageErr("unfix page", id, uerr)
	}
	if err != nil {
		return 0, herrors.RecordTooLarge(len(rec), sp.AvailableSpace())
	}
	t.metrics.RecordInsert(len(rec), examined, allocated)
	if allocated {
		t.logger.Debug("Page allocated", "path", t.path, "page", id)
	}
	return NewRID(id, uint16(slot)), nil
}

// Get copies the record named by rid into buf and returns the number of
// bytes copied, at most len(buf). It returns 0 when the slot holds no
// record. A page number outside the file is a STORAGE error.
func (t *Table) Get(rid RID, buf []byte) (int, error) {
	var n int
	err := t.withPage(rid, func(sp SlottedPage) {
		n = copy(buf, sp.Record(int(rid.Slot())))
	})
	if err != nil {
		return 0, err
	}
	t.metrics.RecordFetch()
	return n, nil
}

// Fetch returns a copy of the whole record named by rid.
func (t *Table) Fetch(rid RID) ([]byte, error) {
	var rec []byte
	err := t.withPage(rid, func(sp SlottedPage) {
		if r := sp.Record(int(rid.Slot())); r != nil {
			rec = append([]byte(nil), r...)
		}
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, herrors.RecordNotFound(rid.String())
	}
	t.metrics.RecordFetch()
	return rec, nil
}

// withPage fixes rid's page, calls fn and unfixes the page clean.
func (t *Table) withPage(rid RID, fn func(SlottedPage)) error {
	if t.closed {
		return herrors.FileClosed(t.path)
	}
	id := rid.Page()
	if id == disk.InvalidPageID {
		return t.storageErr("fix page", id, disk.ErrPageNotFound)
	}
	page, err := t.cache.FixPage(id)
	if err != nil {
		return t.storageErr("fix page", id, err)
	}
	fn(SlottedPage(page.Data()))
	if err := t.cache.UnfixPage(id, false); err != nil {
		return t.storageErr("unfix page", id, err)
	}
	return nil
}

// Scan calls visit for every record in page order then slot order. rec
// aliases the page buffer and is only valid during the call. A non-nil
// error from visit ends the scan and is returned, except ErrStopScan
// which ends it cleanly. visit must not modify the table.
func (t *Table) Scan(visit func(rid RID, rec []byte) error) error {
	if t.closed {
		return herrors.FileClosed(t.path)
	}
	visited := 0
	defer func() { t.metrics.RecordScan(visited) }()

	pf, canPrefetch := t.cache.(prefetcher)

	page, err := t.cache.FixFirstPage()
	for err == nil {
		id := page.ID()
		if canPrefetch && uint32(id) < pf.PageCount() {
			pf.Prefetch(id + 1)
		}

		sp := SlottedPage(page.Data())
		for i := 0; i < sp.SlotCount(); i++ {
			rec := sp.Record(i)
			if rec == nil {
				continue
			}
			visited++
			if verr := visit(NewRID(id, uint16(i)), rec); verr != nil {
				if uerr := t.cache.UnfixPage(id, false); uerr != nil {
					return t.storageErr("unfix page", id, uerr)
				}
				if errors.Is(verr, ErrStopScan) {
					return nil
				}
				return verr
			}
		}

		if err := t.cache.UnfixPage(id, false); err != nil {
			return t.storageErr("unfix page", id, err)
		}
		page, err = t.cache.FixNextPage(id)
	}
	if !errors.Is(err, disk.ErrEndOfFile) {
		return t.storageErr("fix page", disk.InvalidPageID, err)
	}
	return nil
}

// Stats walks every page and counts records and bytes.
func (t *Table) Stats() (Stats, error) {
	var st Stats
	if t.closed {
		return st, herrors.FileClosed(t.path)
	}

	page, err := t.cache.FixFirstPage()
	for err == nil {
		id := page.ID()
		sp := SlottedPage(page.Data())
		st.Pages++
		if sp.Initialized() {
			for i := 0; i < sp.SlotCount(); i++ {
				if sp.RecordLength(i) > 0 {
					st.Records++
				}
			}
			st.UsedBytes += sp.UsedBytes()
			st.FreeBytes += sp.FreeSpacePointer() - HeaderSize - sp.SlotCount()*SlotSize
		} else {
			st.FreeBytes += disk.PageSize - HeaderSize
		}
		if err := t.cache.UnfixPage(id, false); err != nil {
			return st, t.storageErr("unfix page", id, err)
		}
		page, err = t.cache.FixNextPage(id)
	}
	if !errors.Is(err, disk.ErrEndOfFile) {
		return st, t.storageErr("fix page", disk.InvalidPageID, err)
	}

	if ps, ok := t.cache.(interface{ Stats() disk.BufferPoolStats }); ok {
		pool := ps.Stats()
		st.Pool = &pool
	}
	return st, nil
}

// String summarises the stats on one line.
func (s Stats) String() string {
	return fmt.Sprintf("pages=%d records=%d used=%s free=%s", s.Pages, s.Records,
		humanize.IBytes(uint64(s.UsedBytes)), humanize.IBytes(uint64(s.FreeBytes)))
}

func (t *Table) storageErr(op string, page disk.PageID, err error) error {
	t.metrics.RecordError()
	switch {
	case errors.Is(err, disk.ErrPageNotFound):
		return herrors.PageNotFound(uint32(page), err)
	case errors.Is(err, disk.ErrFileClosed):
		return herrors.FileClosed(t.path).WithCause(err)
	}
	return herrors.IOError(op, err)
}
