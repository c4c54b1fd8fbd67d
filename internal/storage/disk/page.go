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
Package disk implements the paged-file manager underneath HeapDB tables.

Page-Based Storage Overview:
============================

A database file is an array of fixed-size pages. The disk package knows
nothing about what is stored inside a page: it reads and writes whole
PageSize buffers, allocates new zero-filled pages at the end of the
file, and caches pages in a buffer pool with a fix/unfix protocol.

The in-page format (slot directory, free-space pointer, record bytes)
belongs to the heap package, which mutates fixed page buffers in place
and reports back whether it modified them.

	┌────────────────────┐
	│   heap.Table       │  slotted page layout, RIDs
	├────────────────────┤
	│   BufferPool       │  FixPage / UnfixPage, LRU-K, prefetch
	├────────────────────┤
	│   PagedFile        │  header, page I/O, optional encryption
	└────────────────────┘

Page Size Selection:
====================

PageSize is 4KB, the common OS block size. In-page offsets are 16-bit
values, so the page size must never exceed 64KB.
*/
package disk

// PageSize is the size of each page in bytes.
const PageSize = 4096

// PageID is a unique identifier for a page. Page ids are 1-based and
// contiguous in allocation order.
type PageID uint32

// InvalidPageID represents an invalid page ID.
const InvalidPageID PageID = 0

// Page is one page-sized buffer as seen by the buffer pool.
// The buffer is directly mutable while the page is fixed.
type Page struct {
	id   PageID
	data [PageSize]byte
}

// NewPage creates a zero-filled page with the given ID.
func NewPage(id PageID) *Page {
	return &Page{id: id}
}

// ID returns the page ID.
func (p *Page) ID() PageID {
	return p.id
}

// Data returns the page buffer. Its length is always PageSize.
func (p *Page) Data() []byte {
	return p.data[:]
}

// Reset zeroes the buffer and assigns a new ID.
func (p *Page) Reset(id PageID) {
	p.id = id
	p.data = [PageSize]byte{}
}
