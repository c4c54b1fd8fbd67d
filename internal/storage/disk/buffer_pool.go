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
Buffer Pool Implementation with LRU-K Eviction
===============================================

The buffer pool caches pages of one paged file in a fixed number of
frames. Every page access goes through it.

LRU-K Eviction Algorithm:
=========================

HeapDB uses LRU-K (specifically LRU-2) instead of simple LRU for page
eviction. A full table scan touches every page once, and the first-fit
insert path touches the first pages on every insert. With LRU-2 the
scan's one-time accesses are evicted before the pages inserts keep
coming back to.

Example with K=2:
  - Page A: accessed at t=1, t=5 (2nd-to-last access: t=1)
  - Page B: accessed at t=3 only (2nd-to-last access: never)
  - Page C: accessed at t=2, t=4 (2nd-to-last access: t=2)
  - Eviction order: B (never accessed twice), A (oldest 2nd access), C

Fix/Unfix Protocol:
===================

Pages must be fixed before use and unfixed when done:

 1. FixPage(pageID): pins the page and returns its buffer
 2. Read or mutate the buffer in place
 3. UnfixPage(pageID, dirty): unpins, marks the frame dirty if modified

Fixed pages are never evicted. A dirty frame is written back when it is
evicted, flushed, or when the pool is closed.

Iteration:
==========

FixFirstPage and FixNextPage walk the file in ascending page order and
return ErrEndOfFile past the last page:

	page, err := bp.FixFirstPage()
	for err == nil {
		id := page.ID()
		...
		bp.UnfixPage(id, false)
		page, err = bp.FixNextPage(id)
	}
	if errors.Is(err, disk.ErrEndOfFile) { ... done ... }

Prefetching:
============

Sequential scans can hint upcoming pages:

	bp.Prefetch(5, 6, 7)

A background goroutine loads these pages into unpinned frames.

Thread Safety:
==============

All buffer pool operations are protected by a mutex.
*/
package disk

import (
	"container/list"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// LRU-K parameter: number of accesses to track for each page
const lruKValue = 2

// Errors
var (
	ErrBufferPoolFull = errors.New("buffer pool is full, no unpinned pages to evict")
	ErrEndOfFile      = errors.New("end of file")
	ErrPageNotFixed   = errors.New("page is not fixed")
)

// BufferPool manages a fixed-size pool of pages in memory with LRU-K eviction.
type BufferPool struct {
	file       *PagedFile
	poolSize   int
	mu         sync.Mutex
	pageTable  map[PageID]*Frame
	lruList    *list.List
	freeFrames []*Frame
	hits       atomic.Int64
	misses     atomic.Int64
	prefetches atomic.Int64
	writes     atomic.Int64
	closed     bool

	// Prefetching
	prefetchChan   chan PageID
	prefetchDone   chan struct{}
	prefetchActive atomic.Bool
	prefetchWG     sync.WaitGroup
}

// Frame represents a slot in the buffer pool that can hold a page.
type Frame struct {
	page       *Page
	pageID     PageID
	pinCount   int
	dirty      bool
	lruElement *list.Element

	// LRU-K tracking: timestamps of last K accesses
	accessHistory []time.Time
}

// BufferPoolStats contains buffer pool statistics.
type BufferPoolStats struct {
	PoolSize    int
	UsedFrames  int
	DirtyPages  int
	PinnedPages int
	Hits        int64
	Misses      int64
	Prefetches  int64
	PageWrites  int64
	HitRate     float64
}

// CalculateOptimalPoolSize sizes the pool at 25% of the memory obtained
// from the OS, bounded to [256, 65536] pages (1MB to 256MB).
func CalculateOptimalPoolSize() int {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	availableBytes := memStats.Sys
	if availableBytes == 0 {
		availableBytes = 1 << 30
	}
	pages := int(availableBytes / 4 / PageSize)

	const minPages = 256
	const maxPages = 65536

	if pages < minPages {
		pages = minPages
	}
	if pages > maxPages {
		pages = maxPages
	}
	return pages
}

// NewBufferPool creates a new buffer pool over file with the given size.
// If poolSize is 0, it automatically calculates an optimal size.
func NewBufferPool(file *PagedFile, poolSize int) *BufferPool {
	if poolSize <= 0 {
		poolSize = CalculateOptimalPoolSize()
	}

	bp := &BufferPool{
		file:         file,
		poolSize:     poolSize,
		pageTable:    make(map[PageID]*Frame),
		lruList:      list.New(),
		freeFrames:   make([]*Frame, poolSize),
		prefetchChan: make(chan PageID, 64),
		prefetchDone: make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		bp.freeFrames[i] = &Frame{
			accessHistory: make([]time.Time, 0, lruKValue),
		}
	}

	bp.prefetchActive.Store(true)
	bp.prefetchWG.Add(1)
	go bp.prefetchWorker()

	return bp
}

// prefetchWorker handles asynchronous page prefetching.
func (bp *BufferPool) prefetchWorker() {
	defer bp.prefetchWG.Done()
	for {
		select {
		case pageID := <-bp.prefetchChan:
			bp.prefetch(pageID)
		case <-bp.prefetchDone:
			return
		}
	}
}

func (bp *BufferPool) prefetch(pageID PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.closed {
		return
	}
	if _, ok := bp.pageTable[pageID]; ok {
		return
	}
	frame, err := bp.getFrame()
	if err != nil {
		return
	}
	page, err := bp.file.ReadPage(pageID)
	if err != nil {
		bp.freeFrames = append(bp.freeFrames, frame)
		return
	}
	frame.page = page
	frame.pageID = pageID
	frame.pinCount = 0
	frame.dirty = false
	frame.accessHistory = frame.accessHistory[:0]
	frame.lruElement = bp.lruList.PushFront(frame)
	bp.pageTable[pageID] = frame
	bp.prefetches.Add(1)
}

// Prefetch schedules pages for asynchronous loading. Requests are
// dropped when the queue is full.
func (bp *BufferPool) Prefetch(pageIDs ...PageID) {
	if !bp.prefetchActive.Load() {
		return
	}
	for _, pageID := range pageIDs {
		select {
		case bp.prefetchChan <- pageID:
		default:
		}
	}
}

// FixPage pins a page in the buffer pool, reading it from disk if needed.
func (bp *BufferPool) FixPage(pageID PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.fixLocked(pageID)
}

// FixFirstPage pins the first page of the file. It returns ErrEndOfFile
// when the file has no pages.
func (bp *BufferPool) FixFirstPage() (*Page, error) {
	return bp.FixNextPage(InvalidPageID)
}

// FixNextPage pins the page following after. It returns ErrEndOfFile
// when after is the last page.
func (bp *BufferPool) FixNextPage(after PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil, ErrFileClosed
	}
	next := after + 1
	if uint32(next) > bp.file.PageCount() {
		return nil, ErrEndOfFile
	}
	return bp.fixLocked(next)
}

func (bp *BufferPool) fixLocked(pageID PageID) (*Page, error) {
	if bp.closed {
		return nil, ErrFileClosed
	}
	if frame, ok := bp.pageTable[pageID]; ok {
		bp.hits.Add(1)
		frame.pinCount++
		bp.updateAccessHistory(frame)
		if frame.lruElement != nil {
			bp.lruList.Remove(frame.lruElement)
			frame.lruElement = nil
		}
		return frame.page, nil
	}

	bp.misses.Add(1)
	frame, err := bp.getFrame()
	if err != nil {
		return nil, err
	}

	page, err := bp.file.ReadPage(pageID)
	if err != nil {
		bp.freeFrames = append(bp.freeFrames, frame)
		return nil, err
	}

	bp.installLocked(frame, page, false)
	return page, nil
}

func (bp *BufferPool) installLocked(frame *Frame, page *Page, dirty bool) {
	frame.page = page
	frame.pageID = page.ID()
	frame.pinCount = 1
	frame.dirty = dirty
	frame.lruElement = nil
	frame.accessHistory = frame.accessHistory[:0]
	bp.updateAccessHistory(frame)
	bp.pageTable[page.ID()] = frame
}

// updateAccessHistory updates the LRU-K access history for a frame.
func (bp *BufferPool) updateAccessHistory(frame *Frame) {
	now := time.Now()
	if len(frame.accessHistory) >= lruKValue {
		copy(frame.accessHistory, frame.accessHistory[1:])
		frame.accessHistory[lruKValue-1] = now
	} else {
		frame.accessHistory = append(frame.accessHistory, now)
	}
}

// getFrame returns a free frame, evicting if necessary using LRU-K policy.
func (bp *BufferPool) getFrame() (*Frame, error) {
	if len(bp.freeFrames) > 0 {
		frame := bp.freeFrames[len(bp.freeFrames)-1]
		bp.freeFrames = bp.freeFrames[:len(bp.freeFrames)-1]
		return frame, nil
	}

	// Find the unpinned page with the oldest K-th access. Pages with
	// fewer than K accesses compare by their oldest access.
	var victimElement *list.Element
	var oldestKthAccess time.Time

	for e := bp.lruList.Back(); e != nil; e = e.Prev() {
		frame := e.Value.(*Frame)
		if frame.pinCount != 0 {
			continue
		}
		var kthAccess time.Time
		if len(frame.accessHistory) > 0 {
			kthAccess = frame.accessHistory[0]
		}
		if victimElement == nil || kthAccess.Before(oldestKthAccess) {
			victimElement = e
			oldestKthAccess = kthAccess
		}
	}

	if victimElement == nil {
		return nil, ErrBufferPoolFull
	}

	frame := victimElement.Value.(*Frame)
	if frame.dirty {
		if err := bp.file.WritePage(frame.page); err != nil {
			return nil, err
		}
		bp.writes.Add(1)
	}
	delete(bp.pageTable, frame.pageID)
	bp.lruList.Remove(victimElement)
	frame.lruElement = nil
	frame.dirty = false
	frame.accessHistory = frame.accessHistory[:0]
	return frame, nil
}

// UnfixPage unpins a page and marks it dirty if it was modified.
// Unfixing a page that is not fixed returns ErrPageNotFixed.
func (bp *BufferPool) UnfixPage(pageID PageID, dirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable[pageID]
	if !ok || frame.pinCount <= 0 {
		return ErrPageNotFixed
	}
	frame.pinCount--
	if dirty {
		frame.dirty = true
	}
	if frame.pinCount == 0 && frame.lruElement == nil {
		frame.lruElement = bp.lruList.PushFront(frame)
	}
	return nil
}

// AllocPage appends a zero-filled page to the file and returns it fixed
// and marked dirty.
func (bp *BufferPool) AllocPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil, ErrFileClosed
	}

	frame, err := bp.getFrame()
	if err != nil {
		return nil, err
	}
	pageID, err := bp.file.AllocatePage()
	if err != nil {
		bp.freeFrames = append(bp.freeFrames, frame)
		return nil, err
	}
	page := NewPage(pageID)
	bp.installLocked(frame, page, true)
	return page, nil
}

// FlushPage writes a specific page to disk if dirty.
func (bp *BufferPool) FlushPage(pageID PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable[pageID]
	if !ok || !frame.dirty {
		return nil
	}
	if err := bp.file.WritePage(frame.page); err != nil {
		return err
	}
	bp.writes.Add(1)
	frame.dirty = false
	return nil
}

// FlushAllPages writes all dirty pages to disk.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushAllLocked()
}

func (bp *BufferPool) flushAllLocked() error {
	for _, frame := range bp.pageTable {
		if !frame.dirty {
			continue
		}
		if err := bp.file.WritePage(frame.page); err != nil {
			return err
		}
		bp.writes.Add(1)
		frame.dirty = false
	}
	return nil
}

// Stats returns buffer pool statistics.
func (bp *BufferPool) Stats() BufferPoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	stats := BufferPoolStats{
		PoolSize:   bp.poolSize,
		UsedFrames: len(bp.pageTable),
		Hits:       bp.hits.Load(),
		Misses:     bp.misses.Load(),
		Prefetches: bp.prefetches.Load(),
		PageWrites: bp.writes.Load(),
	}
	for _, frame := range bp.pageTable {
		if frame.dirty {
			stats.DirtyPages++
		}
		if frame.pinCount > 0 {
			stats.PinnedPages++
		}
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// PageCount returns the number of pages in the underlying file.
func (bp *BufferPool) PageCount() uint32 {
	return bp.file.PageCount()
}

// Close stops the prefetcher, flushes all dirty pages and closes the
// file. Closing a closed pool is a no-op.
func (bp *BufferPool) Close() error {
	if bp.prefetchActive.CompareAndSwap(true, false) {
		close(bp.prefetchDone)
		bp.prefetchWG.Wait()
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil
	}
	if err := bp.flushAllLocked(); err != nil {
		return err
	}
	bp.closed = true
	if n := bp.pinnedLocked(); n > 0 {
		diskLog.Warn("Closing buffer pool with fixed pages", "path", bp.file.FilePath(), "pinned", n)
	}
	return bp.file.Close()
}

func (bp *BufferPool) pinnedLocked() int {
	n := 0
	for _, frame := range bp.pageTable {
		if frame.pinCount > 0 {
			n++
		}
	}
	return n
}

// File returns the underlying paged file.
func (bp *BufferPool) File() *PagedFile {
	return bp.file
}

// PoolSize returns the buffer pool size in pages.
func (bp *BufferPool) PoolSize() int {
	return bp.poolSize
}
