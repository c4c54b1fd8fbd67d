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
Slotted Page Layout
===================

Every page of a heap table uses the following layout. All fields are
16-bit big-endian values.

	┌─────────────────────────────────────────────────────────────────┐
	│ [0,2) free-space pointer │ [2,4) slot count                     │
	├─────────────────────────────────────────────────────────────────┤
	│ Slot directory (grows →)                                        │
	│ [slot 0 offset] [slot 1 offset] [slot 2 offset] ...             │
	├─────────────────────────────────────────────────────────────────┤
	│                                                                 │
	│                    Free Space                                   │
	│                                                                 │
	├─────────── free-space pointer ──────────────────────────────────┤
	│ Record Data (← grows)                                           │
	│ [record 2] [record 1] [record 0]                      PageSize  │
	└─────────────────────────────────────────────────────────────────┘

Record lengths are not stored. The record of a slot extends from its
offset up to the next-higher offset of any other valid slot on the
page, or up to PageSize. Because records are only ever appended below
the free-space pointer, offsets strictly decrease in slot order and the
gaps are exact.

A slot offset of 0 marks an unused slot. No operation writes one; the
value is reserved.

A page whose free-space pointer and slot count are both 0 has never
been initialized (a freshly allocated zero page) and is initialized on
first insert.
*/
package heap

import (
	"encoding/binary"
	"errors"

	"heapdb/internal/storage/disk"
)

// Page layout constants
const (
	// HeaderSize is the size of the free-space pointer plus slot count.
	HeaderSize = 4

	// SlotSize is the size of one slot directory entry.
	SlotSize = 2

	// MaxRecordSize is the largest record that fits on an empty page.
	MaxRecordSize = disk.PageSize - HeaderSize - SlotSize
)

// ErrPageFull is returned when a record does not fit in a page's free space.
var ErrPageFull = errors.New("page is full")

var byteOrder = binary.BigEndian

// SlottedPage interprets a page buffer with the slotted layout. It is a
// view: all methods read and write the underlying buffer directly.
type SlottedPage []byte

// InitPage resets p to an empty slotted page.
func InitPage(p []byte) SlottedPage {
	sp := SlottedPage(p)
	sp.setFreeSpacePointer(len(p))
	sp.setSlotCount(0)
	return sp
}

// Initialized reports whether the page header has ever been written.
func (p SlottedPage) Initialized() bool {
	return p.FreeSpacePointer() != 0 || p.SlotCount() != 0
}

// FreeSpacePointer returns the lowest offset occupied by record data.
func (p SlottedPage) FreeSpacePointer() int {
	return int(byteOrder.Uint16(p[0:2]))
}

func (p SlottedPage) setFreeSpacePointer(off int) {
	byteOrder.PutUint16(p[0:2], uint16(off))
}

// SlotCount returns the number of allocated slots.
func (p SlottedPage) SlotCount() int {
	return int(byteOrder.Uint16(p[2:4]))
}

func (p SlottedPage) setSlotCount(n int) {
	byteOrder.PutUint16(p[2:4], uint16(n))
}

// SlotOffset returns the start offset of slot i's record, or 0 when i is
// out of range or the slot is unused.
func (p SlottedPage) SlotOffset(i int) int {
	if i < 0 || i >= p.SlotCount() {
		return 0
	}
	pos := HeaderSize + i*SlotSize
	if pos+SlotSize > len(p) {
		return 0
	}
	return int(byteOrder.Uint16(p[pos : pos+SlotSize]))
}

func (p SlottedPage) setSlotOffset(i, off int) {
	pos := HeaderSize + i*SlotSize
	byteOrder.PutUint16(p[pos:pos+SlotSize], uint16(off))
}

// RecordLength returns the length of slot i's record: the distance from
// its offset to the next-higher offset of any other valid slot, or to the
// end of the page. It returns 0 for out-of-range or unused slots.
func (p SlottedPage) RecordLength(i int) int {
	off := p.SlotOffset(i)
	if off == 0 || off > len(p) {
		return 0
	}
	end := len(p)
	n := p.SlotCount()
	for j := 0; j < n; j++ {
		if j == i {
			continue
		}
		o := p.SlotOffset(j)
		if o > off && o < end {
			end = o
		}
	}
	return end - off
}

// Record returns slot i's record bytes as a slice of the page buffer, or
// nil for out-of-range or unused slots.
func (p SlottedPage) Record(i int) []byte {
	n := p.RecordLength(i)
	if n == 0 {
		return nil
	}
	off := p.SlotOffset(i)
	return p[off : off+n]
}

// AvailableSpace returns the number of record bytes that fit on the page
// after the slot directory grows by one entry. It may be negative.
func (p SlottedPage) AvailableSpace() int {
	return p.FreeSpacePointer() - (HeaderSize + (p.SlotCount()+1)*SlotSize)
}

// Append copies rec below the free-space pointer and adds a slot for it.
// It returns the new slot number. When rec does not fit, the page is left
// unchanged and ErrPageFull is returned.
func (p SlottedPage) Append(rec []byte) (int, error) {
	if len(rec) == 0 || len(rec) > p.AvailableSpace() {
		return 0, ErrPageFull
	}
	slot := p.SlotCount()
	off := p.FreeSpacePointer() - len(rec)
	copy(p[off:], rec)
	p.setSlotOffset(slot, off)
	p.setSlotCount(slot + 1)
	p.setFreeSpacePointer(off)
	return slot, nil
}

// UsedBytes returns the bytes taken by the header, the slot directory and
// all records.
func (p SlottedPage) UsedBytes() int {
	return HeaderSize + p.SlotCount()*SlotSize + len(p) - p.FreeSpacePointer()
}
