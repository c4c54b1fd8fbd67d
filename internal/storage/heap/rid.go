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

package heap

import (
	"fmt"
	"strconv"
	"strings"

	"heapdb/internal/storage/disk"
)

const slotBits = 16

// RID identifies a record by page and slot: (page << 16) | slot.
// Only the heap table interprets it. RIDs are never reused.
type RID uint64

// NewRID packs a page number and slot number.
func NewRID(page disk.PageID, slot uint16) RID {
	return RID(uint64(page)<<slotBits | uint64(slot))
}

// Page returns the page number.
func (r RID) Page() disk.PageID {
	return disk.PageID(r >> slotBits)
}

// Slot returns the slot number within the page.
func (r RID) Slot() uint16 {
	return uint16(r & 0xFFFF)
}

// Valid reports whether the RID names a real page.
func (r RID) Valid() bool {
	return r.Page() != disk.InvalidPageID
}

// String formats the RID as "page.slot".
func (r RID) String() string {
	return fmt.Sprintf("%d.%d", r.Page(), r.Slot())
}

// ParseRID parses the "page.slot" form produced by String. A bare
// integer is accepted as the packed value.
func ParseRID(s string) (RID, error) {
	s = strings.TrimSpace(s)
	page, slot, ok := strings.Cut(s, ".")
	if !ok {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid rid %q", s)
		}
		return RID(v), nil
	}
	p, err := strconv.ParseUint(page, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid rid page %q", page)
	}
	sl, err := strconv.ParseUint(slot, 10, slotBits)
	if err != nil {
		return 0, fmt.Errorf("invalid rid slot %q", slot)
	}
	return NewRID(disk.PageID(p), uint16(sl)), nil
}
