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
	"bytes"
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	herrors "heapdb/internal/errors"
	"heapdb/internal/metrics"
	"heapdb/internal/schema"
	"heapdb/internal/storage/disk"
)

func openTestTable(t *testing.T, s *schema.Schema) (*Table, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	tbl, err := Open(path, s, true, Options{PoolSize: 8, Metrics: &metrics.Storage{}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl, path
}

func pinnedPages(t *testing.T, tbl *Table) int {
	t.Helper()
	st, err := tbl.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Pool == nil {
		t.Fatal("Expected buffer pool stats")
	}
	return st.Pool.PinnedPages
}

func TestBoundaryScenario(t *testing.T) {
	s := schema.MustParse("name:varchar,n:int")
	tbl, _ := openTestTable(t, s)

	rows := [][]string{{"Alpha", "1"}, {"B", "2"}, {"LongerValueHere", "3"}}
	var rids []RID
	for _, row := range rows {
		rec, err := s.Encode(row)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		rid, err := tbl.Insert(rec)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		rids = append(rids, rid)
	}
	if rids[0] == rids[1] || rids[1] == rids[2] || rids[0] == rids[2] {
		t.Fatalf("Expected distinct RIDs, got %v", rids)
	}

	var got [][]string
	err := tbl.Scan(func(rid RID, rec []byte) error {
		values, err := s.Decode(rec)
		if err != nil {
			return err
		}
		got = append(got, []string{values[0].String(), values[1].String()})
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(got))
	}
	for i := range rows {
		if got[i][0] != rows[i][0] || got[i][1] != rows[i][1] {
			t.Errorf("row %d = %v, want %v", i, got[i], rows[i])
		}
	}

	buf := make([]byte, 64)
	n, err := tbl.Get(rids[1], buf)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	values, err := s.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if values[0].Text != "B" || values[1].Int != 2 {
		t.Errorf("Expected (B, 2), got %v", values)
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	tbl, _ := openTestTable(t, nil)

	for _, size := range []int{1, 2, 100, 4000, MaxRecordSize} {
		rec := bytes.Repeat([]byte{byte(size)}, size)
		rid, err := tbl.Insert(rec)
		if err != nil {
			t.Fatalf("Insert(%d bytes) failed: %v", size, err)
		}
		got, err := tbl.Fetch(rid)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", rid, err)
		}
		if !bytes.Equal(got, rec) {
			t.Errorf("size %d: record mismatch", size)
		}
	}
	if n := pinnedPages(t, tbl); n != 0 {
		t.Errorf("Expected no pinned pages, got %d", n)
	}
}

func TestRIDsUniqueAndReadable(t *testing.T) {
	tbl, _ := openTestTable(t, nil)
	rng := rand.New(rand.NewSource(1))

	records := make(map[RID][]byte)
	var order []RID
	for i := 0; i < 600; i++ {
		rec := make([]byte, 1+rng.Intn(300))
		rng.Read(rec)
		rid, err := tbl.Insert(rec)
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		if _, dup := records[rid]; dup {
			t.Fatalf("duplicate RID %s", rid)
		}
		records[rid] = rec
		order = append(order, rid)
	}

	for i := len(order) - 1; i >= 0; i-- {
		rid := order[i]
		got, err := tbl.Fetch(rid)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", rid, err)
		}
		if !bytes.Equal(got, records[rid]) {
			t.Errorf("record %s mismatch", rid)
		}
	}

	seen := 0
	var prev RID
	err := tbl.Scan(func(rid RID, rec []byte) error {
		if seen > 0 && rid <= prev {
			t.Errorf("scan order: %s after %s", rid, prev)
		}
		prev = rid
		seen++
		if !bytes.Equal(rec, records[rid]) {
			t.Errorf("scan record %s mismatch", rid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if seen != len(records) {
		t.Errorf("Scan visited %d records, want %d", seen, len(records))
	}
}

func TestFirstFitPlacement(t *testing.T) {
	tbl, _ := openTestTable(t, nil)
	insert := func(size int) RID {
		t.Helper()
		rid, err := tbl.Insert(bytes.Repeat([]byte{'r'}, size))
		if err != nil {
			t.Fatalf("Insert(%d) failed: %v", size, err)
		}
		return rid
	}

	a := insert(3000) // page 1, 1088 bytes left for the next record
	b := insert(2000) // page 2, 2088 left
	c := insert(3000) // fits neither, page 3
	d := insert(1000) // fits page 1 again

	if a.Page() != 1 || b.Page() != 2 || c.Page() != 3 {
		t.Fatalf("unexpected pages a=%s b=%s c=%s", a, b, c)
	}
	if d.Page() != 1 || d.Slot() != 1 {
		t.Errorf("Expected the small record on page 1 slot 1, got %s", d)
	}
	e := insert(2000) // page 1 has 86 left, page 2 has 2088
	if e.Page() != 2 {
		t.Errorf("Expected page 2, got %s", e)
	}
}

func TestFreeSpaceInvariant(t *testing.T) {
	tbl, path := openTestTable(t, nil)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 400; i++ {
		if _, err := tbl.Insert(make([]byte, 1+rng.Intn(700))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	pf, err := disk.OpenFile(path, disk.FileOptions{})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer pf.Close()

	for id := disk.PageID(1); uint32(id) <= pf.PageCount(); id++ {
		page, err := pf.ReadPage(id)
		if err != nil {
			t.Fatalf("ReadPage(%d) failed: %v", id, err)
		}
		sp := SlottedPage(page.Data())

		type span struct{ start, end int }
		var spans []span
		total := 0
		for i := 0; i < sp.SlotCount(); i++ {
			n := sp.RecordLength(i)
			if n <= 0 {
				t.Errorf("page %d slot %d: length %d", id, i, n)
			}
			total += n
			spans = append(spans, span{sp.SlotOffset(i), sp.SlotOffset(i) + n})
		}
		if total+HeaderSize+sp.SlotCount()*SlotSize > disk.PageSize {
			t.Errorf("page %d overfull: %d record bytes, %d slots", id, total, sp.SlotCount())
		}

		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		pos := sp.FreeSpacePointer()
		for _, s := range spans {
			if s.start != pos {
				t.Errorf("page %d: gap or overlap at %d (expected %d)", id, s.start, pos)
			}
			pos = s.end
		}
		if pos != disk.PageSize {
			t.Errorf("page %d: records end at %d", id, pos)
		}
	}
}

func TestInsertRejectsBadLengths(t *testing.T) {
	tbl, _ := openTestTable(t, nil)

	if _, err := tbl.Insert(nil); herrors.GetCode(err) != herrors.ErrCodeEmptyRecord {
		t.Errorf("Expected EmptyRecord, got %v", err)
	}
	if _, err := tbl.Insert(make([]byte, MaxRecordSize+1)); !herrors.IsCapacityError(err) {
		t.Errorf("Expected capacity error, got %v", err)
	}
	st, err := tbl.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Pages != 0 {
		t.Errorf("rejected inserts must not allocate pages, got %d", st.Pages)
	}
}

func TestGetEdgeCases(t *testing.T) {
	tbl, _ := openTestTable(t, nil)
	rid, _ := tbl.Insert([]byte("HelloWorld"))

	small := make([]byte, 4)
	n, err := tbl.Get(rid, small)
	if err != nil || n != 4 || string(small) != "Hell" {
		t.Errorf("Get into small buffer = (%d, %v, %q)", n, err, small)
	}

	n, err = tbl.Get(NewRID(rid.Page(), 9), make([]byte, 16))
	if err != nil || n != 0 {
		t.Errorf("Get on missing slot = (%d, %v), want (0, nil)", n, err)
	}

	_, err = tbl.Get(NewRID(99, 0), small)
	if !herrors.IsStorageError(err) || !errors.Is(err, disk.ErrPageNotFound) {
		t.Errorf("Expected storage error wrapping ErrPageNotFound, got %v", err)
	}
	if _, err := tbl.Get(RID(3), small); !errors.Is(err, disk.ErrPageNotFound) {
		t.Errorf("Expected ErrPageNotFound for page 0, got %v", err)
	}

	if _, err := tbl.Fetch(NewRID(rid.Page(), 9)); herrors.GetCode(err) != herrors.ErrCodeNoRecord {
		t.Errorf("Expected RecordNotFound, got %v", err)
	}
	if n := pinnedPages(t, tbl); n != 0 {
		t.Errorf("Expected no pinned pages, got %d", n)
	}
}

func TestReopenAndOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	tbl, err := Open(path, nil, false, Options{})
	if err != nil {
		t.Fatalf("Open of a missing file should create it: %v", err)
	}
	rid, _ := tbl.Insert([]byte("persisted"))
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tbl, err = Open(path, nil, false, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := tbl.Fetch(rid)
	if err != nil || string(got) != "persisted" {
		t.Errorf("Fetch after reopen = (%q, %v)", got, err)
	}
	tbl.Close()

	tbl, err = Open(path, nil, true, Options{})
	if err != nil {
		t.Fatalf("overwrite open failed: %v", err)
	}
	defer tbl.Close()
	count := 0
	tbl.Scan(func(RID, []byte) error { count++; return nil })
	if count != 0 {
		t.Errorf("Expected empty table after overwrite, got %d records", count)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	var nilTable *Table
	if err := nilTable.Close(); err != nil {
		t.Errorf("Close on nil table: %v", err)
	}

	tbl, _ := openTestTable(t, nil)
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := tbl.Insert([]byte("x")); herrors.GetCode(err) != herrors.ErrCodeFileClosed {
		t.Errorf("Expected FileClosed, got %v", err)
	}
	if err := tbl.Scan(func(RID, []byte) error { return nil }); herrors.GetCode(err) != herrors.ErrCodeFileClosed {
		t.Errorf("Expected FileClosed, got %v", err)
	}
}

func TestScanCallbackErrors(t *testing.T) {
	tbl, _ := openTestTable(t, nil)
	for i := 0; i < 10; i++ {
		tbl.Insert(bytes.Repeat([]byte{'z'}, 1000))
	}

	boom := errors.New("boom")
	calls := 0
	err := tbl.Scan(func(RID, []byte) error {
		calls++
		if calls == 5 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || calls != 5 {
		t.Errorf("Expected boom after 5 calls, got %v after %d", err, calls)
	}
	if n := pinnedPages(t, tbl); n != 0 {
		t.Errorf("page left fixed after callback error: %d", n)
	}

	calls = 0
	err = tbl.Scan(func(RID, []byte) error {
		calls++
		return ErrStopScan
	})
	if err != nil || calls != 1 {
		t.Errorf("ErrStopScan: got %v after %d calls", err, calls)
	}
}

func TestEncryptedTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.db")
	tbl, err := Open(path, nil, true, Options{Passphrase: "pw"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rid, _ := tbl.Insert([]byte("classified"))
	tbl.Close()

	if _, err := Open(path, nil, false, Options{}); !errors.Is(err, disk.ErrPassphraseRequired) || !herrors.IsStorageError(err) {
		t.Errorf("Expected storage error wrapping ErrPassphraseRequired, got %v", err)
	}

	tbl, err = Open(path, nil, false, Options{Passphrase: "pw"})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tbl.Close()
	got, err := tbl.Fetch(rid)
	if err != nil || string(got) != "classified" {
		t.Errorf("Fetch = (%q, %v)", got, err)
	}
}

func TestStatsCounts(t *testing.T) {
	tbl, _ := openTestTable(t, nil)
	for i := 0; i < 5; i++ {
		tbl.Insert(make([]byte, 2000))
	}
	st, err := tbl.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Pages != 3 || st.Records != 5 {
		t.Errorf("Expected 3 pages and 5 records, got %s", st)
	}
	if st.UsedBytes+st.FreeBytes != 3*disk.PageSize {
		t.Errorf("used+free = %d, want %d", st.UsedBytes+st.FreeBytes, 3*disk.PageSize)
	}
	if s := st.String(); !strings.HasPrefix(s, "pages=3 records=5 used=") || !strings.Contains(s, "KiB") {
		t.Errorf("Unexpected stats string %q", s)
	}
}

// faultyCache wraps a buffer pool, counts fixes and unfixes, and fails
// the n-th fix when failAt is set.
type faultyCache struct {
	*disk.BufferPool
	fixes, unfixes int
	failAt         int
}

var errInjected = errors.New("injected fault")

func (c *faultyCache) fix(fn func() (*disk.Page, error)) (*disk.Page, error) {
	if c.failAt > 0 && c.fixes+1 == c.failAt {
		c.failAt = 0
		return nil, errInjected
	}
	p, err := fn()
	if err == nil {
		c.fixes++
	}
	return p, err
}

func (c *faultyCache) FixPage(id disk.PageID) (*disk.Page, error) {
	return c.fix(func() (*disk.Page, error) { return c.BufferPool.FixPage(id) })
}

func (c *faultyCache) FixFirstPage() (*disk.Page, error) {
	return c.fix(c.BufferPool.FixFirstPage)
}

func (c *faultyCache) FixNextPage(after disk.PageID) (*disk.Page, error) {
	return c.fix(func() (*disk.Page, error) { return c.BufferPool.FixNextPage(after) })
}

func (c *faultyCache) AllocPage() (*disk.Page, error) {
	return c.fix(c.BufferPool.AllocPage)
}

func (c *faultyCache) UnfixPage(id disk.PageID, dirty bool) error {
	c.unfixes++
	return c.BufferPool.UnfixPage(id, dirty)
}

func TestFaultsAreSurfacedAndPagesReleased(t *testing.T) {
	pf, err := disk.CreateFile(filepath.Join(t.TempDir(), "f.db"), disk.FileOptions{})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	cache := &faultyCache{BufferPool: disk.NewBufferPool(pf, 4)}
	tbl := NewTable(cache, nil)
	tbl.metrics = &metrics.Storage{}
	defer tbl.Close()

	for i := 0; i < 3; i++ {
		if _, err := tbl.Insert(make([]byte, 3000)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// The third fix of the next insert is page 3 during the first-fit walk.
	cache.failAt = cache.fixes + 3
	if _, err := tbl.Insert(make([]byte, 3000)); !errors.Is(err, errInjected) || !herrors.IsStorageError(err) {
		t.Errorf("Expected injected storage error from Insert, got %v", err)
	}

	cache.failAt = cache.fixes + 2
	if err := tbl.Scan(func(RID, []byte) error { return nil }); !errors.Is(err, errInjected) {
		t.Errorf("Expected injected error from Scan, got %v", err)
	}

	cache.failAt = cache.fixes + 1
	if _, err := tbl.Fetch(NewRID(1, 0)); !errors.Is(err, errInjected) {
		t.Errorf("Expected injected error from Fetch, got %v", err)
	}

	if cache.fixes != cache.unfixes {
		t.Errorf("fixes=%d unfixes=%d", cache.fixes, cache.unfixes)
	}
	if tbl.metrics.Errors.Load() != 3 {
		t.Errorf("Expected 3 recorded errors, got %d", tbl.metrics.Errors.Load())
	}
}
