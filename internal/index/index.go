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
Package index maps column values to RIDs for ordered range scans.

Structure:
==========

An Index is an in-memory B-tree of (key, RID) entries ordered by key,
then by RID, so duplicate keys come back in file order. Keys are given
in the codec encoding of one column type:

	idx, _ := index.New(schema.TypeInt, index.Options{})
	key, _ := s.EncodeField(2, "100000")
	idx.Insert(key, rid)
	idx.Scan(index.LE, key, func(rid heap.RID) bool { ...; return true })

int and long keys compare numerically. varchar keys compare with the
configured collator.

Persistence:
============

Save writes the index as a heap table file. Record 0 is a meta record
holding the key type and the collation name, both as codec text. Every
further record is the encoded key followed by the RID as a codec int64:

	[keyType text][collation text]
	[key bytes][rid:8]
	[key bytes][rid:8]
	...

Load reads the file back and rebuilds the tree.
*/
package index

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/btree"

	"heapdb/internal/codec"
	herrors "heapdb/internal/errors"
	"heapdb/internal/logging"
	"heapdb/internal/schema"
	"heapdb/internal/storage/disk"
	"heapdb/internal/storage/heap"
)

// Op is a scan comparison operator.
type Op int

// Scan operators.
const (
	EQ Op = iota + 1
	LT
	LE
	GT
	GE
	NE
)

var opNames = map[Op]string{EQ: "=", LT: "<", LE: "<=", GT: ">", GE: ">=", NE: "!="}

var opAliases = map[string]Op{
	"=": EQ, "==": EQ, "eq": EQ,
	"<": LT, "lt": LT,
	"<=": LE, "le": LE,
	">": GT, "gt": GT,
	">=": GE, "ge": GE,
	"!=": NE, "<>": NE, "ne": NE,
}

// String returns the symbolic form of the operator.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp parses "=", "<", "<=", ">", ">=", "!=" or their two-letter names.
func ParseOp(s string) (Op, error) {
	if op, ok := opAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return 0, herrors.InvalidOperator(s)
}

// DefaultDegree is the B-tree degree used when Options.Degree is 0.
const DefaultDegree = 32

// Options configures a new index.
type Options struct {
	// Collation orders varchar keys: "binary", "nocase" or a BCP 47 tag.
	Collation string

	// Degree is the B-tree degree.
	Degree int
}

type entry struct {
	key schema.Value
	raw []byte
	rid heap.RID
}

// Index is an ordered (key, RID) store. It is safe for concurrent use,
// but fn passed to Scan must not call back into the same index.
type Index struct {
	mu       sync.Mutex
	keyType  schema.ColumnType
	collator Collator
	tree     *btree.BTreeG[entry]
	logger   *logging.Logger
}

// New creates an empty index for keys of keyType.
func New(keyType schema.ColumnType, opts Options) (*Index, error) {
	if _, ok := schema.ValidColumnTypes[string(keyType)]; !ok {
		return nil, herrors.MalformedSchema(fmt.Sprintf("unknown key type '%s'", keyType))
	}
	collator, err := NewCollator(opts.Collation)
	if err != nil {
		return nil, herrors.NewStorageError("invalid collation").WithCause(err)
	}
	degree := opts.Degree
	if degree <= 1 {
		degree = DefaultDegree
	}

	idx := &Index{
		keyType:  keyType,
		collator: collator,
		logger:   logging.NewLogger("index"),
	}
	idx.tree = btree.NewG(degree, idx.less)
	return idx, nil
}

// KeyType returns the column type of the keys.
func (idx *Index) KeyType() schema.ColumnType {
	return idx.keyType
}

// Collation returns the collation name.
func (idx *Index) Collation() string {
	return idx.collator.Name()
}

func (idx *Index) compareKeys(a, b schema.Value) int {
	if idx.keyType == schema.TypeVarchar {
		return idx.collator.Compare(a.Text, b.Text)
	}
	switch {
	case a.Int < b.Int:
		return -1
	case a.Int > b.Int:
		return 1
	}
	return 0
}

func (idx *Index) less(a, b entry) bool {
	if c := idx.compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.rid < b.rid
}

// decodeKey decodes a whole encoded key.
func (idx *Index) decodeKey(key []byte) (schema.Value, error) {
	v, n, err := schema.DecodeValue(idx.keyType, key)
	if err != nil {
		return schema.Value{}, herrors.CodecError(fmt.Sprintf("%s key", idx.keyType), err)
	}
	if n != len(key) {
		return schema.Value{}, herrors.CodecError(fmt.Sprintf("%d trailing bytes after %s key", len(key)-n, idx.keyType), nil)
	}
	return v, nil
}

// Insert adds (key, rid). key is the codec encoding of one value of the
// index key type.
func (idx *Index) Insert(key []byte, rid heap.RID) error {
	v, err := idx.decodeKey(key)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.ReplaceOrInsert(entry{key: v, raw: append([]byte(nil), key...), rid: rid})
	return nil
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.tree.Len()
}

// Scan calls fn for every RID whose key satisfies "key op bound", in key
// order. fn returns false to stop.
func (idx *Index) Scan(op Op, bound []byte, fn func(rid heap.RID) bool) error {
	if _, ok := opNames[op]; !ok {
		return herrors.InvalidOperator(op.String())
	}
	v, err := idx.decodeKey(bound)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	first := entry{key: v, rid: 0}
	visit := func(e entry) bool { return fn(e.rid) }

	switch op {
	case EQ:
		idx.tree.AscendGreaterOrEqual(first, func(e entry) bool {
			if idx.compareKeys(e.key, v) != 0 {
				return false
			}
			return visit(e)
		})
	case GE:
		idx.tree.AscendGreaterOrEqual(first, visit)
	case GT:
		idx.tree.AscendGreaterOrEqual(first, func(e entry) bool {
			if idx.compareKeys(e.key, v) == 0 {
				return true
			}
			return visit(e)
		})
	case LT:
		idx.tree.AscendLessThan(first, visit)
	case LE:
		// No stored RID equals MaxUint64, so every equal key sorts below
		// this pivot.
		idx.tree.AscendLessThan(entry{key: v, rid: math.MaxUint64}, visit)
	case NE:
		idx.tree.Ascend(func(e entry) bool {
			if idx.compareKeys(e.key, v) == 0 {
				return true
			}
			return visit(e)
		})
	}
	return nil
}

// Save writes the index to path as a heap table, replacing any existing file.
func (idx *Index) Save(path string, opts heap.Options) error {
	op := logging.StartOp(idx.logger, "save index", "path", path)

	tbl, err := heap.Open(path, nil, true, opts)
	if err != nil {
		op.Done(err)
		return err
	}
	err = idx.writeTo(tbl)
	if cerr := tbl.Close(); err == nil {
		err = cerr
	}
	op.Done(err, "entries", idx.Len())
	return err
}

func (idx *Index) writeTo(tbl *heap.Table) error {
	meta := make([]byte, codec.TextSize(string(idx.keyType))+codec.TextSize(idx.Collation()))
	n, _ := codec.EncodeText(string(idx.keyType), meta)
	codec.EncodeText(idx.Collation(), meta[n:])
	if _, err := tbl.Insert(meta); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	var err error
	idx.tree.Ascend(func(e entry) bool {
		rec := make([]byte, len(e.raw)+codec.Int64Size)
		copy(rec, e.raw)
		codec.EncodeInt64(int64(e.rid), rec[len(e.raw):])
		_, err = tbl.Insert(rec)
		return err == nil
	})
	return err
}

// Load reads an index written by Save.
func Load(path string, opts heap.Options) (*Index, error) {
	if !disk.FileExists(path) {
		return nil, herrors.IOError("open index", fmt.Errorf("%s: %w", path, errNoIndexFile))
	}
	tbl, err := heap.Open(path, nil, false, opts)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()

	var idx *Index
	err = tbl.Scan(func(rid heap.RID, rec []byte) error {
		if idx == nil {
			idx, err = newFromMeta(rec)
			return err
		}
		return idx.loadEntry(rec)
	})
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, herrors.IndexCorrupted("missing meta record", nil)
	}
	idx.logger.Debug("Index loaded", "path", path, "entries", idx.Len())
	return idx, nil
}

var errNoIndexFile = errors.New("index file does not exist")

func newFromMeta(rec []byte) (*Index, error) {
	keyType, n, err := codec.DecodeText(rec)
	if err != nil {
		return nil, herrors.IndexCorrupted("meta record", err)
	}
	collation, _, err := codec.DecodeText(rec[n:])
	if err != nil {
		return nil, herrors.IndexCorrupted("meta record", err)
	}
	idx, err := New(schema.ColumnType(keyType), Options{Collation: collation})
	if err != nil {
		return nil, herrors.IndexCorrupted("meta record", err)
	}
	return idx, nil
}

func (idx *Index) loadEntry(rec []byte) error {
	if len(rec) <= codec.Int64Size {
		return herrors.IndexCorrupted(fmt.Sprintf("entry of %d bytes", len(rec)), nil)
	}
	split := len(rec) - codec.Int64Size
	rid, err := codec.DecodeInt64(rec[split:])
	if err != nil {
		return herrors.IndexCorrupted("entry rid", err)
	}
	if err := idx.Insert(rec[:split], heap.RID(rid)); err != nil {
		return herrors.IndexCorrupted("entry key", err)
	}
	return nil
}
