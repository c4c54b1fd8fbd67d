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
Package schema describes the columns of a heap table.

Schema Text Format:
===================

A schema is written as comma-separated name:type pairs, the same line
that heads a CSV file accepted by heapdb-load:

	Country:varchar,Capital:varchar,Population:int

Supported Column Types:
=======================

  - varchar: variable-length text (codec text encoding)
  - int: 32-bit signed integer
  - long: 64-bit signed integer

Column order is fixed at parse time and is both the encoding order and
the decoding order of a row. A Schema is immutable once parsed and safe
to share.

The heap table itself never looks at the schema. Only the code that
produces or interprets record bytes (loader, dumper, index) needs it.
*/
package schema

import (
	"fmt"
	"strings"

	herrors "heapdb/internal/errors"
)

// ColumnType represents the supported column types.
type ColumnType string

// Column type constants.
const (
	TypeVarchar ColumnType = "varchar"
	TypeInt     ColumnType = "int"
	TypeLong    ColumnType = "long"
)

// ValidColumnTypes maps accepted type names to column types.
var ValidColumnTypes = map[string]ColumnType{
	"varchar": TypeVarchar,
	"int":     TypeInt,
	"long":    TypeLong,
}

// ParseColumnType parses a type tag, ignoring case.
func ParseColumnType(s string) (ColumnType, bool) {
	t, ok := ValidColumnTypes[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// IsFixedWidth reports whether values of the type have a constant encoded size.
func (t ColumnType) IsFixedWidth() bool {
	return t == TypeInt || t == TypeLong
}

// Column describes one named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered list of columns.
type Schema struct {
	columns []Column
	byName  map[string]int
}

// New builds a schema from columns. Column names must be unique and non-empty.
func New(columns ...Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, herrors.MalformedSchema("no columns")
	}
	s := &Schema{
		columns: make([]Column, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if col.Name == "" {
			return nil, herrors.MalformedSchema(fmt.Sprintf("column %d has an empty name", i))
		}
		if _, ok := ValidColumnTypes[string(col.Type)]; !ok {
			return nil, herrors.MalformedSchema(fmt.Sprintf("unknown type '%s' for column %s", col.Type, col.Name))
		}
		if _, dup := s.byName[col.Name]; dup {
			return nil, herrors.MalformedSchema(fmt.Sprintf("duplicate column %s", col.Name))
		}
		s.columns[i] = col
		s.byName[col.Name] = i
	}
	return s, nil
}

// Parse parses schema text such as "Country:varchar,Population:int".
// Surrounding whitespace and a trailing line break are ignored.
func Parse(text string) (*Schema, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, herrors.MalformedSchema("empty schema")
	}

	parts := strings.Split(text, ",")
	columns := make([]Column, 0, len(parts))
	for i, part := range parts {
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return nil, herrors.MalformedSchema(fmt.Sprintf("column %d is not name:type: '%s'", i, strings.TrimSpace(part)))
		}
		name = strings.TrimSpace(name)
		ct, ok := ParseColumnType(typ)
		if !ok {
			return nil, herrors.MalformedSchema(fmt.Sprintf("unknown type '%s' for column %s", strings.TrimSpace(typ), name))
		}
		columns = append(columns, Column{Name: name, Type: ct})
	}
	return New(columns...)
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(text string) *Schema {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// Column returns the i-th column.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Columns returns a copy of the columns in order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// ColumnIndex returns the position of the named column.
func (s *Schema) ColumnIndex(name string) (int, error) {
	i, ok := s.byName[name]
	if !ok {
		return -1, herrors.ColumnNotFound(name)
	}
	return i, nil
}

// DefaultKeyPosition is the column indexed when none is named.
const DefaultKeyPosition = 2

// DefaultKeyColumn returns the column indexed when none is named: the
// third column, if it holds integers.
func (s *Schema) DefaultKeyColumn() (Column, bool) {
	if len(s.columns) <= DefaultKeyPosition || !s.columns[DefaultKeyPosition].Type.IsFixedWidth() {
		return Column{}, false
	}
	return s.columns[DefaultKeyPosition], true
}

// String returns the canonical schema text.
func (s *Schema) String() string {
	var sb strings.Builder
	for i, col := range s.columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(col.Name)
		sb.WriteByte(':')
		sb.WriteString(string(col.Type))
	}
	return sb.String()
}
