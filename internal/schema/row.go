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

package schema

import (
	"fmt"
	"strconv"
	"strings"

	"heapdb/internal/codec"
	herrors "heapdb/internal/errors"
)

// Value is one decoded field. Text is set for varchar columns, Int for
// int and long columns.
type Value struct {
	Type ColumnType
	Text string
	Int  int64
}

// String formats the value the way it appears in CSV input.
func (v Value) String() string {
	if v.Type == TypeVarchar {
		return v.Text
	}
	return strconv.FormatInt(v.Int, 10)
}

// Interface returns the value as a Go string or int64, for JSON output.
func (v Value) Interface() interface{} {
	if v.Type == TypeVarchar {
		return v.Text
	}
	return v.Int
}

// Encode converts textual fields into one record in column order.
// The field count must match the column count. Nothing is encoded
// when any field is invalid.
func (s *Schema) Encode(fields []string) ([]byte, error) {
	if len(fields) != len(s.columns) {
		return nil, herrors.ColumnCountMismatch(len(s.columns), len(fields))
	}

	parts := make([][]byte, len(fields))
	size := 0
	for i, field := range fields {
		b, err := s.EncodeField(i, field)
		if err != nil {
			return nil, err
		}
		parts[i] = b
		size += len(b)
	}

	rec := make([]byte, 0, size)
	for _, b := range parts {
		rec = append(rec, b...)
	}
	return rec, nil
}

// EncodeField encodes a single textual field as column i. The result is
// also the key form the index stores.
func (s *Schema) EncodeField(i int, field string) ([]byte, error) {
	if i < 0 || i >= len(s.columns) {
		return nil, herrors.ColumnNotFound(fmt.Sprintf("#%d", i))
	}
	return EncodeValue(s.columns[i], field)
}

// EncodeValue encodes field according to the type of col.
func EncodeValue(col Column, field string) ([]byte, error) {
	switch col.Type {
	case TypeVarchar:
		buf := make([]byte, codec.TextSize(field))
		if _, err := codec.EncodeText(field, buf); err != nil {
			return nil, herrors.InvalidField(col.Name, field, err.Error())
		}
		return buf, nil

	case TypeInt:
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 32)
		if err != nil {
			return nil, herrors.InvalidField(col.Name, field, "not a 32-bit integer")
		}
		buf := make([]byte, codec.Int32Size)
		codec.EncodeInt32(int32(v), buf)
		return buf, nil

	case TypeLong:
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, herrors.InvalidField(col.Name, field, "not a 64-bit integer")
		}
		buf := make([]byte, codec.Int64Size)
		codec.EncodeInt64(v, buf)
		return buf, nil
	}
	return nil, herrors.MalformedSchema(fmt.Sprintf("unknown type '%s' for column %s", col.Type, col.Name))
}

// Decode interprets a record produced by Encode. Trailing bytes after
// the last column are an error.
func (s *Schema) Decode(rec []byte) ([]Value, error) {
	values := make([]Value, len(s.columns))
	used := 0
	for i, col := range s.columns {
		v, n, err := DecodeValue(col.Type, rec[used:])
		if err != nil {
			return nil, herrors.CodecError(fmt.Sprintf("column %s at byte %d", col.Name, used), err)
		}
		values[i] = v
		used += n
	}
	if used != len(rec) {
		return nil, herrors.CodecError(fmt.Sprintf("%d trailing bytes", len(rec)-used), nil)
	}
	return values, nil
}

// DecodeValue decodes one value of type t from the start of src and
// returns the number of bytes consumed.
func DecodeValue(t ColumnType, src []byte) (Value, int, error) {
	switch t {
	case TypeVarchar:
		text, n, err := codec.DecodeText(src)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Type: t, Text: text}, n, nil

	case TypeInt:
		v, err := codec.DecodeInt32(src)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Type: t, Int: int64(v)}, codec.Int32Size, nil

	case TypeLong:
		v, err := codec.DecodeInt64(src)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Type: t, Int: v}, codec.Int64Size, nil
	}
	return Value{}, 0, fmt.Errorf("unknown column type %q", t)
}
