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
	"testing"

	herrors "heapdb/internal/errors"
)

func TestParse(t *testing.T) {
	s, err := Parse("Country:varchar,Capital:varchar,Population:INT\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.NumColumns() != 3 {
		t.Fatalf("Expected 3 columns, got %d", s.NumColumns())
	}
	if c := s.Column(2); c.Name != "Population" || c.Type != TypeInt {
		t.Errorf("Unexpected column 2: %+v", c)
	}
	if i, err := s.ColumnIndex("Capital"); err != nil || i != 1 {
		t.Errorf("ColumnIndex(Capital) = (%d, %v)", i, err)
	}
	if _, err := s.ColumnIndex("Area"); herrors.GetCode(err) != herrors.ErrCodeColumnNotFound {
		t.Errorf("Expected ColumnNotFound, got %v", err)
	}
	if got := s.String(); got != "Country:varchar,Capital:varchar,Population:int" {
		t.Errorf("String() = %q", got)
	}
}

func TestDefaultKeyColumn(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Country:varchar,Capital:varchar,Population:int", "Population"},
		{"a:varchar,b:varchar,c:long,d:int", "c"},
		{"a:varchar,b:varchar,c:varchar", ""},
		{"a:int,b:int", ""},
	}
	for _, tt := range tests {
		col, ok := MustParse(tt.text).DefaultKeyColumn()
		if ok != (tt.want != "") || col.Name != tt.want {
			t.Errorf("%s: DefaultKeyColumn() = (%q, %v), want %q", tt.text, col.Name, ok, tt.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"unknown type", "a:varchar,b:float"},
		{"missing colon", "a:varchar,b"},
		{"empty name", ":int"},
		{"duplicate", "a:int,a:long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if !herrors.IsSchemaError(err) {
				t.Errorf("Parse(%q): expected schema error, got %v", tt.text, err)
			}
		})
	}
}

func TestEncodeDecodeRow(t *testing.T) {
	s := MustParse("name:varchar,n:int,big:long")

	rec, err := s.Encode([]string{"Alpha", "1", "-9223372036854775808"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// 2+5+1 for the text, 4 and 8 for the integers.
	if len(rec) != 20 {
		t.Errorf("Expected 20 bytes, got %d", len(rec))
	}

	values, err := s.Decode(rec)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if values[0].Text != "Alpha" || values[1].Int != 1 || values[2].Int != -9223372036854775808 {
		t.Errorf("Unexpected values: %+v", values)
	}
	if values[1].String() != "1" || values[0].String() != "Alpha" {
		t.Errorf("Unexpected String(): %s %s", values[0], values[1])
	}
}

func TestEncodeRejectsBadRows(t *testing.T) {
	s := MustParse("name:varchar,n:int")

	if _, err := s.Encode([]string{"only one"}); herrors.GetCode(err) != herrors.ErrCodeColumnCountMismatch {
		t.Errorf("Expected ColumnCountMismatch, got %v", err)
	}
	if _, err := s.Encode([]string{"x", "twelve"}); herrors.GetCode(err) != herrors.ErrCodeInvalidField {
		t.Errorf("Expected InvalidField, got %v", err)
	}
	if _, err := s.Encode([]string{"x", "4294967296"}); herrors.GetCode(err) != herrors.ErrCodeInvalidField {
		t.Errorf("Expected InvalidField for int overflow, got %v", err)
	}
	if _, err := s.Encode([]string{"a\x00b", "1"}); herrors.GetCode(err) != herrors.ErrCodeInvalidField {
		t.Errorf("Expected InvalidField for NUL, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	s := MustParse("n:int")
	rec, _ := s.Encode([]string{"7"})

	if _, err := s.Decode(append(rec, 0xFF)); !herrors.IsCodecError(err) {
		t.Errorf("Expected codec error, got %v", err)
	}
	if _, err := s.Decode(rec[:2]); !herrors.IsCodecError(err) {
		t.Errorf("Expected codec error for short record, got %v", err)
	}
}
