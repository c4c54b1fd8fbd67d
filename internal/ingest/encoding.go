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

package ingest

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Input encodings accepted by NewDecodingReader.
const (
	EncodingUTF8        = "utf8"
	EncodingLatin1      = "latin1"
	EncodingWindows1252 = "windows1252"
)

var charmaps = map[string]*charmap.Charmap{
	EncodingLatin1:      charmap.ISO8859_1,
	"iso-8859-1":        charmap.ISO8859_1,
	EncodingWindows1252: charmap.Windows1252,
	"cp1252":            charmap.Windows1252,
}

// NewDecodingReader returns a reader that yields UTF-8 from r, which is
// in the named encoding. UTF-8 input is passed through unchanged and
// checked per field by the loader instead.
func NewDecodingReader(r io.Reader, encoding string) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(encoding))
	switch name {
	case "", EncodingUTF8, "utf-8":
		return r, nil
	}
	cm, ok := charmaps[name]
	if !ok {
		return nil, &UnsupportedEncodingError{Name: encoding}
	}
	return transform.NewReader(r, cm.NewDecoder()), nil
}

// UnsupportedEncodingError names an input encoding with no decoder.
type UnsupportedEncodingError struct {
	Name string
}

func (e *UnsupportedEncodingError) Error() string {
	return "unsupported input encoding: " + e.Name
}

func validUTF8(fields []string) (int, bool) {
	for i, f := range fields {
		if !utf8.ValidString(f) {
			return i, false
		}
	}
	return 0, true
}
