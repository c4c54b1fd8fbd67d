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
Package codec encodes typed scalar values into compact byte buffers.

Wire Formats:
=============

All multi-byte integers are big-endian, the same byte order the page
headers use. Files written by HeapDB are therefore portable between
hosts.

	Text:   [length:2][bytes:length][0x00]
	Int32:  [value:4]
	Int64:  [value:8]

The text length prefix lets a decoder skip a value without scanning for
the terminator. The terminator is still written and checked on decode,
which catches cursors that drifted onto the wrong offset.

Every function is pure. Callers keep their own cursor and advance it by
the returned byte count:

	n, err := codec.EncodeText("Alpha", buf[used:])
	used += n
	n, err = codec.EncodeInt32(1, buf[used:])
	used += n
*/
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
)

// Encoded sizes.
const (
	TextPrefixSize = 2
	TextTermSize   = 1
	Int32Size      = 4
	Int64Size      = 8

	// MaxTextLen is the longest text the 16-bit prefix can describe.
	MaxTextLen = math.MaxUint16
)

// Errors
var (
	ErrInsufficientSpace = errors.New("insufficient space in destination buffer")
	ErrShortBuffer       = errors.New("source buffer too short")
	ErrTextTooLong       = errors.New("text longer than 65535 bytes")
	ErrEmbeddedNUL       = errors.New("text contains a NUL byte")
	ErrMissingTerminator = errors.New("text terminator missing")
)

var byteOrder = binary.BigEndian

// TextSize returns the encoded size of s.
func TextSize(s string) int {
	return TextPrefixSize + len(s) + TextTermSize
}

// EncodeText writes s as a length-prefixed, NUL-terminated value into dst.
// It returns the number of bytes written, or ErrInsufficientSpace when the
// encoding would not fit in len(dst). Nothing is written on failure.
func EncodeText(s string, dst []byte) (int, error) {
	if len(s) > MaxTextLen {
		return 0, ErrTextTooLong
	}
	if strings.IndexByte(s, 0) >= 0 {
		return 0, ErrEmbeddedNUL
	}
	n := TextSize(s)
	if n > len(dst) {
		return 0, ErrInsufficientSpace
	}
	byteOrder.PutUint16(dst[0:TextPrefixSize], uint16(len(s)))
	copy(dst[TextPrefixSize:], s)
	dst[n-1] = 0
	return n, nil
}

// DecodeTextInto copies the text at the start of src into dst as a
// NUL-terminated C-style string. At most len(dst)-1 bytes are copied and
// dst is always terminated when it has room for at least the terminator.
//
// consumed is the full encoded size of the value in src, independent of
// truncation, so the caller can advance its cursor. truncated reports that
// dst was too small to hold the whole text.
func DecodeTextInto(src, dst []byte) (consumed int, truncated bool, err error) {
	text, consumed, err := decodeText(src)
	if err != nil {
		return 0, false, err
	}
	if len(dst) == 0 {
		return consumed, len(text) > 0, nil
	}
	n := copy(dst[:len(dst)-1], text)
	dst[n] = 0
	return consumed, n < len(text), nil
}

// DecodeText returns the text at the start of src and the number of bytes
// it occupies.
func DecodeText(src []byte) (string, int, error) {
	text, consumed, err := decodeText(src)
	if err != nil {
		return "", 0, err
	}
	return string(text), consumed, nil
}

func decodeText(src []byte) ([]byte, int, error) {
	if len(src) < TextPrefixSize+TextTermSize {
		return nil, 0, ErrShortBuffer
	}
	length := int(byteOrder.Uint16(src[0:TextPrefixSize]))
	end := TextPrefixSize + length
	if end+TextTermSize > len(src) {
		return nil, 0, ErrShortBuffer
	}
	if src[end] != 0 {
		return nil, 0, ErrMissingTerminator
	}
	return src[TextPrefixSize:end], end + TextTermSize, nil
}

// CString returns the bytes of a NUL-terminated buffer up to the terminator.
func CString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// EncodeInt32 writes v into the first 4 bytes of dst.
func EncodeInt32(v int32, dst []byte) (int, error) {
	if len(dst) < Int32Size {
		return 0, ErrInsufficientSpace
	}
	byteOrder.PutUint32(dst, uint32(v))
	return Int32Size, nil
}

// DecodeInt32 reads a value written by EncodeInt32.
func DecodeInt32(src []byte) (int32, error) {
	if len(src) < Int32Size {
		return 0, ErrShortBuffer
	}
	return int32(byteOrder.Uint32(src)), nil
}

// EncodeInt64 writes v into the first 8 bytes of dst.
func EncodeInt64(v int64, dst []byte) (int, error) {
	if len(dst) < Int64Size {
		return 0, ErrInsufficientSpace
	}
	byteOrder.PutUint64(dst, uint64(v))
	return Int64Size, nil
}

// DecodeInt64 reads a value written by EncodeInt64.
func DecodeInt64(src []byte) (int64, error) {
	if len(src) < Int64Size {
		return 0, ErrShortBuffer
	}
	return int64(byteOrder.Uint64(src)), nil
}
