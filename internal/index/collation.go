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

package index

import (
	"fmt"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation names accepted besides BCP 47 language tags.
const (
	CollationBinary = "binary"
	CollationNocase = "nocase"
)

// Collator orders varchar keys.
type Collator interface {
	// Compare returns -1 if a < b, 0 if a == b, 1 if a > b.
	Compare(a, b string) int

	// Name returns the collation name stored with a saved index.
	Name() string
}

// BinaryCollator uses strict byte-wise comparison.
type BinaryCollator struct{}

// Compare implements Collator.
func (BinaryCollator) Compare(a, b string) int {
	return strings.Compare(a, b)
}

// Name implements Collator.
func (BinaryCollator) Name() string { return CollationBinary }

// NocaseCollator uses case-insensitive comparison.
type NocaseCollator struct{}

// Compare implements Collator.
func (NocaseCollator) Compare(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Name implements Collator.
func (NocaseCollator) Name() string { return CollationNocase }

// UnicodeCollator uses Unicode collation with locale support. Loose
// matching ignores case and accents, so "Cafe" and "café" are equal keys.
// It is not safe for concurrent use.
type UnicodeCollator struct {
	collator *collate.Collator
	tag      language.Tag
}

// NewUnicodeCollator creates a collator for a BCP 47 tag such as "en" or "sv".
func NewUnicodeCollator(locale string) (*UnicodeCollator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("unknown collation %q: %w", locale, err)
	}
	return &UnicodeCollator{
		collator: collate.New(tag, collate.Loose),
		tag:      tag,
	}, nil
}

// Compare implements Collator.
func (c *UnicodeCollator) Compare(a, b string) int {
	return c.collator.CompareString(a, b)
}

// Name implements Collator.
func (c *UnicodeCollator) Name() string {
	return c.tag.String()
}

// NewCollator returns the collator for name. An empty name is binary.
func NewCollator(name string) (Collator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CollationBinary:
		return BinaryCollator{}, nil
	case CollationNocase:
		return NocaseCollator{}, nil
	}
	return NewUnicodeCollator(name)
}
