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
Package errors provides structured error handling for HeapDB.

The errors package implements a structured error system with:
  - Error categories (Storage, Capacity, Schema, Codec, Index)
  - Error codes for programmatic handling
  - User-friendly error messages with optional hints
  - Error wrapping for root cause analysis

Error Categories:
  - StorageError: paged-file failures (I/O, missing pages, closed files)
  - CapacityError: records that can never fit on a page
  - SchemaError: malformed schema text or rows that do not match a schema
  - CodecError: bytes that cannot be decoded as the expected type
  - IndexError: index files and scan operators

Low-level packages return plain sentinel errors. The table layer wraps
them with the constructors below and keeps the sentinel as the Cause,
so both errors.Is(err, disk.ErrPageNotFound) and IsStorageError(err)
hold for the same value.
*/
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error identifier.
type ErrorCode int

const (
	// Storage errors (5000-5999)
	ErrCodeStorage      ErrorCode = 5000
	ErrCodeIOError      ErrorCode = 5003
	ErrCodePageNotFound ErrorCode = 5005
	ErrCodeFileClosed   ErrorCode = 5006
	ErrCodeNoRecord     ErrorCode = 5007

	// Capacity errors (5100-5199)
	ErrCodeCapacity       ErrorCode = 5100
	ErrCodeRecordTooLarge ErrorCode = 5101
	ErrCodeEmptyRecord    ErrorCode = 5102

	// Schema errors (6000-6999)
	ErrCodeSchema              ErrorCode = 6000
	ErrCodeMalformedSchema     ErrorCode = 6001
	ErrCodeColumnCountMismatch ErrorCode = 6002
	ErrCodeInvalidField        ErrorCode = 6003
	ErrCodeColumnNotFound      ErrorCode = 6004

	// Codec errors (6500-6599)
	ErrCodeCodec ErrorCode = 6500

	// Index errors (7000-7999)
	ErrCodeIndex           ErrorCode = 7000
	ErrCodeInvalidOperator ErrorCode = 7001
	ErrCodeIndexCorrupted  ErrorCode = 7002
)

// Category represents the error category.
type Category string

const (
	CategoryStorage  Category = "STORAGE"
	CategoryCapacity Category = "CAPACITY"
	CategorySchema   Category = "SCHEMA"
	CategoryCodec    Category = "CODEC"
	CategoryIndex    Category = "INDEX"
)

// HeapDBError represents a structured error in HeapDB.
type HeapDBError struct {
	Code     ErrorCode
	Category Category
	Message  string
	Detail   string
	Hint     string
	Cause    error
}

// Error implements the error interface.
func (e *HeapDBError) Error() string {
	msg := fmt.Sprintf("ERROR %d (%s): %s", e.Code, e.Category, e.Message)
	if e.Detail != "" {
		msg += " - " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *HeapDBError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message.
func (e *HeapDBError) UserMessage() string {
	msg := fmt.Sprintf("ERROR: %s", e.Message)
	if e.Detail != "" {
		msg += fmt.Sprintf(" (%s)", e.Detail)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	if e.Hint != "" {
		msg += fmt.Sprintf("\nHINT: %s", e.Hint)
	}
	return msg
}

// WithDetail adds detail to the error.
func (e *HeapDBError) WithDetail(detail string) *HeapDBError {
	e.Detail = detail
	return e
}

// WithHint adds a hint to the error.
func (e *HeapDBError) WithHint(hint string) *HeapDBError {
	e.Hint = hint
	return e
}

// WithCause adds a cause to the error.
func (e *HeapDBError) WithCause(cause error) *HeapDBError {
	e.Cause = cause
	return e
}

// ============================================================================
// Storage Error Constructors
// ============================================================================

// NewStorageError creates a new storage error.
func NewStorageError(message string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeStorage,
		Category: CategoryStorage,
		Message:  message,
	}
}

// IOError wraps a paged-file failure that happened during op.
func IOError(op string, cause error) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeIOError,
		Category: CategoryStorage,
		Message:  fmt.Sprintf("%s failed", op),
		Cause:    cause,
	}
}

// PageNotFound creates an error for a page number outside the file.
func PageNotFound(page uint32, cause error) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodePageNotFound,
		Category: CategoryStorage,
		Message:  "page not found",
		Detail:   fmt.Sprintf("page %d", page),
		Cause:    cause,
	}
}

// FileClosed creates an error for operations on a closed table.
func FileClosed(path string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeFileClosed,
		Category: CategoryStorage,
		Message:  "table is closed",
		Detail:   path,
		Hint:     "Open the table again before using it",
	}
}

// RecordNotFound creates an error for a RID whose slot holds no record.
func RecordNotFound(rid string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeNoRecord,
		Category: CategoryStorage,
		Message:  "record not found",
		Detail:   fmt.Sprintf("rid %s", rid),
	}
}

// ============================================================================
// Capacity Error Constructors
// ============================================================================

// RecordTooLarge creates an error for a record that cannot fit on an empty page.
func RecordTooLarge(length, max int) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeRecordTooLarge,
		Category: CategoryCapacity,
		Message:  "record too large for page",
		Detail:   fmt.Sprintf("%d bytes, max %d", length, max),
		Hint:     "Shorten the varchar fields of the row",
	}
}

// EmptyRecord creates an error for zero-length records.
func EmptyRecord() *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeEmptyRecord,
		Category: CategoryCapacity,
		Message:  "record is empty",
	}
}

// ============================================================================
// Schema Error Constructors
// ============================================================================

// MalformedSchema creates an error for unparsable schema text.
func MalformedSchema(detail string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeMalformedSchema,
		Category: CategorySchema,
		Message:  "malformed schema",
		Detail:   detail,
		Hint:     "Use name:type pairs separated by commas, type is varchar, int or long",
	}
}

// ColumnCountMismatch creates an error for rows with the wrong number of fields.
func ColumnCountMismatch(want, got int) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeColumnCountMismatch,
		Category: CategorySchema,
		Message:  "column count mismatch",
		Detail:   fmt.Sprintf("schema has %d columns, row has %d fields", want, got),
	}
}

// InvalidField creates an error for a field value that does not match its column type.
func InvalidField(column, value, reason string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeInvalidField,
		Category: CategorySchema,
		Message:  fmt.Sprintf("invalid value for column '%s'", column),
		Detail:   fmt.Sprintf("%q: %s", value, reason),
	}
}

// ColumnNotFound creates an error for a column name missing from a schema.
func ColumnNotFound(column string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeColumnNotFound,
		Category: CategorySchema,
		Message:  fmt.Sprintf("column not found: %s", column),
	}
}

// ============================================================================
// Codec and Index Error Constructors
// ============================================================================

// CodecError creates an error for bytes that cannot be decoded.
func CodecError(detail string, cause error) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeCodec,
		Category: CategoryCodec,
		Message:  "cannot decode record",
		Detail:   detail,
		Cause:    cause,
	}
}

// InvalidOperator creates an error for an unknown index scan operator.
func InvalidOperator(op string) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeInvalidOperator,
		Category: CategoryIndex,
		Message:  fmt.Sprintf("invalid scan operator: %s", op),
		Hint:     "Supported operators: =, <, <=, >, >=, !=",
	}
}

// IndexCorrupted creates an error for an index file that cannot be loaded.
func IndexCorrupted(detail string, cause error) *HeapDBError {
	return &HeapDBError{
		Code:     ErrCodeIndexCorrupted,
		Category: CategoryIndex,
		Message:  "index file corrupted",
		Detail:   detail,
		Cause:    cause,
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func categoryOf(err error) (Category, bool) {
	var e *HeapDBError
	if stderrors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

// IsStorageError checks if an error is a storage error.
func IsStorageError(err error) bool {
	c, ok := categoryOf(err)
	return ok && c == CategoryStorage
}

// IsCapacityError checks if an error is a capacity error.
func IsCapacityError(err error) bool {
	c, ok := categoryOf(err)
	return ok && c == CategoryCapacity
}

// IsSchemaError checks if an error is a schema error.
func IsSchemaError(err error) bool {
	c, ok := categoryOf(err)
	return ok && c == CategorySchema
}

// IsCodecError checks if an error is a codec error.
func IsCodecError(err error) bool {
	c, ok := categoryOf(err)
	return ok && c == CategoryCodec
}

// IsIndexError checks if an error is an index error.
func IsIndexError(err error) bool {
	c, ok := categoryOf(err)
	return ok && c == CategoryIndex
}

// GetCode returns the error code if it's a HeapDBError, or 0 otherwise.
func GetCode(err error) ErrorCode {
	var e *HeapDBError
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// FormatError formats an error for user display.
func FormatError(err error) string {
	var e *HeapDBError
	if stderrors.As(err, &e) {
		return e.UserMessage()
	}
	return fmt.Sprintf("ERROR: %v", err)
}
