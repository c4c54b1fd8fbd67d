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
Paged File Implementation
=========================

A paged file stores a sequence of pages in a single OS file, preceded
by a header frame:

	┌─────────────────────────────────────────────────────────────┐
	│                    File Header (1 frame)                    │
	│  [Magic: "HPDB"] [Version] [PageCount] [Flags] [Salt] [Key] │
	├─────────────────────────────────────────────────────────────┤
	│                    Page 1                                   │
	├─────────────────────────────────────────────────────────────┤
	│                    Page 2                                   │
	├─────────────────────────────────────────────────────────────┤
	│                       ...                                   │
	├─────────────────────────────────────────────────────────────┤
	│                    Page N                                   │
	└─────────────────────────────────────────────────────────────┘

Pages are only ever appended. There is no free list: records are never
deleted, so pages are never released.

File Header Format:
===================

	Offset  Size  Field
	------  ----  -----
	0       4     Magic number (0x48504442 = "HPDB")
	4       4     Version number (currently 1)
	8       4     Total page count
	12      4     Flags (bit 0: encrypted)
	16      16    Key derivation salt (encrypted files only)
	32      44    Key-check block (encrypted files only)

Page Addressing:
================

Pages are addressed by PageID (1-indexed). The file offset for a page is:

	offset = frameSize + (PageID - 1) * frameSize

where frameSize is PageSize for plain files and PageSize+28 for
encrypted ones. PageID 0 (InvalidPageID) is reserved as a null marker.

Thread Safety:
==============

All operations are protected by a read-write mutex:
  - ReadPage uses RLock
  - WritePage, AllocatePage and Close use Lock
*/
package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"heapdb/internal/logging"
)

// File header constants
const (
	PagedFileMagic   uint32 = 0x48504442 // "HPDB"
	PagedFileVersion uint32 = 1

	flagEncrypted uint32 = 1 << 0

	headerFixedSize = 32
)

// Errors
var (
	ErrInvalidFile        = errors.New("invalid paged file")
	ErrVersionMismatch    = errors.New("paged file version mismatch")
	ErrPageNotFound       = errors.New("page not found")
	ErrFileClosed         = errors.New("paged file is closed")
	ErrPassphraseRequired = errors.New("paged file is encrypted, passphrase required")
	ErrWrongPassphrase    = errors.New("wrong passphrase for encrypted paged file")
)

var diskLog = logging.NewLogger("disk")

// FileOptions configures how a paged file is created or opened.
type FileOptions struct {
	// Passphrase enables page encryption when creating a file and is
	// required to open an encrypted one. Ignored for plain files.
	Passphrase string
}

// PagedFile manages a collection of pages stored in a file.
type PagedFile struct {
	file      *os.File
	mu        sync.RWMutex
	filePath  string
	pageCount uint32
	flags     uint32
	salt      []byte
	keyCheck  []byte
	enc       *Encryptor
}

// FileExists reports whether a file exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateFile creates a new paged file at the given path. It fails if the
// file already exists.
func CreateFile(path string, opts FileOptions) (*PagedFile, error) {
	pf := &PagedFile{filePath: path}
	if opts.Passphrase != "" {
		salt, err := NewSalt()
		if err != nil {
			return nil, err
		}
		enc, err := NewEncryptor(opts.Passphrase, salt)
		if err != nil {
			return nil, err
		}
		check, err := enc.keyCheck()
		if err != nil {
			return nil, err
		}
		pf.flags |= flagEncrypted
		pf.salt = salt
		pf.keyCheck = check
		pf.enc = enc
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	pf.file = file
	if err := pf.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	diskLog.Info("Paged file created", "path", path, "encrypted", pf.Encrypted())
	return pf, nil
}

// OpenFile opens an existing paged file.
func OpenFile(path string, opts FileOptions) (*PagedFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	pf := &PagedFile{file: file, filePath: path}
	if err := pf.readHeader(opts); err != nil {
		file.Close()
		return nil, err
	}
	diskLog.Debug("Paged file opened", "path", path, "pages", pf.pageCount)
	return pf, nil
}

// DestroyFile removes the paged file at path.
func DestroyFile(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	diskLog.Info("Paged file destroyed", "path", path)
	return nil
}

func (pf *PagedFile) frameSize() int64 {
	if pf.enc != nil {
		return PageSize + EncryptionOverhead
	}
	return PageSize
}

func (pf *PagedFile) writeHeader() error {
	header := make([]byte, pf.frameSize())
	binary.BigEndian.PutUint32(header[0:4], PagedFileMagic)
	binary.BigEndian.PutUint32(header[4:8], PagedFileVersion)
	binary.BigEndian.PutUint32(header[8:12], pf.pageCount)
	binary.BigEndian.PutUint32(header[12:16], pf.flags)
	if pf.flags&flagEncrypted != 0 {
		copy(header[16:16+SaltSize], pf.salt)
		copy(header[headerFixedSize:], pf.keyCheck)
	}
	_, err := pf.file.WriteAt(header, 0)
	return err
}

func (pf *PagedFile) readHeader(opts FileOptions) error {
	header := make([]byte, headerFixedSize+keyCheckSize)
	if _, err := pf.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != PagedFileMagic {
		return ErrInvalidFile
	}
	if binary.BigEndian.Uint32(header[4:8]) != PagedFileVersion {
		return ErrVersionMismatch
	}
	pf.pageCount = binary.BigEndian.Uint32(header[8:12])
	pf.flags = binary.BigEndian.Uint32(header[12:16])

	if pf.flags&flagEncrypted == 0 {
		return nil
	}
	if opts.Passphrase == "" {
		return ErrPassphraseRequired
	}
	pf.salt = append([]byte(nil), header[16:16+SaltSize]...)
	pf.keyCheck = append([]byte(nil), header[headerFixedSize:]...)
	enc, err := NewEncryptor(opts.Passphrase, pf.salt)
	if err != nil {
		return err
	}
	if !enc.verifyKeyCheck(pf.keyCheck) {
		return ErrWrongPassphrase
	}
	pf.enc = enc
	return nil
}

// AllocatePage appends a zero-filled page and returns its ID.
func (pf *PagedFile) AllocatePage() (PageID, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return InvalidPageID, ErrFileClosed
	}

	pf.pageCount++
	pageID := PageID(pf.pageCount)
	if err := pf.writePageLocked(NewPage(pageID)); err != nil {
		pf.pageCount--
		return InvalidPageID, err
	}
	if err := pf.writeHeader(); err != nil {
		return InvalidPageID, err
	}
	return pageID, nil
}

// ReadPage reads a page from disk.
func (pf *PagedFile) ReadPage(pageID PageID) (*Page, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.file == nil {
		return nil, ErrFileClosed
	}
	if pageID == InvalidPageID || uint32(pageID) > pf.pageCount {
		return nil, ErrPageNotFound
	}

	frame := make([]byte, pf.frameSize())
	if _, err := pf.file.ReadAt(frame, pf.pageOffset(pageID)); err != nil {
		return nil, err
	}
	page := NewPage(pageID)
	if pf.enc == nil {
		copy(page.data[:], frame)
		return page, nil
	}
	plain, err := pf.enc.Open(pageID, frame)
	if err != nil {
		return nil, fmt.Errorf("decrypt page %d: %w", pageID, err)
	}
	copy(page.data[:], plain)
	return page, nil
}

// WritePage writes a page to disk.
func (pf *PagedFile) WritePage(page *Page) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return ErrFileClosed
	}
	if page.ID() == InvalidPageID || uint32(page.ID()) > pf.pageCount {
		return ErrPageNotFound
	}
	return pf.writePageLocked(page)
}

func (pf *PagedFile) writePageLocked(page *Page) error {
	frame := page.Data()
	if pf.enc != nil {
		sealed, err := pf.enc.Seal(page.ID(), frame)
		if err != nil {
			return err
		}
		frame = sealed
	}
	_, err := pf.file.WriteAt(frame, pf.pageOffset(page.ID()))
	return err
}

func (pf *PagedFile) pageOffset(pageID PageID) int64 {
	return pf.frameSize() + int64(pageID-1)*pf.frameSize()
}

// PageCount returns the number of allocated pages.
func (pf *PagedFile) PageCount() uint32 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.pageCount
}

// Encrypted reports whether pages are encrypted at rest.
func (pf *PagedFile) Encrypted() bool {
	return pf.flags&flagEncrypted != 0
}

// Sync flushes all pending writes to disk.
func (pf *PagedFile) Sync() error {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.file == nil {
		return ErrFileClosed
	}
	return pf.file.Sync()
}

// Close writes the header and closes the file. Closing a closed file is
// a no-op.
func (pf *PagedFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return nil
	}
	if err := pf.writeHeader(); err != nil {
		return err
	}
	if err := pf.file.Sync(); err != nil {
		return err
	}
	err := pf.file.Close()
	pf.file = nil
	return err
}

// FilePath returns the path to the paged file.
func (pf *PagedFile) FilePath() string {
	return pf.filePath
}
