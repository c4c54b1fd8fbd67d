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
Page Encryption:
================

A paged file can store its pages encrypted at rest with AES-256-GCM:
  - Confidentiality: page bytes are unreadable without the passphrase
  - Integrity: GCM authenticates every page frame
  - Placement: the page ID is authenticated data, so a frame copied to
    another position in the file fails to decrypt

Key Management:
===============

The key is derived from a passphrase with PBKDF2-SHA256 and a random
16-byte salt stored in the file header. The header also stores a
key-check block, an encrypted constant that tells a wrong passphrase
apart from a corrupted page on open.

Frame Layout:
=============

	[nonce:12][ciphertext:PageSize][tag:16]

Each frame is therefore PageSize+EncryptionOverhead bytes on disk.
*/
package disk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Encryption constants
const (
	// KeyDerivationIterations is the number of PBKDF2 iterations.
	KeyDerivationIterations = 100000

	// SaltSize is the size of the per-file key derivation salt.
	SaltSize = 16

	nonceSize = 12
	tagSize   = 16

	// EncryptionOverhead is the number of bytes encryption adds to a frame.
	EncryptionOverhead = nonceSize + tagSize
)

var keyCheckPlaintext = []byte("heapdb-key-check")

// keyCheckSize is the encrypted size of keyCheckPlaintext.
var keyCheckSize = len(keyCheckPlaintext) + EncryptionOverhead

// Encryptor encrypts and decrypts page frames.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor derives a key from passphrase and salt and returns an
// Encryptor for it.
func NewEncryptor(passphrase string, salt []byte) (*Encryptor, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if len(salt) != SaltSize {
		return nil, errors.New("encryption salt must be 16 bytes")
	}
	key := pbkdf2.Key([]byte(passphrase), salt, KeyDerivationIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm}, nil
}

// NewSalt returns a random salt for a new file.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Seal encrypts plaintext bound to pageID. The nonce is prepended to
// the returned ciphertext.
func (e *Encryptor) Seal(pageID PageID, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.gcm.Seal(nonce, nonce, plaintext, pageAAD(pageID)), nil
}

// Open decrypts a frame produced by Seal for the same pageID.
func (e *Encryptor) Open(pageID PageID, frame []byte) ([]byte, error) {
	if len(frame) < nonceSize+tagSize {
		return nil, errors.New("ciphertext too short")
	}
	return e.gcm.Open(nil, frame[:nonceSize], frame[nonceSize:], pageAAD(pageID))
}

func pageAAD(pageID PageID) []byte {
	var aad [4]byte
	binary.BigEndian.PutUint32(aad[:], uint32(pageID))
	return aad[:]
}

// keyCheck returns a fresh key-check block.
func (e *Encryptor) keyCheck() ([]byte, error) {
	return e.Seal(InvalidPageID, keyCheckPlaintext)
}

// verifyKeyCheck reports whether block was sealed with the same key.
func (e *Encryptor) verifyKeyCheck(block []byte) bool {
	plain, err := e.Open(InvalidPageID, block)
	return err == nil && string(plain) == string(keyCheckPlaintext)
}
