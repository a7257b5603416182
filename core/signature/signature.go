//
// Copyright (C) 2022 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signature derives an OS-independent identity for a logfile, used
// to recognize the same file across runs and to detect rotation.
package signature

import (
	"fmt"
	"hash/crc64"
	"io"
	"os"

	"github.com/dandyvica/clf/core/reader"
)

// DefaultHashWindow is the number of leading uncompressed bytes hashed into
// a signature when the configuration does not set one.
const DefaultHashWindow = 4096

var crcTable = crc64.MakeTable(crc64.ECMA)

// Signature identifies a file's content at a point in time. Inode and Dev
// come from the filesystem where available; Hash is a CRC64 of the leading
// bytes of the uncompressed stream. Inode and dev alone are not enough
// because some filesystems reuse identifiers across rotations.
type Signature struct {
	Inode uint64 `json:"inode"`
	Dev   uint64 `json:"dev"`
	Size  uint64 `json:"size"`
	Hash  uint64 `json:"hash"`
}

// Compute stats path and hashes the first min(size, window) bytes of its
// uncompressed stream.
func Compute(path string, comp reader.Compression, window int64) (Signature, error) {
	if window <= 0 {
		window = DefaultHashWindow
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Signature{}, err
	}
	ino, dev := fileID(path)
	sig := Signature{Inode: ino, Dev: dev, Size: uint64(fi.Size())}

	hash, err := hashHead(path, comp, window)
	if err != nil {
		return Signature{}, err
	}
	sig.Hash = hash
	return sig, nil
}

// hashHead hashes the first n uncompressed bytes of path.
func hashHead(path string, comp reader.Compression, n int64) (uint64, error) {
	r, err := reader.Open(path, comp)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	h := crc64.New(crcTable)
	if _, err := io.CopyN(h, r, n); err != nil && err != io.EOF {
		return 0, err
	}
	return h.Sum64(), nil
}

// Equal reports whether two signatures identify the same file. When the
// platform cannot supply a real (inode, dev) pair both sides carry (0, 0)
// and the content hash alone decides.
func (s Signature) Equal(o Signature) bool {
	return s.Inode == o.Inode && s.Dev == o.Dev && s.Hash == o.Hash
}

// SameAs reports whether the file now at path continues the file recorded
// in s, i.e. it has not been rotated away. The (inode, dev) pair must
// match, the file must not have shrunk, and the bytes s hashed must still
// hash to s.Hash. Rehashing exactly the recorded prefix keeps a file that
// merely grew past the hash window recognizable.
func (s Signature) SameAs(cur Signature, path string, comp reader.Compression, window int64) (bool, error) {
	if window <= 0 {
		window = DefaultHashWindow
	}
	if cur.Inode != s.Inode || cur.Dev != s.Dev {
		return false, nil
	}
	if cur.Size < s.Size {
		return false, nil
	}
	if comp != reader.Plain {
		// Size counts compressed bytes, so it cannot bound the hashed
		// prefix; any content change in an archive is a new file.
		return cur.Hash == s.Hash, nil
	}
	hashed := int64(s.Size)
	if hashed > window {
		hashed = window
	}
	if cur.Size == s.Size || uint64(window) <= s.Size {
		// The stored hash covered the same prefix the current one does.
		return cur.Hash == s.Hash, nil
	}
	h, err := hashHead(path, comp, hashed)
	if err != nil {
		return false, err
	}
	return h == s.Hash, nil
}

// String returns the string representation of a signature instance.
func (s Signature) String() string {
	return fmt.Sprintf("inode=%d dev=%d size=%d hash=%#x", s.Inode, s.Dev, s.Size, s.Hash)
}
