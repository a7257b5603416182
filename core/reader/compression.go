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

// Package reader provides a uniform line-oriented view over plain and
// compressed log files, reporting byte offsets in the uncompressed stream.
package reader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Compression denotes the type for a logfile compression scheme.
type Compression int

// Compression enumeration.
const (
	Plain Compression = iota
	Gzip
	Bzip2
	Xz
)

// String returns the string representation of a compression instance.
func (c Compression) String() string {
	return [...]string{"plain", "gzip", "bzip2", "xz"}[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(text []byte) error {
	switch string(text) {
	case "plain":
		*c = Plain
	case "gzip":
		*c = Gzip
	case "bzip2":
		*c = Bzip2
	case "xz":
		*c = Xz
	default:
		return fmt.Errorf("unknown compression %q", string(text))
	}
	return nil
}

// FromExtension infers the compression scheme from a file extension.
func FromExtension(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".bz2", ".bzip2":
		return Bzip2
	case ".xz":
		return Xz
	}
	return Plain
}

// wrap layers the decompressor for c over a raw file reader.
func (c Compression) wrap(r io.Reader) (io.Reader, error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		return zr, nil
	case Bzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		return br, nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		return xr, nil
	}
	return r, nil
}
