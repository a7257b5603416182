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
// The read loop is adapted from the logstream package of
// https://github.com/google/mtail/tree/main/internal
package reader

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// defaultReadBufferSize the size of the buffer for reading bytes into.
const defaultReadBufferSize = 4096

// DefaultMaxLineSize caps the length of a single delivered line. Longer
// lines are split; the offset still advances by the consumed bytes.
const DefaultMaxLineSize = 1 << 20

// ErrCompression reports a failure in a decompression layer.
var ErrCompression = errors.New("compression error")

// Reader yields (line, offset) pairs from a log file, where offset is the
// byte position of the first byte of the line in the uncompressed stream.
type Reader struct {
	path    string
	comp    Compression
	file    *os.File
	src     io.Reader // decompressed view over file
	buf     *bufio.Reader
	offset  int64 // offset of the next unread byte in the uncompressed stream
	number  uint64
	maxLine int
}

// Open opens path for line-oriented reading under the given compression
// scheme. The caller owns the returned reader and must Close it.
func Open(path string, comp Compression) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := comp.wrap(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		path:    path,
		comp:    comp,
		file:    f,
		src:     src,
		buf:     bufio.NewReaderSize(src, defaultReadBufferSize),
		maxLine: DefaultMaxLineSize,
	}, nil
}

// Path returns the file path backing this reader.
func (r *Reader) Path() string {
	return r.path
}

// Offset returns the uncompressed byte offset of the next unread byte.
func (r *Reader) Offset() int64 {
	return r.offset
}

// SetLineNumber sets the physical line number of the last consumed line, so
// that a seeked reader keeps numbering lines from the snapshot state.
func (r *Reader) SetLineNumber(n uint64) {
	r.number = n
}

// Seek positions the reader at an uncompressed offset previously reported.
// Plain files seek natively; compressed containers are rewound and drained,
// so the cost is linear in offset for those.
func (r *Reader) Seek(offset int64) error {
	if offset < 0 {
		offset = 0
	}
	if r.comp == Plain {
		if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		r.buf.Reset(r.file)
		r.offset = offset
		return nil
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	src, err := r.comp.wrap(r.file)
	if err != nil {
		return err
	}
	r.src = src
	r.buf.Reset(src)
	r.offset = 0
	if offset > 0 {
		n, err := io.CopyN(io.Discard, r.buf, offset)
		r.offset += n
		if err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}

// Next returns the next line and its starting offset. The trailing newline
// and any carriage return before it are stripped. Invalid UTF-8 passes
// through untouched. At end of stream, Next returns io.EOF.
func (r *Reader) Next() ([]byte, int64, error) {
	start := r.offset
	var line []byte
	for {
		frag, err := r.buf.ReadSlice('\n')
		r.offset += int64(len(frag))
		line = append(line, frag...)
		if err == bufio.ErrBufferFull {
			if len(line) >= r.maxLine {
				// Split an oversized line; the remainder is delivered as the
				// next line at its own offset.
				r.number++
				return line, start, nil
			}
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return nil, start, io.EOF
			}
			// Final line without a newline terminator.
			r.number++
			return chomp(line), start, nil
		}
		if err != nil {
			return nil, start, err
		}
		r.number++
		return chomp(line), start, nil
	}
}

// NextLine is Next wrapped to also report the physical line number.
func (r *Reader) NextLine() ([]byte, int64, uint64, error) {
	line, off, err := r.Next()
	return line, off, r.number, err
}

// Read implements io.Reader over the decompressed stream, advancing the
// reported offset by the bytes consumed.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.buf.Read(p)
	r.offset += int64(n)
	return n, err
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// chomp strips a trailing \n and a \r preceding it.
func chomp(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
