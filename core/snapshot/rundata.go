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

// Package snapshot persists per-(logfile, tag) scan state across runs.
package snapshot

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dandyvica/clf/core/reader"
	"github.com/dandyvica/clf/core/signature"
)

// Counters accumulates classified line counts and callback executions for
// one (logfile, tag).
type Counters struct {
	Critical uint64 `json:"critical"`
	Warning  uint64 `json:"warning"`
	Ok       uint64 `json:"ok"`
	Exec     uint64 `json:"exec"`
}

// RunData is the continuation state of one tag on one logfile. A scan
// resumes at LastOffset/LastLine and leaves both pointing at the last fully
// processed line.
type RunData struct {
	PID         int       `json:"pid"`
	StartOffset uint64    `json:"start_offset"`
	StartLine   uint64    `json:"start_line"`
	LastOffset  uint64    `json:"last_offset"`
	LastLine    uint64    `json:"last_line"`
	LastRun     time.Time `json:"last_run"`
	LastRunSecs int64     `json:"last_run_secs"`
	Counters    Counters  `json:"counters"`
	LastError   string    `json:"last_error,omitempty"`
}

// LogfileID identifies a logfile in the snapshot. The canonical path is the
// human-readable key; identity checks inside the engine use Signature.
type LogfileID struct {
	DeclaredPath  string              `json:"declared_path"`
	CanonicalPath string              `json:"canonical_path"`
	Directory     string              `json:"directory"`
	Extension     string              `json:"extension"`
	Compression   reader.Compression  `json:"compression"`
	Signature     signature.Signature `json:"signature"`
}

// NewLogfileID builds the identity of the file at path, computing its
// current signature over the first window uncompressed bytes.
func NewLogfileID(path string, window int64) (*LogfileID, error) {
	canonical := Canonicalize(path)
	comp := reader.FromExtension(path)
	sig, err := signature.Compute(path, comp, window)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(canonical)
	if ext != "" {
		ext = ext[1:]
	}
	return &LogfileID{
		DeclaredPath:  path,
		CanonicalPath: canonical,
		Directory:     filepath.Dir(canonical),
		Extension:     ext,
		Compression:   comp,
		Signature:     sig,
	}, nil
}

// Canonicalize resolves path to an absolute, symlink-free form where
// possible, falling back to the cleaned absolute path.
func Canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Finalize stamps the run data with the wallclock of a finished scan,
// recording the error text when the scan aborted.
func (rd *RunData) Finalize(err error) {
	now := time.Now()
	rd.LastRun = now.UTC()
	rd.LastRunSecs = now.Unix()
	rd.PID = os.Getpid()
	if err != nil {
		rd.LastError = err.Error()
	}
}
