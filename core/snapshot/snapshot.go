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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"
)

// ErrSnapshot reports a snapshot load, parse or write failure.
var ErrSnapshot = errors.New("snapshot error")

// DefaultRetention is how long an unseen (logfile, tag) entry survives
// before the pre-write garbage collection drops it.
const DefaultRetention = 7 * 24 * time.Hour

// LogfileState groups the identity of a logfile with the run data of every
// tag that scanned it.
type LogfileState struct {
	ID      LogfileID           `json:"id"`
	RunData map[string]*RunData `json:"run_data"`
}

// Tag returns the run data for name, creating a fresh entry on first use.
func (ls *LogfileState) Tag(name string) *RunData {
	if ls.RunData == nil {
		ls.RunData = make(map[string]*RunData)
	}
	if rd, ok := ls.RunData[name]; ok {
		return rd
	}
	rd := &RunData{}
	ls.RunData[name] = rd
	return rd
}

// Snapshot is the persistent map of all logfile states, keyed by canonical
// path. It is loaded once at startup, mutated in memory during the scan,
// and written once at shutdown.
type Snapshot struct {
	Snapshot map[string]*LogfileState `json:"snapshot"`
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{Snapshot: make(map[string]*LogfileState)}
}

// Load reads the snapshot at path, returning an empty snapshot if the file
// does not exist.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Trace.Printf("No snapshot at %s, starting fresh", path)
			return New(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrSnapshot, path, err)
	}
	if s.Snapshot == nil {
		s.Snapshot = make(map[string]*LogfileState)
	}
	return s, nil
}

// Logfile returns the state stored under the canonical path, if any.
func (s *Snapshot) Logfile(canonical string) (*LogfileState, bool) {
	ls, ok := s.Snapshot[canonical]
	return ls, ok
}

// SetLogfile stores (or replaces) the state for a logfile under its
// canonical path, keeping existing run data when the entry already exists.
func (s *Snapshot) SetLogfile(id *LogfileID) *LogfileState {
	if ls, ok := s.Snapshot[id.CanonicalPath]; ok {
		ls.ID = *id
		return ls
	}
	ls := &LogfileState{ID: *id, RunData: make(map[string]*RunData)}
	s.Snapshot[id.CanonicalPath] = ls
	return ls
}

// gc drops run data not refreshed within retention, and logfile entries
// left without any run data.
func (s *Snapshot) gc(now time.Time, retention time.Duration) {
	deadline := now.Add(-retention).Unix()
	for path, ls := range s.Snapshot {
		for tag, rd := range ls.RunData {
			if rd.LastRunSecs < deadline {
				logger.Trace.Printf("Dropping stale run data for %s[%s]", path, tag)
				delete(ls.RunData, tag)
			}
		}
		if len(ls.RunData) == 0 {
			delete(s.Snapshot, path)
		}
	}
}

// Save garbage-collects stale entries and writes the snapshot to path via a
// temporary file and rename, so a crash never leaves a partial snapshot.
func (s *Snapshot) Save(path string, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s.gc(time.Now(), retention)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	logger.Trace.Printf("Snapshot written to %s (%d logfiles)", path, len(s.Snapshot))
	return nil
}

// DefaultPath is the snapshot location used when neither the configuration
// nor the command line provides one.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "clf_snapshot.json")
}
