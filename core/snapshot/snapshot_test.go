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

package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/dandyvica/clf/core/reader"
	"github.com/dandyvica/clf/core/signature"
	"github.com/dandyvica/clf/testutil"
)

func TestMain(m *testing.M) {
	logger.InitLoggers(logger.ERROR)
	os.Exit(m.Run())
}

func TestLoadMissingIsEmpty(t *testing.T) {
	dir := testutil.TestTempDir(t)
	s, err := Load(filepath.Join(dir, "absent.json"))
	testutil.FatalIfErr(t, err)
	if len(s.Snapshot) != 0 {
		t.Errorf("empty snapshot has %d entries", len(s.Snapshot))
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := filepath.Join(dir, "snapshot.json")
	testutil.WriteLogFile(t, path, "{ not json")
	if _, err := Load(path); err == nil {
		t.Error("Load() on corrupt snapshot succeeded, want error")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := filepath.Join(dir, "snapshot.json")

	s := New()
	ls := s.SetLogfile(&LogfileID{
		DeclaredPath:  "/var/log/app.log",
		CanonicalPath: "/var/log/app.log",
		Directory:     "/var/log",
		Extension:     "log",
		Compression:   reader.Plain,
		Signature:     signature.Signature{Inode: 7, Dev: 3, Size: 100, Hash: 0xdead},
	})
	rd := ls.Tag("errors")
	rd.LastOffset = 100
	rd.LastLine = 12
	rd.Counters = Counters{Critical: 2, Warning: 1, Ok: 3, Exec: 2}
	rd.Finalize(nil)

	testutil.FatalIfErr(t, s.Save(path, time.Hour))
	loaded, err := Load(path)
	testutil.FatalIfErr(t, err)
	testutil.ExpectNoDiff(t, s, loaded)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := filepath.Join(dir, "snapshot.json")
	s := New()
	ls := s.SetLogfile(&LogfileID{CanonicalPath: "/var/log/x.log"})
	ls.Tag("t").Finalize(nil)
	testutil.FatalIfErr(t, s.Save(path, time.Hour))

	entries, err := os.ReadDir(dir)
	testutil.FatalIfErr(t, err)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestRetentionGC(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := filepath.Join(dir, "snapshot.json")

	s := New()
	stale := s.SetLogfile(&LogfileID{CanonicalPath: "/var/log/stale.log"})
	rd := stale.Tag("old")
	rd.LastRunSecs = time.Now().Add(-2 * time.Hour).Unix()
	fresh := s.SetLogfile(&LogfileID{CanonicalPath: "/var/log/fresh.log"})
	fresh.Tag("new").Finalize(nil)

	testutil.FatalIfErr(t, s.Save(path, time.Hour))
	loaded, err := Load(path)
	testutil.FatalIfErr(t, err)

	if _, ok := loaded.Logfile("/var/log/stale.log"); ok {
		t.Error("stale entry survived retention GC")
	}
	if _, ok := loaded.Logfile("/var/log/fresh.log"); !ok {
		t.Error("fresh entry dropped by retention GC")
	}
}

func TestTagCreatesOnce(t *testing.T) {
	ls := &LogfileState{}
	a := ls.Tag("t")
	a.LastLine = 5
	b := ls.Tag("t")
	if a != b {
		t.Error("Tag() returned a new entry for an existing tag")
	}
}

func TestSetLogfileKeepsRunData(t *testing.T) {
	s := New()
	ls := s.SetLogfile(&LogfileID{CanonicalPath: "/var/log/a.log", Extension: "log"})
	ls.Tag("t").LastLine = 9

	updated := s.SetLogfile(&LogfileID{CanonicalPath: "/var/log/a.log", Extension: "log", Signature: signature.Signature{Hash: 1}})
	if updated.Tag("t").LastLine != 9 {
		t.Error("run data lost when refreshing a logfile identity")
	}
	if updated.ID.Signature.Hash != 1 {
		t.Error("logfile identity not refreshed")
	}
}

func TestNewLogfileID(t *testing.T) {
	dir := testutil.TestTempDir(t)
	path := filepath.Join(dir, "web.log.gz")
	testutil.WriteGzipFile(t, path, "hello\n")

	id, err := NewLogfileID(path, 0)
	testutil.FatalIfErr(t, err)
	if id.Compression != reader.Gzip {
		t.Errorf("compression = %v, want gzip", id.Compression)
	}
	if id.Extension != "gz" {
		t.Errorf("extension = %q, want gz", id.Extension)
	}
	if !filepath.IsAbs(id.CanonicalPath) {
		t.Errorf("canonical path %q is not absolute", id.CanonicalPath)
	}
}
