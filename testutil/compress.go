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

package testutil

import (
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// WriteGzipFile creates name holding content compressed with gzip.
func WriteGzipFile(tb testing.TB, name string, content string) {
	tb.Helper()
	f := OpenLogFile(tb, name)
	defer f.Close()
	w := gzip.NewWriter(f)
	_, err := w.Write([]byte(content))
	FatalIfErr(tb, err)
	FatalIfErr(tb, w.Close())
	FatalIfErr(tb, f.Sync())
}

// WriteBzip2File creates name holding content compressed with bzip2.
func WriteBzip2File(tb testing.TB, name string, content string) {
	tb.Helper()
	f := OpenLogFile(tb, name)
	defer f.Close()
	w, err := bzip2.NewWriter(f, nil)
	FatalIfErr(tb, err)
	_, err = w.Write([]byte(content))
	FatalIfErr(tb, err)
	FatalIfErr(tb, w.Close())
	FatalIfErr(tb, f.Sync())
}

// WriteXzFile creates name holding content compressed with xz.
func WriteXzFile(tb testing.TB, name string, content string) {
	tb.Helper()
	f := OpenLogFile(tb, name)
	defer f.Close()
	w, err := xz.NewWriter(f)
	FatalIfErr(tb, err)
	_, err = w.Write([]byte(content))
	FatalIfErr(tb, err)
	FatalIfErr(tb, w.Close())
	FatalIfErr(tb, f.Sync())
}
