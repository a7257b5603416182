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

// Package testutil provides testing helpers.
package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ExpectNoDiff compares the expected and observed values of a scan — line
// sequences, counters, snapshot documents — and flags an error on tb with
// the go-cmp diff when they disagree. Extra cmp options pass through for
// the occasional test that needs one.
func ExpectNoDiff(tb testing.TB, want, got interface{}, opts ...cmp.Option) {
	tb.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		tb.Errorf("unexpected diff, -want +got:\n%s", diff)
	}
}

// FatalIfErr stops the test on any setup or scan error that the test does
// not expect to observe.
func FatalIfErr(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatal(err)
	}
}
