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

package pattern

import (
	"testing"

	"github.com/dandyvica/clf/testutil"
)

func compile(t *testing.T, spec Spec) *PatternSet {
	t.Helper()
	ps, err := Compile(spec)
	testutil.FatalIfErr(t, err)
	return ps
}

func TestPrecedenceCriticalFirst(t *testing.T) {
	ps := compile(t, Spec{
		Critical: &GroupSpec{Regexes: []string{"fatal"}},
		Warning:  &GroupSpec{Regexes: []string{"fatal", "warn"}},
	})
	m := ps.Classify("a fatal event")
	if m == nil || m.Type != Critical {
		t.Fatalf("Classify() = %+v, want a critical match", m)
	}
}

func TestFirstRegexInGroupWins(t *testing.T) {
	ps := compile(t, Spec{
		Critical: &GroupSpec{Regexes: []string{"disk", "disk full"}},
	})
	m := ps.Classify("disk full on /var")
	if m == nil || m.Index != 0 {
		t.Fatalf("Classify() = %+v, want index 0", m)
	}
}

func TestExceptionDiscardsLine(t *testing.T) {
	// A line matching both a regex and an exception of the same group
	// produces no hit at all, and lower groups are not consulted.
	ps := compile(t, Spec{
		Critical: &GroupSpec{
			Regexes:    []string{"error"},
			Exceptions: []string{"known-error"},
		},
		Warning: &GroupSpec{Regexes: []string{"error"}},
	})
	if m := ps.Classify("known-error 42"); m != nil {
		t.Errorf("Classify() = %+v, want nil", m)
	}
	if m := ps.Classify("error 42"); m == nil || m.Type != Critical {
		t.Errorf("Classify() = %+v, want a critical match", m)
	}
}

func TestNoMatch(t *testing.T) {
	ps := compile(t, Spec{Critical: &GroupSpec{Regexes: []string{"error"}}})
	if m := ps.Classify("all quiet"); m != nil {
		t.Errorf("Classify() = %+v, want nil", m)
	}
}

func TestCaptures(t *testing.T) {
	ps := compile(t, Spec{
		Critical: &GroupSpec{Regexes: []string{`error id = (\d+) on (?P<host>\w+)`}},
	})
	m := ps.Classify("error id = 42 on web01")
	if m == nil {
		t.Fatal("Classify() = nil, want a match")
	}
	want := []Capture{{Name: "", Value: "42"}, {Name: "host", Value: "web01"}}
	testutil.ExpectNoDiff(t, want, m.Captures)
}

func TestOkGroup(t *testing.T) {
	ps := compile(t, Spec{
		Critical: &GroupSpec{Regexes: []string{"down"}},
		Ok:       &GroupSpec{Regexes: []string{"recovered"}},
	})
	m := ps.Classify("service recovered")
	if m == nil || m.Type != Ok {
		t.Fatalf("Classify() = %+v, want an ok match", m)
	}
}

func TestCompileError(t *testing.T) {
	if _, err := Compile(Spec{Critical: &GroupSpec{Regexes: []string{"("}}}); err == nil {
		t.Error("Compile() with a broken regex succeeded, want error")
	}
	if _, err := Compile(Spec{Warning: &GroupSpec{Exceptions: []string{"["}}}); err == nil {
		t.Error("Compile() with a broken exception succeeded, want error")
	}
}
