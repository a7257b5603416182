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

// Package pattern implements the two-level match machine applied to each
// log line: ordered critical/warning/ok regex groups, each with an
// exception list. Groups compile once and match many.
package pattern

import (
	"fmt"
	"regexp"
)

// MatchType denotes the type for a line classification.
type MatchType int

// MatchType enumeration, in group precedence order.
const (
	None MatchType = iota
	Critical
	Warning
	Ok
)

// String returns the string representation of a match type instance.
func (t MatchType) String() string {
	return [...]string{"none", "critical", "warning", "ok"}[t]
}

// GroupSpec is the uncompiled form of one pattern group.
type GroupSpec struct {
	Regexes    []string `mapstructure:"regexes" yaml:"regexes"`
	Exceptions []string `mapstructure:"exceptions" yaml:"exceptions"`
}

// Spec is the uncompiled form of a pattern set, as read from the
// configuration.
type Spec struct {
	Critical *GroupSpec `mapstructure:"critical" yaml:"critical"`
	Warning  *GroupSpec `mapstructure:"warning" yaml:"warning"`
	Ok       *GroupSpec `mapstructure:"ok" yaml:"ok"`
}

// Capture holds one capture group value from a winning regex. Name is empty
// for unnamed groups.
type Capture struct {
	Name  string
	Value string
}

// Match describes the classification of one line.
type Match struct {
	Type     MatchType
	Index    int    // index of the winning regex within its group
	Regex    string // source text of the winning regex
	Captures []Capture
}

// group is a compiled pattern group.
type group struct {
	typ        MatchType
	regexes    []*regexp.Regexp
	exceptions []*regexp.Regexp
}

// PatternSet holds the compiled groups of one tag, in precedence order.
type PatternSet struct {
	groups []group
}

// Compile compiles all regexes and exceptions of a spec. Any invalid regex
// fails the whole set.
func Compile(spec Spec) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, g := range []struct {
		typ  MatchType
		spec *GroupSpec
	}{{Critical, spec.Critical}, {Warning, spec.Warning}, {Ok, spec.Ok}} {
		if g.spec == nil {
			continue
		}
		cg := group{typ: g.typ}
		for _, re := range g.spec.Regexes {
			c, err := regexp.Compile(re)
			if err != nil {
				return nil, fmt.Errorf("%s regex %q: %w", g.typ, re, err)
			}
			cg.regexes = append(cg.regexes, c)
		}
		for _, re := range g.spec.Exceptions {
			c, err := regexp.Compile(re)
			if err != nil {
				return nil, fmt.Errorf("%s exception %q: %w", g.typ, re, err)
			}
			cg.exceptions = append(cg.exceptions, c)
		}
		ps.groups = append(ps.groups, cg)
	}
	return ps, nil
}

// Classify matches line against the groups in precedence order. Within a
// group the first matching regex wins; if any exception also matches, the
// line produces no hit at all and lower groups are not consulted. Returns
// nil when no group hits.
func (ps *PatternSet) Classify(line string) *Match {
	for _, g := range ps.groups {
		for i, re := range g.regexes {
			sm := re.FindStringSubmatch(line)
			if sm == nil {
				continue
			}
			for _, exc := range g.exceptions {
				if exc.MatchString(line) {
					return nil
				}
			}
			m := &Match{Type: g.typ, Index: i, Regex: re.String()}
			names := re.SubexpNames()
			for j, v := range sm {
				if j == 0 {
					continue
				}
				m.Captures = append(m.Captures, Capture{Name: names[j], Value: v})
			}
			return m
		}
	}
	return nil
}
