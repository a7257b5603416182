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

// Package config holds the in-memory configuration view consumed by the
// scan engine, and its YAML loading front end.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unset is the value of an integer option that was not configured.
const Unset = math.MaxUint64

// TagOptions is the parsed option set of one tag. Boolean options are flag
// words in the options string; integer options use the key=value form. The
// two thresholds default to 0, the other integer options to Unset.
// FastForward and Rewind are mutually exclusive: Rewind wins when both are
// set.
type TagOptions struct {
	RunCallback    bool
	Rewind         bool
	FastForward    bool
	RunIfOk        bool
	SaveThresholds bool
	KeepOutput     bool
	Protocol       bool

	CriticalThreshold uint64
	WarningThreshold  uint64
	RunLimit          uint64
	Truncate          uint64
	StopAt            uint64
}

// ParseOptions parses a comma-separated options string, e.g.
// "runcallback,criticalthreshold=5,runlimit=10".
func ParseOptions(s string) (TagOptions, error) {
	opts := TagOptions{
		CriticalThreshold: 0,
		WarningThreshold:  0,
		RunLimit:          Unset,
		Truncate:          Unset,
		StopAt:            Unset,
	}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, hasValue := strings.Cut(item, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !hasValue {
			switch key {
			case "runcallback":
				opts.RunCallback = true
			case "rewind":
				opts.Rewind = true
			case "fastforward":
				opts.FastForward = true
			case "runifok":
				opts.RunIfOk = true
			case "savethresholds":
				opts.SaveThresholds = true
			case "keepoutput":
				opts.KeepOutput = true
			case "protocol":
				opts.Protocol = true
			default:
				return opts, fmt.Errorf("unknown option %q", key)
			}
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return opts, fmt.Errorf("option %q: %v", key, err)
		}
		switch key {
		case "criticalthreshold":
			opts.CriticalThreshold = n
		case "warningthreshold":
			opts.WarningThreshold = n
		case "runlimit":
			opts.RunLimit = n
		case "truncate":
			opts.Truncate = n
		case "stopat":
			opts.StopAt = n
		default:
			return opts, fmt.Errorf("unknown option %q", key)
		}
	}
	if opts.Rewind && opts.FastForward {
		opts.FastForward = false
	}
	return opts, nil
}

// String renders the option set for --show-options.
func (o TagOptions) String() string {
	var parts []string
	flags := []struct {
		name string
		set  bool
	}{
		{"runcallback", o.RunCallback},
		{"rewind", o.Rewind},
		{"fastforward", o.FastForward},
		{"runifok", o.RunIfOk},
		{"savethresholds", o.SaveThresholds},
		{"keepoutput", o.KeepOutput},
		{"protocol", o.Protocol},
	}
	for _, f := range flags {
		if f.set {
			parts = append(parts, f.name)
		}
	}
	ints := []struct {
		name  string
		value uint64
	}{
		{"criticalthreshold", o.CriticalThreshold},
		{"warningthreshold", o.WarningThreshold},
		{"runlimit", o.RunLimit},
		{"truncate", o.Truncate},
		{"stopat", o.StopAt},
	}
	for _, f := range ints {
		if f.value != Unset {
			parts = append(parts, fmt.Sprintf("%s=%d", f.name, f.value))
		}
	}
	return strings.Join(parts, ",")
}
