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

// Package callback dispatches the side effects triggered by classified
// matches: spawned processes, TCP peers, and UNIX domain socket peers.
package callback

import (
	"os"
	"os/user"
	"runtime"
	"strconv"

	"github.com/dandyvica/clf/core/pattern"
	"github.com/dandyvica/clf/core/snapshot"
	"github.com/dandyvica/clf/logline"
)

// Vars is the materialized CLF_* variable set for one match.
type Vars map[string]string

// hostVars are computed once per process.
var hostVars = func() Vars {
	v := Vars{"CLF_PLATFORM": runtime.GOOS}
	if h, err := os.Hostname(); err == nil {
		v["CLF_HOSTNAME"] = h
	}
	if u, err := user.Current(); err == nil {
		v["CLF_USER"] = u.Username
	}
	return v
}()

// BuildVars materializes the variable set for one classified line.
func BuildVars(line *logline.LogLine, tag string, m *pattern.Match, counters snapshot.Counters, configFile string) Vars {
	v := Vars{
		"CLF_LOGFILE":         line.Filename,
		"CLF_TAG":             tag,
		"CLF_LINE":            line.Line,
		"CLF_LINE_NUMBER":     strconv.FormatUint(line.Number, 10),
		"CLF_MATCHED_RE":      m.Regex,
		"CLF_MATCHED_RE_TYPE": m.Type.String(),
		"CLF_NB_CG":           strconv.Itoa(len(m.Captures)),
		"CLF_CONFIG_FILE":     configFile,
		"CLF_OK_COUNT":        strconv.FormatUint(counters.Ok, 10),
		"CLF_WARNING_COUNT":   strconv.FormatUint(counters.Warning, 10),
		"CLF_CRITICAL_COUNT":  strconv.FormatUint(counters.Critical, 10),
	}
	for k, hv := range hostVars {
		v[k] = hv
	}
	for i, cg := range m.Captures {
		if cg.Name != "" {
			v["CLF_"+cg.Name] = cg.Value
		} else {
			v["CLF_CG_"+strconv.Itoa(i+1)] = cg.Value
		}
	}
	return v
}
