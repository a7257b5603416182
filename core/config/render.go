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
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Regular expression for {{ var }} placeholders.
var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{ var }} placeholders in text from vars. Unknown
// placeholders are left untouched so that YAML errors point at them.
func Render(text string, vars map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// BuildContext merges the render context in increasing precedence: process
// environment, then the --context JSON object, then --var K:V pairs.
func BuildContext(contextJSON string, varFlags []string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	if contextJSON != "" {
		ctx := make(map[string]interface{})
		if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
			return nil, fmt.Errorf("%w: --context: %v", ErrConfig, err)
		}
		for k, v := range ctx {
			vars[k] = fmt.Sprintf("%v", v)
		}
	}
	for _, kv := range varFlags {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			return nil, fmt.Errorf("%w: --var %q: want K:V", ErrConfig, kv)
		}
		vars[k] = v
	}
	return vars, nil
}
