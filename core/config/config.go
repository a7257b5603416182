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
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/dandyvica/clf/core/nagios"
	"github.com/dandyvica/clf/core/pattern"
)

// ErrConfig reports a malformed configuration: bad YAML, bad options
// string, or an invalid regex.
var ErrConfig = errors.New("configuration error")

// Global holds the settings shared by all searches.
type Global struct {
	ScriptPath        string            `mapstructure:"script_path"`
	SnapshotFile      string            `mapstructure:"snapshot_file"`
	SnapshotRetention uint64            `mapstructure:"snapshot_retention"` // seconds
	Vars              map[string]string `mapstructure:"vars"`
}

// Archive describes where to look for a rotated predecessor of a logfile.
type Archive struct {
	Dir       string `mapstructure:"dir"`
	Extension string `mapstructure:"extension"`
}

// LogfileDef describes one logfile (or one list command producing logfile
// paths) to scan.
type LogfileDef struct {
	Path           string   `mapstructure:"path"`
	List           []string `mapstructure:"list"` // argv whose stdout lines are paths
	Format         string   `mapstructure:"format"`
	Exclude        string   `mapstructure:"exclude"`
	Archive        Archive  `mapstructure:"archive"`
	LogfileMissing string   `mapstructure:"logfilemissing"`
	HashWindow     uint64   `mapstructure:"hash_window"`

	exclude *regexp.Regexp
	missing nagios.Severity
}

// ExcludeRE returns the compiled exclude regex, or nil when unset.
func (d *LogfileDef) ExcludeRE() *regexp.Regexp {
	return d.exclude
}

// MissingSeverity returns the severity configured for a missing logfile.
func (d *LogfileDef) MissingSeverity() nagios.Severity {
	return d.missing
}

// CallbackSpec names the side effect to trigger on a classified match:
// exactly one of a script to spawn, a TCP address, or a UNIX domain socket.
type CallbackSpec struct {
	Script  string   `mapstructure:"script"`
	Address string   `mapstructure:"address"`
	Domain  string   `mapstructure:"domain"`
	Args    []string `mapstructure:"args"`
}

// Defined reports whether any callback target is configured.
func (c CallbackSpec) Defined() bool {
	return c.Script != "" || c.Address != "" || c.Domain != ""
}

// Tag is a named search specification inside a logfile stanza.
type Tag struct {
	Name     string       `mapstructure:"name"`
	Process  *bool        `mapstructure:"process"`
	Options  string       `mapstructure:"options"`
	Callback CallbackSpec `mapstructure:"callback"`
	Patterns pattern.Spec `mapstructure:"patterns"`

	opts     TagOptions
	compiled *pattern.PatternSet
}

// Active reports whether the tag should be processed (default true).
func (t *Tag) Active() bool {
	return t.Process == nil || *t.Process
}

// Opts returns the parsed option set. Valid after Validate.
func (t *Tag) Opts() TagOptions {
	return t.opts
}

// PatternSet returns the compiled pattern set. Valid after Validate.
func (t *Tag) PatternSet() *pattern.PatternSet {
	return t.compiled
}

// Search pairs a logfile definition with the tags scanning it.
type Search struct {
	Logfile LogfileDef `mapstructure:"logfile"`
	Tags    []*Tag     `mapstructure:"tags"`
}

// Config is the root of the configuration view.
type Config struct {
	Global   Global    `mapstructure:"global"`
	Searches []*Search `mapstructure:"searches"`
}

// scalarLogfileHook accepts the scalar `logfile: path` form, reading it as
// {path: X, format: plain} with all other fields defaulted.
func scalarLogfileHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(LogfileDef{}) {
		return data, nil
	}
	return map[string]interface{}{"path": data.(string), "format": "plain"}, nil
}

// Parse reads an already-rendered YAML document into a validated Config.
func Parse(text string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg := &Config{}
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		scalarLogfileHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load renders the file at path with vars and parses the result. The
// rendered text is returned alongside the config for --show-rendered.
func Load(path string, vars map[string]string) (*Config, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	rendered := Render(string(raw), vars)
	cfg, err := Parse(rendered)
	return cfg, rendered, err
}

// Validate checks the structural rules and compiles every regex so that a
// bad configuration aborts the process before any scan.
func (c *Config) Validate() error {
	if len(c.Searches) == 0 {
		return fmt.Errorf("%w: no searches defined", ErrConfig)
	}
	for i, srch := range c.Searches {
		def := &srch.Logfile
		if def.Path == "" && len(def.List) == 0 {
			return fmt.Errorf("%w: search #%d has neither a logfile path nor a list command", ErrConfig, i)
		}
		if def.Path != "" && len(def.List) > 0 {
			return fmt.Errorf("%w: search #%d has both a logfile path and a list command", ErrConfig, i)
		}
		if def.Exclude != "" {
			re, err := regexp.Compile(def.Exclude)
			if err != nil {
				return fmt.Errorf("%w: search #%d exclude: %v", ErrConfig, i, err)
			}
			def.exclude = re
		}
		switch def.LogfileMissing {
		case "", "unknown":
			def.missing = nagios.Unknown
		case "critical":
			def.missing = nagios.Critical
		case "warning":
			def.missing = nagios.Warning
		default:
			return fmt.Errorf("%w: search #%d logfilemissing %q (want critical, warning or unknown)", ErrConfig, i, def.LogfileMissing)
		}
		if len(srch.Tags) == 0 {
			return fmt.Errorf("%w: search #%d has no tags", ErrConfig, i)
		}
		for _, tag := range srch.Tags {
			if tag.Name == "" {
				return fmt.Errorf("%w: search #%d has a tag without a name", ErrConfig, i)
			}
			opts, err := ParseOptions(tag.Options)
			if err != nil {
				return fmt.Errorf("%w: tag %q: %v", ErrConfig, tag.Name, err)
			}
			tag.opts = opts
			ps, err := pattern.Compile(tag.Patterns)
			if err != nil {
				return fmt.Errorf("%w: tag %q: %v", ErrConfig, tag.Name, err)
			}
			tag.compiled = ps
		}
	}
	return nil
}
