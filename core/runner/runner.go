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

// Package runner iterates the configured searches, aggregates per-logfile
// statuses, and emits the Nagios-style summary.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/dandyvica/clf/core/callback"
	"github.com/dandyvica/clf/core/config"
	"github.com/dandyvica/clf/core/nagios"
	"github.com/dandyvica/clf/core/scanner"
	"github.com/dandyvica/clf/core/snapshot"
)

// Runner drives a whole plugin run: searches in order, logfiles in order,
// tags in order, then one snapshot write.
type Runner struct {
	Cfg          *config.Config
	ConfigFile   string
	SnapshotPath string
	NoCallback   bool
}

// logfileReport aggregates the tag results of one logfile for the output.
type logfileReport struct {
	path     string
	severity nagios.Severity
	critical uint64
	warning  uint64
	unknowns int
	err      error
}

// Run executes every search and returns the aggregate severity along with
// the plugin output (one summary line, then one line per logfile).
func (r *Runner) Run(ctx context.Context) (nagios.Severity, string) {
	overall := nagios.OK

	snap, err := snapshot.Load(r.SnapshotPath)
	if err != nil {
		// A corrupt snapshot degrades the run but does not block scanning.
		logger.Error.Printf("%v, starting from an empty snapshot", err)
		snap = snapshot.New()
		overall = nagios.Max(overall, nagios.Unknown)
	}

	pool := callback.NewPool(r.Cfg.Global.Vars)
	defer pool.Close()
	sc := &scanner.Scanner{
		Snap:       snap,
		Pool:       pool,
		ConfigFile: r.ConfigFile,
		Globals:    r.Cfg.Global.Vars,
		ScriptPath: r.Cfg.Global.ScriptPath,
		NoCallback: r.NoCallback,
	}

	var reports []*logfileReport
	tags := 0
	for _, srch := range r.Cfg.Searches {
		def := &srch.Logfile
		paths, err := resolvePaths(ctx, def)
		if err != nil {
			logger.Error.Printf("Resolving logfile list: %v", err)
			reports = append(reports, &logfileReport{
				path:     strings.Join(def.List, " "),
				severity: nagios.Unknown,
				err:      err,
			})
			overall = nagios.Max(overall, nagios.Unknown)
			continue
		}
		for _, path := range paths {
			rep := &logfileReport{path: path}
			for _, tag := range srch.Tags {
				if !tag.Active() {
					logger.Trace.Printf("%s[%s]: process is off, skipping", path, tag.Name)
					continue
				}
				tags++
				res := sc.Scan(ctx, def, path, tag)
				rep.severity = nagios.Max(rep.severity, res.Severity)
				rep.critical += res.Counters.Critical
				rep.warning += res.Counters.Warning
				if res.Severity == nagios.Unknown {
					rep.unknowns++
				}
				if res.Err != nil && rep.err == nil {
					rep.err = res.Err
				}
				overall = nagios.Max(overall, res.Severity)
			}
			reports = append(reports, rep)
		}
		if ctx.Err() != nil {
			// Interrupted: persist what was fully processed and report
			// Unknown.
			overall = nagios.Max(overall, nagios.Unknown)
			break
		}
	}

	retention := time.Duration(r.Cfg.Global.SnapshotRetention) * time.Second
	if err := snap.Save(r.SnapshotPath, retention); err != nil {
		logger.Error.Printf("%v", err)
		overall = nagios.Max(overall, nagios.Unknown)
	}

	return overall, report(overall, reports, tags)
}

// resolvePaths expands a search into concrete logfile paths: the declared
// path, or each non-empty stdout line of the configured list command.
func resolvePaths(ctx context.Context, def *config.LogfileDef) ([]string, error) {
	if def.Path != "" {
		return []string{def.Path}, nil
	}
	cmd := exec.CommandContext(ctx, def.List[0], def.List[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("list command %q: %w", strings.Join(def.List, " "), err)
	}
	var paths []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// report renders the plugin output: one summary line, then one line per
// logfile. Missing or unreadable files carry the OS error message verbatim.
func report(overall nagios.Severity, reports []*logfileReport, tags int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CLF %s - scanned %d logfile(s), %d tag(s)\n", overall, len(reports), tags)
	for _, rep := range reports {
		var pe *fs.PathError
		if rep.err != nil && (errors.Is(rep.err, scanner.ErrMissingLogfile) || errors.As(rep.err, &pe)) {
			fmt.Fprintf(&b, "%s: %s\n", rep.path, osMessage(rep.err))
			continue
		}
		fmt.Fprintf(&b, "%s: %s - (errors:%d, warnings:%d, unknowns:%d)\n",
			rep.path, rep.severity, rep.critical, rep.warning, rep.unknowns)
	}
	return b.String()
}

// osMessage extracts the underlying OS error text.
func osMessage(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}
