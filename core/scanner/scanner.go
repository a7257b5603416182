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

// Package scanner orchestrates the incremental scan of one (logfile, tag):
// signature and rotation detection, predecessor handling, the per-line
// classify/dispatch pipeline, and the run data update.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/dandyvica/clf/core/callback"
	"github.com/dandyvica/clf/core/config"
	"github.com/dandyvica/clf/core/nagios"
	"github.com/dandyvica/clf/core/pattern"
	"github.com/dandyvica/clf/core/reader"
	"github.com/dandyvica/clf/core/signature"
	"github.com/dandyvica/clf/core/snapshot"
	"github.com/dandyvica/clf/logline"
)

// ErrMissingLogfile reports a logfile that does not exist; its severity is
// taken from the logfilemissing configuration.
var ErrMissingLogfile = errors.New("logfile missing")

// Result is the outcome of scanning one (logfile, tag).
type Result struct {
	Path     string
	Tag      string
	Severity nagios.Severity
	Counters snapshot.Counters
	Err      error
}

// Scanner runs the per-(logfile, tag) scan pipeline against a shared
// snapshot and callback connection pool. It is single-threaded: one scan at
// a time, readers and dispatchers closed before the next logfile.
type Scanner struct {
	Snap       *snapshot.Snapshot
	Pool       *callback.Pool
	ConfigFile string
	Globals    map[string]string
	ScriptPath string
	NoCallback bool
}

// Scan runs one (logfile, tag) through the pipeline and returns its
// severity. The snapshot is updated in memory; persisting it is the
// caller's job at end of run.
func (s *Scanner) Scan(ctx context.Context, def *config.LogfileDef, path string, tag *config.Tag) Result {
	res := Result{Path: path, Tag: tag.Name, Severity: nagios.OK}
	opts := tag.Opts()

	if _, err := os.Stat(path); err != nil {
		res.Severity = def.MissingSeverity()
		res.Err = fmt.Errorf("%w: %w", ErrMissingLogfile, err)
		return res
	}

	window := int64(def.HashWindow)
	if window == 0 {
		window = signature.DefaultHashWindow
	}
	id, err := snapshot.NewLogfileID(path, window)
	if err != nil {
		return s.fail(res, nil, err)
	}

	prev, existed := s.Snap.Logfile(id.CanonicalPath)
	rotated := false
	hadRunData := false
	var prevSig signature.Signature
	if existed {
		prevSig = prev.ID.Signature
		same, serr := prevSig.SameAs(id.Signature, path, id.Compression, window)
		if serr != nil {
			return s.fail(res, nil, serr)
		}
		rotated = !same
		_, hadRunData = prev.RunData[tag.Name]
	}
	ls := s.Snap.SetLogfile(id)
	rd := ls.Tag(tag.Name)

	// The run limit caps executions per plugin invocation, and a recorded
	// error belongs to the run that hit it.
	rd.Counters.Exec = 0
	rd.LastError = ""
	if !opts.SaveThresholds {
		rd.Counters.Critical, rd.Counters.Warning = 0, 0
	}

	var disp callback.Dispatcher
	if opts.RunCallback && tag.Callback.Defined() && !s.NoCallback {
		disp, err = callback.New(tag.Callback, opts, s.ScriptPath, s.Globals, s.Pool)
		if err != nil {
			return s.fail(res, rd, err)
		}
		defer disp.Close()
	}

	if rotated {
		logger.Info.Printf("%s: signature changed (%s -> %s), file was rotated", path, prevSig.String(), id.Signature.String())
		if pred := findPredecessor(def, id); pred != "" {
			if hadRunData {
				logger.Info.Printf("%s: scanning rotated predecessor %s from offset %d", path, pred, rd.LastOffset)
				if err := s.scanFile(ctx, pred, reader.FromExtension(pred), def, tag, rd, disp); err != nil {
					return s.fail(res, rd, err)
				}
			}
		} else {
			logger.Warn.Printf("%s: rotated but no predecessor found, rescanning from start", path)
		}
		// The live file is a fresh object: restart offsets for it.
		rd.StartOffset, rd.StartLine, rd.LastOffset, rd.LastLine = 0, 0, 0, 0
	}

	if opts.Rewind {
		rd.LastOffset, rd.LastLine = 0, 0
	}
	if opts.FastForward && !hadRunData {
		// Skip history on first encounter: record EOF and do not scan. The
		// line number is unknown without reading, so it stays at zero.
		rd.StartOffset, rd.LastOffset = id.Signature.Size, id.Signature.Size
		rd.Finalize(nil)
		res.Counters = rd.Counters
		return res
	}

	if err := s.scanFile(ctx, path, id.Compression, def, tag, rd, disp); err != nil {
		return s.fail(res, rd, err)
	}
	rd.Finalize(nil)
	res.Severity = tagSeverity(rd, opts)
	res.Counters = rd.Counters
	return res
}

// fail finalizes a scan aborted by err, contributing severity Unknown.
func (s *Scanner) fail(res Result, rd *snapshot.RunData, err error) Result {
	logger.Error.Printf("%s[%s]: %v", res.Path, res.Tag, err)
	if rd != nil {
		rd.Finalize(err)
		res.Counters = rd.Counters
	}
	res.Severity = nagios.Unknown
	res.Err = err
	return res
}

// scanFile streams one file (live or rotated predecessor) from the tag's
// last offset through the classify/dispatch pipeline.
func (s *Scanner) scanFile(ctx context.Context, path string, comp reader.Compression, def *config.LogfileDef, tag *config.Tag, rd *snapshot.RunData, disp callback.Dispatcher) error {
	r, err := reader.Open(path, comp)
	if err != nil {
		return err
	}
	defer r.Close()
	if rd.LastOffset > 0 {
		if err := r.Seek(int64(rd.LastOffset)); err != nil {
			return err
		}
	}
	r.SetLineNumber(rd.LastLine)
	rd.StartOffset, rd.StartLine = rd.LastOffset, rd.LastLine

	opts := tag.Opts()
	ps := tag.PatternSet()
	exclude := def.ExcludeRE()

	for {
		if err := ctx.Err(); err != nil {
			// Interrupted: state reflects the last fully processed line.
			return err
		}
		line, offset, number, err := r.NextLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if number > opts.StopAt {
			logger.Trace.Printf("%s[%s]: stopat %d reached", path, tag.Name, opts.StopAt)
			return nil
		}
		text := string(line)
		if exclude == nil || !exclude.MatchString(text) {
			classified := text
			if opts.Truncate != config.Unset && uint64(len(classified)) > opts.Truncate {
				classified = classified[:opts.Truncate]
			}
			if m := ps.Classify(classified); m != nil {
				s.hit(logline.New(path, text, offset, number), tag, m, rd, disp)
			}
		}
		rd.LastOffset = uint64(r.Offset())
		rd.LastLine = number
	}
}

// hit applies the threshold and run-limit logic to one classified line and
// dispatches the callback when due.
func (s *Scanner) hit(line *logline.LogLine, tag *config.Tag, m *pattern.Match, rd *snapshot.RunData, disp callback.Dispatcher) {
	opts := tag.Opts()
	switch m.Type {
	case pattern.Critical:
		rd.Counters.Critical++
	case pattern.Warning:
		rd.Counters.Warning++
	case pattern.Ok:
		rd.Counters.Ok++
	}
	// Thresholds suppress early hits; the run limit caps executions per
	// invocation.
	due := (m.Type == pattern.Critical && rd.Counters.Critical > opts.CriticalThreshold) ||
		(m.Type == pattern.Warning && rd.Counters.Warning > opts.WarningThreshold) ||
		(m.Type == pattern.Ok && opts.RunIfOk)
	if disp != nil && due && rd.Counters.Exec < opts.RunLimit {
		vars := callback.BuildVars(line, tag.Name, m, rd.Counters, s.ConfigFile)
		pid, err := disp.Dispatch(vars)
		if err != nil {
			// Callback failures are logged and recorded but do not stop the
			// scan; no retry within a run.
			logger.Error.Printf("%s[%s]: %v", line.Filename, tag.Name, err)
			rd.LastError = err.Error()
		} else {
			rd.Counters.Exec++
			if pid != 0 {
				logger.Trace.Printf("%s[%s]: callback pid %d for line %d", line.Filename, tag.Name, pid, line.Number)
			}
		}
	}
	if m.Type == pattern.Ok {
		rd.Counters.Critical, rd.Counters.Warning = 0, 0
	}
}

// tagSeverity converts a finished tag's counters into a Nagios severity.
func tagSeverity(rd *snapshot.RunData, opts config.TagOptions) nagios.Severity {
	if rd.Counters.Critical > opts.CriticalThreshold {
		return nagios.Critical
	}
	if rd.Counters.Warning > opts.WarningThreshold {
		return nagios.Warning
	}
	return nagios.OK
}

// findPredecessor locates the rotated predecessor of a logfile: a file in
// the archive directory (the logfile's own directory by default) whose name
// extends the logfile base name with the archive extension. The most
// recently modified candidate wins.
func findPredecessor(def *config.LogfileDef, id *snapshot.LogfileID) string {
	dir := def.Archive.Dir
	if dir == "" {
		dir = id.Directory
	}
	ext := def.Archive.Extension
	if ext == "" {
		ext = "gz"
	}
	ext = "." + strings.TrimPrefix(ext, ".")
	base := filepath.Base(id.CanonicalPath)
	candidates, err := filepath.Glob(filepath.Join(dir, base+"*"+ext))
	if err != nil {
		return ""
	}
	best := ""
	var bestTime int64
	for _, c := range candidates {
		// A compressed logfile can glob itself; it is not its own
		// predecessor.
		if snapshot.Canonicalize(c) == id.CanonicalPath {
			continue
		}
		fi, err := os.Stat(c)
		if err != nil {
			continue
		}
		if mt := fi.ModTime().UnixNano(); best == "" || mt > bestTime {
			best, bestTime = c, mt
		}
	}
	return best
}
