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

// clf is a Nagios-compatible plugin scanning log files for regex patterns,
// firing callbacks on matches and resuming across runs from a snapshot.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/dandyvica/clf/core/config"
	"github.com/dandyvica/clf/core/nagios"
	"github.com/dandyvica/clf/core/runner"
	"github.com/dandyvica/clf/core/snapshot"
)

type cliOptions struct {
	configFile     string
	snapshotFile   string
	logFile        string
	logLevel       string
	maxLogSize     int64
	deleteSnapshot bool
	noCallback     bool
	overwriteLog   bool
	showOptions    bool
	showRendered   bool
	syntaxCheck    bool
	contextJSON    string
	varFlags       []string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts := &cliOptions{}
	exit := nagios.OK

	cmd := &cobra.Command{
		Use:           "clf --config FILE",
		Short:         "Check log files for regex patterns, Nagios style",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			exit, err = execute(cmd, opts)
			return err
		},
	}
	// Plugin output must go to stdout for Nagios to pick it up.
	cmd.SetOut(os.Stdout)

	fl := cmd.Flags()
	fl.StringVar(&opts.configFile, "config", "", "configuration file (YAML)")
	fl.StringVar(&opts.snapshotFile, "snapshot", "", "snapshot file overriding the configuration")
	fl.StringVar(&opts.logFile, "log", "", "write the plugin log to this file")
	fl.StringVar(&opts.logLevel, "log-level", "Info", "Off|Error|Warn|Info|Debug|Trace")
	fl.Int64Var(&opts.maxLogSize, "max-logsize", 0, "truncate the plugin log beyond this size (MB)")
	fl.BoolVar(&opts.deleteSnapshot, "delete-snapshot", false, "delete the snapshot before scanning")
	fl.BoolVar(&opts.noCallback, "no-callback", false, "classify and count but never dispatch callbacks")
	fl.BoolVar(&opts.overwriteLog, "overwrite-log", false, "truncate the plugin log instead of appending")
	fl.BoolVar(&opts.showOptions, "show-options", false, "print the resolved per-tag options")
	fl.BoolVar(&opts.showRendered, "show-rendered", false, "print the configuration after template rendering and exit")
	fl.BoolVar(&opts.syntaxCheck, "syntax-check", false, "load and compile the configuration, then exit")
	fl.StringVar(&opts.contextJSON, "context", "", "JSON object feeding {{ var }} rendering")
	fl.StringArrayVar(&opts.varFlags, "var", nil, "K:V pair feeding {{ var }} rendering (repeatable)")
	cobra.CheckErr(cmd.MarkFlagRequired("config"))

	if err := cmd.Execute(); err != nil {
		fmt.Printf("CLF %s - %v\n", nagios.Unknown, err)
		return nagios.Unknown.ExitCode()
	}
	return exit.ExitCode()
}

// execute runs the plugin once and returns the Nagios severity to exit with.
func execute(cmd *cobra.Command, opts *cliOptions) (nagios.Severity, error) {
	if err := setupLogging(opts); err != nil {
		return nagios.Unknown, err
	}

	vars, err := config.BuildContext(opts.contextJSON, opts.varFlags)
	if err != nil {
		return nagios.Unknown, err
	}
	cfg, rendered, err := config.Load(opts.configFile, vars)
	if opts.showRendered {
		cmd.Print(rendered)
		if err != nil {
			return nagios.Unknown, err
		}
		return nagios.OK, nil
	}
	if opts.syntaxCheck {
		// A configuration that does not parse or compile is a Critical
		// check result, not a plugin failure.
		if err != nil {
			cmd.Printf("%s: %v\n", opts.configFile, err)
			return nagios.Critical, nil
		}
		cmd.Printf("%s: syntax OK (%d searches)\n", opts.configFile, len(cfg.Searches))
		return nagios.OK, nil
	}
	if err != nil {
		return nagios.Unknown, err
	}
	if opts.showOptions {
		for _, srch := range cfg.Searches {
			for _, tag := range srch.Tags {
				cmd.Printf("%s: %s\n", tag.Name, tag.Opts())
			}
		}
	}

	snapshotPath := opts.snapshotFile
	if snapshotPath == "" {
		snapshotPath = cfg.Global.SnapshotFile
	}
	if snapshotPath == "" {
		snapshotPath = snapshot.DefaultPath()
	}
	if opts.deleteSnapshot {
		if err := os.Remove(snapshotPath); err != nil && !os.IsNotExist(err) {
			return nagios.Unknown, err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner.Runner{
		Cfg:          cfg,
		ConfigFile:   opts.configFile,
		SnapshotPath: snapshotPath,
		NoCallback:   opts.noCallback,
	}
	severity, output := r.Run(ctx)
	cmd.Print(output)
	return severity, nil
}

// setupLogging initializes the leveled loggers and redirects the enabled
// ones to --log when set.
func setupLogging(opts *cliOptions) error {
	level := logger.INFO
	switch opts.logLevel {
	case "Off", "off":
		level = logger.QUIET
	case "Error", "error":
		level = logger.ERROR
	case "Warn", "warn":
		level = logger.WARN
	case "Info", "info":
		level = logger.INFO
	case "Debug", "debug", "Trace", "trace":
		level = logger.TRACE
	default:
		return fmt.Errorf("%w: unknown log level %q", config.ErrConfig, opts.logLevel)
	}
	logger.InitLoggers(level)
	if opts.logFile == "" {
		return nil
	}

	if opts.maxLogSize > 0 {
		if fi, err := os.Stat(opts.logFile); err == nil && fi.Size() > opts.maxLogSize*1024*1024 {
			opts.overwriteLog = true
		}
	}
	mode := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if opts.overwriteLog {
		mode = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(opts.logFile, mode, 0o644)
	if err != nil {
		return err
	}

	// Redirect only the loggers the level enables, preserving the discard
	// set up by InitLoggers for the rest.
	var targets []*log.Logger
	switch level {
	case logger.TRACE:
		targets = append(targets, logger.Trace)
		fallthrough
	case logger.INFO:
		targets = append(targets, logger.Info)
		fallthrough
	case logger.WARN:
		targets = append(targets, logger.Warn)
		fallthrough
	case logger.ERROR:
		targets = append(targets, logger.Error)
	}
	for _, l := range targets {
		l.SetOutput(f)
	}
	return nil
}
