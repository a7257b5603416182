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
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sysflow-telemetry/sf-apis/go/logger"
)

// processDispatcher spawns a script for each dispatched match. The child
// inherits the parent environment plus the CLF variables; a nonzero exit is
// logged but is not a scan failure.
type processDispatcher struct {
	script     string
	args       []string
	scriptPath string
	keepOutput bool
	protocol   bool
	globals    map[string]string
}

// Dispatch spawns the script and returns its pid without waiting for it.
func (p *processDispatcher) Dispatch(vars Vars) (int, error) {
	cmd := exec.Command(p.script, p.args...)
	cmd.Env = p.environ(vars)
	if p.protocol {
		// Mirror the socket framing on the child's stdin.
		frame, err := encodeFrame(&Payload{Global: p.globals, Variables: vars, Args: p.args})
		if err != nil {
			return 0, err
		}
		cmd.Stdin = bytes.NewReader(frame)
	}
	var out bytes.Buffer
	if p.keepOutput {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSpawn, p.script, err)
	}
	pid := cmd.Process.Pid
	logger.Trace.Printf("Spawned callback %s (pid %d)", p.script, pid)
	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Warn.Printf("Callback %s (pid %d) exited: %v", p.script, pid, err)
		}
		if p.keepOutput && out.Len() > 0 {
			logger.Info.Printf("Callback %s (pid %d) output: %s", p.script, pid, out.String())
		}
	}()
	return pid, nil
}

// Close implements the Dispatcher interface; spawned children are not
// waited on.
func (p *processDispatcher) Close() error {
	return nil
}

// environ merges the parent environment, the user global variables and the
// CLF variables. User keys already carrying the CLF_ prefix pass verbatim;
// other user keys are exported un-prefixed.
func (p *processDispatcher) environ(vars Vars) []string {
	env := os.Environ()
	if p.scriptPath != "" {
		env = prependPath(env, p.scriptPath)
	}
	for k, v := range p.globals {
		env = append(env, k+"="+v)
	}
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env
}

// prependPath puts dir in front of the platform PATH.
func prependPath(env []string, dir string) []string {
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + dir + string(os.PathListSeparator) + kv[len("PATH="):]
			return env
		}
	}
	return append(env, "PATH="+dir)
}
