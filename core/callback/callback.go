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
	"errors"
	"fmt"

	"github.com/dandyvica/clf/core/config"
)

// ErrSpawn reports a callback process that could not be started.
var ErrSpawn = errors.New("callback spawn error")

// ErrNet reports a callback socket connect, send or timeout failure.
var ErrNet = errors.New("callback network error")

// Dispatcher delivers one materialized variable set to a callback target.
// Dispatch returns the spawned process pid where one exists (0 for socket
// targets). Callbacks for a tag are invoked in triggering-line order.
type Dispatcher interface {
	Dispatch(vars Vars) (int, error)
	Close() error
}

// New builds a dispatcher for spec. Socket targets share live connections
// through pool for the whole run; process targets spawn per dispatch.
func New(spec config.CallbackSpec, opts config.TagOptions, scriptPath string, globals map[string]string, pool *Pool) (Dispatcher, error) {
	switch {
	case spec.Script != "":
		return &processDispatcher{
			script:     spec.Script,
			args:       spec.Args,
			scriptPath: scriptPath,
			keepOutput: opts.KeepOutput,
			protocol:   opts.Protocol,
			globals:    globals,
		}, nil
	case spec.Address != "":
		return &socketDispatcher{pool: pool, network: "tcp", addr: spec.Address, args: spec.Args}, nil
	case spec.Domain != "":
		return &socketDispatcher{pool: pool, network: "unix", addr: spec.Domain, args: spec.Args}, nil
	}
	return nil, fmt.Errorf("%w: no callback target configured", config.ErrConfig)
}
