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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"
)

// writeTimeout bounds the per-line latency of a socket dispatch. Exceeding
// it closes the socket and fails the callback for this line.
const writeTimeout = 5 * time.Second

// Payload is the JSON object sent in each frame. Global carries the user
// global variables and is present only in the first frame of a connection.
type Payload struct {
	Global    map[string]string `json:"global,omitempty"`
	Variables Vars              `json:"variables"`
	Args      []string          `json:"args,omitempty"`
}

// encodeFrame serializes a payload as a 2-byte big-endian length prefix
// followed by the JSON bytes.
func encodeFrame(p *Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNet, err)
	}
	if len(data) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds frame limit", ErrNet, len(data))
	}
	frame := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(frame, uint16(len(data)))
	copy(frame[2:], data)
	return frame, nil
}

// framedConn is one live connection to a socket target, shared by all tags
// of the run that dispatch to the same address.
type framedConn struct {
	conn        net.Conn
	sentGlobals bool
	broken      bool
}

// Pool owns the socket connections of a whole run, keyed by the address or
// domain path string. Connections are dialed lazily on first dispatch and
// never redialed within a run.
type Pool struct {
	globals map[string]string
	conns   map[string]*framedConn
}

// NewPool creates a connection pool carrying the user global variables.
func NewPool(globals map[string]string) *Pool {
	return &Pool{globals: globals, conns: make(map[string]*framedConn)}
}

// get returns the live connection for addr, dialing it on first use.
func (p *Pool) get(network, addr string) (*framedConn, error) {
	if fc, ok := p.conns[addr]; ok {
		if fc.broken {
			return nil, fmt.Errorf("%w: %s: connection marked failed for this run", ErrNet, addr)
		}
		return fc, nil
	}
	conn, err := net.DialTimeout(network, addr, writeTimeout)
	if err != nil {
		p.conns[addr] = &framedConn{broken: true}
		return nil, fmt.Errorf("%w: %s: %v", ErrNet, addr, err)
	}
	logger.Trace.Printf("Connected callback socket %s://%s", network, addr)
	fc := &framedConn{conn: conn}
	p.conns[addr] = fc
	return fc, nil
}

// send writes one frame under the write timeout. A failed or timed out
// write closes the connection and marks it failed for the rest of the run.
func (fc *framedConn) send(p *Pool, payload *Payload) error {
	if !fc.sentGlobals {
		payload.Global = p.globals
	}
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}
	if err := fc.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrNet, err)
	}
	if _, err := fc.conn.Write(frame); err != nil {
		fc.broken = true
		fc.conn.Close()
		return fmt.Errorf("%w: %v", ErrNet, err)
	}
	fc.sentGlobals = true
	return nil
}

// Close closes every live connection in the pool.
func (p *Pool) Close() error {
	var first error
	for _, fc := range p.conns {
		if fc.conn != nil && !fc.broken {
			if err := fc.conn.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// socketDispatcher sends framed payloads to one TCP or UNIX domain target.
type socketDispatcher struct {
	pool    *Pool
	network string
	addr    string
	args    []string
}

// Dispatch frames and sends the variable set to the target.
func (s *socketDispatcher) Dispatch(vars Vars) (int, error) {
	fc, err := s.pool.get(s.network, s.addr)
	if err != nil {
		return 0, err
	}
	return 0, fc.send(s.pool, &Payload{Variables: vars, Args: s.args})
}

// Close implements the Dispatcher interface. The pooled connection stays
// open for other tags targeting the same address; the pool closes it at
// end of run.
func (s *socketDispatcher) Close() error {
	return nil
}
