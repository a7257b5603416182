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

package callback

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sysflow-telemetry/sf-apis/go/logger"

	"github.com/dandyvica/clf/core/config"
	"github.com/dandyvica/clf/core/pattern"
	"github.com/dandyvica/clf/core/snapshot"
	"github.com/dandyvica/clf/logline"
	"github.com/dandyvica/clf/testutil"
)

func TestMain(m *testing.M) {
	logger.InitLoggers(logger.ERROR)
	os.Exit(m.Run())
}

// frameServer accepts one connection and decodes frames onto a channel.
func frameServer(tb testing.TB, network, addr string) (net.Listener, chan Payload) {
	tb.Helper()
	l, err := net.Listen(network, addr)
	testutil.FatalIfErr(tb, err)
	frames := make(chan Payload, 16)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var size uint16
			if err := binary.Read(conn, binary.BigEndian, &size); err != nil {
				return
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(conn, data); err != nil {
				return
			}
			var p Payload
			if err := json.Unmarshal(data, &p); err != nil {
				return
			}
			frames <- p
		}
	}()
	return l, frames
}

func waitFrame(tb testing.TB, frames chan Payload) Payload {
	tb.Helper()
	select {
	case p := <-frames:
		return p
	case <-time.After(5 * time.Second):
		tb.Fatal("no frame received")
		return Payload{}
	}
}

func TestTCPGlobalsOnFirstFrameOnly(t *testing.T) {
	l, frames := frameServer(t, "tcp", "127.0.0.1:0")
	defer l.Close()

	pool := NewPool(map[string]string{"A": "1"})
	defer pool.Close()
	d, err := New(config.CallbackSpec{Address: l.Addr().String(), Args: []string{"x"}}, config.TagOptions{}, "", map[string]string{"A": "1"}, pool)
	testutil.FatalIfErr(t, err)

	_, err = d.Dispatch(Vars{"CLF_TAG": "t"})
	testutil.FatalIfErr(t, err)
	_, err = d.Dispatch(Vars{"CLF_TAG": "t"})
	testutil.FatalIfErr(t, err)

	first := waitFrame(t, frames)
	if first.Global["A"] != "1" {
		t.Errorf("first frame global = %v, want A=1", first.Global)
	}
	if first.Variables["CLF_TAG"] != "t" {
		t.Errorf("first frame variables = %v", first.Variables)
	}
	testutil.ExpectNoDiff(t, []string{"x"}, first.Args)

	second := waitFrame(t, frames)
	if second.Global != nil {
		t.Errorf("second frame carries global vars: %v", second.Global)
	}
}

func TestUnixDomainSocket(t *testing.T) {
	dir := testutil.TestTempDir(t)
	sock := filepath.Join(dir, "clf.sock")
	l, frames := frameServer(t, "unix", sock)
	defer l.Close()

	pool := NewPool(nil)
	defer pool.Close()
	d, err := New(config.CallbackSpec{Domain: sock}, config.TagOptions{}, "", nil, pool)
	testutil.FatalIfErr(t, err)

	_, err = d.Dispatch(Vars{"CLF_LINE": "boom"})
	testutil.FatalIfErr(t, err)
	if got := waitFrame(t, frames); got.Variables["CLF_LINE"] != "boom" {
		t.Errorf("frame variables = %v", got.Variables)
	}
}

func TestConnectionSharedAcrossDispatchers(t *testing.T) {
	l, frames := frameServer(t, "tcp", "127.0.0.1:0")
	defer l.Close()

	pool := NewPool(map[string]string{"G": "v"})
	defer pool.Close()
	spec := config.CallbackSpec{Address: l.Addr().String()}
	a, err := New(spec, config.TagOptions{}, "", nil, pool)
	testutil.FatalIfErr(t, err)
	b, err := New(spec, config.TagOptions{}, "", nil, pool)
	testutil.FatalIfErr(t, err)

	_, err = a.Dispatch(Vars{"CLF_TAG": "a"})
	testutil.FatalIfErr(t, err)
	_, err = b.Dispatch(Vars{"CLF_TAG": "b"})
	testutil.FatalIfErr(t, err)

	// Globals arrive once per connection, not once per dispatcher.
	if first := waitFrame(t, frames); first.Global["G"] != "v" {
		t.Errorf("first frame global = %v", first.Global)
	}
	if second := waitFrame(t, frames); second.Global != nil {
		t.Errorf("second frame carries global vars: %v", second.Global)
	}
}

func TestConnectFailureNotRetried(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Close()
	d, err := New(config.CallbackSpec{Address: "127.0.0.1:1"}, config.TagOptions{}, "", nil, pool)
	testutil.FatalIfErr(t, err)

	if _, err := d.Dispatch(Vars{}); !errors.Is(err, ErrNet) {
		t.Errorf("Dispatch() = %v, want ErrNet", err)
	}
	// The address is marked failed for the rest of the run.
	if _, err := d.Dispatch(Vars{}); !errors.Is(err, ErrNet) {
		t.Errorf("second Dispatch() = %v, want ErrNet", err)
	}
}

func TestProcessCallbackEnvironment(t *testing.T) {
	dir := testutil.TestTempDir(t)
	out := filepath.Join(dir, "out")

	pool := NewPool(nil)
	defer pool.Close()
	spec := config.CallbackSpec{
		Script: "/bin/sh",
		Args:   []string{"-c", `printf '%s %s' "$CLF_TAG" "$DC" > "$CLF_OUT"`},
	}
	globals := map[string]string{"DC": "paris", "CLF_OUT": out}
	d, err := New(spec, config.TagOptions{}, "", globals, pool)
	testutil.FatalIfErr(t, err)

	pid, err := d.Dispatch(Vars{"CLF_TAG": "errors"})
	testutil.FatalIfErr(t, err)
	if pid == 0 {
		t.Error("process dispatch returned pid 0")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(out)
		if err == nil && string(data) == "errors paris" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("callback output = %q (%v), want %q", data, err, "errors paris")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessSpawnError(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Close()
	d, err := New(config.CallbackSpec{Script: "/nonexistent/script"}, config.TagOptions{}, "", nil, pool)
	testutil.FatalIfErr(t, err)
	if _, err := d.Dispatch(Vars{}); !errors.Is(err, ErrSpawn) {
		t.Errorf("Dispatch() = %v, want ErrSpawn", err)
	}
}

func TestBuildVars(t *testing.T) {
	line := logline.New("/var/log/app.log", "error id = 42 on web01", 128, 7)
	m := &pattern.Match{
		Type:  pattern.Critical,
		Regex: `error id = (\d+) on (?P<host>\w+)`,
		Captures: []pattern.Capture{
			{Name: "", Value: "42"},
			{Name: "host", Value: "web01"},
		},
	}
	vars := BuildVars(line, "errors", m, snapshot.Counters{Critical: 3, Warning: 1, Ok: 2}, "/etc/clf.yml")

	for k, want := range map[string]string{
		"CLF_LOGFILE":         "/var/log/app.log",
		"CLF_TAG":             "errors",
		"CLF_LINE":            "error id = 42 on web01",
		"CLF_LINE_NUMBER":     "7",
		"CLF_MATCHED_RE_TYPE": "critical",
		"CLF_NB_CG":           "2",
		"CLF_CG_1":            "42",
		"CLF_host":            "web01",
		"CLF_CONFIG_FILE":     "/etc/clf.yml",
		"CLF_CRITICAL_COUNT":  "3",
		"CLF_WARNING_COUNT":   "1",
		"CLF_OK_COUNT":        "2",
	} {
		if vars[k] != want {
			t.Errorf("vars[%s] = %q, want %q", k, vars[k], want)
		}
	}
	if _, ok := vars["CLF_HOSTNAME"]; !ok {
		t.Error("CLF_HOSTNAME missing")
	}
	if _, ok := vars["CLF_PLATFORM"]; !ok {
		t.Error("CLF_PLATFORM missing")
	}
}

func TestFrameEncoding(t *testing.T) {
	frame, err := encodeFrame(&Payload{Variables: Vars{"K": "V"}})
	testutil.FatalIfErr(t, err)
	size := binary.BigEndian.Uint16(frame[:2])
	if int(size) != len(frame)-2 {
		t.Errorf("length prefix %d != payload size %d", size, len(frame)-2)
	}
	var p Payload
	testutil.FatalIfErr(t, json.Unmarshal(frame[2:], &p))
	if p.Variables["K"] != "V" {
		t.Errorf("decoded payload = %+v", p)
	}
}
