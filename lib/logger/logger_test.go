// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func checkFunc(t *testing.T, expectl LogLevel, counter *int) MessageHandler {
	t.Helper()
	return func(l LogLevel, msg string) {
		*counter++
		if l < expectl {
			t.Errorf("Incorrect message level %d < %d", l, expectl)
		}
	}
}

func TestAPI(t *testing.T) {
	l := newLogger(io.Discard)
	l.SetFlags(0)
	l.SetPrefix("testing")

	debug := 0
	l.AddHandler(LevelDebug, checkFunc(t, LevelDebug, &debug))
	info := 0
	l.AddHandler(LevelInfo, checkFunc(t, LevelInfo, &info))
	warn := 0
	l.AddHandler(LevelWarn, checkFunc(t, LevelWarn, &warn))

	l.Debugf("test %d", 0)
	l.Debugln("test", 0)
	l.Infof("test %d", 1)
	l.Infoln("test", 1)
	l.Warnf("test %d", 3)
	l.Warnln("test", 3)

	if debug != 6 {
		t.Errorf("Debug handler called %d != 6 times", debug)
	}
	if info != 4 {
		t.Errorf("Info handler called %d != 4 times", info)
	}
	if warn != 2 {
		t.Errorf("Warn handler called %d != 2 times", warn)
	}
}

func TestFacilityDebugging(t *testing.T) {
	t.Setenv(TraceEnv, "ssdp")

	var buf bytes.Buffer
	l := newLogger(&buf)

	ssdp := l.NewFacility("ssdp", "SSDP")
	soap := l.NewFacility("soap", "SOAP")

	ssdp.Debugln("visible")
	soap.Debugln("hidden")

	if !strings.Contains(buf.String(), "visible") {
		t.Error("traced facility should log debug output")
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("untraced facility should not log debug output")
	}

	l.SetDebugAll(true)
	soap.Debugln("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetDebugAll should enable every facility")
	}

	l.SetDebugAll(false)
	if !l.ShouldDebug("ssdp") {
		t.Error("traced facility should stay enabled")
	}
	if l.ShouldDebug("soap") {
		t.Error("soap should be disabled again")
	}
}

func TestControlStripper(t *testing.T) {
	var buf bytes.Buffer
	w := controlStripper{&buf}
	w.Write([]byte("a\x1bb\tc\n"))
	if got := buf.String(); got != "a b c\n" {
		t.Errorf("got %q", got)
	}
}

func TestRecorder(t *testing.T) {
	l := newLogger(io.Discard)
	l.SetFlags(0)

	r0 := NewRecorder(l, LevelDebug, 5, 0)
	r1 := NewRecorder(l, LevelInfo, 5, 2)

	l.Debugln("hah")
	l.Infoln("hah")
	l.Infoln("hah")
	l.Infoln("hah")
	l.Warnln("hah")
	l.Infoln("hah")

	lines := r0.Since(time.Time{})
	if len(lines) != 5 {
		t.Fatalf("incorrect number of lines %d != 5", len(lines))
	}
	lines = r1.Since(time.Time{})
	if len(lines) != 5 {
		t.Fatalf("incorrect number of lines %d != 5", len(lines))
	}
	if lines[2].Message != "..." {
		t.Errorf("expected ellipsis after the initial lines, got %q", lines[2].Message)
	}

	r0.Clear()
	if lines := r0.Since(time.Time{}); len(lines) != 0 {
		t.Error("expected no lines after clear")
	}
}
