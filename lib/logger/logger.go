// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logger implements a facility based logger with callback
// functionality. Debug output per facility is controlled by the DLNATRACE
// environment variable or at runtime through SetDebug.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelVerbose
	LevelInfo
	LevelWarn
	NumLevels
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelVerbose:
		return "VERBOSE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultFlags = log.Ltime | log.Ldate
	DebugFlags   = log.Ltime | log.Ldate | log.Lmicroseconds | log.Lshortfile
)

// TraceEnv names the environment variable holding the facilities to trace.
const TraceEnv = "DLNATRACE"

// A MessageHandler is called with the log level and message text.
type MessageHandler func(l LogLevel, msg string)

type Logger interface {
	AddHandler(level LogLevel, h MessageHandler)
	SetFlags(flag int)
	SetPrefix(prefix string)
	Debugln(vals ...any)
	Debugf(format string, vals ...any)
	Verboseln(vals ...any)
	Verbosef(format string, vals ...any)
	Infoln(vals ...any)
	Infof(format string, vals ...any)
	Warnln(vals ...any)
	Warnf(format string, vals ...any)
	ShouldDebug(facility string) bool
	SetDebug(facility string, enabled bool)
	SetDebugAll(enabled bool)
	Facilities() map[string]string
	FacilityDebugging() []string
	NewFacility(facility, description string) Logger
}

type logger struct {
	logger     *log.Logger
	handlers   [NumLevels][]MessageHandler
	facilities map[string]string   // facility name => description
	debug      map[string]struct{} // only facility names with debugging enabled
	traces     []string
	mut        sync.Mutex
}

// DefaultLogger logs to standard output with a time prefix.
var DefaultLogger = New()

func New() Logger {
	if os.Getenv("LOGGER_DISCARD") != "" {
		return newLogger(io.Discard)
	}
	return newLogger(controlStripper{os.Stdout})
}

func newLogger(w io.Writer) Logger {
	traces := strings.FieldsFunc(os.Getenv(TraceEnv), func(r rune) bool {
		return strings.ContainsRune(",; ", r)
	})

	if len(traces) > 0 {
		if slices.Contains(traces, "all") {
			traces = []string{"all"}
		} else {
			slices.Sort(traces)
		}
	}

	return &logger{
		logger:     log.New(w, "", DefaultFlags),
		traces:     traces,
		facilities: make(map[string]string),
		debug:      make(map[string]struct{}),
	}
}

// AddHandler registers a new MessageHandler to receive messages with the
// specified log level or above.
func (l *logger) AddHandler(level LogLevel, h MessageHandler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

// See log.SetFlags
func (l *logger) SetFlags(flag int) {
	l.logger.SetFlags(flag)
}

// See log.SetPrefix
func (l *logger) SetPrefix(prefix string) {
	l.logger.SetPrefix(prefix)
}

// output writes s at the given level. Depth is the number of stack frames
// between the public method and the log package, for Lshortfile.
func (l *logger) output(depth int, level LogLevel, s string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.logger.Output(depth+1, level.String()+": "+s)
	s = strings.TrimSpace(s)
	for ll := LevelDebug; ll <= level; ll++ {
		for _, h := range l.handlers[ll] {
			h(level, s)
		}
	}
}

func (l *logger) Debugln(vals ...any) {
	l.output(2, LevelDebug, fmt.Sprintln(vals...))
}

func (l *logger) Debugf(format string, vals ...any) {
	l.output(2, LevelDebug, fmt.Sprintf(format, vals...))
}

func (l *logger) Verboseln(vals ...any) {
	l.output(2, LevelVerbose, fmt.Sprintln(vals...))
}

func (l *logger) Verbosef(format string, vals ...any) {
	l.output(2, LevelVerbose, fmt.Sprintf(format, vals...))
}

func (l *logger) Infoln(vals ...any) {
	l.output(2, LevelInfo, fmt.Sprintln(vals...))
}

func (l *logger) Infof(format string, vals ...any) {
	l.output(2, LevelInfo, fmt.Sprintf(format, vals...))
}

func (l *logger) Warnln(vals ...any) {
	l.output(2, LevelWarn, fmt.Sprintln(vals...))
}

func (l *logger) Warnf(format string, vals ...any) {
	l.output(2, LevelWarn, fmt.Sprintf(format, vals...))
}

// ShouldDebug returns true if the given facility has debugging enabled.
func (l *logger) ShouldDebug(facility string) bool {
	l.mut.Lock()
	_, res := l.debug[facility]
	l.mut.Unlock()
	return res
}

// SetDebug enables or disables debugging for the given facility name.
func (l *logger) SetDebug(facility string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.setDebugLocked(facility, enabled)
}

// SetDebugAll toggles debugging for every known facility, as done by the
// EnableDebugLog option. Facilities named in DLNATRACE stay enabled.
func (l *logger) SetDebugAll(enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for facility := range l.facilities {
		l.setDebugLocked(facility, enabled || l.isTraced(facility))
	}
}

func (l *logger) setDebugLocked(facility string, enabled bool) {
	if _, ok := l.debug[facility]; enabled && !ok {
		l.logger.SetFlags(DebugFlags)
		l.debug[facility] = struct{}{}
	} else if !enabled && ok {
		delete(l.debug, facility)
		if len(l.debug) == 0 {
			l.logger.SetFlags(DefaultFlags)
		}
	}
}

// isTraced returns whether the facility name is contained in DLNATRACE.
func (l *logger) isTraced(facility string) bool {
	if len(l.traces) == 0 {
		return false
	}
	if l.traces[0] == "all" {
		return true
	}
	_, found := slices.BinarySearch(l.traces, facility)
	return found
}

// FacilityDebugging returns the set of facilities that have debugging
// enabled.
func (l *logger) FacilityDebugging() []string {
	l.mut.Lock()
	enabled := make([]string, 0, len(l.debug))
	for facility := range l.debug {
		enabled = append(enabled, facility)
	}
	l.mut.Unlock()
	slices.Sort(enabled)
	return enabled
}

// Facilities returns the currently known set of facilities and their
// descriptions.
func (l *logger) Facilities() map[string]string {
	l.mut.Lock()
	res := make(map[string]string, len(l.facilities))
	for facility, descr := range l.facilities {
		res[facility] = descr
	}
	l.mut.Unlock()
	return res
}

// NewFacility returns a new logger bound to the named facility.
func (l *logger) NewFacility(facility, description string) Logger {
	l.mut.Lock()
	l.facilities[facility] = description
	l.setDebugLocked(facility, l.isTraced(facility))
	l.mut.Unlock()

	return &facilityLogger{
		logger:   l,
		facility: facility,
	}
}

// A facilityLogger is a regular logger but bound to a facility name. The
// Debugln and Debugf methods are no-ops unless debugging has been enabled for
// this facility on the parent logger.
type facilityLogger struct {
	*logger
	facility string
}

func (l *facilityLogger) Debugln(vals ...any) {
	if !l.ShouldDebug(l.facility) {
		return
	}
	l.logger.output(2, LevelDebug, fmt.Sprintln(vals...))
}

func (l *facilityLogger) Debugf(format string, vals ...any) {
	if !l.ShouldDebug(l.facility) {
		return
	}
	l.logger.output(2, LevelDebug, fmt.Sprintf(format, vals...))
}

// controlStripper is a Writer that replaces control characters
// with spaces.
type controlStripper struct {
	io.Writer
}

func (s controlStripper) Write(data []byte) (int, error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			continue
		}
		if b < 32 {
			data[i] = ' '
		}
	}
	return s.Writer.Write(data)
}
