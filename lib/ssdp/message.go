// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"bytes"
	"errors"
	"strings"
)

const (
	StartNotify   = "NOTIFY * HTTP/1.1"
	StartSearch   = "M-SEARCH * HTTP/1.1"
	StartResponse = "HTTP/1.1 200 OK"

	VerbNotify   = "NOTIFY"
	VerbSearch   = "M-SEARCH"
	VerbResponse = "HTTP/1.1"
)

var ErrMalformedMessage = errors.New("malformed SSDP message")

// A Message is one SSDP datagram: a start line followed by a header block.
// Header names are case insensitive and kept in insertion order.
type Message struct {
	StartLine string
	keys      []string
	values    map[string]string
}

func NewMessage(startLine string) *Message {
	return &Message{
		StartLine: startLine,
		values:    make(map[string]string),
	}
}

// Verb returns the first token of the start line; "NOTIFY", "M-SEARCH" or
// "HTTP/1.1" for responses.
func (m *Message) Verb() string {
	verb, _, _ := strings.Cut(m.StartLine, " ")
	return verb
}

// Set adds or replaces a header. The first Set of a key decides its
// position in the serialised output.
func (m *Message) Set(key, value string) {
	ukey := strings.ToUpper(key)
	if _, ok := m.values[ukey]; !ok {
		m.keys = append(m.keys, ukey)
	}
	m.values[ukey] = value
}

// Get returns the header value, or the empty string if not present.
func (m *Message) Get(key string) string {
	return m.values[strings.ToUpper(key)]
}

func (m *Message) Lookup(key string) (string, bool) {
	v, ok := m.values[strings.ToUpper(key)]
	return v, ok
}

// Keys returns the header names in order.
func (m *Message) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

func (m *Message) Len() int {
	return len(m.keys)
}

// Bytes returns the on-wire form of the message.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(m.StartLine)
	buf.WriteString("\r\n")
	for _, k := range m.keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		if v := m.values[k]; v != "" {
			buf.WriteByte(' ')
			buf.WriteString(v)
		}
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func (m *Message) String() string {
	return m.StartLine
}

// ParseMessage parses an SSDP datagram. Header lines that cannot be parsed
// are skipped; only an empty or unrecognisable start line is an error.
func ParseMessage(data []byte) (*Message, error) {
	lines := strings.Split(string(data), "\n")

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return nil, ErrMalformedMessage
	}

	start := strings.TrimSpace(lines[i])
	if !validStartLine(start) {
		return nil, ErrMalformedMessage
	}

	m := NewMessage(start)
	for _, line := range lines[i+1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			l.Debugf("skipping malformed header line %q", line)
			continue
		}
		m.Set(key, strings.TrimSpace(value))
	}
	return m, nil
}

func validStartLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	if strings.HasPrefix(fields[0], "HTTP/") {
		return true
	}
	return len(fields) == 3 && strings.HasPrefix(fields[2], "HTTP/")
}
