// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"net"
	"sync"
	"time"
)

const testSearchPort = 50000

type sentMessage struct {
	msg       *Message
	multicast bool
	family    Family
	count     int
	to        *net.UDPAddr
}

// fakeTransport records everything sent, and the order of handler and
// send events.
type fakeTransport struct {
	handlers map[string]HandlerFunc
	sent     []sentMessage
	events   []string
	mut      sync.Mutex
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]HandlerFunc)}
}

func (f *fakeTransport) AddHandler(verb string, fn HandlerFunc) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.handlers[verb] = fn
	f.events = append(f.events, "add "+verb)
}

func (f *fakeTransport) RemoveHandler(verb string) {
	f.mut.Lock()
	defer f.mut.Unlock()
	delete(f.handlers, verb)
	f.events = append(f.events, "remove "+verb)
}

func (f *fakeTransport) SendMulticast(_ context.Context, msg *Message, family Family, count int) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.sent = append(f.sent, sentMessage{msg: msg, multicast: true, family: family, count: count})
	f.events = append(f.events, "multicast "+msg.Get("NTS"))
	return nil
}

func (f *fakeTransport) SendUnicast(_ context.Context, msg *Message, _ net.IP, to *net.UDPAddr) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.sent = append(f.sent, sentMessage{msg: msg, to: to})
	f.events = append(f.events, "unicast")
	return nil
}

func (f *fakeTransport) SearchPort(net.IP) int {
	return testSearchPort
}

func (f *fakeTransport) handler(verb string) HandlerFunc {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.handlers[verb]
}

func (f *fakeTransport) messages() []sentMessage {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) eventLog() []string {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTransport) reset() {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.sent = nil
	f.events = nil
}

// fakeTimers holds scheduled functions until fire is called.
type fakeTimers struct {
	delays []time.Duration
	fns    []func()
	mut    sync.Mutex
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) func() bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return func() bool { return true }
}

func (f *fakeTimers) fire() {
	f.mut.Lock()
	fns := f.fns
	f.fns = nil
	f.mut.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeTimers) scheduled() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return len(f.delays)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testRoot(uuid, cidr string) *RootDevice {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	r := NewRootDevice(uuid, "MediaServer", "http://"+network.IP.String()+":8200/dlna/"+uuid+"/description.xml", network, 0)
	r.AddService(NewService(uuid, "ContentDirectory"))
	r.AddService(NewService(uuid, "ConnectionManager"))
	return r
}

func testSearch(st string, headers ...string) Inbound {
	msg := NewMessage(StartSearch)
	msg.Set("HOST", "239.255.255.250:1900")
	msg.Set("MAN", `"ssdp:discover"`)
	msg.Set("ST", st)
	for i := 0; i+1 < len(headers); i += 2 {
		msg.Set(headers[i], headers[i+1])
	}
	return Inbound{
		Message: msg,
		From:    &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: 50123},
		LocalIP: net.ParseIP("192.168.1.10"),
	}
}
