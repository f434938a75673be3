// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/syncthing/dlna/lib/config"
)

func newTestPublisher(cfg config.Configuration) (*Publisher, *fakeTransport) {
	ft := newFakeTransport()
	p := NewPublisher(ft, NewServerState(cfg), time.Duration(cfg.AliveInterval())*time.Second)
	return p, ft
}

func TestAnnouncementOrder(t *testing.T) {
	root := testRoot("1234", "192.168.1.0/24")

	var got [][2]string
	for _, a := range announcements(&root.Device, true) {
		got = append(got, [2]string{a.nt, a.usn})
	}
	expected := [][2]string{
		{"upnp:rootdevice", "uuid:1234::upnp:rootdevice"},
		{"pnp:rootdevice", "uuid:1234::pnp:rootdevice"},
		{"uuid:1234", "uuid:1234"},
		{"urn:schemas-upnp-org:device:MediaServer:1", "uuid:1234::urn:schemas-upnp-org:device:MediaServer:1"},
		{"uuid:1234", "uuid:1234"},
		{"urn:schemas-upnp-org:service:ContentDirectory:1", "uuid:1234::urn:schemas-upnp-org:service:ContentDirectory:1"},
		{"uuid:1234", "uuid:1234"},
		{"urn:schemas-upnp-org:service:ConnectionManager:1", "uuid:1234::urn:schemas-upnp-org:service:ConnectionManager:1"},
	}
	if diff, equal := messagediff.PrettyDiff(expected, got); !equal {
		t.Errorf("unexpected announcements. Diff:\n%s", diff)
	}
}

func TestAddDeviceSendsAliveBurst(t *testing.T) {
	cfg := config.New()
	cfg.EnableWindowsExplorerSupport = false
	p, ft := newTestPublisher(cfg)
	root := testRoot("1234", "192.168.1.0/24")

	if err := p.AddDevice(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	events := ft.eventLog()
	if len(events) == 0 || events[0] != "add M-SEARCH" {
		t.Fatalf("search handler not registered first: %v", events)
	}

	sent := ft.messages()
	if len(sent) != 7 {
		t.Fatalf("expected 7 alive notifications, got %d", len(sent))
	}
	first := sent[0]
	if first.msg.Get("NT") != TargetRootDevice || first.msg.Get("NTS") != ntsAlive {
		t.Errorf("unexpected first notification %v %v", first.msg.Get("NT"), first.msg.Get("NTS"))
	}
	if first.count != config.DefaultUDPSendCount || first.family != FamilyIPv4 {
		t.Errorf("unexpected send count %d or family %v", first.count, first.family)
	}
	if first.msg.Get("HOST") != "239.255.255.250:1900" {
		t.Errorf("unexpected HOST %q", first.msg.Get("HOST"))
	}
	if first.msg.Get("LOCATION") != root.Location {
		t.Errorf("unexpected LOCATION %q", first.msg.Get("LOCATION"))
	}
	if _, ok := first.msg.Lookup("BOOTID.UPNP.ORG"); ok {
		t.Error("BOOTID sent for DLNA v1 alive")
	}

	// A second add of the same device does nothing.
	ft.reset()
	if err := p.AddDevice(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if n := len(ft.messages()); n != 0 {
		t.Errorf("re-adding sent %d messages", n)
	}
	if len(p.Devices()) != 1 {
		t.Errorf("expected one device, got %d", len(p.Devices()))
	}
}

func TestRemoveDeviceSendsByeBye(t *testing.T) {
	p, ft := newTestPublisher(config.New())
	root := testRoot("1234", "192.168.1.0/24")
	if err := p.AddDevice(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	boot := p.state.NextBootID()
	ft.reset()

	if err := p.RemoveDevice(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	sent := ft.messages()
	if len(sent) != 8 {
		t.Fatalf("expected 8 byebye notifications, got %d", len(sent))
	}
	for _, s := range sent {
		if s.msg.Get("NTS") != ntsByeBye {
			t.Errorf("unexpected NTS %q", s.msg.Get("NTS"))
		}
		if s.msg.Get("BOOTID.UPNP.ORG") != boot {
			t.Errorf("byebye carries boot id %q, expected the increased %q", s.msg.Get("BOOTID.UPNP.ORG"), boot)
		}
		if s.count != config.DefaultUDPSendCount {
			t.Errorf("byebye send count %d", s.count)
		}
		if _, ok := s.msg.Lookup("LOCATION"); ok {
			t.Error("byebye should not carry a location")
		}
	}
	if p.alive.isActive() {
		t.Error("alive publisher still active without devices")
	}

	ft.reset()
	if err := p.RemoveDevice(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if n := len(ft.messages()); n != 0 {
		t.Errorf("removing an unknown device sent %d messages", n)
	}
}

func TestDispose(t *testing.T) {
	p, ft := newTestPublisher(config.New())
	a := testRoot("1111", "192.168.1.0/24")
	b := testRoot("2222", "10.0.0.0/8")
	for _, d := range []*RootDevice{a, b} {
		if err := p.AddDevice(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	ft.reset()

	p.Dispose()
	p.Dispose()

	sent := ft.messages()
	if len(sent) != 16 {
		t.Fatalf("expected one byebye burst of 16 messages, got %d", len(sent))
	}
	for _, s := range sent {
		if s.count != 1 {
			t.Errorf("byebye on dispose sent %d times", s.count)
		}
	}

	events := ft.eventLog()
	if events[len(events)-1] != "remove M-SEARCH" {
		t.Errorf("search handler not removed last: %v", events)
	}
	removes := 0
	for _, e := range events {
		if e == "remove M-SEARCH" {
			removes++
		}
	}
	if removes != 1 {
		t.Errorf("search handler removed %d times", removes)
	}

	if err := p.AddDevice(context.Background(), a); !errors.Is(err, ErrDisposed) {
		t.Errorf("add after dispose returned %v", err)
	}
	if err := p.RemoveDevice(context.Background(), a); !errors.Is(err, ErrDisposed) {
		t.Errorf("remove after dispose returned %v", err)
	}
	if len(p.Devices()) != 0 {
		t.Error("devices left after dispose")
	}
}

func TestSearchThroughPublisher(t *testing.T) {
	p, ft := newTestPublisher(config.New())
	timers := new(fakeTimers)
	p.responder.afterFunc = timers.afterFunc
	if err := p.AddDevice(context.Background(), testRoot("1234", "192.168.1.0/24")); err != nil {
		t.Fatal(err)
	}
	ft.reset()

	ft.handler(VerbSearch)(testSearch("uuid:1234"))
	timers.fire()
	if n := len(ft.messages()); n != 1 {
		t.Fatalf("expected one response, got %d", n)
	}

	p.Dispose()
	if ft.handler(VerbSearch) != nil {
		t.Error("search handler still registered after dispose")
	}
}

func TestPeriodicAlive(t *testing.T) {
	p, ft := newTestPublisher(config.New())
	p.alive.initialDelay = 10 * time.Millisecond
	p.alive.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	if err := p.AddDevice(ctx, testRoot("1234", "192.168.1.0/24")); err != nil {
		t.Fatal(err)
	}
	burst := len(ft.messages())

	deadline := time.Now().Add(5 * time.Second)
	for len(ft.messages()) < 3*burst {
		if time.Now().After(deadline) {
			t.Fatalf("no periodic alive bursts; %d messages", len(ft.messages()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("serve returned %v", err)
	}
}

// runAlive starts the publisher with the given schedule and one device,
// and returns the size of one alive burst.
func runAlive(t *testing.T, initialDelay, interval time.Duration) (*Publisher, *fakeTransport, int) {
	t.Helper()
	p, ft := newTestPublisher(config.New())
	p.alive.initialDelay = initialDelay
	p.alive.interval = interval

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if err := p.AddDevice(ctx, testRoot("1234", "192.168.1.0/24")); err != nil {
		t.Fatal(err)
	}
	return p, ft, len(ft.messages())
}

func waitForMessages(t *testing.T, ft *fakeTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(ft.messages()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d messages, have %d", n, len(ft.messages()))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func expectMessages(t *testing.T, ft *fakeTransport, n int, within time.Duration) {
	t.Helper()
	time.Sleep(within)
	if got := len(ft.messages()); got != n {
		t.Errorf("expected %d messages, have %d", n, got)
	}
}

func TestAliveWaitsForInitialDelay(t *testing.T) {
	_, ft, burst := runAlive(t, time.Hour, time.Hour)
	if burst == 0 {
		t.Fatal("no immediate burst on add")
	}
	expectMessages(t, ft, burst, 200*time.Millisecond)
}

func TestAliveWaitsForInterval(t *testing.T) {
	_, ft, burst := runAlive(t, 10*time.Millisecond, 500*time.Millisecond)

	waitForMessages(t, ft, 2*burst)
	expectMessages(t, ft, 2*burst, 150*time.Millisecond)

	waitForMessages(t, ft, 3*burst)
}

func TestSetIntervalReschedules(t *testing.T) {
	p, ft, burst := runAlive(t, 10*time.Millisecond, time.Hour)

	waitForMessages(t, ft, 2*burst)
	expectMessages(t, ft, 2*burst, 100*time.Millisecond)

	// The next burst follows the new schedule instead of the old hour.
	p.alive.SetInterval(20 * time.Millisecond)
	waitForMessages(t, ft, 4*burst)

	// Back to an hour: one burst after the initial delay, then quiet.
	p.alive.SetInterval(time.Hour)
	time.Sleep(50 * time.Millisecond)
	n := len(ft.messages())
	expectMessages(t, ft, n, 100*time.Millisecond)

	// Setting the same interval again does not restart anything.
	p.alive.SetInterval(time.Hour)
	expectMessages(t, ft, n, 100*time.Millisecond)
}

func TestNetworkChangedRestartsSchedule(t *testing.T) {
	p, ft, burst := runAlive(t, 10*time.Millisecond, time.Hour)

	waitForMessages(t, ft, 2*burst)
	expectMessages(t, ft, 2*burst, 100*time.Millisecond)

	p.NetworkChanged()
	waitForMessages(t, ft, 3*burst)
	expectMessages(t, ft, 3*burst, 100*time.Millisecond)
}

func TestCommitConfiguration(t *testing.T) {
	from := config.New()
	p, _ := newTestPublisher(from)

	to := from.Copy()
	to.DlnaVersion = config.DlnaVersion2
	to.AliveMessageIntervalSeconds = 600
	to.UDPSendCount = 4
	if err := p.VerifyConfiguration(from, to); err != nil {
		t.Fatal(err)
	}
	if !p.CommitConfiguration(from, to) {
		t.Error("configuration should apply without restart")
	}

	if p.state.Version() != config.DlnaVersion2 {
		t.Error("version not applied")
	}
	if p.state.SendCount() != 4 {
		t.Error("send count not applied")
	}
	if p.state.ConfigID() != "2" {
		t.Errorf("config id %s, expected it to be bumped", p.state.ConfigID())
	}
	if p.alive.Interval() != 600*time.Second {
		t.Errorf("interval %v", p.alive.Interval())
	}
}
