// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ssdp implements the SSDP side of a UPnP media server: answering
// M-SEARCH requests and announcing devices with NOTIFY messages.
package ssdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syncthing/dlna/lib/config"
)

const disposeTimeout = 10 * time.Second

var ErrDisposed = errors.New("ssdp publisher is disposed")

// The Publisher advertises a set of root devices. It ties together the
// device registry, the search responder and the alive publisher, and owns
// the M-SEARCH listener registration on the transport.
type Publisher struct {
	registry  *Registry
	transport Transport
	state     *ServerState
	responder *SearchResponder
	alive     *AlivePublisher

	listening bool
	disposed  bool
	mut       sync.Mutex
}

func NewPublisher(transport Transport, state *ServerState, interval time.Duration) *Publisher {
	registry := new(Registry)
	return &Publisher{
		registry:  registry,
		transport: transport,
		state:     state,
		responder: NewSearchResponder(registry, transport, state),
		alive:     NewAlivePublisher(registry, transport, state, interval),
	}
}

// Serve runs the alive timer until ctx is cancelled.
func (p *Publisher) Serve(ctx context.Context) error {
	return p.alive.Serve(ctx)
}

func (p *Publisher) String() string {
	return fmt.Sprintf("ssdp.Publisher@%p", p)
}

// AddDevice starts advertising the device. The M-SEARCH listener is
// registered before the first device becomes visible, and an alive burst
// is sent immediately. Adding a device twice is a no-op.
func (p *Publisher) AddDevice(ctx context.Context, d *RootDevice) error {
	p.mut.Lock()
	if p.disposed {
		p.mut.Unlock()
		return ErrDisposed
	}
	if !p.listening {
		p.transport.AddHandler(VerbSearch, p.handleSearch)
		p.listening = true
	}
	p.mut.Unlock()

	if !p.registry.Add(d) {
		return nil
	}
	metricDevices.Set(float64(p.registry.Len()))
	l.Infoln("Advertising", d)

	p.alive.SendAlive(ctx, d)
	p.alive.Start()
	return nil
}

// RemoveDevice stops advertising the device and sends byebye for it.
// Removing an unknown device is a no-op.
func (p *Publisher) RemoveDevice(ctx context.Context, d *RootDevice) error {
	if p.isDisposed() {
		return ErrDisposed
	}
	p.removeDevice(ctx, d, p.state.SendCount())
	return nil
}

func (p *Publisher) removeDevice(ctx context.Context, d *RootDevice, count int) {
	if !p.registry.Remove(d) {
		return
	}
	metricDevices.Set(float64(p.registry.Len()))
	l.Infoln("No longer advertising", d)

	p.state.IncreaseBootID()
	p.alive.SendByeBye(ctx, d, count)
	if p.registry.Len() == 0 {
		p.alive.Stop()
	}
}

// Devices returns the currently advertised devices.
func (p *Publisher) Devices() []*RootDevice {
	return p.registry.Snapshot()
}

// NetworkChanged restarts the alive schedule so that the new network
// state is announced promptly.
func (p *Publisher) NetworkChanged() {
	l.Debugln("Network change, restarting alive schedule")
	p.alive.Restart()
}

// Dispose sends a single byebye burst for every device and stops all
// activity. Searches are ignored from the start of Dispose and pending
// search responses are cancelled; the M-SEARCH listener is deregistered
// after the last byebye. Dispose may be called more than once.
func (p *Publisher) Dispose() {
	p.mut.Lock()
	if p.disposed {
		p.mut.Unlock()
		return
	}
	p.disposed = true
	listening := p.listening
	p.mut.Unlock()

	l.Debugln(p, "disposing")
	p.alive.Stop()
	p.responder.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	for _, d := range p.registry.Snapshot() {
		p.removeDevice(ctx, d, 1)
	}

	if listening {
		p.transport.RemoveHandler(VerbSearch)
	}
}

func (p *Publisher) isDisposed() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.disposed
}

func (p *Publisher) handleSearch(in Inbound) {
	if p.isDisposed() {
		return
	}
	p.responder.HandleSearch(in)
}

func (*Publisher) VerifyConfiguration(_, _ config.Configuration) error {
	return nil
}

func (p *Publisher) CommitConfiguration(from, to config.Configuration) bool {
	p.state.Apply(to)
	if from.DlnaVersion != to.DlnaVersion || from.EnableWindowsExplorerSupport != to.EnableWindowsExplorerSupport {
		p.state.IncreaseConfigID()
	}
	p.alive.SetInterval(time.Duration(to.AliveInterval()) * time.Second)
	return true
}
