// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/syncthing/dlna/lib/config"
)

const (
	aliveInitialDelay = 5 * time.Second

	ntsAlive  = "ssdp:alive"
	ntsByeBye = "ssdp:byebye"
)

// An announcement is one NT/USN pair sent for a device.
type announcement struct {
	nt  string
	usn string
}

// announcements lists the notifications for a device tree, in send order:
// root device markers first, then the UDN, then the full type, then the
// same for each service.
func announcements(d *Device, legacy bool) []announcement {
	var res []announcement
	if d.IsRoot() {
		res = append(res, announcement{TargetRootDevice, USN(d.UDN(), TargetRootDevice)})
		if legacy {
			res = append(res, announcement{TargetPnpRootDevice, USN(d.UDN(), TargetPnpRootDevice)})
		}
	}
	res = append(res, announcement{d.UDN(), d.UDN()})
	res = append(res, announcement{d.FullDeviceType(), USN(d.UDN(), d.FullDeviceType())})
	for _, s := range d.services {
		res = append(res, announcements(s, legacy)...)
	}
	return res
}

// The AlivePublisher periodically multicasts ssdp:alive for every
// registered device. It is idle until started and returns to idle when
// stopped; Serve runs the timer loop.
type AlivePublisher struct {
	registry  *Registry
	transport Transport
	state     *ServerState

	initialDelay time.Duration
	interval     time.Duration
	active       bool
	mut          sync.Mutex

	reset chan struct{}
}

func NewAlivePublisher(registry *Registry, transport Transport, state *ServerState, interval time.Duration) *AlivePublisher {
	return &AlivePublisher{
		registry:     registry,
		transport:    transport,
		state:        state,
		initialDelay: aliveInitialDelay,
		interval:     interval,
		reset:        make(chan struct{}, 1),
	}
}

func (p *AlivePublisher) Serve(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	for {
		select {
		case <-p.reset:
			stopTimer(timer)
			if p.isActive() {
				timer.Reset(p.initialDelay)
			}

		case <-timer.C:
			p.SendAll(ctx)
			if p.isActive() {
				timer.Reset(p.Interval())
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *AlivePublisher) String() string {
	return fmt.Sprintf("ssdp.AlivePublisher@%p", p)
}

// Start moves to the broadcasting state. The first periodic burst follows
// after the initial delay. Calling Start while broadcasting restarts the
// schedule.
func (p *AlivePublisher) Start() {
	p.mut.Lock()
	p.active = true
	p.mut.Unlock()
	p.poke()
}

// Stop returns to the idle state. A burst already in progress completes.
func (p *AlivePublisher) Stop() {
	p.mut.Lock()
	p.active = false
	p.mut.Unlock()
	p.poke()
}

// SetInterval changes the period between bursts and restarts the schedule
// when broadcasting.
func (p *AlivePublisher) SetInterval(d time.Duration) {
	p.mut.Lock()
	changed := p.interval != d
	p.interval = d
	active := p.active
	p.mut.Unlock()
	if changed && active {
		p.poke()
	}
}

// Restart restarts the schedule, if broadcasting.
func (p *AlivePublisher) Restart() {
	if p.isActive() {
		p.poke()
	}
}

func (p *AlivePublisher) Interval() time.Duration {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.interval
}

func (p *AlivePublisher) isActive() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.active
}

func (p *AlivePublisher) poke() {
	select {
	case p.reset <- struct{}{}:
	default:
	}
}

// SendAll sends an alive burst for every registered device.
func (p *AlivePublisher) SendAll(ctx context.Context) {
	for _, d := range p.registry.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		p.SendAlive(ctx, d)
	}
}

// SendAlive multicasts the alive burst for one device tree. Send errors are
// logged and do not stop the burst.
func (p *AlivePublisher) SendAlive(ctx context.Context, root *RootDevice) {
	count := p.state.SendCount()
	for _, a := range announcements(&root.Device, p.state.Legacy()) {
		msg := p.aliveMessage(root, a)
		if err := p.transport.SendMulticast(ctx, msg, root.Family(), count); err != nil {
			l.Debugln("Sending alive for", a.usn, err)
			metricSendErrorsTotal.WithLabelValues(kindAlive).Inc()
			continue
		}
		metricMessagesSentTotal.WithLabelValues(kindAlive).Inc()
		if p.state.IsTracing(nil) {
			l.Infof("NOTIFY alive: %s %s", a.nt, a.usn)
		}
	}
}

// SendByeBye multicasts the byebye burst for one device tree, count times
// per notification.
func (p *AlivePublisher) SendByeBye(ctx context.Context, root *RootDevice, count int) {
	for _, a := range announcements(&root.Device, p.state.Legacy()) {
		msg := p.byeByeMessage(root, a)
		if err := p.transport.SendMulticast(ctx, msg, root.Family(), count); err != nil {
			l.Debugln("Sending byebye for", a.usn, err)
			metricSendErrorsTotal.WithLabelValues(kindByeBye).Inc()
			continue
		}
		metricMessagesSentTotal.WithLabelValues(kindByeBye).Inc()
		if p.state.IsTracing(nil) {
			l.Infof("NOTIFY byebye: %s %s", a.nt, a.usn)
		}
	}
}

func (p *AlivePublisher) aliveMessage(root *RootDevice, a announcement) *Message {
	msg := NewMessage(StartNotify)
	msg.Set("HOST", hostHeader(root.Family()))
	msg.Set("NT", a.nt)
	msg.Set("NTS", ntsAlive)
	msg.Set("USN", a.usn)
	msg.Set("LOCATION", root.Location)
	msg.Set("CACHE-CONTROL", fmt.Sprintf("max-age=%d", int(root.CacheLifetime.Seconds())))
	msg.Set("SERVER", p.state.UserAgent())
	if p.state.Version() >= config.DlnaVersion2 {
		msg.Set("BOOTID.UPNP.ORG", p.state.BootID())
		msg.Set("CONFIGID.UPNP.ORG", p.state.ConfigID())
	}
	return msg
}

func (p *AlivePublisher) byeByeMessage(root *RootDevice, a announcement) *Message {
	msg := NewMessage(StartNotify)
	msg.Set("HOST", hostHeader(root.Family()))
	msg.Set("NT", a.nt)
	msg.Set("NTS", ntsByeBye)
	msg.Set("USN", a.usn)
	msg.Set("BOOTID.UPNP.ORG", p.state.BootID())
	msg.Set("CONFIGID.UPNP.ORG", p.state.ConfigID())
	return msg
}

func hostHeader(f Family) string {
	addr := MulticastAddr(f)
	return net.JoinHostPort(addr.IP.String(), fmt.Sprint(addr.Port))
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
