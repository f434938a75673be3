// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"net"
)

const (
	Port = 1900
)

var (
	MulticastIPv4 = net.IPv4(239, 255, 255, 250)
	MulticastIPv6 = net.ParseIP("ff02::c")
)

// MulticastAddr returns the SSDP group address for the family.
func MulticastAddr(f Family) *net.UDPAddr {
	if f == FamilyIPv6 {
		return &net.UDPAddr{IP: MulticastIPv6, Port: Port}
	}
	return &net.UDPAddr{IP: MulticastIPv4, Port: Port}
}

// An Inbound is a received SSDP message along with where it came from and
// the local address it arrived on.
type Inbound struct {
	Message *Message
	From    *net.UDPAddr
	LocalIP net.IP
}

// A HandlerFunc is called for each inbound message of the verb it was
// registered for. It must not block.
type HandlerFunc func(in Inbound)

// Transport is the network side of the SSDP engine.
type Transport interface {
	// AddHandler registers fn for inbound messages with the given verb,
	// replacing any earlier registration.
	AddHandler(verb string, fn HandlerFunc)
	RemoveHandler(verb string)
	// SendMulticast sends msg to the SSDP group on every bound address of
	// the family, count times.
	SendMulticast(ctx context.Context, msg *Message, family Family, count int) error
	// SendUnicast sends msg to a single endpoint from the given local
	// address.
	SendUnicast(ctx context.Context, msg *Message, local net.IP, to *net.UDPAddr) error
	// SearchPort returns the unicast port bound on the local address.
	SearchPort(local net.IP) int
}
