// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultCacheLifetime = 1800 * time.Second

	upnpNamespace = "schemas-upnp-org"
)

// Family is the IP address family a device is bound to.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "IPv6"
	}
	return "IPv4"
}

// FamilyOf returns the address family of ip.
func FamilyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// A Device is a discoverable node: either a root device or one of the
// services it owns. The UUID never changes after construction.
type Device struct {
	uuid       string
	kind       string // "device" or "service"
	deviceType string
	version    int

	FriendlyName string
	Manufacturer string
	ModelName    string

	services []*Device
	root     *RootDevice
}

// A RootDevice is the top of a device tree, bound to one local network.
type RootDevice struct {
	Device

	Location      string
	CacheLifetime time.Duration
	Network       *net.IPNet
}

// NewRootDevice returns a root device of the given short type, e.g.
// "MediaServer". A non-positive lifetime is replaced by the default.
func NewRootDevice(uuid, deviceType, location string, network *net.IPNet, lifetime time.Duration) *RootDevice {
	if lifetime <= 0 {
		lifetime = DefaultCacheLifetime
	}
	r := &RootDevice{
		Device: Device{
			uuid:       trimUUID(uuid),
			kind:       "device",
			deviceType: deviceType,
			version:    1,
		},
		Location:      location,
		CacheLifetime: lifetime,
		Network:       network,
	}
	r.Device.root = r
	return r
}

// NewService returns a service node of the given short type, e.g.
// "ContentDirectory".
func NewService(uuid, serviceType string) *Device {
	return &Device{
		uuid:       trimUUID(uuid),
		kind:       "service",
		deviceType: serviceType,
		version:    1,
	}
}

func trimUUID(s string) string {
	return strings.TrimPrefix(s, "uuid:")
}

// AddService attaches a service to the root device, which then owns it.
func (r *RootDevice) AddService(s *Device) {
	s.root = r
	r.services = append(r.services, s)
}

// Family returns the address family of the bound network.
func (r *RootDevice) Family() Family {
	if r.Network == nil {
		return FamilyIPv4
	}
	return FamilyOf(r.Network.IP)
}

// Accepts reports whether a request from addr may be answered by this
// device: same family, and from within the bound network.
func (r *RootDevice) Accepts(addr net.IP) bool {
	if r.Network == nil {
		return false
	}
	if r.Family() != FamilyOf(addr) {
		return false
	}
	return r.Network.Contains(addr)
}

func (r *RootDevice) String() string {
	return fmt.Sprintf("%s (%s) at %s", r.FullDeviceType(), r.UDN(), r.Location)
}

// UUID returns the bare device UUID.
func (d *Device) UUID() string {
	return d.uuid
}

// UDN returns the unique device name, "uuid:<UUID>".
func (d *Device) UDN() string {
	return "uuid:" + d.uuid
}

// FullDeviceType returns the URN advertised for the node, such as
// "urn:schemas-upnp-org:device:MediaServer:1".
func (d *Device) FullDeviceType() string {
	return fmt.Sprintf("urn:%s:%s:%s:%d", upnpNamespace, d.kind, d.deviceType, d.version)
}

// DeviceType returns the short type name.
func (d *Device) DeviceType() string {
	return d.deviceType
}

func (d *Device) Services() []*Device {
	return d.services
}

func (d *Device) Root() *RootDevice {
	return d.root
}

func (d *Device) IsRoot() bool {
	return d.root != nil && &d.root.Device == d
}

// USN returns the unique service name for the given notification type.
func USN(udn, nt string) string {
	return udn + "::" + nt
}

// flatten returns every root device followed by its services.
func flatten(roots []*RootDevice) []*Device {
	var res []*Device
	for _, r := range roots {
		res = append(res, &r.Device)
		res = append(res, r.services...)
	}
	return res
}
