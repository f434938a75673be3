// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dlnaserver

import (
	"context"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/jackpal/gateway"
)

const networkPollInterval = 30 * time.Second

// A bindAddress is a local address to advertise on, with the network it
// belongs to.
type bindAddress struct {
	IP      net.IP
	Network *net.IPNet
}

func (b bindAddress) String() string {
	return b.IP.String()
}

// interfaceNetworks returns the addresses of all local interfaces.
func interfaceNetworks() []*net.IPNet {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		l.Infoln("Listing interface addresses:", err)
		return nil
	}
	var res []*net.IPNet
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			res = append(res, ipnet)
		}
	}
	return res
}

// selectBindAddresses picks the addresses to advertise on. Configured
// addresses are used as given when present on an interface. Otherwise all
// private IPv4 and link-local IPv6 addresses are used. Failing that, the
// address on the default gateway's network, and as a last resort the
// loopback addresses.
func selectBindAddresses(configured []string, ifaddrs []*net.IPNet, discoverGateway func() (net.IP, error)) []bindAddress {
	var res []bindAddress

	for _, s := range configured {
		ip := net.ParseIP(s)
		if ip == nil {
			l.Warnf("Ignoring invalid bind address %q", s)
			continue
		}
		ipnet := networkOf(ip, ifaddrs)
		if ipnet == nil {
			l.Warnf("Ignoring bind address %v; no interface has it", ip)
			continue
		}
		res = append(res, bindAddress{IP: ip, Network: ipnet})
	}
	if len(res) > 0 {
		return res
	}
	if len(configured) > 0 {
		l.Infoln("None of the configured bind addresses are usable, selecting automatically")
	}

	for _, ipnet := range ifaddrs {
		ip := ipnet.IP
		if ip.IsLoopback() {
			continue
		}
		if ip.To4() != nil && ip.IsPrivate() || ip.To4() == nil && ip.IsLinkLocalUnicast() {
			res = append(res, bindAddress{IP: ip, Network: ipnet})
		}
	}
	if len(res) > 0 {
		return res
	}

	if discoverGateway != nil {
		if gw, err := discoverGateway(); err != nil {
			l.Debugln("Discovering default gateway:", err)
		} else {
			for _, ipnet := range ifaddrs {
				if ipnet.Contains(gw) {
					l.Debugln("Using address", ipnet.IP, "on the network of gateway", gw)
					return []bindAddress{{IP: ipnet.IP, Network: ipnet}}
				}
			}
		}
	}

	for _, ipnet := range ifaddrs {
		if ipnet.IP.IsLoopback() {
			res = append(res, bindAddress{IP: ipnet.IP, Network: ipnet})
		}
	}
	if len(res) > 0 {
		l.Infoln("No LAN address found, advertising on loopback only")
	}
	return res
}

func networkOf(ip net.IP, ifaddrs []*net.IPNet) *net.IPNet {
	for _, ipnet := range ifaddrs {
		if ipnet.IP.Equal(ip) {
			return ipnet
		}
	}
	return nil
}

func defaultBindAddresses(configured []string) []bindAddress {
	return selectBindAddresses(configured, interfaceNetworks(), gateway.DiscoverGateway)
}

// A networkMonitor polls the local interface addresses and calls changed
// whenever the set differs from the previous poll.
type networkMonitor struct {
	interval time.Duration
	addrs    func() ([]net.Addr, error)
	changed  func()
}

func newNetworkMonitor(changed func()) *networkMonitor {
	return &networkMonitor{
		interval: networkPollInterval,
		addrs:    net.InterfaceAddrs,
		changed:  changed,
	}
}

func (n *networkMonitor) Serve(ctx context.Context) error {
	last, err := n.snapshot()
	if err != nil {
		l.Debugln("Listing interface addresses:", err)
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cur, err := n.snapshot()
			if err != nil {
				l.Debugln("Listing interface addresses:", err)
				continue
			}
			if cur != last {
				l.Infoln("Network change detected")
				l.Debugf("Interface addresses were %s, now %s", last, cur)
				last = cur
				n.changed()
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *networkMonitor) String() string {
	return "dlnaserver.networkMonitor"
}

func (n *networkMonitor) snapshot() (string, error) {
	addrs, err := n.addrs()
	if err != nil {
		return "", err
	}
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.String()
	}
	slices.Sort(strs)
	return strings.Join(strs, ","), nil
}
