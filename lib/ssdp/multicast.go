// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/time/rate"

	"github.com/syncthing/dlna/lib/config"
)

const (
	multicastTTL      = 2
	maxPortAttempts   = 100
	maxDatagramSize   = 65536
	writeTimeout      = time.Second
	sendRateLimit     = 200 // datagrams per second
	sendRateBurst     = 20
	readRetryInterval = 100 * time.Millisecond
)

var errNoSocket = errors.New("no socket bound for address family")

// A bindSocket is the unicast socket on one local address. Multicast
// notifications and search responses are sent from it, and unicast
// searches directed at SEARCHPORT arrive on it.
type bindSocket struct {
	ip    net.IP
	iface *net.Interface
	conn  *net.UDPConn
	port  int
}

// A MulticastTransport is the UDP implementation of Transport.
type MulticastTransport struct {
	binds      []*bindSocket
	listeners  []*bindSocket
	handlers   *xsync.MapOf[string, HandlerFunc]
	limiter    *rate.Limiter
	listenOnce sync.Once
	closeOnce  sync.Once
}

// NewMulticastTransport binds a unicast socket on each of the given local
// addresses, using a port from portRange.
func NewMulticastTransport(addrs []net.IP, portRange string) (*MulticastTransport, error) {
	low, high, err := config.ParsePortRange(portRange)
	if err != nil {
		return nil, err
	}

	t := &MulticastTransport{
		handlers: xsync.NewMapOf[string, HandlerFunc](),
		limiter:  rate.NewLimiter(sendRateLimit, sendRateBurst),
	}
	for _, ip := range addrs {
		iface, err := interfaceFor(ip)
		if err != nil {
			l.Infof("Not binding SSDP to %v: %v", ip, err)
			continue
		}
		conn, port, err := listenInRange(ip, iface, low, high)
		if err != nil {
			l.Infof("Not binding SSDP to %v: %v", ip, err)
			continue
		}
		if err := setMulticastOptions(conn, ip, iface); err != nil {
			l.Debugln("Setting multicast options on", ip, err)
		}
		l.Debugf("SSDP bound to %v:%d on %s", ip, port, iface.Name)
		t.binds = append(t.binds, &bindSocket{ip: ip, iface: iface, conn: conn, port: port})
	}

	if len(t.binds) == 0 {
		return nil, errors.New("no usable SSDP bind address")
	}
	return t, nil
}

func interfaceFor(ip net.IP) (*net.Interface, error) {
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range intfs {
		intf := &intfs[i]
		if intf.Flags&net.FlagUp == 0 {
			continue
		}
		// Loopback usually lacks the multicast flag but still takes
		// unicast searches.
		if intf.Flags&(net.FlagMulticast|net.FlagLoopback) == 0 {
			continue
		}
		addrs, err := intf.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return intf, nil
			}
		}
	}
	return nil, fmt.Errorf("no usable interface has address %v", ip)
}

func network(ip net.IP) string {
	if FamilyOf(ip) == FamilyIPv6 {
		return "udp6"
	}
	return "udp4"
}

func listenInRange(ip net.IP, iface *net.Interface, low, high int) (*net.UDPConn, int, error) {
	span := high - low + 1
	start := rand.IntN(span)
	var lastErr error
	for i := 0; i < min(span, maxPortAttempts); i++ {
		port := low + (start+i)%span
		addr := &net.UDPAddr{IP: ip, Port: port}
		if ip.IsLinkLocalUnicast() && FamilyOf(ip) == FamilyIPv6 {
			addr.Zone = iface.Name
		}
		conn, err := net.ListenUDP(network(ip), addr)
		if err == nil {
			return conn, port, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

func setMulticastOptions(conn *net.UDPConn, ip net.IP, iface *net.Interface) error {
	if FamilyOf(ip) == FamilyIPv6 {
		pc := ipv6.NewPacketConn(conn)
		if err := pc.SetMulticastInterface(iface); err != nil {
			return err
		}
		return pc.SetMulticastHopLimit(multicastTTL)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastInterface(iface); err != nil {
		return err
	}
	return pc.SetMulticastTTL(multicastTTL)
}

// listen joins the SSDP group on every interface with a bound address. One
// listener is created per interface and family.
func (t *MulticastTransport) listen() {
	seen := make(map[string]struct{})
	for _, b := range t.binds {
		f := FamilyOf(b.ip)
		key := fmt.Sprintf("%d/%v", b.iface.Index, f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		conn, err := net.ListenMulticastUDP(network(b.ip), b.iface, MulticastAddr(f))
		if err != nil {
			l.Infof("Joining SSDP multicast group on %s (%v): %v", b.iface.Name, f, err)
			continue
		}
		if f == FamilyIPv4 {
			err = ipv4.NewPacketConn(conn).SetMulticastLoopback(true)
		} else {
			err = ipv6.NewPacketConn(conn).SetMulticastLoopback(true)
		}
		if err != nil {
			l.Debugln("Enabling multicast loopback on", b.iface.Name, err)
		}
		l.Debugf("Joined SSDP group on %s (%v)", b.iface.Name, f)
		t.listeners = append(t.listeners, &bindSocket{ip: b.ip, iface: b.iface, conn: conn, port: Port})
	}
}

// Serve reads from all sockets until ctx is cancelled. The sockets stay
// open for sending until Close is called.
func (t *MulticastTransport) Serve(ctx context.Context) error {
	t.listenOnce.Do(t.listen)

	var wg sync.WaitGroup
	socks := append(append([]*bindSocket{}, t.binds...), t.listeners...)
	for _, s := range socks {
		s.conn.SetReadDeadline(time.Time{})
		wg.Add(1)
		go func(s *bindSocket) {
			defer wg.Done()
			t.readLoop(ctx, s)
		}(s)
	}

	<-ctx.Done()
	for _, s := range socks {
		s.conn.SetReadDeadline(time.Now())
	}
	wg.Wait()
	return ctx.Err()
}

func (t *MulticastTransport) String() string {
	return fmt.Sprintf("ssdp.MulticastTransport@%p", t)
}

func (t *MulticastTransport) readLoop(ctx context.Context, s *bindSocket) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.Debugln("SSDP read on", s.ip, err)
			time.Sleep(readRetryInterval)
			continue
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			l.Debugf("Dropping %d byte datagram from %v: %v", n, from, err)
			continue
		}
		if fn, ok := t.handlers.Load(msg.Verb()); ok {
			fn(Inbound{Message: msg, From: from, LocalIP: s.ip})
		}
	}
}

func (t *MulticastTransport) AddHandler(verb string, fn HandlerFunc) {
	t.handlers.Store(verb, fn)
}

func (t *MulticastTransport) RemoveHandler(verb string) {
	t.handlers.Delete(verb)
}

func (t *MulticastTransport) SendMulticast(ctx context.Context, msg *Message, family Family, count int) error {
	bs := msg.Bytes()
	group := MulticastAddr(family)

	var errs []error
	sent := false
	for _, b := range t.binds {
		if FamilyOf(b.ip) != family {
			continue
		}
		dst := *group
		if family == FamilyIPv6 {
			dst.Zone = b.iface.Name
		}
		for i := 0; i < count; i++ {
			if err := t.write(ctx, b, bs, &dst); err != nil {
				errs = append(errs, err)
				continue
			}
			sent = true
		}
	}

	if !sent {
		if len(errs) == 0 {
			return errNoSocket
		}
		return errors.Join(errs...)
	}
	return nil
}

func (t *MulticastTransport) SendUnicast(ctx context.Context, msg *Message, local net.IP, to *net.UDPAddr) error {
	b := t.bindFor(local, FamilyOf(to.IP))
	if b == nil {
		return errNoSocket
	}
	return t.write(ctx, b, msg.Bytes(), to)
}

func (t *MulticastTransport) write(ctx context.Context, b *bindSocket, bs []byte, to *net.UDPAddr) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := b.conn.WriteToUDP(bs, to)
	b.conn.SetWriteDeadline(time.Time{})
	return err
}

// bindFor returns the socket bound to local, or the first socket of the
// family if there is none.
func (t *MulticastTransport) bindFor(local net.IP, family Family) *bindSocket {
	var fallback *bindSocket
	for _, b := range t.binds {
		if local != nil && b.ip.Equal(local) {
			return b
		}
		if fallback == nil && FamilyOf(b.ip) == family {
			fallback = b
		}
	}
	return fallback
}

func (t *MulticastTransport) SearchPort(local net.IP) int {
	if local == nil {
		return 0
	}
	if b := t.bindFor(local, FamilyOf(local)); b != nil {
		return b.port
	}
	return 0
}

// BoundAddresses returns the local addresses with a working socket.
func (t *MulticastTransport) BoundAddresses() []net.IP {
	res := make([]net.IP, 0, len(t.binds))
	for _, b := range t.binds {
		res = append(res, b.ip)
	}
	return res
}

// Close closes all sockets.
func (t *MulticastTransport) Close() error {
	t.closeOnce.Do(func() {
		for _, s := range t.binds {
			s.conn.Close()
		}
		for _, s := range t.listeners {
			s.conn.Close()
		}
	})
	return nil
}
