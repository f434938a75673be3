// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/syncthing/dlna/lib/config"
)

// maxConfigID is the largest CONFIGID.UPNP.ORG value allowed by UPnP 1.1.
const maxConfigID = 1<<24 - 1

// ServerState holds the server wide SSDP values shared by the responder
// and the alive publisher.
type ServerState struct {
	version     config.DlnaVersion
	userAgent   string
	bootID      int64
	nextBootID  int64
	configID    int64
	sendCount   int
	legacy      bool
	tracing     bool
	traceFilter net.IP
	mut         sync.RWMutex
}

// NewServerState returns the state for the given configuration. The boot
// id starts at the current unix time, as UPnP 1.1 suggests.
func NewServerState(cfg config.Configuration) *ServerState {
	boot := time.Now().Unix()
	s := &ServerState{
		bootID:     boot,
		nextBootID: boot + 1,
		configID:   1,
	}
	s.Apply(cfg)
	return s
}

// Apply takes the SSDP related settings from cfg.
func (s *ServerState) Apply(cfg config.Configuration) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.version = cfg.DlnaVersion
	s.userAgent = cfg.UserAgent
	s.sendCount = max(cfg.UDPSendCount, 1)
	s.legacy = cfg.EnableWindowsExplorerSupport
	s.tracing = cfg.EnableSsdpTracing
	s.traceFilter = net.ParseIP(cfg.SsdpTracingFilter)
}

func (s *ServerState) Version() config.DlnaVersion {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.version
}

func (s *ServerState) UserAgent() string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.userAgent
}

func (s *ServerState) BootID() string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return strconv.FormatInt(s.bootID, 10)
}

func (s *ServerState) NextBootID() string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return strconv.FormatInt(s.nextBootID, 10)
}

func (s *ServerState) ConfigID() string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return strconv.FormatInt(s.configID, 10)
}

// IncreaseBootID moves to the next boot id. Called whenever a device
// leaves the network.
func (s *ServerState) IncreaseBootID() {
	s.mut.Lock()
	s.bootID = s.nextBootID
	s.nextBootID++
	s.mut.Unlock()
}

// IncreaseConfigID bumps the config id, wrapping within the UPnP limit.
func (s *ServerState) IncreaseConfigID() {
	s.mut.Lock()
	s.configID = s.configID%maxConfigID + 1
	s.mut.Unlock()
}

// SendCount is how many times each multicast notification is repeated.
func (s *ServerState) SendCount() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.sendCount
}

// Legacy reports whether pnp:rootdevice is answered and announced, for
// older Windows Explorer versions.
func (s *ServerState) Legacy() bool {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.legacy
}

// IsTracing reports whether traffic with the remote address should be
// traced. An unset filter traces everything.
func (s *ServerState) IsTracing(remote net.IP) bool {
	s.mut.RLock()
	defer s.mut.RUnlock()
	if !s.tracing {
		return false
	}
	return s.traceFilter == nil || s.traceFilter.Equal(remote)
}
