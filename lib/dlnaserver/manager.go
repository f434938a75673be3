// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dlnaserver ties the SSDP publisher, the UPnP services and the
// event managers into one DLNA media server.
package dlnaserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/syncthing/dlna/lib/api"
	"github.com/syncthing/dlna/lib/catalog"
	"github.com/syncthing/dlna/lib/config"
	"github.com/syncthing/dlna/lib/connectionmanager"
	"github.com/syncthing/dlna/lib/contentdirectory"
	"github.com/syncthing/dlna/lib/gena"
	"github.com/syncthing/dlna/lib/logger"
	"github.com/syncthing/dlna/lib/profile"
	"github.com/syncthing/dlna/lib/registrar"
	"github.com/syncthing/dlna/lib/soap"
	"github.com/syncthing/dlna/lib/ssdp"
	"github.com/syncthing/dlna/lib/svcutil"
)

const (
	deviceLifetime = 1800 * time.Second
	mediaServer    = "MediaServer"
	eventNT        = "upnp:event"
	notifyTimeout  = 30 * time.Second
)

var errNoLibraryFile = errors.New("library was not loaded from a file")

// A Transport is an SSDP transport with a lifecycle.
type Transport interface {
	ssdp.Transport
	Serve(ctx context.Context) error
	Close() error
}

// Manager is the DLNA server. It is constructed once by the host process
// and handed to the HTTP layer.
type Manager struct {
	cfg         *config.Wrapper
	serverID    string
	library     *catalog.Library
	libraryPath string
	resolver    *profile.Resolver
	state       *ssdp.ServerState
	transport   Transport
	publisher   *ssdp.Publisher
	monitor     *networkMonitor
	devices     []*ssdp.RootDevice

	handlers        map[soap.ServiceKind]soap.Handler
	events          map[soap.ServiceKind]*gena.Manager
	registrarActive atomic.Bool
}

var _ api.Server = (*Manager)(nil)

// New sets up the server on the automatically selected or configured bind
// addresses. The HTTP server is expected on httpPort of every address.
func New(cfg *config.Wrapper, library *catalog.Library, libraryPath string, httpPort int) (*Manager, error) {
	c := cfg.RawCopy()

	addrs := defaultBindAddresses(c.BindAddresses)
	if len(addrs) == 0 {
		return nil, errors.New("no usable bind address")
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}

	transport, err := ssdp.NewMulticastTransport(ips, c.UDPPortRange)
	if err != nil {
		return nil, err
	}
	bound := transport.BoundAddresses()
	addrs = slices.DeleteFunc(addrs, func(a bindAddress) bool {
		return !slices.ContainsFunc(bound, a.IP.Equal)
	})

	m, err := newManager(cfg, library, libraryPath, transport, addrs, httpPort)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return m, nil
}

func newManager(cfg *config.Wrapper, library *catalog.Library, libraryPath string, transport Transport, addrs []bindAddress, httpPort int) (*Manager, error) {
	id, err := resolveServerID(cfg)
	if err != nil {
		return nil, err
	}
	c := cfg.RawCopy()

	resolver, err := profile.NewResolver(c.Profiles)
	if err != nil {
		return nil, err
	}

	state := ssdp.NewServerState(c)
	m := &Manager{
		cfg:         cfg,
		serverID:    id,
		library:     library,
		libraryPath: libraryPath,
		resolver:    resolver,
		state:       state,
		transport:   transport,
		publisher:   ssdp.NewPublisher(transport, state, time.Duration(c.AliveInterval())*time.Second),
		handlers: map[soap.ServiceKind]soap.Handler{
			soap.ContentDirectory:       contentdirectory.New(library, nil, c.DefaultUserID),
			soap.ConnectionManager:      connectionmanager.New(resolver),
			soap.MediaReceiverRegistrar: registrar.New(),
		},
		events: make(map[soap.ServiceKind]*gena.Manager),
	}
	m.monitor = newNetworkMonitor(m.publisher.NetworkChanged)
	client := &http.Client{Timeout: notifyTimeout}
	for _, k := range soap.ServiceKinds() {
		m.events[k] = gena.NewManager(client, state.UserAgent)
	}

	for _, a := range addrs {
		m.devices = append(m.devices, m.rootDevice(a, httpPort))
	}

	logger.DefaultLogger.SetDebugAll(c.EnableDebugLog)
	cfg.Subscribe(resolver)
	cfg.Subscribe(m.publisher)
	cfg.Subscribe(m)

	l.Infoln("DLNA server registered under server ID", id)
	return m, nil
}

// resolveServerID returns a fresh ID when the configuration asks for one
// on every start, and the persisted ID otherwise. A missing persisted ID
// is generated and saved.
func resolveServerID(cfg *config.Wrapper) (string, error) {
	c := cfg.RawCopy()
	if c.ChangeIDOnStartup {
		return uuid.NewString(), nil
	}
	if c.ServerID != "" {
		return c.ServerID, nil
	}

	id := uuid.NewString()
	if err := cfg.Modify(func(c *config.Configuration) {
		c.ServerID = id
	}); err != nil {
		return "", err
	}
	if err := cfg.Save(); err != nil {
		l.Warnln("Saving server ID:", err)
	}
	return id, nil
}

func (m *Manager) rootDevice(a bindAddress, httpPort int) *ssdp.RootDevice {
	host := net.JoinHostPort(a.IP.String(), strconv.Itoa(httpPort))
	location := fmt.Sprintf("http://%s/dlna/%s/description.xml", host, m.serverID)

	root := ssdp.NewRootDevice(m.serverID, mediaServer, location, a.Network, deviceLifetime)
	root.FriendlyName = m.FriendlyName()
	root.Manufacturer = "Syncthing"
	root.ModelName = "DLNA Media Server"
	for _, k := range []soap.ServiceKind{soap.ContentDirectory, soap.ConnectionManager} {
		root.AddService(ssdp.NewService(m.serverID, k.String()))
	}
	return root
}

// Serve publishes the devices and runs until ctx is cancelled. On return
// every device has been announced as gone and the transport is closed.
func (m *Manager) Serve(ctx context.Context) error {
	tctx, tcancel := context.WithCancel(context.Background())
	transportDone := make(chan error, 1)
	go func() {
		transportDone <- m.transport.Serve(tctx)
	}()
	defer func() {
		m.publisher.Dispose()
		tcancel()
		<-transportDone
		m.transport.Close()
	}()

	mctx, mcancel := context.WithCancel(ctx)
	defer mcancel()
	go m.monitor.Serve(mctx)

	for _, d := range m.devices {
		if err := m.publisher.AddDevice(ctx, d); err != nil {
			if errors.Is(err, ssdp.ErrDisposed) {
				return svcutil.NoRestartErr(err)
			}
			return err
		}
	}

	return m.publisher.Serve(ctx)
}

func (m *Manager) String() string {
	return fmt.Sprintf("dlnaserver.Manager@%p", m)
}

func (m *Manager) ServerID() string {
	return m.serverID
}

// FriendlyName returns the configured server name, or one derived from the
// host name.
func (m *Manager) FriendlyName() string {
	if name := m.cfg.RawCopy().DlnaServerName; name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "DLNA Media Server"
	}
	return config.SanitizeServerName("DLNA Media Server - " + host)
}

// Devices returns the root devices advertised by the server.
func (m *Manager) Devices() []*ssdp.RootDevice {
	return m.devices
}

// registrarEnabled reports whether the MediaReceiverRegistrar is offered to
// the client sending header. It is enabled the first time a client with a
// profile asking for it shows up, and stays enabled from then on.
func (m *Manager) registrarEnabled(header http.Header) bool {
	if m.registrarActive.Load() {
		return true
	}
	if !m.resolver.Resolve(header).EnableMSMediaReceiverRegistrar {
		return false
	}
	if m.registrarActive.CompareAndSwap(false, true) {
		l.Infoln("Activating MediaReceiverRegistrar for", header.Get(profile.HeaderUserAgent))
	}
	return true
}

func (m *Manager) Services(header http.Header) []soap.ServiceKind {
	kinds := []soap.ServiceKind{soap.ContentDirectory, soap.ConnectionManager}
	if m.registrarEnabled(header) {
		kinds = append(kinds, soap.MediaReceiverRegistrar)
	}
	return kinds
}

func (m *Manager) ServiceHandler(kind soap.ServiceKind, header http.Header) (soap.Handler, bool) {
	if kind == soap.MediaReceiverRegistrar && !m.registrarEnabled(header) {
		return nil, false
	}
	h, ok := m.handlers[kind]
	return h, ok
}

func (m *Manager) Events(kind soap.ServiceKind) *gena.Manager {
	return m.events[kind]
}

// ReloadLibrary rereads the library file and tells ContentDirectory
// subscribers about the new system update ID.
func (m *Manager) ReloadLibrary(ctx context.Context) error {
	if m.libraryPath == "" {
		return errNoLibraryFile
	}
	f, err := catalog.ReadFile(m.libraryPath)
	if err != nil {
		return err
	}
	if err := m.library.Reload(f); err != nil {
		return err
	}

	id := m.library.SystemUpdateID()
	l.Infoln("Library reloaded, system update ID", id)
	m.events[soap.ContentDirectory].Notify(ctx, eventNT, []gena.Property{
		{Name: "SystemUpdateID", Value: strconv.Itoa(id)},
	})
	return nil
}

// IsValidAPIKey reports whether key grants access to the REST endpoints.
func (m *Manager) IsValidAPIKey(key string) bool {
	return m.cfg.RawCopy().IsValidAPIKey(key)
}

func (*Manager) VerifyConfiguration(_, _ config.Configuration) error {
	return nil
}

// CommitConfiguration applies the debug toggle live. Network and identity
// settings need a restart.
func (m *Manager) CommitConfiguration(from, to config.Configuration) bool {
	if from.EnableDebugLog != to.EnableDebugLog {
		logger.DefaultLogger.SetDebugAll(to.EnableDebugLog)
	}
	return slices.Equal(from.BindAddresses, to.BindAddresses) &&
		from.UDPPortRange == to.UDPPortRange &&
		from.HTTPListenAddress == to.HTTPListenAddress &&
		from.ChangeIDOnStartup == to.ChangeIDOnStartup &&
		from.DefaultUserID == to.DefaultUserID
}
