// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package profile identifies the kind of DLNA client that sent a request,
// from its identification headers.
package profile

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/syncthing/dlna/lib/config"
)

const (
	HeaderUserAgent    = "User-Agent"
	HeaderFriendlyName = "FriendlyName.DLNA.ORG"
	HeaderClientInfo   = "X-AV-Client-Info"

	cacheSize = 256
)

// DefaultSourceProtocolInfo is offered to clients without a more specific
// profile.
var DefaultSourceProtocolInfo = strings.Join([]string{
	"http-get:*:video/mpeg:*",
	"http-get:*:video/mp4:*",
	"http-get:*:video/x-matroska:*",
	"http-get:*:video/x-msvideo:*",
	"http-get:*:audio/mpeg:*",
	"http-get:*:audio/mp4:*",
	"http-get:*:audio/flac:*",
	"http-get:*:audio/x-ms-wma:*",
	"http-get:*:audio/L16:*",
	"http-get:*:image/jpeg:*",
	"http-get:*:image/png:*",
	"http-get:*:image/gif:*",
}, ",")

// A Profile describes how to talk to one class of client.
type Profile struct {
	Name                           string
	SourceProtocolInfo             string
	EnableMSMediaReceiverRegistrar bool
}

var Default = Profile{
	Name:               "Default",
	SourceProtocolInfo: DefaultSourceProtocolInfo,
}

type matcher struct {
	profile      Profile
	userAgent    glob.Glob
	friendlyName glob.Glob
	clientInfo   glob.Glob
}

func compile(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	return glob.Compile(strings.ToLower(pattern))
}

func newMatcher(p config.DeviceProfile) (matcher, error) {
	m := matcher{profile: Profile{
		Name:                           p.Name,
		SourceProtocolInfo:             p.SourceProtocolInfo,
		EnableMSMediaReceiverRegistrar: p.EnableMSMediaReceiverRegistrar,
	}}
	if m.profile.SourceProtocolInfo == "" {
		m.profile.SourceProtocolInfo = DefaultSourceProtocolInfo
	}

	var err error
	if m.userAgent, err = compile(p.UserAgent); err != nil {
		return m, fmt.Errorf("profile %q: user agent: %w", p.Name, err)
	}
	if m.friendlyName, err = compile(p.FriendlyName); err != nil {
		return m, fmt.Errorf("profile %q: friendly name: %w", p.Name, err)
	}
	if m.clientInfo, err = compile(p.ClientInfo); err != nil {
		return m, fmt.Errorf("profile %q: client info: %w", p.Name, err)
	}
	return m, nil
}

func matchField(g glob.Glob, value string) bool {
	return g == nil || g.Match(strings.ToLower(value))
}

func (m matcher) matches(h identity) bool {
	return matchField(m.userAgent, h.userAgent) &&
		matchField(m.friendlyName, h.friendlyName) &&
		matchField(m.clientInfo, h.clientInfo)
}

type identity struct {
	userAgent    string
	friendlyName string
	clientInfo   string
}

func identify(h http.Header) identity {
	return identity{
		userAgent:    h.Get(HeaderUserAgent),
		friendlyName: h.Get(HeaderFriendlyName),
		clientInfo:   h.Get(HeaderClientInfo),
	}
}

func (i identity) key() string {
	return i.userAgent + "\x00" + i.friendlyName + "\x00" + i.clientInfo
}

// A Resolver maps request headers to the first matching configured
// profile. Resolutions are cached per distinct set of identification
// headers.
type Resolver struct {
	matchers []matcher
	cache    *lru.Cache[string, Profile]
	mut      sync.RWMutex
}

func NewResolver(profiles []config.DeviceProfile) (*Resolver, error) {
	matchers, err := compileAll(profiles)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, Profile](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		matchers: matchers,
		cache:    cache,
	}, nil
}

func compileAll(profiles []config.DeviceProfile) ([]matcher, error) {
	matchers := make([]matcher, 0, len(profiles))
	for _, p := range profiles {
		m, err := newMatcher(p)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// Resolve returns the profile for the client that sent the headers, or
// Default if no configured profile matches.
func (r *Resolver) Resolve(h http.Header) Profile {
	id := identify(h)
	key := id.key()
	if p, ok := r.cache.Get(key); ok {
		return p
	}

	r.mut.RLock()
	p := Default
	for _, m := range r.matchers {
		if m.matches(id) {
			p = m.profile
			break
		}
	}
	r.mut.RUnlock()

	l.Debugf("Client %q resolved to profile %q", id.userAgent, p.Name)
	r.cache.Add(key, p)
	return p
}

// SourceProtocolInfo returns the protocol info to report to the client.
func (r *Resolver) SourceProtocolInfo(h http.Header) string {
	return r.Resolve(h).SourceProtocolInfo
}

func (r *Resolver) VerifyConfiguration(_, to config.Configuration) error {
	_, err := compileAll(to.Profiles)
	return err
}

func (r *Resolver) CommitConfiguration(_, to config.Configuration) bool {
	matchers, err := compileAll(to.Profiles)
	if err != nil {
		// Already verified.
		return false
	}
	r.mut.Lock()
	r.matchers = matchers
	r.mut.Unlock()
	r.cache.Purge()
	return true
}

func (r *Resolver) String() string {
	return fmt.Sprintf("profile.Resolver@%p", r)
}
