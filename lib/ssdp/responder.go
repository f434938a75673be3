// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syncthing/dlna/lib/config"
)

const (
	TargetAll            = "ssdp:all"
	TargetRootDevice     = "upnp:rootdevice"
	TargetPnpRootDevice  = "pnp:rootdevice"
	searchDedupWindow    = 500 * time.Millisecond
	searchCacheSoftLimit = 10
	maxMX                = 120
	minResponseDelay     = 16 * time.Millisecond
	responseSendTimeout  = 5 * time.Second
	upnpOptHeader        = `"http://schemas.upnp.org/upnp/1/0/"; ns=01`
)

type clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time {
	return time.Now()
}

// afterFunc schedules fn to run after d and returns a function cancelling
// it. Implementations must not call fn synchronously.
type afterFunc func(d time.Duration, fn func()) (stop func() bool)

func timeAfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// A SearchResponder answers M-SEARCH requests for the devices in a
// Registry.
type SearchResponder struct {
	registry  *Registry
	transport Transport
	state     *ServerState

	clock     clock
	intn      func(n int) int
	afterFunc afterFunc

	recent  map[string]time.Time // dedup key => time of receipt
	pending map[int]func() bool
	nextID  int
	stopped bool
	mut     sync.Mutex
}

func NewSearchResponder(registry *Registry, transport Transport, state *ServerState) *SearchResponder {
	return &SearchResponder{
		registry:  registry,
		transport: transport,
		state:     state,
		clock:     defaultClock{},
		intn:      rand.IntN,
		afterFunc: timeAfterFunc,
		recent:    make(map[string]time.Time),
		pending:   make(map[int]func() bool),
	}
}

// HandleSearch processes one inbound M-SEARCH. It never blocks on the
// response delay; matching responses are sent from a deferred task.
func (r *SearchResponder) HandleSearch(in Inbound) {
	metricSearchRequestsTotal.WithLabelValues(searchResultReceived).Inc()

	st := strings.TrimSpace(in.Message.Get("ST"))
	if st == "" {
		l.Debugln("Invalid search request from", in.From, "- search target is empty")
		metricSearchRequestsTotal.WithLabelValues(searchResultMalformed).Inc()
		return
	}

	if r.isDuplicate(st, in.From) {
		metricSearchRequestsTotal.WithLabelValues(searchResultDuplicate).Inc()
		return
	}

	mx, ok := parseMX(in.Message)
	if !ok {
		l.Debugf("Invalid search request from %v - bad MX %q", in.From, in.Message.Get("MX"))
		metricSearchRequestsTotal.WithLabelValues(searchResultMalformed).Inc()
		return
	}
	mx = r.effectiveMX(mx)
	delay := r.responseDelay(mx)

	if r.state.IsTracing(in.From.IP) {
		l.Infof("M-SEARCH: %v <- %s (MX %d, responding in %v)", in.From, st, mx, delay)
	}

	r.schedule(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), responseSendTimeout)
		defer cancel()
		r.respond(ctx, st, in)
	})
}

// parseMX returns the MX header value. A missing header means one second,
// as sent by Windows Explorer; a present but invalid or non-positive value
// rejects the request.
func parseMX(msg *Message) (int, bool) {
	raw, ok := msg.Lookup("MX")
	if !ok {
		return 1, true
	}
	mx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || mx <= 0 {
		return 0, false
	}
	return mx, true
}

// effectiveMX replaces waits above the UPnP maximum with a random value in
// [0, 120).
func (r *SearchResponder) effectiveMX(mx int) int {
	if mx > maxMX {
		r.mut.Lock()
		mx = r.intn(maxMX)
		r.mut.Unlock()
	}
	return mx
}

// responseDelay picks a random delay in [16ms, mx seconds).
func (r *SearchResponder) responseDelay(mx int) time.Duration {
	upper := time.Duration(mx) * time.Second
	if upper <= minResponseDelay {
		return minResponseDelay
	}
	r.mut.Lock()
	n := r.intn(int((upper - minResponseDelay) / time.Millisecond))
	r.mut.Unlock()
	return minResponseDelay + time.Duration(n)*time.Millisecond
}

// isDuplicate records the request and reports whether the same target was
// requested from the same endpoint within the dedup window.
func (r *SearchResponder) isDuplicate(st string, from net.Addr) bool {
	key := strings.ToLower(st + ":" + from.String())
	now := r.clock.Now()

	r.mut.Lock()
	defer r.mut.Unlock()

	if last, ok := r.recent[key]; ok {
		if now.Sub(last) > searchDedupWindow {
			r.recent[key] = now
			return false
		}
		return true
	}

	r.recent[key] = now
	if len(r.recent) > searchCacheSoftLimit {
		for k, t := range r.recent {
			if now.Sub(t) > searchDedupWindow {
				delete(r.recent, k)
			}
		}
	}
	return false
}

func (r *SearchResponder) schedule(d time.Duration, fn func()) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.stopped {
		return
	}
	id := r.nextID
	r.nextID++
	r.pending[id] = r.afterFunc(d, func() {
		r.mut.Lock()
		delete(r.pending, id)
		stopped := r.stopped
		r.mut.Unlock()
		if !stopped {
			fn()
		}
	})
}

// Stop cancels all pending responses. No further responses are sent.
func (r *SearchResponder) Stop() {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.stopped = true
	for id, stop := range r.pending {
		stop()
		delete(r.pending, id)
	}
}

func (r *SearchResponder) isStopped() bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.stopped
}

type searchResponse struct {
	device *Device
	st     string
	usn    string
}

// matchTarget returns the responses for the search target, in send order.
func matchTarget(st string, legacy bool, roots []*RootDevice) []searchResponse {
	var devices []*Device
	sendAll, rootOnly, byUUID := false, false, false

	switch {
	case st == TargetAll:
		devices = flatten(roots)
		sendAll = true
	case st == TargetRootDevice || (legacy && st == TargetPnpRootDevice):
		for _, r := range roots {
			devices = append(devices, &r.Device)
		}
		rootOnly = true
	case strings.HasPrefix(st, "uuid:"):
		uuid := strings.TrimPrefix(st, "uuid:")
		for _, d := range flatten(roots) {
			if d.uuid == uuid {
				devices = append(devices, d)
			}
		}
		byUUID = true
	case strings.HasPrefix(st, "urn:"):
		for _, d := range flatten(roots) {
			if d.FullDeviceType() == st {
				devices = append(devices, d)
			}
		}
	default:
		return nil
	}

	var res []searchResponse
	seen := make(map[string]struct{})
	add := func(d *Device, st, usn string) {
		// Services share the root UDN, so uuid answers would repeat.
		key := d.root.Location + "|" + st + "|" + usn
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		res = append(res, searchResponse{device: d, st: st, usn: usn})
	}

	for _, d := range devices {
		if (sendAll || rootOnly) && d.IsRoot() {
			add(d, TargetRootDevice, USN(d.UDN(), TargetRootDevice))
			if legacy {
				add(d, TargetPnpRootDevice, USN(d.UDN(), TargetPnpRootDevice))
			}
			if rootOnly {
				continue
			}
		}
		if byUUID || sendAll {
			add(d, d.UDN(), d.UDN())
		} else {
			add(d, d.FullDeviceType(), USN(d.UDN(), d.FullDeviceType()))
		}
	}
	return res
}

func (r *SearchResponder) respond(ctx context.Context, st string, in Inbound) {
	responses := matchTarget(st, r.state.Legacy(), r.registry.Snapshot())
	if len(responses) == 0 {
		metricSearchRequestsTotal.WithLabelValues(searchResultNoMatch).Inc()
		return
	}

	location, hasLocation := in.Message.Lookup("LOCATION")
	answered := false
	for _, resp := range responses {
		if r.isStopped() {
			return
		}

		root := resp.device.Root()
		if hasLocation && location == root.Location {
			// The request came from ourselves.
			return
		}
		if !root.Accepts(in.From.IP) {
			continue
		}

		msg := r.buildResponse(resp, root, in.LocalIP)
		if err := r.transport.SendUnicast(ctx, msg, in.LocalIP, in.From); err != nil {
			l.Debugln("Sending search response to", in.From, err)
			metricSendErrorsTotal.WithLabelValues(kindResponse).Inc()
			continue
		}
		metricMessagesSentTotal.WithLabelValues(kindResponse).Inc()
		answered = true

		if r.state.IsTracing(in.From.IP) {
			l.Infof("M-SEARCH response: %v -> %s %s", in.From, resp.st, resp.usn)
		}
	}

	if answered {
		metricSearchRequestsTotal.WithLabelValues(searchResultAnswered).Inc()
	}
}

func (r *SearchResponder) buildResponse(resp searchResponse, root *RootDevice, local net.IP) *Message {
	msg := NewMessage(StartResponse)
	msg.Set("CACHE-CONTROL", fmt.Sprintf("max-age=%d", int(root.CacheLifetime.Seconds())))
	msg.Set("DATE", r.clock.Now().UTC().Format(http.TimeFormat))
	msg.Set("EXT", "")
	msg.Set("LOCATION", root.Location)
	msg.Set("SERVER", r.state.UserAgent())
	msg.Set("ST", resp.st)
	msg.Set("USN", resp.usn)

	if r.state.Version() >= config.DlnaVersion2 {
		msg.Set("CONFIGID.UPNP.ORG", r.state.ConfigID())
		msg.Set("BOOTID.UPNP.ORG", r.state.BootID())
		msg.Set("NEXTBOOTID.UPNP.ORG", r.state.NextBootID())
		msg.Set("SEARCHPORT.UPNP.ORG", strconv.Itoa(r.transport.SearchPort(local)))
		msg.Set("OPT", upnpOptHeader)
		msg.Set("01-NLS", r.state.BootID())
	}
	return msg
}
