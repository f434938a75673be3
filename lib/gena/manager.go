// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gena implements UPnP event subscriptions: the SUBSCRIBE and
// UNSUBSCRIBE handshake and delivery of NOTIFY property sets to
// subscribers.
package gena

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultTimeout = 300 * time.Second

	notifyTimeout = 10 * time.Second
	nsEvent       = "urn:schemas-upnp-org:event-1-0"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// A Property is one evented state variable and its value.
type Property struct {
	Name  string
	Value string
}

// A Manager holds the event subscriptions for all services of a server.
// Subscription IDs are case insensitive.
type Manager struct {
	subs      *xsync.MapOf[string, *Subscription]
	client    *http.Client
	userAgent func() string
	now       func() time.Time
}

// NewManager returns a Manager delivering events with client. The user
// agent function supplies the SERVER header of event responses.
func NewManager(client *http.Client, userAgent func() string) *Manager {
	if client == nil {
		client = &http.Client{Timeout: notifyTimeout}
	}
	return &Manager{
		subs:      xsync.NewMapOf[string, *Subscription](),
		client:    client,
		userAgent: userAgent,
		now:       time.Now,
	}
}

func subscriptionKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Subscribe creates a subscription and returns it. A non-positive timeout
// selects the default.
func (m *Manager) Subscribe(nt, callback string, stateVars []string, timeout time.Duration) *Subscription {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sub := &Subscription{
		ID:               "uuid:" + uuid.NewString(),
		Callback:         callback,
		NotificationType: nt,
		StateVars:        stateVars,
		subscribed:       m.now(),
		timeout:          timeout,
	}
	m.subs.Store(subscriptionKey(sub.ID), sub)
	metricSubscriptions.Set(float64(m.subs.Size()))
	l.Debugf("Created event subscription %s for %s with timeout %v to %s", sub.ID, nt, timeout, callback)
	return sub
}

// Renew restarts the subscription's lifetime with the given timeout and
// returns the effective timeout. The subscription ID is unchanged.
func (m *Manager) Renew(id string, timeout time.Duration) (time.Duration, error) {
	sub, ok := m.subs.Load(subscriptionKey(id))
	if !ok {
		return 0, ErrSubscriptionNotFound
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sub.renew(m.now(), timeout)
	l.Debugf("Renewed event subscription %s with timeout %v", sub.ID, timeout)
	return timeout, nil
}

// Unsubscribe removes the subscription. Removing an unknown ID is not an
// error.
func (m *Manager) Unsubscribe(id string) {
	if _, ok := m.subs.LoadAndDelete(subscriptionKey(id)); ok {
		l.Debugln("Cancelled event subscription", id)
	}
	metricSubscriptions.Set(float64(m.subs.Size()))
}

// Get returns the subscription with the given ID.
func (m *Manager) Get(id string) (*Subscription, bool) {
	return m.subs.Load(subscriptionKey(id))
}

// Len returns the number of subscriptions, expired ones included.
func (m *Manager) Len() int {
	return m.subs.Size()
}

// Notify sends the properties to every live subscription for the
// notification type and waits for the deliveries to finish. Expired
// subscriptions are dropped. Delivery failures are logged and counted but
// not returned.
func (m *Manager) Notify(ctx context.Context, nt string, props []Property) {
	now := m.now()
	var targets []*Subscription
	m.subs.Range(func(key string, sub *Subscription) bool {
		switch {
		case sub.Expired(now):
			m.subs.Delete(key)
			l.Debugln("Dropped expired event subscription", sub.ID)
		case strings.EqualFold(sub.NotificationType, nt):
			targets = append(targets, sub)
		}
		return true
	})
	metricSubscriptions.Set(float64(m.subs.Size()))
	if len(targets) == 0 {
		return
	}

	body := propertySet(props)
	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			m.deliver(ctx, sub, body)
		}(sub)
	}
	wg.Wait()
}

func (m *Manager) deliver(ctx context.Context, sub *Subscription, body []byte) {
	// The sequence number advances whether or not delivery succeeds.
	seq := sub.nextSeq()

	req, err := http.NewRequestWithContext(ctx, "NOTIFY", sub.Callback, bytes.NewReader(body))
	if err != nil {
		l.Debugf("Event to %s: %v", sub.Callback, err)
		metricNotificationsTotal.WithLabelValues(resultError).Inc()
		return
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", sub.NotificationType)
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sub.ID)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(seq), 10))

	resp, err := m.client.Do(req)
	if err != nil {
		l.Debugf("Event to %s: %v", sub.Callback, err)
		metricNotificationsTotal.WithLabelValues(resultError).Inc()
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		l.Debugf("Event to %s: %s", sub.Callback, resp.Status)
		metricNotificationsTotal.WithLabelValues(resultError).Inc()
		return
	}
	metricNotificationsTotal.WithLabelValues(resultSuccess).Inc()
}

func propertySet(props []Property) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString(`<e:propertyset xmlns:e="` + nsEvent + `">`)
	for _, p := range props {
		buf.WriteString("<e:property><")
		buf.WriteString(p.Name)
		buf.WriteByte('>')
		xml.EscapeText(&buf, []byte(p.Value))
		buf.WriteString("</")
		buf.WriteString(p.Name)
		buf.WriteString("></e:property>")
	}
	buf.WriteString("</e:propertyset>")
	return buf.Bytes()
}

// ParseTimeout parses a TIMEOUT header such as "Second-1800". The number
// after the last dash is used; anything unparseable, including "infinite",
// gives the default.
func ParseTimeout(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultTimeout
	}
	if i := strings.LastIndexByte(header, '-'); i >= 0 {
		header = header[i+1:]
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(secs) * time.Second
}

func formatTimeout(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}

// HandleEventRequest implements the SUBSCRIBE and UNSUBSCRIBE requests on a
// service's event URL.
func (m *Manager) HandleEventRequest(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(r.Header.Get("SID"))

	switch strings.ToUpper(r.Method) {
	case "UNSUBSCRIBE":
		if sid == "" {
			http.Error(w, "missing SID", http.StatusPreconditionFailed)
			return
		}
		m.Unsubscribe(sid)
		w.WriteHeader(http.StatusOK)
		return

	case "SUBSCRIBE":
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	nt := strings.TrimSpace(r.Header.Get("NT"))
	requested := strings.TrimSpace(r.Header.Get("TIMEOUT"))
	timeout := ParseTimeout(requested)

	h := w.Header()
	if nt == "" {
		if _, err := m.Renew(sid, timeout); err != nil {
			l.Debugf("Renewing subscription %q: %v", sid, err)
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
			return
		}
	} else {
		callback := strings.Trim(strings.TrimSpace(r.Header.Get("CALLBACK")), "<>")
		if callback == "" {
			http.Error(w, "missing CALLBACK", http.StatusPreconditionFailed)
			return
		}
		stateVar := r.Header.Get("STATEVAR")
		var vars []string
		for _, v := range strings.Split(stateVar, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vars = append(vars, v)
			}
		}
		sid = m.Subscribe(nt, callback, vars, timeout).ID
		h.Set("ACCEPTED-STATEVAR", stateVar)
	}

	h.Set("DATE", m.now().UTC().Format(http.TimeFormat))
	if m.userAgent != nil {
		h.Set("SERVER", m.userAgent())
	}
	h.Set("SID", sid)
	if requested != "" {
		h.Set("TIMEOUT", requested)
	} else {
		h.Set("TIMEOUT", formatTimeout(timeout))
	}
	w.WriteHeader(http.StatusOK)
}
