// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package gena

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type notification struct {
	method string
	header http.Header
	body   string
}

type callbackServer struct {
	*httptest.Server
	mut      sync.Mutex
	received []notification
}

func newCallbackServer(t *testing.T, status int) *callbackServer {
	t.Helper()
	s := &callbackServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs, _ := io.ReadAll(r.Body)
		s.mut.Lock()
		s.received = append(s.received, notification{r.Method, r.Header.Clone(), string(bs)})
		s.mut.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *callbackServer) notifications() []notification {
	s.mut.Lock()
	defer s.mut.Unlock()
	return append([]notification(nil), s.received...)
}

func TestSubscribeRenewUnsubscribe(t *testing.T) {
	m := NewManager(nil, nil)

	sub := m.Subscribe("upnp:event", "http://192.0.2.1/cb", nil, 60*time.Second)
	if !strings.HasPrefix(sub.ID, "uuid:") {
		t.Errorf("unexpected subscription ID %q", sub.ID)
	}

	timeout, err := m.Renew(sub.ID, 120*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if timeout != 120*time.Second {
		t.Errorf("renewed timeout %v, expected 2m0s", timeout)
	}
	got, ok := m.Get(strings.ToUpper(sub.ID))
	if !ok || got != sub {
		t.Fatal("renewal should keep the subscription and its ID")
	}
	if got.Timeout() != 120*time.Second {
		t.Errorf("timeout %v after renewal", got.Timeout())
	}

	m.Unsubscribe(sub.ID)
	m.Unsubscribe(sub.ID)
	if _, err := m.Renew(sub.ID, time.Minute); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("renew after unsubscribe: %v, expected ErrSubscriptionNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("%d subscriptions left", m.Len())
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(nil, nil)
	m.now = func() time.Time { return now }

	sub := m.Subscribe("upnp:event", "http://192.0.2.1/cb", nil, 0)
	if sub.Timeout() != DefaultTimeout {
		t.Errorf("timeout %v, expected default", sub.Timeout())
	}
	if sub.Expired(now.Add(DefaultTimeout)) {
		t.Error("should not be expired at exactly the timeout")
	}
	if !sub.Expired(now.Add(DefaultTimeout + time.Second)) {
		t.Error("should be expired after the timeout")
	}
}

func TestNotify(t *testing.T) {
	cb := newCallbackServer(t, http.StatusOK)
	m := NewManager(cb.Client(), nil)

	sub := m.Subscribe("upnp:event", cb.URL, nil, time.Minute)
	m.Subscribe("other:type", cb.URL, nil, time.Minute)

	props := []Property{{Name: "SystemUpdateID", Value: "7"}, {Name: "ContainerUpdateIDs", Value: "a<b"}}
	m.Notify(context.Background(), "UPNP:EVENT", props)
	m.Notify(context.Background(), "upnp:event", props)

	got := cb.notifications()
	if len(got) != 2 {
		t.Fatalf("%d notifications, expected 2", len(got))
	}
	n := got[0]
	if n.method != "NOTIFY" {
		t.Errorf("method %q", n.method)
	}
	for key, exp := range map[string]string{"NT": "upnp:event", "NTS": "upnp:propchange", "SID": sub.ID, "SEQ": "0"} {
		if v := n.header.Get(key); v != exp {
			t.Errorf("%s = %q, expected %q", key, v, exp)
		}
	}
	if v := got[1].header.Get("SEQ"); v != "1" {
		t.Errorf("second SEQ = %q, expected 1", v)
	}
	exp := `<?xml version="1.0"?><e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">` +
		`<e:property><SystemUpdateID>7</SystemUpdateID></e:property>` +
		`<e:property><ContainerUpdateIDs>a&lt;b</ContainerUpdateIDs></e:property></e:propertyset>`
	if n.body != exp {
		t.Errorf("body\n%s\nexpected\n%s", n.body, exp)
	}
}

func TestNotifyFailureAdvancesSequence(t *testing.T) {
	m := NewManager(&http.Client{Timeout: time.Second}, nil)
	sub := m.Subscribe("upnp:event", "http://127.0.0.1:1/unreachable", nil, time.Minute)

	m.Notify(context.Background(), "upnp:event", nil)
	m.Notify(context.Background(), "upnp:event", nil)

	if seq := sub.nextSeq(); seq != 2 {
		t.Errorf("sequence %d, expected 2", seq)
	}
}

func TestNotifySkipsExpired(t *testing.T) {
	cb := newCallbackServer(t, http.StatusOK)
	now := time.Now()
	m := NewManager(cb.Client(), nil)
	m.now = func() time.Time { return now }
	m.Subscribe("upnp:event", cb.URL, nil, time.Second)

	now = now.Add(2 * time.Second)
	m.Notify(context.Background(), "upnp:event", nil)
	if n := len(cb.notifications()); n != 0 {
		t.Errorf("%d notifications to an expired subscription", n)
	}
	if m.Len() != 0 {
		t.Errorf("expired subscription not dropped, %d left", m.Len())
	}
}

func TestSequenceWraps(t *testing.T) {
	sub := &Subscription{seq: math.MaxUint32}
	if seq := sub.nextSeq(); seq != math.MaxUint32 {
		t.Errorf("got %d", seq)
	}
	if seq := sub.nextSeq(); seq != 1 {
		t.Errorf("sequence %d after wrap, expected 1", seq)
	}
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		in  string
		exp time.Duration
	}{
		{"", DefaultTimeout},
		{"Second-1800", 1800 * time.Second},
		{"second-60", 60 * time.Second},
		{"Second-infinite", DefaultTimeout},
		{"Second-0", DefaultTimeout},
		{"90", 90 * time.Second},
	}
	for _, tc := range cases {
		if got := ParseTimeout(tc.in); got != tc.exp {
			t.Errorf("ParseTimeout(%q) = %v, expected %v", tc.in, got, tc.exp)
		}
	}
}

func TestHandleEventRequest(t *testing.T) {
	m := NewManager(nil, func() string { return "test/1.0" })

	req := httptest.NewRequest("SUBSCRIBE", "/dlna/x/ContentDirectory/Events", nil)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("CALLBACK", "<http://192.0.2.1:4000/cb>")
	req.Header.Set("TIMEOUT", "Second-1800")
	req.Header.Set("STATEVAR", "SystemUpdateID")
	rec := httptest.NewRecorder()
	m.HandleEventRequest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe status %d", rec.Code)
	}
	sid := rec.Header().Get("SID")
	sub, ok := m.Get(sid)
	if !ok {
		t.Fatalf("no subscription for SID %q", sid)
	}
	if sub.Callback != "http://192.0.2.1:4000/cb" {
		t.Errorf("callback %q", sub.Callback)
	}
	if sub.Timeout() != 1800*time.Second {
		t.Errorf("timeout %v", sub.Timeout())
	}
	for key, exp := range map[string]string{"TIMEOUT": "Second-1800", "SERVER": "test/1.0", "ACCEPTED-STATEVAR": "SystemUpdateID"} {
		if v := rec.Header().Get(key); v != exp {
			t.Errorf("%s = %q, expected %q", key, v, exp)
		}
	}
	if rec.Header().Get("DATE") == "" {
		t.Error("missing DATE")
	}

	// Renewal keeps the SID.
	req = httptest.NewRequest("SUBSCRIBE", "/dlna/x/ContentDirectory/Events", nil)
	req.Header.Set("SID", sid)
	rec = httptest.NewRecorder()
	m.HandleEventRequest(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("SID") != sid {
		t.Errorf("renewal: status %d SID %q", rec.Code, rec.Header().Get("SID"))
	}
	if v := rec.Header().Get("TIMEOUT"); v != "Second-300" {
		t.Errorf("renewal TIMEOUT %q", v)
	}

	req = httptest.NewRequest("UNSUBSCRIBE", "/dlna/x/ContentDirectory/Events", nil)
	req.Header.Set("SID", sid)
	rec = httptest.NewRecorder()
	m.HandleEventRequest(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("unsubscribe status %d", rec.Code)
	}

	// Renewing a removed subscription fails.
	req = httptest.NewRequest("SUBSCRIBE", "/dlna/x/ContentDirectory/Events", nil)
	req.Header.Set("SID", sid)
	rec = httptest.NewRecorder()
	m.HandleEventRequest(rec, req)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("renewal of unknown SID: status %d", rec.Code)
	}
}

func TestHandleEventRequestMissingCallback(t *testing.T) {
	m := NewManager(nil, nil)
	req := httptest.NewRequest("SUBSCRIBE", "/", nil)
	req.Header.Set("NT", "upnp:event")
	rec := httptest.NewRecorder()
	m.HandleEventRequest(rec, req)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("status %d", rec.Code)
	}
	if m.Len() != 0 {
		t.Error("subscription created without callback")
	}
}
