// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package gena

import (
	"math"
	"sync"
	"time"
)

// A Subscription is one event subscriber. The identity fields never change;
// the subscription time, timeout and sequence number are guarded by mut.
type Subscription struct {
	ID               string
	Callback         string
	NotificationType string
	StateVars        []string

	subscribed time.Time
	timeout    time.Duration
	seq        uint32
	mut        sync.Mutex
}

// Expired reports whether the subscription lapsed before now.
func (s *Subscription) Expired(now time.Time) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return now.After(s.subscribed.Add(s.timeout))
}

func (s *Subscription) Timeout() time.Duration {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.timeout
}

func (s *Subscription) renew(now time.Time, timeout time.Duration) {
	s.mut.Lock()
	s.subscribed = now
	s.timeout = timeout
	s.mut.Unlock()
}

// nextSeq returns the sequence number for the next event and advances the
// counter. After reaching the maximum the counter wraps to one.
func (s *Subscription) nextSeq() uint32 {
	s.mut.Lock()
	defer s.mut.Unlock()
	seq := s.seq
	if s.seq == math.MaxUint32 {
		s.seq = 1
	} else {
		s.seq++
	}
	return seq
}
