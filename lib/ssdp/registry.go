// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"slices"
	"sync"
)

// A Registry is the set of root devices currently advertised. Devices are
// compared by identity. The lock is only held while the slice is touched,
// never across network I/O.
type Registry struct {
	devices []*RootDevice
	mut     sync.Mutex
}

// Add adds the device and returns true, or returns false if it is already
// present.
func (r *Registry) Add(d *RootDevice) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	if slices.Contains(r.devices, d) {
		return false
	}
	r.devices = append(r.devices, d)
	return true
}

// Remove removes the device and returns true, or returns false if it was
// not present.
func (r *Registry) Remove(d *RootDevice) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	idx := slices.Index(r.devices, d)
	if idx < 0 {
		return false
	}
	r.devices = slices.Delete(r.devices, idx, idx+1)
	return true
}

// Snapshot returns a copy of the current device list, in insertion order.
func (r *Registry) Snapshot() []*RootDevice {
	r.mut.Lock()
	defer r.mut.Unlock()
	return slices.Clone(r.devices)
}

func (r *Registry) Len() int {
	r.mut.Lock()
	defer r.mut.Unlock()
	return len(r.devices)
}
