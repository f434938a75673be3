// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !(solaris && !cgo) && !(darwin && !cgo) && !(android && amd64)
// +build !solaris cgo
// +build !darwin cgo
// +build !android !amd64

package dlnaserver

import (
	"context"
	"errors"

	"github.com/syncthing/notify"
)

var errWatchUnsupported = errors.New("file watching is not supported on this platform")

// Notify does not block on sending to the channel, so it must be buffered.
var watchBuffer = 64

// watchDir returns the paths of entries created, written or renamed in dir
// until ctx is cancelled.
func watchDir(ctx context.Context, dir string) (<-chan string, error) {
	backend := make(chan notify.EventInfo, watchBuffer)
	if err := notify.Watch(dir, backend, notify.Create|notify.Write|notify.Rename); err != nil {
		notify.Stop(backend)
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer notify.Stop(backend)
		for {
			select {
			case ev := <-backend:
				l.Debugln("Watch:", ev.Event(), ev.Path())
				select {
				case out <- ev.Path():
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				l.Debugln("Watch: stopped", dir)
				return
			}
		}
	}()
	return out, nil
}
