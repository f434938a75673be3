// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package dlnaserver

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/syncthing/dlna/lib/svcutil"
)

const libraryWatchDelay = 500 * time.Millisecond

// A LibraryWatcher reloads the library whenever its file is written or
// replaced. Bursts of changes result in a single reload once the file has
// been quiet for a short while.
type LibraryWatcher struct {
	path   string
	reload func(context.Context) error
	delay  time.Duration

	// Receives a value each time the watch is armed. Test hook.
	started chan struct{}
}

func NewLibraryWatcher(path string, reload func(context.Context) error) *LibraryWatcher {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &LibraryWatcher{
		path:   path,
		reload: reload,
		delay:  libraryWatchDelay,
	}
}

func (w *LibraryWatcher) Serve(ctx context.Context) error {
	dir, name := filepath.Dir(w.path), filepath.Base(w.path)

	// The directory is watched rather than the file, so that editors
	// replacing the file by rename keep being noticed.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := watchDir(wctx, dir)
	if err == errWatchUnsupported {
		return svcutil.NoRestartErr(err)
	} else if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	l.Infoln("Watching library file", w.path)
	if w.started != nil {
		w.started <- struct{}{}
	}

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case path := <-events:
			if filepath.Base(path) != name {
				continue
			}
			timer.Reset(w.delay)

		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				l.Warnln("Reloading library after change:", err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *LibraryWatcher) String() string {
	return fmt.Sprintf("dlnaserver.LibraryWatcher@%s", w.path)
}
