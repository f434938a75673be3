// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build (solaris && !cgo) || (darwin && !cgo) || (android && amd64)
// +build solaris,!cgo darwin,!cgo android,amd64

package dlnaserver

import (
	"context"
	"errors"
)

var errWatchUnsupported = errors.New("file watching is not supported on this platform")

func watchDir(context.Context, string) (<-chan string, error) {
	return nil, errWatchUnsupported
}
