// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build carries the version information injected at link time.
package build

import (
	"fmt"
	"log"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	// Injected by build script
	Version = "unknown-dev"
	Host    = "unknown" // Set by build script
	User    = "unknown" // Set by build script
	Stamp   = "0"       // Set by build script

	// Set by init()
	Date        time.Time
	IsRelease   bool
	LongVersion string

	AllowedVersionExp = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[a-z0-9]+)*(\.\d+)*(\+\d+-g[0-9a-f]+)?(-[^\s]+)?$`)
)

const programName = "dlnaserver"

func init() {
	if Version != "unknown-dev" {
		// If not a generic dev build, version string should come from git describe
		if !AllowedVersionExp.MatchString(Version) {
			log.Fatalf("Invalid version string %q;\n\tdoes not match regexp %v", Version, AllowedVersionExp)
		}
	}
	setBuildData()
}

func setBuildData() {
	exp := regexp.MustCompile(`^v\d+\.\d+\.\d+(-[a-z]+[\d\.]+)?$`)
	IsRelease = exp.MatchString(Version)

	stamp, _ := strconv.Atoi(Stamp)
	Date = time.Unix(int64(stamp), 0)

	date := Date.UTC().Format("2006-01-02 15:04:05 MST")
	LongVersion = fmt.Sprintf(`%s %s (%s %s-%s) %s@%s %s`, programName, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, User, Host, date)
}

// ModelNumber is the version as shown in the device description, without
// the leading "v" and any build metadata.
func ModelNumber() string {
	v := strings.TrimPrefix(Version, "v")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return v
}

// ProductToken is the product/version token used in SERVER and
// User-Agent headers.
func ProductToken() string {
	return programName + "/" + ModelNumber()
}
