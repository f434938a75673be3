// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package build

import (
	"strings"
	"testing"
)

func TestAllowedVersions(t *testing.T) {
	testcases := []struct {
		ver     string
		allowed bool
	}{
		{"v0.13.0", true},
		{"v0.12.11+22-gabcdef0", true},
		{"v0.13.0-beta0", true},
		{"v0.13.0-beta.47+1-gabcdef0", true},
		{"v0.13.0-some-weird-but-allowed-tag", true},
		{"v0.13.0+not.allowed.to.do.this", false},
		{"1.0.0", false},
	}

	for i, c := range testcases {
		if allowed := AllowedVersionExp.MatchString(c.ver); allowed != c.allowed {
			t.Errorf("%d: incorrect result %v != %v for %q", i, allowed, c.allowed, c.ver)
		}
	}
}

func TestModelNumber(t *testing.T) {
	defer func(v string) {
		Version = v
		setBuildData()
	}(Version)

	cases := []struct {
		version string
		model   string
		release bool
	}{
		{"v1.2.3", "1.2.3", true},
		{"v1.2.3-rc.1", "1.2.3-rc.1", true},
		{"v1.2.3+22-gabcdef0", "1.2.3", false},
		{"unknown-dev", "unknown-dev", false},
	}

	for _, c := range cases {
		Version = c.version
		setBuildData()
		if m := ModelNumber(); m != c.model {
			t.Errorf("ModelNumber() for %q = %q, expected %q", c.version, m, c.model)
		}
		if IsRelease != c.release {
			t.Errorf("IsRelease for %q = %v", c.version, IsRelease)
		}
		if tok := ProductToken(); tok != "dlnaserver/"+c.model {
			t.Errorf("unexpected product token %q", tok)
		}
		if !strings.HasPrefix(LongVersion, "dlnaserver "+c.version+" (") {
			t.Errorf("unexpected long version %q", LongVersion)
		}
	}
}
