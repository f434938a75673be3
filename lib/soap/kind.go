// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soap

import (
	"fmt"
	"strings"
)

// ServiceKind identifies one of the UPnP services the server exposes.
type ServiceKind int

const (
	ContentDirectory ServiceKind = iota
	ConnectionManager
	MediaReceiverRegistrar
)

var serviceKinds = []ServiceKind{ContentDirectory, ConnectionManager, MediaReceiverRegistrar}

// ServiceKinds returns all known services, in a stable order.
func ServiceKinds() []ServiceKind {
	return append([]ServiceKind(nil), serviceKinds...)
}

func (k ServiceKind) String() string {
	switch k {
	case ContentDirectory:
		return "ContentDirectory"
	case ConnectionManager:
		return "ConnectionManager"
	case MediaReceiverRegistrar:
		return "MediaReceiverRegistrar"
	default:
		return fmt.Sprintf("ServiceKind(%d)", int(k))
	}
}

// ServiceType returns the service type URN. The registrar lives in the
// Microsoft namespace.
func (k ServiceKind) ServiceType() string {
	if k == MediaReceiverRegistrar {
		return "urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1"
	}
	return "urn:schemas-upnp-org:service:" + k.String() + ":1"
}

// ServiceID returns the service identifier used in the device description.
func (k ServiceKind) ServiceID() string {
	if k == MediaReceiverRegistrar {
		return "urn:microsoft.com:serviceId:X_MS_MediaReceiverRegistrar"
	}
	return "urn:upnp-org:serviceId:" + k.String()
}

// ParseServiceKind parses a service name as used in URLs. The match is
// case insensitive.
func ParseServiceKind(s string) (ServiceKind, error) {
	for _, k := range serviceKinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown service %q", s)
}
