// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connectionmanager implements the UPnP ConnectionManager service
// for a server that only ever offers the default connection.
package connectionmanager

import (
	"context"
	"net/http"
	"strings"

	"github.com/syncthing/dlna/lib/scpd"
	"github.com/syncthing/dlna/lib/soap"
)

// A ProtocolSource supplies the source protocol info for the client that
// sent a request.
type ProtocolSource interface {
	SourceProtocolInfo(header http.Header) string
}

type Service struct {
	protocols ProtocolSource
}

func New(protocols ProtocolSource) *Service {
	return &Service{protocols: protocols}
}

func (s *Service) WriteResult(_ context.Context, req *soap.Request, w *soap.ResultWriter) error {
	switch {
	case strings.EqualFold(req.Method, "GetProtocolInfo"):
		w.WriteElement("Source", s.protocols.SourceProtocolInfo(req.Header))
		w.WriteElement("Sink", "")
	case strings.EqualFold(req.Method, "GetCurrentConnectionIDs"):
		w.WriteElement("ConnectionIDs", "0")
	case strings.EqualFold(req.Method, "GetCurrentConnectionInfo"):
		w.WriteInt("RcsID", 0)
		w.WriteInt("AVTransportID", 0)
		w.WriteElement("ProtocolInfo", "")
		w.WriteElement("PeerConnectionManager", "")
		w.WriteInt("PeerConnectionID", 0)
		w.WriteElement("Direction", "Input")
		w.WriteElement("Status", "OK")
	default:
		return &soap.ActionNotFoundError{Method: req.Method}
	}
	return nil
}

func (s *Service) String() string {
	return soap.ConnectionManager.String()
}

// Actions returns the service's action table.
func Actions() []scpd.Action {
	return []scpd.Action{
		{
			Name: "GetCurrentConnectionInfo",
			Arguments: []scpd.Argument{
				scpd.InArg("ConnectionID", "A_ARG_TYPE_ConnectionID"),
				scpd.OutArg("RcsID", "A_ARG_TYPE_RcsID"),
				scpd.OutArg("AVTransportID", "A_ARG_TYPE_AVTransportID"),
				scpd.OutArg("ProtocolInfo", "A_ARG_TYPE_ProtocolInfo"),
				scpd.OutArg("PeerConnectionManager", "A_ARG_TYPE_ConnectionManager"),
				scpd.OutArg("PeerConnectionID", "A_ARG_TYPE_ConnectionID"),
				scpd.OutArg("Direction", "A_ARG_TYPE_Direction"),
				scpd.OutArg("Status", "A_ARG_TYPE_ConnectionStatus"),
			},
		},
		{
			Name: "GetProtocolInfo",
			Arguments: []scpd.Argument{
				scpd.OutArg("Source", "SourceProtocolInfo"),
				scpd.OutArg("Sink", "SinkProtocolInfo"),
			},
		},
		{
			Name: "GetCurrentConnectionIDs",
			Arguments: []scpd.Argument{
				scpd.OutArg("ConnectionIDs", "CurrentConnectionIDs"),
			},
		},
		{
			Name: "ConnectionComplete",
			Arguments: []scpd.Argument{
				scpd.InArg("ConnectionID", "A_ARG_TYPE_ConnectionID"),
			},
		},
		{
			Name: "PrepareForConnection",
			Arguments: []scpd.Argument{
				scpd.InArg("RemoteProtocolInfo", "A_ARG_TYPE_ProtocolInfo"),
				scpd.InArg("PeerConnectionManager", "A_ARG_TYPE_ConnectionManager"),
				scpd.InArg("PeerConnectionID", "A_ARG_TYPE_ConnectionID"),
				scpd.InArg("Direction", "A_ARG_TYPE_Direction"),
				scpd.OutArg("ConnectionID", "A_ARG_TYPE_ConnectionID"),
				scpd.OutArg("AVTransportID", "A_ARG_TYPE_AVTransportID"),
				scpd.OutArg("RcsID", "A_ARG_TYPE_RcsID"),
			},
		},
	}
}

// StateVariables returns the service's state table.
func StateVariables() []scpd.StateVariable {
	return []scpd.StateVariable{
		{Name: "SourceProtocolInfo", DataType: scpd.DataTypeString, SendsEvents: true},
		{Name: "SinkProtocolInfo", DataType: scpd.DataTypeString, SendsEvents: true},
		{Name: "CurrentConnectionIDs", DataType: scpd.DataTypeString, SendsEvents: true},
		{
			Name:          "A_ARG_TYPE_ConnectionStatus",
			DataType:      scpd.DataTypeString,
			AllowedValues: []string{"OK", "ContentFormatMismatch", "InsufficientBandwidth", "UnreliableChannel", "Unknown"},
		},
		{Name: "A_ARG_TYPE_ConnectionManager", DataType: scpd.DataTypeString},
		{
			Name:          "A_ARG_TYPE_Direction",
			DataType:      scpd.DataTypeString,
			AllowedValues: []string{"Output", "Input"},
		},
		{Name: "A_ARG_TYPE_ProtocolInfo", DataType: scpd.DataTypeString},
		{Name: "A_ARG_TYPE_ConnectionID", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_AVTransportID", DataType: scpd.DataTypeUI4},
		{Name: "A_ARG_TYPE_RcsID", DataType: scpd.DataTypeUI4},
	}
}

// Description returns the scpd document.
func Description() (string, error) {
	return scpd.Build(Actions(), StateVariables())
}
