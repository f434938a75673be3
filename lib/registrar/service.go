// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package registrar implements the X_MS_MediaReceiverRegistrar service
// required by Xbox and Windows Media Player clients. Every device is
// authorized and validated.
package registrar

import (
	"context"
	"strings"

	"github.com/syncthing/dlna/lib/scpd"
	"github.com/syncthing/dlna/lib/soap"
)

var updateIDActions = []string{
	"GetValidationSucceededUpdateID",
	"GetAuthorizationDeniedUpdateID",
	"GetValidationRevokedUpdateID",
	"GetAuthorizationGrantedUpdateID",
}

type Service struct{}

func New() *Service {
	return &Service{}
}

func (*Service) WriteResult(_ context.Context, req *soap.Request, w *soap.ResultWriter) error {
	switch {
	case strings.EqualFold(req.Method, "IsAuthorized"),
		strings.EqualFold(req.Method, "IsValidated"),
		strings.EqualFold(req.Method, "RegisterDevice"):
		w.WriteInt("Result", 1)
		return nil
	}

	for _, name := range updateIDActions {
		if strings.EqualFold(req.Method, name) {
			w.WriteInt(strings.TrimPrefix(name, "Get"), 0)
			return nil
		}
	}
	return &soap.ActionNotFoundError{Method: req.Method}
}

func (*Service) String() string {
	return soap.MediaReceiverRegistrar.String()
}

func Actions() []scpd.Action {
	actions := []scpd.Action{
		{
			Name: "IsValidated",
			Arguments: []scpd.Argument{
				scpd.InArg("DeviceID", "A_ARG_TYPE_DeviceID"),
				scpd.OutArg("Result", "A_ARG_TYPE_Result"),
			},
		},
		{
			Name: "IsAuthorized",
			Arguments: []scpd.Argument{
				scpd.InArg("DeviceID", "A_ARG_TYPE_DeviceID"),
				scpd.OutArg("Result", "A_ARG_TYPE_Result"),
			},
		},
		{
			Name: "RegisterDevice",
			Arguments: []scpd.Argument{
				scpd.InArg("RegistrationReqMsg", "A_ARG_TYPE_RegistrationReqMsg"),
				scpd.OutArg("RegistrationRespMsg", "A_ARG_TYPE_RegistrationRespMsg"),
			},
		},
	}
	for _, name := range updateIDActions {
		out := strings.TrimPrefix(name, "Get")
		actions = append(actions, scpd.Action{
			Name:      name,
			Arguments: []scpd.Argument{scpd.OutArg(out, out)},
		})
	}
	return actions
}

func StateVariables() []scpd.StateVariable {
	return []scpd.StateVariable{
		{Name: "AuthorizationGrantedUpdateID", DataType: scpd.DataTypeUI4, SendsEvents: true},
		{Name: "A_ARG_TYPE_DeviceID", DataType: scpd.DataTypeString},
		{Name: "AuthorizationDeniedUpdateID", DataType: scpd.DataTypeUI4, SendsEvents: true},
		{Name: "ValidationSucceededUpdateID", DataType: scpd.DataTypeUI4, SendsEvents: true},
		{Name: "A_ARG_TYPE_RegistrationRespMsg", DataType: "bin.base64"},
		{Name: "A_ARG_TYPE_RegistrationReqMsg", DataType: "bin.base64"},
		{Name: "ValidationRevokedUpdateID", DataType: scpd.DataTypeUI4, SendsEvents: true},
		{Name: "A_ARG_TYPE_Result", DataType: "int"},
	}
}

func Description() (string, error) {
	return scpd.Build(Actions(), StateVariables())
}
