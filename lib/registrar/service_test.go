// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package registrar

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/syncthing/dlna/lib/soap"
)

func TestAlwaysAuthorized(t *testing.T) {
	for _, method := range []string{"IsAuthorized", "IsValidated", "RegisterDevice", "isauthorized"} {
		body := `<Envelope><Body><u:` + method + ` xmlns:u="urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1"><DeviceID></DeviceID></u:` + method + `></Body></Envelope>`
		resp := soap.Process(context.Background(), soap.MediaReceiverRegistrar, New(), strings.NewReader(body), http.Header{})
		if resp.Fault {
			t.Errorf("%s: unexpected fault %s", method, resp.Body)
			continue
		}
		if !strings.Contains(string(resp.Body), "<Result>1</Result>") {
			t.Errorf("%s: unexpected response %s", method, resp.Body)
		}
	}
}

func TestUpdateIDs(t *testing.T) {
	body := `<Envelope><Body><GetValidationRevokedUpdateID/></Body></Envelope>`
	resp := soap.Process(context.Background(), soap.MediaReceiverRegistrar, New(), strings.NewReader(body), http.Header{})
	if !strings.Contains(string(resp.Body), "<ValidationRevokedUpdateID>0</ValidationRevokedUpdateID>") {
		t.Errorf("unexpected response %s", resp.Body)
	}
}

func TestUnknownAction(t *testing.T) {
	body := `<Envelope><Body><Frobnicate/></Body></Envelope>`
	resp := soap.Process(context.Background(), soap.MediaReceiverRegistrar, New(), strings.NewReader(body), http.Header{})
	if !resp.Fault || !strings.Contains(string(resp.Body), "errorCode>401") {
		t.Errorf("expected a 401 fault, got %s", resp.Body)
	}
}

func TestDescription(t *testing.T) {
	doc, err := Description()
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(doc, "<action>"); n != 7 {
		t.Errorf("%d actions, expected 7", n)
	}
	if n := strings.Count(doc, "<stateVariable "); n != 8 {
		t.Errorf("%d state variables, expected 8", n)
	}
}
