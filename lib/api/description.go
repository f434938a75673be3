// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package api

import (
	"bytes"
	"encoding/xml"
	"strings"
	"text/template"

	"github.com/syncthing/dlna/lib/build"
	"github.com/syncthing/dlna/lib/soap"
)

const (
	mediaServerType = "urn:schemas-upnp-org:device:MediaServer:1"
	manufacturer    = "Syncthing"
	manufacturerURL = "https://syncthing.net/"
	modelName       = "DLNA Media Server"
)

type icon struct {
	Name   string
	Mime   string
	Width  int
	Height int
	Depth  int
}

var deviceIcons = []icon{
	{Name: "logo240.png", Mime: "image/png", Width: 240, Height: 240, Depth: 24},
	{Name: "logo120.png", Mime: "image/png", Width: 120, Height: 120, Depth: 24},
	{Name: "logo48.png", Mime: "image/png", Width: 48, Height: 48, Depth: 24},
}

type serviceEntry struct {
	Type string
	ID   string
	Name string
}

type descriptionData struct {
	BaseURL      string
	Path         string
	DeviceType   string
	FriendlyName string
	Manufacturer string
	ManufURL     string
	ModelName    string
	ModelNumber  string
	ServerID     string
	Icons        []icon
	Services     []serviceEntry
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

var descriptionTemplate = template.Must(template.New("description").Funcs(template.FuncMap{
	"x": escapeXML,
}).Parse(`<?xml version="1.0" encoding="utf-8"?>
<root xmlns="urn:schemas-upnp-org:device-1-0" xmlns:dlna="urn:schemas-dlna-org:device-1-0">
  <specVersion>
    <major>1</major>
    <minor>0</minor>
  </specVersion>
  <URLBase>{{x .BaseURL}}</URLBase>
  <device>
    <dlna:X_DLNADOC>DMS-1.50</dlna:X_DLNADOC>
    <dlna:X_DLNADOC>M-DMS-1.50</dlna:X_DLNADOC>
    <dlna:X_DLNACAP/>
    <deviceType>{{.DeviceType}}</deviceType>
    <friendlyName>{{x .FriendlyName}}</friendlyName>
    <manufacturer>{{x .Manufacturer}}</manufacturer>
    <manufacturerURL>{{x .ManufURL}}</manufacturerURL>
    <modelDescription>UPnP/AV 1.0 Compliant Media Server</modelDescription>
    <modelName>{{x .ModelName}}</modelName>
    <modelNumber>{{x .ModelNumber}}</modelNumber>
    <modelURL>{{x .ManufURL}}</modelURL>
    <serialNumber>{{x .ServerID}}</serialNumber>
    <UDN>uuid:{{x .ServerID}}</UDN>
    <presentationURL>{{x .BaseURL}}</presentationURL>
    <iconList>
{{- range .Icons}}
      <icon>
        <mimetype>{{.Mime}}</mimetype>
        <width>{{.Width}}</width>
        <height>{{.Height}}</height>
        <depth>{{.Depth}}</depth>
        <url>{{x $.Path}}icons/{{.Name}}</url>
      </icon>
{{- end}}
    </iconList>
    <serviceList>
{{- range .Services}}
      <service>
        <serviceType>{{.Type}}</serviceType>
        <serviceId>{{.ID}}</serviceId>
        <SCPDURL>{{x $.Path}}{{.Name}}/{{.Name}}.xml</SCPDURL>
        <controlURL>{{x $.Path}}{{.Name}}/Control</controlURL>
        <eventSubURL>{{x $.Path}}{{.Name}}/Events</eventSubURL>
      </service>
{{- end}}
    </serviceList>
  </device>
</root>
`))

// deviceDescription renders the root device description. Service URLs are
// relative to the /dlna/<serverId>/ prefix.
func deviceDescription(baseURL, serverID, friendlyName string, services []soap.ServiceKind) ([]byte, error) {
	data := descriptionData{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		Path:         "/dlna/" + serverID + "/",
		DeviceType:   mediaServerType,
		FriendlyName: friendlyName,
		Manufacturer: manufacturer,
		ManufURL:     manufacturerURL,
		ModelName:    modelName,
		ModelNumber:  build.ModelNumber(),
		ServerID:     serverID,
		Icons:        deviceIcons,
	}
	for _, k := range services {
		data.Services = append(data.Services, serviceEntry{
			Type: k.ServiceType(),
			ID:   k.ServiceID(),
			Name: k.String(),
		})
	}

	var buf bytes.Buffer
	if err := descriptionTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
