// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scpd builds UPnP service description documents from action and
// state variable tables.
package scpd

import (
	"encoding/xml"
)

const (
	DataTypeString  = "string"
	DataTypeUI4     = "ui4"
	DataTypeI4      = "i4"
	DataTypeBoolean = "boolean"
)

type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

type Argument struct {
	Name      string
	Direction Direction
	// RelatedStateVariable defaults to the argument name.
	RelatedStateVariable string
}

type Action struct {
	Name      string
	Arguments []Argument
}

type StateVariable struct {
	Name          string
	DataType      string
	SendsEvents   bool
	AllowedValues []string
}

// InArg and OutArg are shorthands for building argument lists.
func InArg(name, related string) Argument {
	return Argument{Name: name, Direction: In, RelatedStateVariable: related}
}

func OutArg(name, related string) Argument {
	return Argument{Name: name, Direction: Out, RelatedStateVariable: related}
}

type document struct {
	XMLName     xml.Name           `xml:"urn:schemas-upnp-org:service-1-0 scpd"`
	SpecVersion specVersion        `xml:"specVersion"`
	Actions     []xmlAction        `xml:"actionList>action"`
	Variables   []xmlStateVariable `xml:"serviceStateTable>stateVariable"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type xmlAction struct {
	Name      string        `xml:"name"`
	Arguments []xmlArgument `xml:"argumentList>argument"`
}

type xmlArgument struct {
	Name                 string `xml:"name"`
	Direction            string `xml:"direction"`
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

type xmlStateVariable struct {
	SendEvents    string   `xml:"sendEvents,attr"`
	Name          string   `xml:"name"`
	DataType      string   `xml:"dataType"`
	AllowedValues []string `xml:"allowedValueList>allowedValue,omitempty"`
}

// Build returns the scpd document for the given actions and state
// variables.
func Build(actions []Action, vars []StateVariable) (string, error) {
	doc := document{SpecVersion: specVersion{Major: 1, Minor: 0}}

	for _, a := range actions {
		xa := xmlAction{Name: a.Name}
		for _, arg := range a.Arguments {
			related := arg.RelatedStateVariable
			if related == "" {
				related = arg.Name
			}
			xa.Arguments = append(xa.Arguments, xmlArgument{
				Name:                 arg.Name,
				Direction:            arg.Direction.String(),
				RelatedStateVariable: related,
			})
		}
		doc.Actions = append(doc.Actions, xa)
	}

	for _, v := range vars {
		sendEvents := "no"
		if v.SendsEvents {
			sendEvents = "yes"
		}
		doc.Variables = append(doc.Variables, xmlStateVariable{
			SendEvents:    sendEvents,
			Name:          v.Name,
			DataType:      v.DataType,
			AllowedValues: v.AllowedValues,
		})
	}

	bs, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return `<?xml version="1.0"?>` + string(bs), nil
}
