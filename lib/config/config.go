// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading and writing of the DLNA server
// configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"sigs.k8s.io/yaml"
)

const (
	CurrentVersion = 1

	DefaultAliveMessageIntervalS = 1800
	MinAliveMessageIntervalS     = 100
	MaxAliveMessageIntervalS     = 65000

	DefaultUDPPortRange      = "49152-65535"
	DefaultUserAgent         = "DLNADOC/1.50 UPnP/1.0 dlnaserver/1.0"
	DefaultHTTPListenAddress = ":8200"
	DefaultUDPSendCount      = 2

	// APIKeyEnv overrides the configured API key.
	APIKeyEnv = "DLNA_APIKEY"
)

// DlnaVersion selects the set of SSDP headers we emit. Version 2 adds the
// UPnP 1.1 BOOTID/CONFIGID family.
type DlnaVersion int

const (
	DlnaVersion1 DlnaVersion = 1
	DlnaVersion2 DlnaVersion = 2
)

func (v DlnaVersion) String() string {
	return "DLNA v" + strconv.Itoa(int(v))
}

type Configuration struct {
	Version                      int             `json:"version"`
	EnableDebugLog               bool            `json:"enableDebugLog"`
	DefaultUserID                string          `json:"defaultUserId"`
	ChangeIDOnStartup            bool            `json:"changeIdOnStartup"`
	ServerID                     string          `json:"serverId,omitempty"`
	AliveMessageIntervalSeconds  int             `json:"aliveMessageIntervalSeconds"`
	DlnaServerName               string          `json:"dlnaServerName"`
	EnableWindowsExplorerSupport bool            `json:"enableWindowsExplorerSupport"`
	BindAddresses                []string        `json:"bindAddresses"`
	EnableSsdpTracing            bool            `json:"enableSsdpTracing"`
	SsdpTracingFilter            string          `json:"ssdpTracingFilter"`
	UDPPortRange                 string          `json:"udpPortRange"`
	UserAgent                    string          `json:"userAgent"`
	DlnaVersion                  DlnaVersion     `json:"dlnaVersion"`
	HTTPListenAddress            string          `json:"httpListenAddress"`
	UDPSendCount                 int             `json:"udpSendCount"`
	APIKey                       string          `json:"apiKey,omitempty"`
	Profiles                     []DeviceProfile `json:"profiles"`
}

// A DeviceProfile describes a class of DLNA clients. The match patterns are
// globs evaluated against the request headers; an empty pattern matches
// anything.
type DeviceProfile struct {
	Name                           string `json:"name"`
	SourceProtocolInfo             string `json:"sourceProtocolInfo"`
	EnableMSMediaReceiverRegistrar bool   `json:"enableMsMediaReceiverRegistrar"`
	UserAgent                      string `json:"userAgent,omitempty"`
	FriendlyName                   string `json:"friendlyName,omitempty"`
	ClientInfo                     string `json:"clientInfo,omitempty"`
}

// New returns a configuration with all defaults set.
func New() Configuration {
	cfg := Configuration{
		Version:                      CurrentVersion,
		ChangeIDOnStartup:            true,
		AliveMessageIntervalSeconds:  DefaultAliveMessageIntervalS,
		EnableWindowsExplorerSupport: true,
		BindAddresses:                []string{},
		UDPPortRange:                 DefaultUDPPortRange,
		UserAgent:                    DefaultUserAgent,
		DlnaVersion:                  DlnaVersion1,
		HTTPListenAddress:            DefaultHTTPListenAddress,
		UDPSendCount:                 DefaultUDPSendCount,
		Profiles:                     []DeviceProfile{},
	}
	cfg.prepare()
	return cfg
}

// ReadYAML reads a configuration, filling in defaults for any field not
// present in the input.
func ReadYAML(r io.Reader) (Configuration, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return Configuration{}, err
	}

	cfg := New()
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.prepare(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// WriteYAML writes the configuration to w.
func (cfg Configuration) WriteYAML(w io.Writer) error {
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

func (cfg Configuration) Copy() Configuration {
	newCfg := cfg
	newCfg.BindAddresses = slices.Clone(cfg.BindAddresses)
	newCfg.Profiles = slices.Clone(cfg.Profiles)
	return newCfg
}

// IsValidAPIKey returns true when the given API key matches the configured
// key or the DLNA_APIKEY override. An empty key is never valid.
func (cfg Configuration) IsValidAPIKey(apiKey string) bool {
	switch apiKey {
	case "":
		return false

	case cfg.APIKey, os.Getenv(APIKeyEnv):
		return true

	default:
		return false
	}
}

// AliveInterval returns the effective alive message interval, in seconds.
func (cfg Configuration) AliveInterval() int {
	return ClampAliveInterval(cfg.AliveMessageIntervalSeconds)
}

// prepare cleans the configuration in place, applying defaults and limits.
// The only hard error is an unparseable UDP port range.
func (cfg *Configuration) prepare() error {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	cfg.AliveMessageIntervalSeconds = ClampAliveInterval(cfg.AliveMessageIntervalSeconds)
	cfg.DlnaServerName = SanitizeServerName(cfg.DlnaServerName)

	switch {
	case cfg.DlnaVersion < DlnaVersion1:
		cfg.DlnaVersion = DlnaVersion1
	case cfg.DlnaVersion > DlnaVersion2:
		cfg.DlnaVersion = DlnaVersion2
	}

	if cfg.UDPSendCount < 1 {
		cfg.UDPSendCount = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPListenAddress == "" {
		cfg.HTTPListenAddress = DefaultHTTPListenAddress
	}
	if cfg.UDPPortRange == "" {
		cfg.UDPPortRange = DefaultUDPPortRange
	}
	if _, _, err := ParsePortRange(cfg.UDPPortRange); err != nil {
		return err
	}
	if cfg.BindAddresses == nil {
		cfg.BindAddresses = []string{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = []DeviceProfile{}
	}
	cfg.SsdpTracingFilter = strings.TrimSpace(cfg.SsdpTracingFilter)

	return nil
}

// ClampAliveInterval maps a configured alive interval to the accepted range.
// Non-positive values select the default.
func ClampAliveInterval(secs int) int {
	if secs <= 0 {
		return DefaultAliveMessageIntervalS
	}
	return min(max(secs, MinAliveMessageIntervalS), MaxAliveMessageIntervalS)
}

var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// SanitizeServerName removes all non-ASCII characters, as several renderers
// fail to parse a description document containing them.
func SanitizeServerName(name string) string {
	if name == "" {
		return name
	}
	res, _, err := transform.String(asciiOnly, name)
	if err != nil {
		return name
	}
	return res
}

var errPortRange = errors.New("invalid UDP port range")

// ParsePortRange parses a "low-high" port range.
func ParsePortRange(s string) (low, high int, err error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w %q", errPortRange, s)
	}
	low, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q", errPortRange, s)
	}
	high, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q", errPortRange, s)
	}
	if low < 1 || high > 65535 || low > high {
		return 0, 0, fmt.Errorf("%w %q", errPortRange, s)
	}
	return low, high, nil
}
