// Copyright (C) 2018 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricSearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlna",
			Subsystem: "ssdp",
			Name:      "search_requests_total",
			Help:      "Number of M-SEARCH requests, by outcome.",
		}, []string{"result"})
	metricMessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlna",
			Subsystem: "ssdp",
			Name:      "messages_sent_total",
			Help:      "Number of SSDP messages sent, by kind.",
		}, []string{"kind"})
	metricSendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlna",
			Subsystem: "ssdp",
			Name:      "send_errors_total",
			Help:      "Number of failed SSDP sends, by kind.",
		}, []string{"kind"})
	metricDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dlna",
			Subsystem: "ssdp",
			Name:      "devices",
			Help:      "Number of root devices currently advertised.",
		})
)

const (
	searchResultReceived  = "received"
	searchResultDuplicate = "duplicate"
	searchResultMalformed = "malformed"
	searchResultAnswered  = "answered"
	searchResultNoMatch   = "nomatch"

	kindAlive    = "alive"
	kindByeBye   = "byebye"
	kindResponse = "response"
)

func init() {
	prometheus.MustRegister(metricSearchRequestsTotal, metricMessagesSentTotal,
		metricSendErrorsTotal, metricDevices)
}
