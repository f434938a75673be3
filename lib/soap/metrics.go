// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soap

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dlna",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Number of SOAP control requests, by service and result.",
		}, []string{"service", "result"})
	metricRequestSeconds = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "dlna",
			Subsystem:  "control",
			Name:       "request_seconds",
			Help:       "Time spent processing SOAP control requests.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"service"})
)

const (
	resultSuccess = "success"
	resultFault   = "fault"
)

func init() {
	prometheus.MustRegister(metricRequestsTotal, metricRequestSeconds)
}
