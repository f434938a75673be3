// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package gena

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dlna",
		Subsystem: "gena",
		Name:      "subscriptions",
		Help:      "Number of event subscriptions currently held.",
	})
	metricNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dlna",
		Subsystem: "gena",
		Name:      "notifications_total",
		Help:      "Number of event notifications sent, by result.",
	}, []string{"result"})
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

func init() {
	prometheus.MustRegister(metricSubscriptions, metricNotificationsTotal)
}
