//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//


// Package stats exports the protocol counters through prometheus.
package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oracle/coherence-sub033/pkg/version"
)

const namespace = "tcmp"

var (
	Registry = prometheus.NewRegistry()

	BusSends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_sends_total",
		Help:      "Messages handed to the message bus.",
	})
	BusReceives = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_receives_total",
		Help:      "Messages received from the message bus.",
	})
	BusBytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_bytes_in_total",
	})
	BusBytesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_bytes_out_total",
	})
	BusBytesOutBuffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bus_bytes_out_buffered",
		Help:      "Bytes sent but not yet receipted by the bus.",
	})
	BacklogEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backlog_events_total",
	}, []string{"scope"})
	DrainOverflowSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "drain_overflow_seconds",
		Help:      "Time senders spent blocked on bus backlog.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	Connections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
	}, []string{"state"})
	DeliveryTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_timeouts_total",
	})
	PacketsExtracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_extracted_total",
	}, []string{"type"})
	PacketsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_skipped_total",
		Help:      "Packets in received datagrams addressed to other members.",
	})
	FlowControlPauses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flowcontrol_pauses_total",
	})
)

// Backlog scopes.
const (
	ScopeGlobal = "global"
	ScopeLocal  = "local"
	ScopeDirect = "direct"
)

func init() {
	Registry.MustRegister(
		BusSends, BusReceives, BusBytesIn, BusBytesOut, BusBytesOutBuffered,
		BacklogEvents, DrainOverflowSeconds, Connections, DeliveryTimeouts,
		PacketsExtracted, PacketsSkipped, FlowControlPauses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

var server *http.Server

// Initialize starts serving /metrics on the given listen address so it
// can be registered with initmgr.
func Initialize(args ...interface{}) (err error) {
	if len(args) < 1 {
		return fmt.Errorf("listen address expected")
	}
	addr, ok := args[0].(string)
	if !ok {
		return fmt.Errorf("wrong argument type for listen address")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/version", version.HttpHandler)
	server = &http.Server{Addr: addr, Handler: mux}
	go server.ListenAndServe()
	return nil
}

func Finalize() {
	if server != nil {
		server.Close()
		server = nil
	}
}
