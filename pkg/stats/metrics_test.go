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


package stats

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExportsCounters(t *testing.T) {
	BusSends.Inc()
	BacklogEvents.WithLabelValues(ScopeDirect).Inc()
	Connections.WithLabelValues("CONNECTED").Set(2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "tcmp_bus_sends_total")
	assert.Contains(t, text, `tcmp_backlog_events_total{scope="direct"}`)
	assert.Contains(t, text, `tcmp_connections{state="CONNECTED"} 2`)
	assert.Contains(t, text, "go_goroutines")
}

func TestRegistryGathers(t *testing.T) {
	PacketsSkipped.Inc()
	families, err := Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "tcmp_packets_skipped_total" {
			found = true
			assert.GreaterOrEqual(t, f.GetMetric()[0].GetCounter().GetValue(), 1.0)
		}
	}
	assert.True(t, found)
}

func TestInitializeArguments(t *testing.T) {
	assert.Error(t, Initialize())
	assert.Error(t, Initialize(8080))
	require.NoError(t, Initialize("127.0.0.1:0"))
	Finalize()
}
