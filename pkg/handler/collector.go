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


package handler

import (
	"fmt"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/message"
)

// EventCollector receives the events of the bus on the bus goroutine.
// Receipts, backlog changes and messages are handled right there, the
// rest is queued for the service goroutine.
type EventCollector struct {
	handler *MessageHandler
}

func (c *EventCollector) Add(e bus.Event) {
	h := c.handler
	switch e.Type() {
	case bus.EventClose:
		if !h.IsClosing() {
			// the bus closed on its own
			e.Dispose()
			h.service.OnException(fmt.Errorf("Unexpected CLOSE event"))
			return
		}
		h.postEvent(e)
	case bus.EventReceipt:
		msg, _ := e.Content().(*message.Message)
		h.processReceipt(e.EndPoint(), msg, h.disconnects.Load() > 0)
		e.Dispose()
	case bus.EventBacklogExcessive:
		h.onBacklog(e.EndPoint(), true)
		e.Dispose()
	case bus.EventBacklogNormal:
		h.onBacklog(e.EndPoint(), false)
		e.Dispose()
	case bus.EventDisconnect:
		h.disconnects.Inc()
		h.postEvent(e)
	case bus.EventRelease:
		h.disconnects.Dec()
		h.postEvent(e)
	case bus.EventMessage:
		if err := h.processMessage(e); err != nil {
			h.service.OnException(err)
		}
	default:
		h.postEvent(e)
	}
}

func (c *EventCollector) Flush() {
	c.handler.service.Flush()
}
