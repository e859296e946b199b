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

// Package bus defines the asynchronous message bus consumed by the
// message handler. Implementations deliver every event to a Collector
// on their own goroutine.
package bus

import (
	"strconv"
	"sync"
)

// EndPoint names one side of a bus connection.
type EndPoint interface {
	CanonicalName() string
}

// Name is a plain EndPoint.
type Name string

func (n Name) CanonicalName() string {
	return string(n)
}

func (n Name) String() string {
	return string(n)
}

// BufferSequence is a gathered message body. Dispose returns the buffers
// to their owner and is honored once.
type BufferSequence interface {
	Buffers() [][]byte
	Length() int64
	Dispose()
}

type bufferSequence struct {
	bufs    [][]byte
	once    sync.Once
	dispose func()
}

// NewBufferSequence wraps bufs; dispose may be nil.
func NewBufferSequence(dispose func(), bufs ...[]byte) BufferSequence {
	return &bufferSequence{bufs: bufs, dispose: dispose}
}

func (s *bufferSequence) Buffers() [][]byte {
	return s.bufs
}

func (s *bufferSequence) Length() (n int64) {
	for _, b := range s.bufs {
		n += int64(len(b))
	}
	return
}

func (s *bufferSequence) Dispose() {
	s.once.Do(func() {
		if s.dispose != nil {
			s.dispose()
		}
	})
}

// Bytes concatenates the buffers of s.
func Bytes(s BufferSequence) []byte {
	bufs := s.Buffers()
	if len(bufs) == 1 {
		return bufs[0]
	}
	out := make([]byte, 0, s.Length())
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

type EventType int

const (
	EventOpen EventType = iota
	EventClose
	EventConnect
	EventDisconnect
	EventRelease
	EventBacklogExcessive
	EventBacklogNormal
	EventReceipt
	EventSignal
	EventMessage
)

var eventNames = [...]string{
	"OPEN", "CLOSE", "CONNECT", "DISCONNECT", "RELEASE",
	"BACKLOG_EXCESSIVE", "BACKLOG_NORMAL", "RECEIPT", "SIGNAL", "MESSAGE",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "EventType(" + strconv.Itoa(int(t)) + ")"
}

// Event is delivered to the Collector. Its content depends on the type:
// a BufferSequence for MESSAGE, the send receipt for RECEIPT, an error
// (or nil) for DISCONNECT. Backlog events carry a nil endpoint for the
// whole bus, the local endpoint for local backlog, or the peer.
type Event interface {
	Type() EventType
	EndPoint() EndPoint
	Content() interface{}
	Dispose()
}

type event struct {
	typ     EventType
	point   EndPoint
	content interface{}
	once    sync.Once
}

func NewEvent(t EventType, point EndPoint, content interface{}) Event {
	return &event{typ: t, point: point, content: content}
}

func (e *event) Type() EventType      { return e.typ }
func (e *event) EndPoint() EndPoint   { return e.point }
func (e *event) Content() interface{} { return e.content }

// Dispose releases the message buffers of a MESSAGE event.
func (e *event) Dispose() {
	e.once.Do(func() {
		if bufs, ok := e.content.(BufferSequence); ok {
			bufs.Dispose()
		}
	})
}

func (e *event) String() string {
	name := "n/a"
	if e.point != nil {
		name = e.point.CanonicalName()
	}
	return "Event(" + e.typ.String() + ", " + name + ")"
}

// Collector receives bus events.
type Collector interface {
	Add(e Event)
	Flush()
}

// MessageBus is the transport consumed by the message handler.
type MessageBus interface {
	Open() error
	Close() error
	// Connect starts a handshake with peer; CONNECT follows on success.
	Connect(peer EndPoint) error
	// Disconnect drops the connection; DISCONNECT follows. RELEASE is
	// only raised once the peer is released.
	Disconnect(peer EndPoint)
	// Release disconnects peer if still connected and frees its
	// resources; RELEASE follows the last event of the peer.
	Release(peer EndPoint)
	// Send queues bufs for peer. A non nil receipt is returned through a
	// RECEIPT event once the bus is done with bufs.
	Send(peer EndPoint, bufs BufferSequence, receipt interface{}) error
	Flush()
	LocalEndPoint() EndPoint
	// Resolve returns the endpoint with the given canonical name.
	Resolve(name string) (EndPoint, error)
	SetEventCollector(c Collector)
	Describe(peer EndPoint) string
}
