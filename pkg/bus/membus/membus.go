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


// Package membus is an in-process MessageBus. All buses created from one
// Hub can reach each other; events are delivered to each bus collector
// on a goroutine owned by that bus.
package membus

import (
	"context"
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
)

const scheme = "mem://"

type peerState int

const (
	stateNone peerState = iota
	stateConnecting
	stateConnected
	stateDisconnected
)

var stateNames = [...]string{"none", "connecting", "connected", "disconnected"}

func (s peerState) String() string {
	return stateNames[s]
}

type pair struct {
	a, b string
}

func newPair(a, b string) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// Hub is the shared medium of a group of buses.
type Hub struct {
	mu           sync.Mutex
	buses        map[string]*Bus
	states       map[string]map[string]peerState
	incompatible map[pair]bool
}

func NewHub() *Hub {
	return &Hub{
		buses:        make(map[string]*Bus),
		states:       make(map[string]map[string]peerState),
		incompatible: make(map[pair]bool),
	}
}

// NewBus creates a bus named name, or a unique name when name is empty.
func (h *Hub) NewBus(name string) *Bus {
	if name == "" {
		name = scheme + uuid.NewV4().String()
	}
	b := &Bus{
		hub:    h,
		local:  bus.Name(name),
		events: bus.NewEventQueue(),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.buses[name] = b
	h.states[name] = make(map[string]peerState)
	h.mu.Unlock()
	return b
}

// SetIncompatible makes Connect between a and b fail with
// errors.ErrIncompatible.
func (h *Hub) SetIncompatible(a, b bus.EndPoint, incompatible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := newPair(a.CanonicalName(), b.CanonicalName())
	if incompatible {
		h.incompatible[k] = true
	} else {
		delete(h.incompatible, k)
	}
}

func (h *Hub) state(from, to string) peerState {
	return h.states[from][to]
}

func (h *Hub) setState(from, to string, s peerState) {
	if m := h.states[from]; m != nil {
		if s == stateNone {
			delete(m, to)
		} else {
			m[to] = s
		}
	}
}

// disconnectLocked moves both sides of the link to disconnected, raising
// DISCONNECT on each side that was still live.
func (h *Hub) disconnectLocked(from, to string, reason error) {
	if s := h.state(from, to); s == stateConnecting || s == stateConnected {
		h.setState(from, to, stateDisconnected)
		if b := h.buses[from]; b != nil {
			b.emit(bus.EventDisconnect, bus.Name(to), reason)
		}
	}
	if s := h.state(to, from); s == stateConnecting || s == stateConnected {
		h.setState(to, from, stateDisconnected)
		if b := h.buses[to]; b != nil {
			b.emit(bus.EventDisconnect, bus.Name(from), errors.ErrNoConnection.Wrap("closed by %s", from))
		}
	}
}

// Bus is one endpoint of a Hub.
type Bus struct {
	hub       *Hub
	local     bus.Name
	collector bus.Collector
	events    *bus.EventQueue
	open      bool
	closed    bool
	done      chan struct{}
}

func (b *Bus) LocalEndPoint() bus.EndPoint {
	return b.local
}

func (b *Bus) SetEventCollector(c bus.Collector) {
	b.hub.mu.Lock()
	b.collector = c
	b.hub.mu.Unlock()
}

func (b *Bus) Open() error {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.closed {
		return errors.ErrClosing
	}
	if b.open {
		return nil
	}
	if b.collector == nil {
		return fmt.Errorf("membus %s: no event collector", b.local)
	}
	b.open = true
	go b.run(b.collector)
	b.emit(bus.EventOpen, b.local, nil)
	return nil
}

func (b *Bus) run(c bus.Collector) {
	defer close(b.done)
	for {
		e, err := b.events.Take(context.Background())
		if err != nil {
			return
		}
		typ := e.Type()
		c.Add(e)
		if b.events.Size() == 0 {
			c.Flush()
		}
		if typ == bus.EventClose {
			return
		}
	}
}

func (b *Bus) emit(t bus.EventType, point bus.EndPoint, content interface{}) {
	if glog.LOG_VERBOSE {
		glog.Verbosef("membus %s: %s %v", b.local, t, point)
	}
	b.events.Add(bus.NewEvent(t, point, content))
}

// Close releases every peer and raises CLOSE as the last event.
func (b *Bus) Close() error {
	h := b.hub
	h.mu.Lock()
	if b.closed {
		h.mu.Unlock()
		return nil
	}
	local := string(b.local)
	for peer := range h.states[local] {
		h.disconnectLocked(local, peer, nil)
		h.setState(local, peer, stateNone)
		b.emit(bus.EventRelease, bus.Name(peer), nil)
	}
	b.closed = true
	delete(h.buses, local)
	delete(h.states, local)
	if b.open {
		b.emit(bus.EventClose, b.local, nil)
	} else {
		close(b.done)
	}
	h.mu.Unlock()
	return nil
}

// Done is closed once the CLOSE event has been delivered.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Connect completes once both sides have asked to connect to each other;
// CONNECT is then raised on both.
func (b *Bus) Connect(peer bus.EndPoint) error {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.closed || !b.open {
		return errors.ErrClosing
	}
	local, remote := string(b.local), peer.CanonicalName()
	if h.incompatible[newPair(local, remote)] {
		return errors.ErrIncompatible.Wrap("%s cannot reach %s", local, remote)
	}
	r := h.buses[remote]
	if r == nil || !r.open {
		return errors.ErrUnknownPeer.Wrap("%s", remote)
	}
	if h.state(local, remote) != stateNone {
		return nil
	}
	h.setState(local, remote, stateConnecting)
	if h.state(remote, local) == stateConnecting {
		h.setState(local, remote, stateConnected)
		h.setState(remote, local, stateConnected)
		b.emit(bus.EventConnect, bus.Name(remote), nil)
		r.emit(bus.EventConnect, b.local, nil)
	}
	return nil
}

func (b *Bus) Disconnect(peer bus.EndPoint) {
	h := b.hub
	h.mu.Lock()
	h.disconnectLocked(string(b.local), peer.CanonicalName(), nil)
	h.mu.Unlock()
}

func (b *Bus) Release(peer bus.EndPoint) {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	local, remote := string(b.local), peer.CanonicalName()
	if h.state(local, remote) == stateNone {
		return
	}
	h.disconnectLocked(local, remote, nil)
	h.setState(local, remote, stateNone)
	b.emit(bus.EventRelease, bus.Name(remote), nil)
}

// Send hands a copy of bufs to the peer and raises RECEIPT locally.
func (b *Bus) Send(peer bus.EndPoint, bufs bus.BufferSequence, receipt interface{}) error {
	h := b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.closed {
		return errors.ErrClosing
	}
	local, remote := string(b.local), peer.CanonicalName()
	switch h.state(local, remote) {
	case stateConnected:
	case stateNone:
		return errors.ErrUnknownPeer.Wrap("%s", remote)
	default:
		return errors.ErrNoConnection.Wrap("%s", remote)
	}
	if r := h.buses[remote]; r != nil && h.state(remote, local) == stateConnected {
		data := make([]byte, 0, bufs.Length())
		for _, buf := range bufs.Buffers() {
			data = append(data, buf...)
		}
		r.emit(bus.EventMessage, b.local, bus.NewBufferSequence(nil, data))
	}
	if receipt != nil {
		b.emit(bus.EventReceipt, peer, receipt)
	}
	return nil
}

func (b *Bus) Flush() {}

// SetBacklog raises a backlog event for the whole bus (nil peer), the
// local endpoint, or one peer.
func (b *Bus) SetBacklog(peer bus.EndPoint, excessive bool) {
	t := bus.EventBacklogNormal
	if excessive {
		t = bus.EventBacklogExcessive
	}
	b.emit(t, peer, nil)
}

func (b *Bus) Resolve(name string) (bus.EndPoint, error) {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	if _, ok := b.hub.buses[name]; !ok {
		return nil, errors.ErrUnknownPeer.Wrap("%s", name)
	}
	return bus.Name(name), nil
}

func (b *Bus) Describe(peer bus.EndPoint) string {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	return fmt.Sprintf("MemBus{%s -> %s, %s}", b.local, peer.CanonicalName(),
		b.hub.state(string(b.local), peer.CanonicalName()))
}

func (b *Bus) String() string {
	return "MemBus{" + string(b.local) + "}"
}
