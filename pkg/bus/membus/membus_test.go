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


package membus

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/errors"
)

type recorder struct {
	ch chan bus.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan bus.Event, 64)}
}

func (r *recorder) Add(e bus.Event) { r.ch <- e }
func (r *recorder) Flush()          {}

func (r *recorder) next(t *testing.T) bus.Event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func (r *recorder) expect(t *testing.T, types ...bus.EventType) []bus.Event {
	t.Helper()
	var out []bus.Event
	for _, typ := range types {
		e := r.next(t)
		require.Equal(t, typ, e.Type(), "event %v", e)
		out = append(out, e)
	}
	return out
}

func openBus(t *testing.T, h *Hub, name string) (*Bus, *recorder) {
	b := h.NewBus(name)
	r := newRecorder()
	b.SetEventCollector(r)
	require.NoError(t, b.Open())
	r.expect(t, bus.EventOpen)
	return b, r
}

func connected(t *testing.T) (a *Bus, ra *recorder, b *Bus, rb *recorder) {
	h := NewHub()
	a, ra = openBus(t, h, "a")
	b, rb = openBus(t, h, "b")
	require.NoError(t, a.Connect(b.LocalEndPoint()))
	require.NoError(t, b.Connect(a.LocalEndPoint()))
	ra.expect(t, bus.EventConnect)
	rb.expect(t, bus.EventConnect)
	return
}

func TestGeneratedName(t *testing.T) {
	b := NewHub().NewBus("")
	assert.True(t, strings.HasPrefix(b.LocalEndPoint().CanonicalName(), scheme))
	assert.Error(t, b.Open(), "no collector")
}

func TestConnectNeedsBothSides(t *testing.T) {
	h := NewHub()
	a, _ := openBus(t, h, "a")
	b, _ := openBus(t, h, "b")
	require.NoError(t, a.Connect(b.LocalEndPoint()))
	err := a.Send(b.LocalEndPoint(), bus.NewBufferSequence(nil, []byte("x")), nil)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Contains(t, a.Describe(b.LocalEndPoint()), "connecting")
}

func TestSendAndReceipt(t *testing.T) {
	a, ra, b, rb := connected(t)
	disposed := false
	seq := bus.NewBufferSequence(func() { disposed = true }, []byte("hel"), []byte("lo"))
	require.NoError(t, a.Send(b.LocalEndPoint(), seq, "r1"))

	msg := rb.expect(t, bus.EventMessage)[0]
	assert.Equal(t, "a", msg.EndPoint().CanonicalName())
	assert.Equal(t, []byte("hello"), bus.Bytes(msg.Content().(bus.BufferSequence)))

	rec := ra.expect(t, bus.EventReceipt)[0]
	assert.Equal(t, "r1", rec.Content())
	assert.False(t, disposed, "the sender owns its buffers")
}

func TestReleaseRaisesDisconnectThenRelease(t *testing.T) {
	a, ra, b, rb := connected(t)
	a.Release(b.LocalEndPoint())
	ra.expect(t, bus.EventDisconnect, bus.EventRelease)

	e := rb.expect(t, bus.EventDisconnect)[0]
	assert.ErrorIs(t, e.Content().(error), errors.ErrNoConnection)
	err := b.Send(a.LocalEndPoint(), bus.NewBufferSequence(nil, []byte("x")), nil)
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	b.Release(a.LocalEndPoint())
	rb.expect(t, bus.EventRelease)

	// a second release of the same peer is a no-op
	a.Release(b.LocalEndPoint())
	a.SetBacklog(nil, true)
	ra.expect(t, bus.EventBacklogExcessive)
}

func TestDisconnectLeavesReleaseToCaller(t *testing.T) {
	a, ra, b, rb := connected(t)
	a.Disconnect(b.LocalEndPoint())
	e := ra.expect(t, bus.EventDisconnect)[0]
	assert.Nil(t, e.Content())
	rb.expect(t, bus.EventDisconnect)

	a.SetBacklog(a.LocalEndPoint(), false)
	e = ra.expect(t, bus.EventBacklogNormal)[0]
	assert.Equal(t, "a", e.EndPoint().CanonicalName())

	a.Release(b.LocalEndPoint())
	ra.expect(t, bus.EventRelease)
}

func TestConnectErrors(t *testing.T) {
	h := NewHub()
	a, _ := openBus(t, h, "a")
	b, _ := openBus(t, h, "b")
	h.SetIncompatible(a.LocalEndPoint(), b.LocalEndPoint(), true)
	assert.ErrorIs(t, a.Connect(b.LocalEndPoint()), errors.ErrIncompatible)
	assert.ErrorIs(t, a.Connect(bus.Name("c")), errors.ErrUnknownPeer)

	h.SetIncompatible(a.LocalEndPoint(), b.LocalEndPoint(), false)
	assert.NoError(t, a.Connect(b.LocalEndPoint()))

	p, err := a.Resolve("b")
	require.NoError(t, err)
	assert.Equal(t, "b", p.CanonicalName())
	_, err = a.Resolve("c")
	assert.ErrorIs(t, err, errors.ErrUnknownPeer)
}

func TestClose(t *testing.T) {
	a, ra, b, rb := connected(t)
	require.NoError(t, a.Close())
	ra.expect(t, bus.EventDisconnect, bus.EventRelease, bus.EventClose)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher still running")
	}
	rb.expect(t, bus.EventDisconnect)
	assert.ErrorIs(t, a.Connect(b.LocalEndPoint()), errors.ErrClosing)
	assert.NoError(t, a.Close())
}
