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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/bus/membus"
	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/util"
)

const (
	testServiceId = 7
	unknownType   = 99
)

type testService struct {
	set        *member.ServiceMemberSet
	mgr        *util.SyncBufferManager
	h          *MessageHandler
	guardian   *TimerGuardian
	received   chan *message.Message
	importance int
	stopped    atomic.Bool
	receipts   atomic.Int32

	mu   sync.Mutex
	errs []error
}

func newTestService(thisId int, ids ...int) *testService {
	set := member.NewServiceMemberSet(testServiceId, "TestService")
	for _, id := range append([]int{thisId}, ids...) {
		m := member.NewMember(nil)
		m.SetId(id)
		set.Add(m)
	}
	set.SetThisMember(set.Member(thisId))
	return &testService{
		set:      set,
		mgr:      util.NewSyncBufferManager(),
		guardian: NewTimerGuardian(),
		received: make(chan *message.Message, 16),
	}
}

func (s *testService) ServiceId() int                             { return testServiceId }
func (s *testService) ServiceName() string                        { return "TestService" }
func (s *testService) BufferManager() util.BufferManager          { return s.mgr }
func (s *testService) OnMessageReceipt(*message.Message)          { s.receipts.Inc() }
func (s *testService) ServiceMemberSet() *member.ServiceMemberSet { return s.set }
func (s *testService) OnMessage(m *message.Message)               { s.received <- m }
func (s *testService) CompareImportance(*member.Member) int       { return s.importance }
func (s *testService) Guard(g Guardable, d time.Duration)         { s.guardian.Guard(g, d) }
func (s *testService) Stop()                                      { s.stopped.Store(true) }
func (s *testService) Flush()                                     {}

func (s *testService) InstantiateMessage(t int) *message.Message {
	if t == unknownType {
		return nil
	}
	return message.NewMessage(s, t)
}

func (s *testService) DeserializeMessage(m *message.Message) bool {
	if err := s.h.DeserializeMessage(m, nil); err != nil {
		s.OnException(err)
		return false
	}
	return true
}

func (s *testService) OnException(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *testService) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *testService) next(t *testing.T) *message.Message {
	t.Helper()
	select {
	case m := <-s.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return nil
}

// stubBus records the calls made by the handler and leaves the events to
// the test.
type stubBus struct {
	local     bus.Name
	collector bus.Collector
	sendErr   error

	mu    sync.Mutex
	calls []string
}

func (b *stubBus) record(format string, a ...interface{}) {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, a...))
	b.mu.Unlock()
}

func (b *stubBus) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *stubBus) Open() error                       { return nil }
func (b *stubBus) LocalEndPoint() bus.EndPoint       { return b.local }
func (b *stubBus) SetEventCollector(c bus.Collector) { b.collector = c }
func (b *stubBus) Describe(bus.EndPoint) string      { return "stub" }
func (b *stubBus) Flush()                            { b.record("flush") }
func (b *stubBus) Disconnect(p bus.EndPoint)         { b.record("disconnect %s", p) }
func (b *stubBus) Release(p bus.EndPoint)            { b.record("release %s", p) }

func (b *stubBus) Close() error {
	b.record("close")
	b.collector.Add(bus.NewEvent(bus.EventClose, b.local, nil))
	return nil
}

func (b *stubBus) Connect(p bus.EndPoint) error {
	b.record("connect %s", p)
	return nil
}

func (b *stubBus) Send(p bus.EndPoint, bufs bus.BufferSequence, receipt interface{}) error {
	b.record("send %s", p)
	return b.sendErr
}

func (b *stubBus) Resolve(name string) (bus.EndPoint, error) {
	return bus.Name(name), nil
}

type testParent struct {
	mu      sync.Mutex
	posted  [][]int
	flushes int
	drained [][]int
}

func (p *testParent) Post(m *message.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, m.ToMemberSet().ToIdArray())
	return true
}

func (p *testParent) Flush() {
	p.mu.Lock()
	p.flushes++
	p.mu.Unlock()
}

func (p *testParent) DrainOverflow(ctx context.Context, set *memberset.MemberSet, timeout time.Duration) (time.Duration, error) {
	p.mu.Lock()
	p.drained = append(p.drained, set.ToIdArray())
	p.mu.Unlock()
	return timeout, nil
}

var quickConfig = Config{
	DeliveryTimeout: util.Duration{Duration: time.Second},
	GuardTimeout:    util.Duration{Duration: time.Minute},
}

func newStubHandler(t *testing.T, conf Config, ids ...int) (*MessageHandler, *testService, *stubBus, *testParent) {
	svc := newTestService(1, ids...)
	h := NewMessageHandler(conf)
	svc.h = h
	b := &stubBus{local: "a"}
	parent := &testParent{}
	require.NoError(t, h.Initialize(svc, b, parent))
	return h, svc, b, parent
}

// connectStub registers and connects the peer of member id.
func connectStub(t *testing.T, h *MessageHandler, svc *testService, id int, name string) *Connection {
	peer := bus.Name(name)
	require.True(t, h.Connect(svc.set.Member(id), peer))
	svc.set.SetServiceEndPoint(id, peer)
	h.OnBusEvent(bus.NewEvent(bus.EventConnect, peer, nil))
	conn := h.Connection(peer)
	require.NotNil(t, conn)
	require.Equal(t, StateConnected, conn.State())
	return conn
}

type node struct {
	svc    *testService
	h      *MessageHandler
	bus    *membus.Bus
	parent *testParent
	stop   chan struct{}
}

func newNode(t *testing.T, hub *membus.Hub, name string, thisId int, peers map[int]string) *node {
	ids := make([]int, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	n := &node{
		svc:    newTestService(thisId, ids...),
		h:      NewMessageHandler(quickConfig),
		bus:    hub.NewBus(name),
		parent: &testParent{},
		stop:   make(chan struct{}),
	}
	n.svc.h = n.h
	for id, peer := range peers {
		n.svc.set.SetServiceEndPointName(id, peer)
	}
	require.NoError(t, n.h.Initialize(n.svc, n.bus, n.parent))
	go func() {
		for {
			select {
			case <-n.h.EventsReady():
				n.h.ProcessEvents()
			case <-n.stop:
				return
			}
		}
	}()
	t.Cleanup(func() { close(n.stop) })
	return n
}

func connectedNodes(t *testing.T) (*membus.Hub, *node, *node) {
	hub := membus.NewHub()
	a := newNode(t, hub, "a", 1, map[int]string{2: "b"})
	b := newNode(t, hub, "b", 2, map[int]string{1: "a"})
	a.h.ConnectAll()
	b.h.ConnectAll()
	for _, n := range []*node{a, b} {
		n := n
		require.Eventually(t, func() bool {
			conns := n.h.Connections()
			return len(conns) == 1 && conns[0].State() == StateConnected
		}, 2*time.Second, 5*time.Millisecond)
	}
	return hub, a, b
}

func TestPostOverBus(t *testing.T) {
	_, a, b := connectedNodes(t)

	msg := message.NewMessage(a.svc, 5)
	msg.Payload = "hello"
	msg.AddToMember(a.svc.set.Member(2))
	msg.SetNotifyDelivery(true)
	require.True(t, a.h.Post(msg))

	got := b.svc.next(t)
	assert.Equal(t, 5, got.MessageType())
	assert.Equal(t, "hello", got.Payload)
	assert.Same(t, b.svc.set.Member(1), got.FromMember())
	assert.False(t, got.IsDeserializationRequired())

	require.Eventually(t, func() bool {
		return msg.IsDelivered() && a.svc.receipts.Load() == 1 && a.svc.mgr.Outstanding() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), a.h.StatsBusSends())
	assert.Equal(t, int64(0), a.h.StatsBusBytesOutBuffered())
	assert.Equal(t, int64(1), b.h.StatsBusReceives())
	assert.True(t, b.h.Connection(bus.Name("a")).IsEstablished())
	assert.Equal(t, int64(1), a.h.Connection(bus.Name("b")).ReceivedReceiptCount())
	assert.Empty(t, a.svc.errors())
	assert.Empty(t, b.svc.errors())
}

func TestPostMultiUsesParentForOthers(t *testing.T) {
	_, a, b := connectedNodes(t)
	m3 := member.NewMember(nil)
	m3.SetId(3)
	a.svc.set.Add(m3)

	msg := message.NewMessage(a.svc, 6)
	msg.Payload = "multi"
	msg.SetToMemberSet(memberset.NewMemberSetOf(2, 3))
	require.True(t, a.h.Post(msg))
	require.Equal(t, [][]int{{3}}, a.parent.posted)

	b.svc.next(t)
	// the parent releases member 3 once it got the message through
	msg.ReleaseOutgoing(false)
	require.Eventually(t, func() bool {
		return msg.IsDelivered() && a.svc.mgr.Outstanding() == 0
	}, 2*time.Second, 5*time.Millisecond)

	a.h.Flush()
	a.h.Flush()
	assert.Equal(t, 1, a.parent.flushes)
}

func TestConnectIncompatibleFallsBack(t *testing.T) {
	hub := membus.NewHub()
	a := newNode(t, hub, "a", 1, map[int]string{2: "b"})
	b := newNode(t, hub, "b", 2, map[int]string{1: "a"})
	hub.SetIncompatible(a.bus.LocalEndPoint(), b.bus.LocalEndPoint(), true)

	a.h.ConnectAll()
	assert.Nil(t, a.svc.set.ServiceEndPoint(2))
	assert.Equal(t, "b", a.svc.set.ServiceEndPointName(2))
	assert.Empty(t, a.h.Connections())

	msg := message.NewMessage(a.svc, 5)
	msg.AddToMember(a.svc.set.Member(2))
	assert.True(t, a.h.Post(msg))
	assert.Equal(t, [][]int{{2}}, a.parent.posted)
}

func TestOnConnect(t *testing.T) {
	h, svc, b, _ := newStubHandler(t, quickConfig, 2, 3)
	conn := connectStub(t, h, svc, 2, "b")

	// released before the CONNECT event was processed
	peer := bus.Name("c")
	require.True(t, h.Connect(svc.set.Member(3), peer))
	ran := 0
	require.NoError(t, h.Release(peer, func() { ran++ }))
	assert.Equal(t, 1, ran, "never established")
	h.OnBusEvent(bus.NewEvent(bus.EventConnect, peer, nil))
	assert.Equal(t, StateDisconnecting, h.Connection(peer).State())

	h.OnBusEvent(bus.NewEvent(bus.EventConnect, bus.Name("x"), nil))
	assert.Contains(t, b.recorded(), "release x")

	assert.Panics(t, func() {
		h.OnBusEvent(bus.NewEvent(bus.EventConnect, conn.Peer(), nil))
	})
	assert.Panics(t, func() { h.Connect(svc.set.Member(2), conn.Peer()) }, "out of order")
}

func TestReleaseWaitsForReleaseEvent(t *testing.T) {
	h, svc, b, _ := newStubHandler(t, quickConfig, 2)
	conn := connectStub(t, h, svc, 2, "b")
	require.True(t, conn.Establish())

	ran := 0
	require.NoError(t, h.Release(conn.Peer(), func() { ran++ }))
	assert.Equal(t, 0, ran)
	assert.True(t, conn.IsReleased())
	assert.False(t, conn.Establish())
	assert.Contains(t, b.recorded(), "release b")

	h.OnBusEvent(bus.NewEvent(bus.EventDisconnect, conn.Peer(), nil))
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 0, svc.guardian.Size(), "an expected disconnect is not guarded")

	h.OnBusEvent(bus.NewEvent(bus.EventRelease, conn.Peer(), nil))
	assert.Equal(t, StateReleased, conn.State())
	assert.Equal(t, 1, ran)
	assert.Nil(t, h.Connection(conn.Peer()))

	err := h.Release(conn.Peer(), func() { ran++ })
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, 1, ran)
}

func countOf(calls []string, call string) (n int) {
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return
}

func TestRepeatedRelease(t *testing.T) {
	h, svc, b, _ := newStubHandler(t, quickConfig, 2, 3)

	// never established: the first continuation runs at once, later
	// calls change nothing
	peer := bus.Name("c")
	require.True(t, h.Connect(svc.set.Member(3), peer))
	first, second := 0, 0
	require.NoError(t, h.Release(peer, func() { first++ }))
	require.NoError(t, h.Release(peer, func() { second++ }))
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
	assert.Equal(t, 1, countOf(b.recorded(), "release c"))

	// established: only the first continuation waits for RELEASE
	conn := connectStub(t, h, svc, 2, "b")
	require.True(t, conn.Establish())
	first, second = 0, 0
	require.NoError(t, h.Release(conn.Peer(), func() { first++ }))
	require.NoError(t, h.Release(conn.Peer(), func() { second++ }))
	assert.Zero(t, first)
	assert.Equal(t, 1, countOf(b.recorded(), "release b"))

	h.OnBusEvent(bus.NewEvent(bus.EventDisconnect, conn.Peer(), nil))
	h.OnBusEvent(bus.NewEvent(bus.EventRelease, conn.Peer(), nil))
	assert.Equal(t, StateReleased, conn.State())
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
}

func TestDeliveryTimeout(t *testing.T) {
	h, svc, b, _ := newStubHandler(t, quickConfig, 2)
	conn := connectStub(t, h, svc, 2, "b")

	conn.OnInterval(1000)
	assert.Zero(t, conn.SuspectTimeoutMillis(), "idle")

	conn.sentMessages.Add(3)
	conn.OnInterval(1000)
	assert.Equal(t, int64(2000), conn.SuspectTimeoutMillis())
	conn.OnInterval(1500)
	assert.NotContains(t, b.recorded(), "disconnect b")
	conn.OnInterval(2001)
	assert.Contains(t, b.recorded(), "disconnect b")

	// progress after more than half the timeout past the deadline
	conn.receivedReceipts.Inc()
	conn.OnInterval(2600)
	assert.Zero(t, conn.SuspectTimeoutMillis())
	assert.Equal(t, int64(2600), conn.LastHealthyMillis())
	assert.Equal(t, int64(2600), conn.LastHeuristicDeath())
	assert.Equal(t, int64(2600), svc.set.Member(2).LastHeuristicDeathMillis())

	svc.importance = 1
	assert.Equal(t, time.Second+50*time.Millisecond, conn.DeliveryTimeout())
}

func TestUnexpectedDisconnectIsGuarded(t *testing.T) {
	conf := Config{
		DeliveryTimeout: util.Duration{Duration: 20 * time.Millisecond},
		GuardTimeout:    util.Duration{Duration: time.Millisecond},
	}
	h, svc, _, _ := newStubHandler(t, conf, 2, 3)
	conn := connectStub(t, h, svc, 2, "b")
	assert.Equal(t, 30*time.Millisecond, conn.guardTimeout())

	cause := fmt.Errorf("connection reset")
	h.EventCollector().Add(bus.NewEvent(bus.EventDisconnect, conn.Peer(), cause))
	assert.Equal(t, 1, h.ProcessEvents())
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, cause, conn.DisconnectCause())
	assert.NotNil(t, conn.Context())
	assert.Equal(t, 1, h.hungMachineCount())
	require.Eventually(t, svc.stopped.Load, 2*time.Second, 5*time.Millisecond)

	// a guard released by the RELEASE event never terminates
	other := connectStub(t, h, svc, 3, "c")
	svc.guardian.Guard(other, time.Hour)
	assert.Equal(t, 1, svc.guardian.Size())
	require.NoError(t, h.Release(other.Peer(), nil))
	h.OnBusEvent(bus.NewEvent(bus.EventDisconnect, other.Peer(), nil))
	h.OnBusEvent(bus.NewEvent(bus.EventRelease, other.Peer(), nil))
	assert.Nil(t, other.Context())
	assert.Equal(t, 0, svc.guardian.Size())
}

func TestSendFailure(t *testing.T) {
	h, svc, b, _ := newStubHandler(t, quickConfig, 2)
	conn := connectStub(t, h, svc, 2, "b")
	b.sendErr = errors.ErrNoConnection

	msg := message.NewMessage(svc, 5)
	msg.AddToMember(svc.set.Member(2))
	assert.False(t, h.Post(msg))
	assert.True(t, msg.IsDelivered())
	assert.Equal(t, 1, msg.SuspectReleases())
	assert.Len(t, svc.errors(), 1)

	// failures during a release are expected
	require.NoError(t, h.Release(conn.Peer(), nil))
	msg = message.NewMessage(svc, 5)
	msg.AddToMember(svc.set.Member(2))
	assert.False(t, h.Post(msg))
	assert.Len(t, svc.errors(), 1)
	assert.Equal(t, int64(0), svc.mgr.Outstanding())
}

func frame(t *testing.T, svc message.Service, msgType int, payload interface{}) bus.BufferSequence {
	msg := message.NewMessage(svc, msgType)
	msg.Payload = payload
	data, err := message.Serialize(msg, message.MsgpackCodec{}, message.SnappyFilter{})
	require.NoError(t, err)
	return bus.NewBufferSequence(nil, data)
}

func TestMessageBeforeConnect(t *testing.T) {
	h, svc, _, _ := newStubHandler(t, quickConfig, 2)
	peer := bus.Name("b")

	h.EventCollector().Add(bus.NewEvent(bus.EventMessage, peer, frame(t, svc, 4, "early")))
	assert.Equal(t, int64(1), h.StatsBusReceives())
	require.True(t, h.Connect(svc.set.Member(2), peer))
	assert.Equal(t, 1, h.ProcessEvents())

	got := svc.next(t)
	assert.Equal(t, "early", got.Payload)
	assert.True(t, h.Connection(peer).IsEstablished())

	// a message of a service not running here is dropped
	other := newTestService(1)
	h.EventCollector().Add(bus.NewEvent(bus.EventMessage, peer, frame(t, otherService{other}, 4, "x")))
	h.EventCollector().Add(bus.NewEvent(bus.EventMessage, peer, frame(t, svc, unknownType, "x")))
	assert.Len(t, svc.errors(), 1)
	assert.Len(t, svc.received, 0)
}

type otherService struct {
	*testService
}

func (otherService) ServiceId() int { return testServiceId + 1 }

func TestDrainOverflow(t *testing.T) {
	h, svc, _, parent := newStubHandler(t, quickConfig, 2, 3)
	conn := connectStub(t, h, svc, 2, "b")
	ctx := context.Background()
	to := memberset.NewMemberSetOf(2)

	remain, err := h.DrainOverflow(ctx, to, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, remain)

	h.OnBusEvent(bus.NewEvent(bus.EventBacklogExcessive, nil, nil))
	assert.True(t, h.IsGlobalBacklog())
	_, err = h.DrainOverflow(ctx, to, 30*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrRequestTimeout)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.EventCollector().Add(bus.NewEvent(bus.EventBacklogNormal, nil, nil))
	}()
	remain, err = h.DrainOverflow(ctx, to, 0)
	require.NoError(t, err)
	assert.Zero(t, remain)
	assert.Equal(t, int64(1), h.StatsBacklogGlobal())
	assert.Greater(t, h.StatsDrainOverflowMillis(), int64(0))

	h.EventCollector().Add(bus.NewEvent(bus.EventBacklogExcessive, h.MessageBus().LocalEndPoint(), nil))
	assert.True(t, h.IsLocalBacklog())
	h.EventCollector().Add(bus.NewEvent(bus.EventBacklogNormal, h.MessageBus().LocalEndPoint(), nil))

	h.EventCollector().Add(bus.NewEvent(bus.EventBacklogExcessive, conn.Peer(), nil))
	assert.True(t, svc.set.IsServiceBacklogged(2))
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.DrainOverflow(cctx, to, 0)
	assert.ErrorIs(t, err, context.Canceled)
	h.EventCollector().Add(bus.NewEvent(bus.EventBacklogNormal, conn.Peer(), nil))
	assert.False(t, svc.set.IsServiceBacklogged(2))
	assert.Equal(t, int64(1), h.StatsBacklogDirect())

	// member 3 has no endpoint and is left to the parent
	_, err = h.DrainOverflow(ctx, memberset.NewMemberSetOf(2, 3), time.Second)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{2, 3}}, parent.drained)

	h.ResetStats()
	assert.Zero(t, h.StatsBacklogGlobal())
}

func TestClose(t *testing.T) {
	_, a, b := connectedNodes(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.h.Close(ctx))
	assert.True(t, a.h.IsClosing())
	require.Eventually(t, func() bool { return len(a.h.Connections()) == 0 }, 2*time.Second, 5*time.Millisecond)

	msg := message.NewMessage(a.svc, 5)
	msg.AddToMember(a.svc.set.Member(2))
	assert.False(t, a.h.Post(msg))

	// the peer sees an unexpected disconnect and guards the connection
	require.Eventually(t, func() bool {
		c := b.h.Connection(bus.Name("a"))
		return c != nil && c.State() == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.svc.guardian.Size())
	assert.Contains(t, a.h.String(), "closing")
}

func TestStubClose(t *testing.T) {
	h, _, b, _ := newStubHandler(t, quickConfig)
	h.EventCollector().Add(bus.NewEvent(bus.EventClose, b.local, nil))
	assert.Equal(t, 0, h.ProcessEvents(), "CLOSE before Close is reported, not queued")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))
	assert.Equal(t, []string{"close"}, b.recorded())
}
