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


package io

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

var testConfig = DatagramConfig{
	ListenAddr:     "127.0.0.1:0",
	BatchSize:      4,
	ResendInterval: util.Duration{Duration: 100 * time.Millisecond},
	ResendTimeout:  util.Duration{Duration: time.Second},
}

type node struct {
	id      int
	recv    *Receiver
	pub     *Publisher
	members *member.ActualMemberSet
	got     chan packet.Packet
	in      *Inbound
	msgs    chan *message.Message
}

// newNode starts a node that hands received packets to got.
func newNode(t *testing.T, id int) *node {
	return startNode(t, id, false)
}

// newInboundNode starts a node that reassembles, confirms and hands the
// received messages to msgs.
func newInboundNode(t *testing.T, id int) *node {
	return startNode(t, id, true)
}

func startNode(t *testing.T, id int, inbound bool) *node {
	n := &node{
		id:      id,
		members: member.NewActualMemberSet(),
		got:     make(chan packet.Packet, 16),
		msgs:    make(chan *message.Message, 16),
	}
	router := &AckRouter{
		Members: n.members,
		Next:    PacketHandlerFunc(func(p packet.Packet) { n.got <- p }),
	}
	mgr := util.NewSyncBufferManager()
	recv, err := NewReceiver(testConfig, mgr, router)
	require.NoError(t, err)
	n.recv = recv
	n.pub = NewPublisher(testConfig, recv.Conn(), n.members)
	router.Publisher = n.pub
	if inbound {
		n.in = &Inbound{
			MemberId:  id,
			Members:   n.members,
			Publisher: n.pub,
			Buffers:   mgr,
			Next:      MessageHandlerFunc(func(msg *message.Message) { n.msgs <- msg }),
		}
		router.Next = n.in
	}
	recv.SetMemberId(id)
	recv.Start()
	t.Cleanup(recv.Stop)
	return n
}

// knows registers peer as a member of n.
func (n *node) knows(peer *node, fc *member.FlowControlConfig) *member.Member {
	m := member.NewMember(fc)
	m.SetId(peer.id)
	addr := peer.recv.LocalAddr()
	m.Configure(member.Identity{MemberName: "peer"}, addr.IP)
	m.SetPort(addr.Port)
	n.members.Add(m)
	return m
}

func (n *node) next(t *testing.T) packet.Packet {
	t.Helper()
	select {
	case p := <-n.got:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no packet received")
	}
	return nil
}

func (n *node) nextMessage(t *testing.T) *message.Message {
	t.Helper()
	select {
	case msg := <-n.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return nil
}

type testService struct{}

func (testService) ServiceId() int                    { return 1 }
func (testService) BufferManager() util.BufferManager { return nil }
func (testService) OnMessageReceipt(*message.Message) {}

// outgoing packetizes body from member 1 to the given members.
func outgoing(t *testing.T, body []byte, cbPacket int, to ...int) *message.Message {
	local := member.NewMember(nil)
	local.SetId(1)
	base := member.NewServiceMemberSet(1, "Cluster")
	base.Add(local)
	msg := message.NewMessage(testService{}, 3)
	msg.SetFromMember(local)
	msg.SetToMemberSet(memberset.NewMemberSetOf(to...))
	require.True(t, msg.Packetize(base, body, cbPacket, cbPacket))
	return msg
}

func directed(from, to int, msgId int64, body string) *packet.Directed {
	p := packet.NewDirected()
	p.SetFromId(from)
	p.SetToId(to)
	p.SetFromMessageId(msgId)
	p.SetToMessageId(msgId)
	p.SetMessagePartCount(1)
	p.SetServiceId(1)
	p.SetMessageType(3)
	p.SetBody([]byte(body))
	return p
}

func ackOf(from, to int, ids ...int64) *packet.Ack {
	ack := packet.NewAck(to, from)
	for _, id := range ids {
		ack.AddPacketId(member.PacketId{MessageId: id})
	}
	return ack
}

func TestDirectedIsConfirmedByAck(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, &member.FlowControlConfig{Enabled: true})
	b.knows(a, nil)

	require.NoError(t, a.pub.Post(directed(1, 2, 5, "hi")))
	require.NoError(t, a.pub.Flush())
	assert.Equal(t, 1, a.pub.OutstandingCount())
	assert.Equal(t, 1, toB.FlowControl().OutstandingPacketCount())

	got, ok := b.next(t).(*packet.Directed)
	require.True(t, ok)
	assert.Equal(t, 1, got.FromId())
	assert.Equal(t, int64(5), got.FromMessageId())
	assert.Equal(t, []byte("hi"), got.Body())
	assert.True(t, got.IsIncoming())

	require.NoError(t, b.pub.Post(ackOf(2, 1, 5)))
	require.NoError(t, b.pub.Flush())
	require.Eventually(t, func() bool { return a.pub.OutstandingCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, toB.FlowControl().OutstandingPacketCount())
	assert.Equal(t, int64(1), toB.StatsSent())
	assert.Equal(t, int64(1), b.recv.StatsPackets())
	assert.Zero(t, b.recv.StatsErrors())
}

func TestFlowControlDefersPackets(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, &member.FlowControlConfig{
		Enabled:                  true,
		PacketThreshold:          1,
		OutstandingPacketMinimum: 1,
		OutstandingPacketMaximum: 1,
	})
	fc := toB.FlowControl()

	p1, p2 := directed(1, 2, 1, "one"), directed(1, 2, 2, "two")
	require.NoError(t, a.pub.Post(p1))
	require.NoError(t, a.pub.Post(p2))
	assert.Equal(t, packet.DeliveryOutstanding, p1.DeliveryState())
	assert.Equal(t, packet.DeliveryDeferred, p2.DeliveryState())
	assert.Equal(t, 1, fc.OutstandingPacketCount())
	assert.Equal(t, 1, fc.DeferredPacketCount())
	assert.Equal(t, 1, fc.DeferredQueue().Size())
	assert.Equal(t, int64(1), a.pub.StatsDeferred())

	assert.Equal(t, 1, a.pub.OnAck(ackOf(2, 1, 1), toB))
	assert.Equal(t, packet.DeliveryConfirmed, p1.DeliveryState())
	assert.Equal(t, packet.DeliveryOutstanding, p2.DeliveryState())
	assert.Equal(t, 1, fc.OutstandingPacketCount())
	assert.Zero(t, fc.DeferredPacketCount())
	assert.Zero(t, fc.DeferredQueue().Size())

	assert.Zero(t, a.pub.OnAck(ackOf(2, 1, 1), toB), "repeated ack")
	require.NoError(t, a.pub.Flush())
	assert.Equal(t, "one", string(b.next(t).(*packet.Directed).Body()))
	assert.Equal(t, "two", string(b.next(t).(*packet.Directed).Body()))
}

func TestResendAndTimeout(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, nil)

	p := directed(1, 2, 9, "again")
	require.NoError(t, a.pub.Post(p))
	require.NoError(t, a.pub.Flush())
	b.next(t)

	assert.Zero(t, a.pub.CheckResends(p.SentMillis()), "not due yet")
	assert.Equal(t, 1, a.pub.CheckResends(p.ResendScheduled()))
	assert.Equal(t, 2, p.SentCount())
	assert.Equal(t, int64(1), toB.StatsResent())
	assert.Equal(t, "again", string(b.next(t).(*packet.Directed).Body()))

	deadline := p.ResendTimeout()
	assert.Zero(t, a.pub.CheckResends(deadline))
	assert.Zero(t, a.pub.OutstandingCount())
	assert.Equal(t, int64(1), a.pub.StatsTimeouts())
	assert.Equal(t, deadline, toB.LastTimeoutMillis())
	assert.Equal(t, packet.DeliveryLost, p.DeliveryState())
}

func TestMultipointNeedsEveryAck(t *testing.T) {
	a, b, c := newNode(t, 1), newNode(t, 2), newNode(t, 3)
	toB, toC := a.knows(b, nil), a.knows(c, nil)

	p := directed(1, 0, 11, "all")
	set := member.NewDependentMemberSet(nil)
	set.Add(2)
	set.Add(3)
	p.SetToMemberSet(set)
	require.NoError(t, a.pub.Post(p))
	require.NoError(t, a.pub.Flush())

	for _, n := range []*node{b, c} {
		got := n.next(t).(*packet.Directed)
		assert.Equal(t, "all", string(got.Body()))
		assert.Equal(t, packet.TypeDirectedFew, got.Type())
	}

	assert.Equal(t, 1, a.pub.OnAck(ackOf(2, 1, 11), toB))
	assert.Equal(t, 1, a.pub.OutstandingCount())
	assert.Equal(t, []int{3}, set.ToIdArray())
	assert.Equal(t, 1, a.pub.OnAck(ackOf(3, 1, 11), toC))
	assert.Zero(t, a.pub.OutstandingCount())
	assert.Equal(t, packet.DeliveryConfirmed, p.DeliveryState())
}

func TestMalformedDatagram(t *testing.T) {
	b := newNode(t, 2)
	conn, err := net.DialUDP("udp4", nil, b.recv.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{0x7f, 0xff, 0xff, 0xff, 1, 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.recv.StatsErrors() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), b.recv.StatsDatagrams())
	assert.Zero(t, b.recv.StatsPackets())
}

func TestPostErrors(t *testing.T) {
	a := newNode(t, 1)
	err := a.pub.Post(directed(1, 5, 1, "x"))
	assert.ErrorIs(t, err, errors.ErrUnknownPeer)
	assert.ErrorIs(t, a.pub.Post(ackOf(1, 5)), errors.ErrUnknownPeer)

	require.NoError(t, a.pub.Close())
	assert.ErrorIs(t, a.pub.Post(directed(1, 5, 2, "x")), errors.ErrClosing)
}

func TestStopIsIdempotent(t *testing.T) {
	a := newNode(t, 1)
	a.recv.Stop()
	a.recv.Stop()
}

func TestPostMessageAssignsMessageIds(t *testing.T) {
	a, b := newNode(t, 1), newInboundNode(t, 2)
	toB := a.knows(b, nil)
	b.knows(a, nil)

	large := make([]byte, 300)
	for i := range large {
		large[i] = byte(i)
	}
	first := outgoing(t, []byte("first"), 1468, 2)
	second := outgoing(t, large, 100, 2)
	require.Greater(t, second.MessagePartCount(), 1)
	require.NoError(t, a.pub.PostMessage(first))
	require.NoError(t, a.pub.PostMessage(second))
	require.NoError(t, a.pub.Flush())
	assert.Equal(t, int64(1), first.FromMessageId())
	assert.Equal(t, int64(2), second.FromMessageId())
	for i, p := range second.Packets() {
		assert.Equal(t, int64(2), packet.AsMessagePacket(p).FromMessageId(), "part %d", i)
	}

	got := b.nextMessage(t)
	assert.Equal(t, int64(1), got.FromMessageId())
	assert.Equal(t, int64(1), got.ToMessageId())
	assert.Equal(t, "first", string(got.ReadBuffer()))
	got = b.nextMessage(t)
	assert.Equal(t, int64(2), got.FromMessageId())
	assert.Equal(t, int64(2), got.ToMessageId())
	assert.Equal(t, large, got.ReadBuffer())

	require.Eventually(t, func() bool { return a.pub.OutstandingCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	last := member.PacketId{MessageId: 2, PartIndex: second.MessagePartCount() - 1}
	assert.Equal(t, last, toB.NewestToPacketId())
	assert.Equal(t, last, toB.ContiguousToPacketId())
}

func TestPostAssignsSinglePacketIds(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	a.knows(b, nil)

	p1, p2 := directed(1, 2, 0, "x"), directed(1, 2, 0, "y")
	require.NoError(t, a.pub.Post(p1))
	require.NoError(t, a.pub.Post(p2))
	assert.Equal(t, int64(1), p1.FromMessageId())
	assert.Equal(t, int64(2), p2.FromMessageId())
	assert.Equal(t, 2, a.pub.OutstandingCount())
	assert.Equal(t, int64(3), a.pub.NextMessageId())
}

func TestAckAboveTrintDomain(t *testing.T) {
	a, b := newNode(t, 1), newInboundNode(t, 2)
	toB := a.knows(b, nil)
	fromA := b.knows(a, nil)
	const id = int64(1)<<24 + 5
	fromA.SetContiguousFromPacketId(member.PacketId{MessageId: id - 1})

	p := directed(1, 2, id, "far")
	p.SetToMessageId(0)
	require.NoError(t, a.pub.Post(p))
	require.NoError(t, a.pub.Flush())
	assert.Equal(t, int64(1), p.ToMessageId())

	got := b.nextMessage(t)
	assert.Equal(t, id, got.FromMessageId())
	assert.Equal(t, "far", string(got.ReadBuffer()))

	require.Eventually(t, func() bool { return a.pub.OutstandingCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, member.PacketId{MessageId: id}, toB.ContiguousToPacketId())
	assert.Equal(t, packet.DeliveryConfirmed, p.DeliveryState())
}

func TestDeferredQueueUsesPacketOrder(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, &member.FlowControlConfig{
		Enabled:                  true,
		PacketThreshold:          1,
		OutstandingPacketMinimum: 1,
		OutstandingPacketMaximum: 1,
	})
	fc := toB.FlowControl()
	assert.False(t, fc.DeferredQueue().IsOrdered())

	p1, p3, p2 := directed(1, 2, 1, "one"), directed(1, 2, 3, "three"), directed(1, 2, 2, "two")
	require.NoError(t, a.pub.Post(p1))
	require.NoError(t, a.pub.Post(p3))
	require.NoError(t, a.pub.Post(p2))
	require.True(t, fc.DeferredQueue().IsOrdered())

	snap := fc.DeferredQueue().Snapshot()
	require.Len(t, snap, 2)
	assert.Same(t, &p2.MessagePacket, snap[0])
	assert.Same(t, &p3.MessagePacket, snap[1])

	assert.Equal(t, 1, a.pub.OnAck(ackOf(2, 1, 1), toB))
	assert.Equal(t, packet.DeliveryOutstanding, p2.DeliveryState())
	assert.Equal(t, packet.DeliveryDeferred, p3.DeliveryState())
}

func TestRequestResendsEarly(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, &member.FlowControlConfig{Enabled: true})
	b.knows(a, nil)
	fc := toB.FlowControl()

	p := directed(1, 2, 4, "again")
	require.NoError(t, a.pub.Post(p))
	require.NoError(t, a.pub.Flush())
	b.next(t)

	req := packet.NewRequest(1, 2)
	req.AddPacketId(member.PacketId{MessageId: 4})
	require.NoError(t, b.pub.Post(req))
	require.NoError(t, b.pub.Flush())
	require.Eventually(t, func() bool { return a.pub.StatsResent() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, a.pub.OutstandingCount())
	assert.Equal(t, 2, p.SentCount())
	assert.Equal(t, 1, p.PendingResendSkips())
	assert.Zero(t, fc.SequentialLostCount(), "a requested resend is no loss")
	assert.Equal(t, "again", string(b.next(t).(*packet.Directed).Body()))

	assert.Equal(t, 1, a.pub.CheckResends(p.ResendScheduled()))
	assert.Zero(t, p.PendingResendSkips())
	assert.Zero(t, fc.SequentialLostCount())
	assert.Equal(t, 1, a.pub.CheckResends(p.ResendScheduled()))
	assert.Equal(t, 1, fc.SequentialLostCount())
}

func TestRequestForDeferredPacket(t *testing.T) {
	a, b := newNode(t, 1), newNode(t, 2)
	toB := a.knows(b, &member.FlowControlConfig{
		Enabled:                  true,
		PacketThreshold:          1,
		OutstandingPacketMinimum: 1,
		OutstandingPacketMaximum: 1,
	})
	p1, p2 := directed(1, 2, 1, "one"), directed(1, 2, 2, "two")
	require.NoError(t, a.pub.Post(p1))
	require.NoError(t, a.pub.Post(p2))

	req := packet.NewRequest(1, 2)
	req.AddPacketId(member.PacketId{MessageId: 2})
	req.AddPacketId(member.PacketId{MessageId: 99})
	assert.Zero(t, a.pub.OnRequest(req, toB))
	assert.Equal(t, packet.DeliveryDeferred, p2.DeliveryState())
	assert.Zero(t, p2.PendingResendSkips())
	assert.Equal(t, 1, toB.FlowControl().DeferredQueue().Size())
	assert.Equal(t, 1, p1.SentCount())
}
