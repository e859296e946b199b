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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/packet"
)

type inboundFixture struct {
	in   *Inbound
	from *member.Member
	got  []*message.Message
}

// newInbound receives as member 2 from member 1. Acks collect up to
// ackSize ids; none are sent when ackSize is zero.
func newInbound(t *testing.T, ackSize int) *inboundFixture {
	members := member.NewActualMemberSet()
	from := member.NewMember(nil)
	from.SetId(1)
	from.Configure(member.Identity{MemberName: "sender"}, net.IPv4(127, 0, 0, 1))
	members.Add(from)
	f := &inboundFixture{from: from}
	f.in = &Inbound{
		MemberId: 2,
		Members:  members,
		AckSize:  ackSize,
		Next:     MessageHandlerFunc(func(msg *message.Message) { f.got = append(f.got, msg) }),
	}
	if ackSize > 0 {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		from.SetPort(conn.LocalAddr().(*net.UDPAddr).Port)
		f.in.Publisher = NewPublisher(testConfig, conn, members)
	}
	return f
}

func head(fromMsgId, toMsgId int64, parts int, body string) *packet.Directed {
	p := directed(1, 2, fromMsgId, body)
	p.SetToMessageId(toMsgId)
	p.SetMessagePartCount(parts)
	return p
}

func sequel(fromMsgId int64, index, parts int, body string) *packet.Sequel {
	p := packet.NewSequel()
	p.SetFromId(1)
	p.SetToId(2)
	p.SetFromMessageId(fromMsgId)
	p.SetMessagePartIndex(index)
	p.SetMessagePartCount(parts)
	p.SetBody([]byte(body))
	return p
}

func TestInboundDropsRepeatedPackets(t *testing.T) {
	f := newInbound(t, 10)
	f.in.OnPacket(head(1, 1, 1, "once"))
	f.in.OnPacket(head(1, 1, 1, "once"))

	require.Len(t, f.got, 1)
	assert.Equal(t, "once", string(f.got[0].ReadBuffer()))
	assert.Same(t, f.from, f.got[0].FromMember())
	assert.Equal(t, int64(1), f.from.StatsRepeated())
	assert.Equal(t, int64(2), f.from.StatsReceived())
	assert.Equal(t, int64(1), f.in.StatsRepeated())
	assert.Equal(t, int64(1), f.in.StatsMessages())
	assert.Equal(t, member.PacketId{MessageId: 1}, f.from.ContiguousFromPacketId())

	ack := f.in.acks[f.from]
	require.NotNil(t, ack)
	assert.Equal(t, []member.PacketId{{MessageId: 1}, {MessageId: 1}}, ack.PacketIds(), "a repeat is confirmed again")
}

func TestInboundReassemblesInOrder(t *testing.T) {
	f := newInbound(t, 0)

	// message 3 of the sender is the first addressed here and has two
	// parts, message 4 the second
	f.in.OnPacket(head(4, 2, 1, "B"))
	f.in.OnPacket(sequel(3, 1, 2, "2"))
	assert.Empty(t, f.got)
	assert.Equal(t, member.PacketId{MessageId: 4}, f.from.NewestFromPacketId())

	f.in.OnPacket(sequel(3, 1, 2, "2"))
	assert.Equal(t, int64(1), f.from.StatsRepeated(), "early sequel seen twice")

	f.in.OnPacket(head(3, 1, 2, "A1"))
	require.Len(t, f.got, 2)
	assert.Equal(t, "A12", string(f.got[0].ReadBuffer()))
	assert.Equal(t, int64(3), f.got[0].FromMessageId())
	assert.Equal(t, int64(1), f.got[0].ToMessageId())
	assert.Equal(t, "B", string(f.got[1].ReadBuffer()))
	assert.Equal(t, member.PacketId{MessageId: 4}, f.from.ContiguousFromPacketId())

	f.in.OnPacket(sequel(3, 1, 2, "2"))
	f.in.OnPacket(head(4, 2, 1, "B"))
	assert.Len(t, f.got, 2)
	assert.Equal(t, int64(3), f.in.StatsRepeated())
}

func TestInboundContiguousStopsAtGap(t *testing.T) {
	f := newInbound(t, 0)
	f.in.OnPacket(head(7, 1, 3, "a"))
	f.in.OnPacket(sequel(7, 2, 3, "c"))
	assert.Empty(t, f.got)
	assert.Equal(t, member.PacketId{MessageId: 7}, f.from.ContiguousFromPacketId())

	f.in.OnPacket(sequel(7, 1, 3, "b"))
	require.Len(t, f.got, 1)
	assert.Equal(t, "abc", string(f.got[0].ReadBuffer()))
	assert.Equal(t, member.PacketId{MessageId: 7, PartIndex: 2}, f.from.ContiguousFromPacketId())
}

func TestInboundTranslatesTrints(t *testing.T) {
	f := newInbound(t, 0)
	const id = int64(1)<<24 + 2
	f.from.SetContiguousFromPacketId(member.PacketId{MessageId: id - 1})

	f.in.OnPacket(head(packet.TrintMaxValue&id, 1, 1, "wrapped"))
	require.Len(t, f.got, 1)
	assert.Equal(t, id, f.got[0].FromMessageId())
	assert.Equal(t, member.PacketId{MessageId: id}, f.from.ContiguousFromPacketId())
}

func TestInboundIgnoresUnknownSender(t *testing.T) {
	f := newInbound(t, 0)
	p := head(1, 1, 1, "who")
	p.SetFromId(9)
	f.in.OnPacket(p)
	f.in.OnPacket(sequel(1, 0, 2, "bad index"))
	assert.Empty(t, f.got)
	assert.Equal(t, int64(2), f.in.StatsDropped())
}

func TestInboundFlushAcks(t *testing.T) {
	f := newInbound(t, 10)
	f.in.OnPacket(head(1, 1, 1, "x"))
	require.NoError(t, f.in.FlushAcks())
	assert.Empty(t, f.in.acks)
	assert.Equal(t, int64(1), f.in.Publisher.StatsDatagrams())
	assert.Equal(t, int64(1), f.from.StatsSent())
}
