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

// Package message implements the application message carried by TCMP:
// fragmentation into packets, the reference counted lifecycle of its
// serialized buffers, and its wire frame.
package message

import (
	"strconv"
	"strings"
	"sync"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// Service is the owner of a message.
type Service interface {
	ServiceId() int
	BufferManager() util.BufferManager
	// OnMessageReceipt is the return receipt of a message sent with
	// notify delivery set.
	OnMessageReceipt(m *Message)
}

type Disposable interface {
	Dispose()
}

// orderBit marks a buffer usage counter released out of order; the
// release is finished by ReleaseOutgoingComplete.
const orderBit = 1 << 30

type Message struct {
	service     Service
	fromMember  *member.Member
	toMemberSet *memberset.MemberSet
	messageType int
	name        string

	packets         []packet.Packet
	nullPacketCount int

	fromMessageId           int64
	toMessageId             int64
	toPollId                int64
	fromPollId              int64
	deserializationRequired bool
	readBuffer              []byte

	// Payload is the value serialized into the message body.
	Payload interface{}

	mu               sync.Mutex
	bufferController Disposable
	bufferUsage      int
	notifyDelivery   bool
	suspectReleases  int
}

func NewMessage(service Service, messageType int) *Message {
	return &Message{service: service, messageType: messageType}
}

func (m *Message) Service() Service                 { return m.service }
func (m *Message) FromMember() *member.Member       { return m.fromMember }
func (m *Message) SetFromMember(mbr *member.Member) { m.fromMember = mbr }
func (m *Message) MessageType() int                 { return m.messageType }
func (m *Message) FromMessageId() int64             { return m.fromMessageId }
func (m *Message) SetFromMessageId(id int64)        { m.fromMessageId = id }
func (m *Message) ToMessageId() int64               { return m.toMessageId }
func (m *Message) SetToMessageId(id int64)          { m.toMessageId = id }
func (m *Message) ToPollId() int64                  { return m.toPollId }
func (m *Message) SetToPollId(id int64)             { m.toPollId = id }
func (m *Message) FromPollId() int64                { return m.fromPollId }
func (m *Message) SetFromPollId(id int64)           { m.fromPollId = id }

// Name describes the message kind in String.
func (m *Message) Name() string     { return m.name }
func (m *Message) SetName(n string) { m.name = n }

// IsInternal reports a notification raised locally rather than received.
func (m *Message) IsInternal() bool {
	return m.messageType < 0
}

func (m *Message) ToMemberSet() *memberset.MemberSet {
	return m.toMemberSet
}

func (m *Message) SetToMemberSet(s *memberset.MemberSet) {
	m.toMemberSet = s
}

func (m *Message) EnsureToMemberSet() *memberset.MemberSet {
	if m.toMemberSet == nil {
		m.toMemberSet = memberset.NewMemberSet()
	}
	return m.toMemberSet
}

func (m *Message) AddToMember(mbr *member.Member) {
	m.EnsureToMemberSet().AddMember(mbr)
}

// RespondTo addresses m to the sender of request as the response to its
// poll.
func (m *Message) RespondTo(request *Message) {
	m.toMemberSet = memberset.NewMemberSetOf(request.fromMember.Id())
	m.toPollId = request.fromPollId
}

func (m *Message) IsDeserializationRequired() bool     { return m.deserializationRequired }
func (m *Message) SetDeserializationRequired(req bool) { m.deserializationRequired = req }

func (m *Message) IsNotifyDelivery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifyDelivery
}

// SetNotifyDelivery asks for a return receipt once every recipient has the
// message.
func (m *Message) SetNotifyDelivery(notify bool) {
	m.mu.Lock()
	m.notifyDelivery = notify
	m.mu.Unlock()
}

// NotifyDelivery posts the return receipt if one is pending. Delivery to
// the local member only calls it directly.
func (m *Message) NotifyDelivery() {
	m.mu.Lock()
	notify := m.notifyDelivery
	m.notifyDelivery = false
	m.mu.Unlock()
	if notify && m.service != nil {
		m.service.OnMessageReceipt(m)
	}
}

// SetMessagePartCount sizes the packet array; it may be called once.
func (m *Message) SetMessagePartCount(n int) {
	errors.Assert(n >= 1 && m.packets == nil, "message part count %d", n)
	m.packets = make([]packet.Packet, n)
	m.nullPacketCount = n
}

func (m *Message) MessagePartCount() int {
	return len(m.packets)
}

func (m *Message) Packet(i int) packet.Packet {
	return m.packets[i]
}

func (m *Message) Packets() []packet.Packet {
	return m.packets
}

func (m *Message) SetPacket(i int, p packet.Packet) {
	prev := m.packets[i]
	switch {
	case p == nil && prev != nil:
		m.nullPacketCount++
	case p != nil && prev == nil:
		m.nullPacketCount--
	}
	m.packets[i] = p
}

// NullPacketCount is the number of parts not yet set.
func (m *Message) NullPacketCount() int {
	return m.nullPacketCount
}

func (m *Message) IsComplete() bool {
	return m.packets != nil && m.nullPacketCount == 0
}

func (m *Message) SetReadBuffer(b []byte) {
	errors.Assert(m.readBuffer == nil, "read buffer already set")
	m.readBuffer = b
}

// ReadBuffer returns the serialized message. For a message assembled from
// packets it is the concatenation of the packet bodies.
func (m *Message) ReadBuffer() []byte {
	if m.readBuffer != nil || !m.IsComplete() {
		return m.readBuffer
	}
	if len(m.packets) == 1 {
		m.readBuffer = packet.AsMessagePacket(m.packets[0]).Body()
		return m.readBuffer
	}
	n := 0
	for _, p := range m.packets {
		n += packet.AsMessagePacket(p).BodyLength()
	}
	b := make([]byte, 0, n)
	for _, p := range m.packets {
		b = append(b, packet.AsMessagePacket(p).Body()...)
	}
	m.readBuffer = b
	return b
}

// Packetize splits buf into a Directed packet followed by as many Sequel
// packets as needed, addressed to the members of the to member set known
// to base. It returns false when there is nobody to send to.
func (m *Message) Packetize(base *member.ServiceMemberSet, buf []byte, cbPreferred int, cbMax int) bool {
	to := m.toMemberSet
	if to == nil {
		return false
	}

	var (
		set  *member.DependentMemberSet
		toId int
	)
	switch to.Size() {
	case 0:
		return false
	case 1:
		if toId = to.FirstId(); toId == 0 {
			return false
		}
	default:
		set = member.NewDependentMemberSet(base)
		set.AddAll(to)
	}

	cbBuffer := len(buf)
	cbDirected := util.MinInt(cbBuffer, packet.CalcBodyLength(
		packet.CalcHeaderLength(packet.SelectType(false, to), to), cbPreferred, cbMax))
	parts, cbSequel := 1, 0
	if cbDirected < cbBuffer {
		cbSequel = packet.CalcBodyLength(
			packet.CalcHeaderLength(packet.SelectType(true, to), to), cbPreferred, cbMax)
		parts = 1 + (cbBuffer-cbDirected+cbSequel-1)/cbSequel
	}
	m.SetMessagePartCount(parts)

	if m.fromMember == nil {
		errors.Fatalf("message without sender: %s", m.Describe(false))
	}
	fromId := m.fromMember.Id()
	serviceId := m.service.ServiceId()
	stamp := func(p *packet.MessagePacket) {
		if set == nil {
			p.SetToId(toId)
		}
		p.SetFromId(fromId)
		p.SetFromMessageId(m.fromMessageId)
		p.SetServiceId(serviceId)
		p.SetMessageType(m.messageType)
		p.SetMessagePartCount(parts)
	}

	head := packet.NewDirected()
	if set != nil {
		head.SetToMemberSet(set)
	}
	stamp(&head.MessagePacket)
	head.SetBody(buf[:cbDirected:cbDirected])
	m.SetPacket(0, head)

	for i, off := 1, cbDirected; i < parts; i++ {
		p := packet.NewSequel()
		if set != nil {
			// acks shrink the head's set while sequels are in flight
			p.SetToMemberSet(set.Clone())
		}
		stamp(&p.MessagePacket)
		cb := util.MinInt(cbSequel, cbBuffer-off)
		p.SetBody(buf[off : off+cb : off+cb])
		off += cb
		p.SetMessagePartIndex(i)
		m.SetPacket(i, p)
	}
	return true
}

// SetBufferController hands the serialized buffers of an outgoing message
// to ctrl, to be disposed after usage releases.
func (m *Message) SetBufferController(ctrl Disposable, usage int) {
	m.mu.Lock()
	m.bufferController = ctrl
	m.bufferUsage = usage
	m.mu.Unlock()
}

func (m *Message) BufferController() Disposable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferController
}

func (m *Message) BufferUsageCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferUsage
}

// IsDelivered reports that every recipient released the outgoing
// buffers.
func (m *Message) IsDelivered() bool {
	return m.BufferController() == nil
}

// SuspectReleases counts releases made without knowing whether the
// message got through.
func (m *Message) SuspectReleases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspectReleases
}

// ReleaseOutgoing is called once per recipient, in delivery order.
func (m *Message) ReleaseOutgoing(suspect bool) {
	m.releaseOutgoing(suspect, true)
}

// ReleaseOutgoingUnordered is an out of order ReleaseOutgoing. It may be
// used at most once per message and must be followed by
// ReleaseOutgoingComplete.
func (m *Message) ReleaseOutgoingUnordered(suspect bool) {
	m.releaseOutgoing(suspect, false)
}

func (m *Message) releaseOutgoing(suspect bool, ordered bool) {
	m.mu.Lock()
	ctrl := m.bufferController
	if ctrl == nil {
		m.mu.Unlock()
		errors.Fatalf("release of a message without outgoing buffers: type=%d", m.messageType)
	}
	usage := m.bufferUsage - 1
	if !ordered {
		if usage&orderBit != 0 {
			m.mu.Unlock()
			errors.Fatalf("second unordered release: type=%d", m.messageType)
		}
		usage |= orderBit
	}
	if usage < 0 {
		m.mu.Unlock()
		errors.Fatalf("negative buffer usage %d: type=%d", usage, m.messageType)
	}
	if suspect {
		m.suspectReleases++
	}
	m.bufferUsage = usage
	done := usage&^orderBit == 0
	if done {
		m.bufferController = nil
	}
	m.mu.Unlock()

	if done {
		ctrl.Dispose()
		if usage == 0 {
			m.NotifyDelivery()
		}
	}
}

// ReleaseOutgoingComplete finishes an earlier unordered release.
func (m *Message) ReleaseOutgoingComplete() {
	m.mu.Lock()
	usage := m.bufferUsage
	if usage&orderBit == 0 {
		m.mu.Unlock()
		errors.Fatalf("no unordered release to complete: type=%d", m.messageType)
	}
	m.bufferUsage = usage &^ orderBit
	m.mu.Unlock()
	if usage == orderBit {
		m.NotifyDelivery()
	}
}

// ReleaseIncoming disposes the buffers of a received message once it has
// been deserialized.
func (m *Message) ReleaseIncoming() {
	m.mu.Lock()
	errors.Assert(m.bufferUsage == 1, "incoming buffer usage %d", m.bufferUsage)
	ctrl := m.bufferController
	m.bufferController = nil
	m.bufferUsage = 0
	m.mu.Unlock()
	if ctrl != nil {
		ctrl.Dispose()
	}
	if m.service != nil {
		m.ReleasePackets(m.service.BufferManager())
	}
}

// ReleasePackets returns the packet buffers of an incoming message to mgr.
func (m *Message) ReleasePackets(mgr util.BufferManager) {
	if m.packets == nil {
		return
	}
	for _, p := range m.packets {
		if mp := packet.AsMessagePacket(p); mp != nil {
			mp.Release(mgr)
		}
	}
	m.packets = nil
	m.nullPacketCount = 0
}

func (m *Message) String() string {
	return m.Describe(true)
}

// Describe formats the message; verbose includes every packet.
func (m *Message) Describe(verbose bool) string {
	parts := len(m.packets)
	pending := parts - m.nullPacketCount
	if m.deserializationRequired {
		pending = m.nullPacketCount
	}

	var sb strings.Builder
	sb.WriteString("Message \"")
	sb.WriteString(m.name)
	sb.WriteString("\"\n  {\n  FromMember=")
	if m.fromMember != nil {
		sb.WriteString(m.fromMember.String())
	} else {
		sb.WriteString("null")
	}
	sb.WriteString("\n  FromMessageId=")
	sb.WriteString(strconv.FormatInt(m.fromMessageId, 10))
	sb.WriteString("\n  MessagePartCount=")
	sb.WriteString(strconv.Itoa(parts))
	sb.WriteString("\n  PendingCount=")
	sb.WriteString(strconv.Itoa(pending))

	m.mu.Lock()
	usage, ctrl, notify := m.bufferUsage, m.bufferController, m.notifyDelivery
	m.mu.Unlock()
	if usage == 0 {
		sb.WriteString("\n  Delivered")
	} else if ctrl != nil {
		sb.WriteString("\n  BufferCounter=")
		sb.WriteString(strconv.Itoa(usage))
	}

	sb.WriteString("\n  MessageType=")
	sb.WriteString(strconv.Itoa(m.messageType))
	sb.WriteString("\n  ToPollId=")
	sb.WriteString(strconv.FormatInt(m.toPollId, 10))

	if verbose {
		sb.WriteString("\n  Packets\n    {")
		for i, p := range m.packets {
			if p != nil {
				sb.WriteString("\n    [")
				sb.WriteString(strconv.Itoa(i))
				sb.WriteString("]=")
				sb.WriteString(p.String())
			}
		}
		sb.WriteString("\n    }")
	}

	sb.WriteString("\n  Service=")
	if m.service != nil {
		sb.WriteString(strconv.Itoa(m.service.ServiceId()))
	} else {
		sb.WriteString("null")
	}
	sb.WriteString("\n  ToMemberSet=")
	if m.toMemberSet != nil {
		sb.WriteString(m.toMemberSet.String())
	} else {
		sb.WriteString("null")
	}
	sb.WriteString("\n  NotifyDelivery=")
	sb.WriteString(strconv.FormatBool(notify))
	sb.WriteString("\n  }")
	return sb.String()
}
