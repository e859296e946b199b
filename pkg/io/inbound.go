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
	"sync"

	"go.uber.org/atomic"

	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// MessageHandler takes the messages reassembled by an Inbound.
type MessageHandler interface {
	OnMessage(msg *message.Message)
}

type MessageHandlerFunc func(msg *message.Message)

func (f MessageHandlerFunc) OnMessage(msg *message.Message) { f(msg) }

// ServiceLookup resolves the local service a message is addressed to.
type ServiceLookup interface {
	Service(id int) message.Service
}

// Inbound reassembles the message packets received from known members
// and delivers each sender's messages in the order they were addressed to
// this member. Every message packet is confirmed with an Ack carrying the
// receive watermarks kept for its sender. A packet seen before is
// confirmed again and counted as repeated, but never delivered twice.
type Inbound struct {
	MemberId int
	Members  MemberLookup
	// Publisher sends the acks; nothing is confirmed without one.
	Publisher *Publisher
	Services  ServiceLookup
	Buffers   util.BufferManager
	Next      MessageHandler
	// AckSize is the number of packet ids an Ack collects before it is
	// sent. Below two every packet is confirmed at once.
	AckSize int

	mu      sync.Mutex
	windows map[*member.Member]*window
	acks    map[*member.Member]*packet.Ack

	statsMessages atomic.Int64
	statsRepeated atomic.Int64
	statsDropped  atomic.Int64
}

// window is the receive state kept for one sender.
type window struct {
	// newest sender message id delivered
	lastMessageId int64
	// next point-to-point message id to deliver
	firstToId int64
	incoming  map[int64]*message.Message
	parked    map[int64]*parked
}

// parked holds the parts of a multi-part message by sender message id:
// the message once its Directed packet arrived, the early sequels before.
type parked struct {
	msg     *message.Message
	sequels map[int]*packet.Sequel
}

func (in *Inbound) windowLocked(from *member.Member) *window {
	if in.windows == nil {
		in.windows = make(map[*member.Member]*window)
	}
	w := in.windows[from]
	if w == nil {
		w = &window{
			lastMessageId: from.ContiguousFromPacketId().MessageId,
			firstToId:     1,
			incoming:      make(map[int64]*message.Message),
			parked:        make(map[int64]*parked),
		}
		in.windows[from] = w
	}
	return w
}

func (in *Inbound) OnPacket(p packet.Packet) {
	mp := packet.AsMessagePacket(p)
	if mp == nil {
		glog.Debugf("Inbound ignoring %v", p)
		return
	}
	from := in.Members.Member(p.FromId())
	if b, ok := p.(*packet.Broadcast); ok {
		msg := in.newMessage(from, mp, 1)
		msg.SetPacket(0, b)
		in.deliver(msg)
		return
	}
	if from == nil {
		glog.Debugf("Dropping %v from unknown member", p)
		in.drop(mp)
		return
	}
	from.AddStatsReceived(1)
	from.SetLastIncomingMillis(util.SafeTimeMillis())

	in.mu.Lock()
	w := in.windowLocked(from)
	mp.SetFromMessageId(packet.TranslateTrint(int(mp.FromMessageId()), w.lastMessageId))
	id := member.PacketId{MessageId: mp.FromMessageId(), PartIndex: mp.MessagePartIndex()}
	from.UpdateNewestFromPacketId(id)

	var ready []*message.Message
	repeated := false
	switch p := p.(type) {
	case *packet.Directed:
		ready, repeated = in.onDirectedLocked(from, w, p)
	case *packet.Sequel:
		ready, repeated = in.onSequelLocked(from, w, p)
	}
	ack := in.confirmLocked(from, id)
	in.mu.Unlock()

	if repeated {
		from.AddStatsRepeated(1)
		in.statsRepeated.Inc()
		in.release(mp)
	}
	if ack != nil {
		if err := in.send(ack); err != nil {
			glog.Warningf("Unable to confirm %v: %v", p, err)
		}
	}
	in.deliver(ready...)
}

func (in *Inbound) onDirectedLocked(from *member.Member, w *window, p *packet.Directed) ([]*message.Message, bool) {
	toId := packet.TranslateTrint(int(p.ToMessageId()), w.firstToId)
	if toId < w.firstToId || w.incoming[toId] != nil {
		return nil, true
	}
	parts := p.MessagePartCount()
	if parts < 1 {
		glog.Warningf("Dropping %v with no message parts", p)
		in.drop(&p.MessagePacket)
		return nil, false
	}
	p.SetToMessageId(toId)
	msg := in.newMessage(from, &p.MessagePacket, parts)
	msg.SetToMessageId(toId)
	msg.SetPacket(0, p)
	w.incoming[toId] = msg

	if parts > 1 {
		fromId := p.FromMessageId()
		if pk := w.parked[fromId]; pk != nil {
			for i, s := range pk.sequels {
				if i < parts {
					msg.SetPacket(i, s)
				} else {
					in.drop(&s.MessagePacket)
				}
			}
		}
		w.parked[fromId] = &parked{msg: msg}
	}
	if toId == w.firstToId {
		return in.readyLocked(from, w), false
	}
	return nil, false
}

func (in *Inbound) onSequelLocked(from *member.Member, w *window, p *packet.Sequel) ([]*message.Message, bool) {
	fromId := p.FromMessageId()
	if fromId <= w.lastMessageId {
		return nil, true
	}
	i := p.MessagePartIndex()
	if i < 1 {
		glog.Warningf("Dropping sequel %v with part index %d", p, i)
		in.drop(&p.MessagePacket)
		return nil, false
	}
	pk := w.parked[fromId]
	if pk == nil {
		pk = &parked{}
		w.parked[fromId] = pk
	}
	if msg := pk.msg; msg != nil {
		if i >= msg.MessagePartCount() {
			glog.Warningf("Dropping sequel %v beyond %d parts", p, msg.MessagePartCount())
			in.drop(&p.MessagePacket)
			return nil, false
		}
		if msg.Packet(i) != nil {
			return nil, true
		}
		msg.SetPacket(i, p)
		if msg == w.incoming[w.firstToId] {
			return in.readyLocked(from, w), false
		}
		return nil, false
	}
	if pk.sequels == nil {
		pk.sequels = make(map[int]*packet.Sequel)
	} else if pk.sequels[i] != nil {
		return nil, true
	}
	pk.sequels[i] = p
	return nil, false
}

// readyLocked removes the complete messages at the head of the window and
// moves the contiguous watermark up to the last packet before the first
// gap.
func (in *Inbound) readyLocked(from *member.Member, w *window) (ready []*message.Message) {
	for {
		msg := w.incoming[w.firstToId]
		if msg == nil {
			return
		}
		if !msg.IsComplete() {
			for i := 1; i < msg.MessagePartCount(); i++ {
				if msg.Packet(i) == nil {
					from.SetContiguousFromPacketId(member.PacketId{MessageId: msg.FromMessageId(), PartIndex: i - 1})
					break
				}
			}
			return
		}
		delete(w.incoming, w.firstToId)
		delete(w.parked, msg.FromMessageId())
		w.firstToId++
		w.lastMessageId = msg.FromMessageId()
		from.SetContiguousFromPacketId(member.PacketId{
			MessageId: msg.FromMessageId(),
			PartIndex: msg.MessagePartCount() - 1,
		})
		ready = append(ready, msg)
	}
}

// confirmLocked adds id to the Ack pending for from and returns the Ack
// once it is due.
func (in *Inbound) confirmLocked(from *member.Member, id member.PacketId) *packet.Ack {
	if in.Publisher == nil {
		return nil
	}
	if in.acks == nil {
		in.acks = make(map[*member.Member]*packet.Ack)
	}
	ack := in.acks[from]
	if ack == nil {
		ack = packet.NewAck(from.Id(), in.MemberId)
		in.acks[from] = ack
	}
	ack.AddPacketId(id)
	if ack.PacketCount() < in.AckSize {
		return nil
	}
	delete(in.acks, from)
	in.stampAck(ack, from)
	return ack
}

func (in *Inbound) stampAck(ack *packet.Ack, from *member.Member) {
	ack.SetNewestTo(from.NewestToPacketId())
	ack.SetNewestFrom(from.NewestFromPacketId())
	ack.SetContiguousFrom(from.ContiguousFromPacketId())
	if in.AckSize > 0 {
		ack.SetPreferredAckSize(in.AckSize)
	}
}

func (in *Inbound) send(acks ...*packet.Ack) error {
	for _, ack := range acks {
		if err := in.Publisher.Post(ack); err != nil {
			return err
		}
	}
	return in.Publisher.Flush()
}

// FlushAcks sends every Ack still collecting packet ids.
func (in *Inbound) FlushAcks() error {
	in.mu.Lock()
	acks := make([]*packet.Ack, 0, len(in.acks))
	for from, ack := range in.acks {
		in.stampAck(ack, from)
		acks = append(acks, ack)
	}
	in.acks = nil
	in.mu.Unlock()
	if len(acks) == 0 {
		return nil
	}
	return in.send(acks...)
}

// Forget discards the receive state of a departed member along with the
// parts of its undelivered messages.
func (in *Inbound) Forget(from *member.Member) {
	in.mu.Lock()
	w := in.windows[from]
	delete(in.windows, from)
	delete(in.acks, from)
	in.mu.Unlock()
	if w == nil {
		return
	}
	for _, msg := range w.incoming {
		if in.Buffers != nil {
			msg.ReleasePackets(in.Buffers)
		}
	}
	for _, pk := range w.parked {
		for _, s := range pk.sequels {
			in.release(&s.MessagePacket)
		}
	}
}

func (in *Inbound) newMessage(from *member.Member, mp *packet.MessagePacket, parts int) *message.Message {
	var svc message.Service
	if in.Services != nil {
		svc = in.Services.Service(mp.ServiceId())
	}
	msg := message.NewMessage(svc, mp.MessageType())
	msg.SetFromMember(from)
	msg.SetFromMessageId(mp.FromMessageId())
	msg.SetMessagePartCount(parts)
	msg.SetDeserializationRequired(true)
	return msg
}

func (in *Inbound) deliver(msgs ...*message.Message) {
	in.statsMessages.Add(int64(len(msgs)))
	if in.Next == nil {
		return
	}
	for _, msg := range msgs {
		in.Next.OnMessage(msg)
	}
}

func (in *Inbound) drop(mp *packet.MessagePacket) {
	in.statsDropped.Inc()
	in.release(mp)
}

func (in *Inbound) release(mp *packet.MessagePacket) {
	if in.Buffers != nil {
		mp.Release(in.Buffers)
	}
}

func (in *Inbound) StatsMessages() int64 { return in.statsMessages.Load() }
func (in *Inbound) StatsRepeated() int64 { return in.statsRepeated.Load() }
func (in *Inbound) StatsDropped() int64  { return in.statsDropped.Load() }
