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
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// MemberLookup resolves a member id; *member.ActualMemberSet and
// *member.ServiceMemberSet both serve.
type MemberLookup interface {
	Member(id int) *member.Member
}

// Publisher writes packets to members as datagrams. Message packets stay
// outstanding until every recipient acknowledged them. A point packet
// for a member whose flow control is not sendable is deferred and sent
// once acknowledgements free up room.
//
// Every message sent gets the next id of this sender's message sequence;
// the id travels as a trint and acknowledged ids are translated back
// against the newest id sent to the acknowledging member.
type Publisher struct {
	conf    DatagramConfig
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	members MemberLookup

	mu          sync.Mutex
	batch       []ipv4.Message
	outstanding map[member.PacketId]packet.Packet
	messageId   int64
	closed      bool

	statsDatagrams atomic.Int64
	statsResent    atomic.Int64
	statsDeferred  atomic.Int64
	statsTimeouts  atomic.Int64
	statsErrors    atomic.Int64
}

// NewPublisher writes through conn, usually the socket of the local
// Receiver so that peers see the advertised port as the source.
func NewPublisher(conf DatagramConfig, conn *net.UDPConn, members MemberLookup) *Publisher {
	conf.SetDefaultIfNotDefined()
	return &Publisher{
		conf:        conf,
		conn:        conn,
		pc:          ipv4.NewPacketConn(conn),
		members:     members,
		batch:       make([]ipv4.Message, 0, conf.BatchSize),
		outstanding: make(map[member.PacketId]packet.Packet),
	}
}

func packetId(mp *packet.MessagePacket) member.PacketId {
	return member.PacketId{MessageId: mp.FromMessageId(), PartIndex: mp.MessagePartIndex()}
}

// translateId rebuilds the message id of a packet id read off the wire
// relative to current.
func translateId(id member.PacketId, current int64) member.PacketId {
	if id.MessageId != 0 {
		id.MessageId = packet.TranslateTrint(int(id.MessageId), current)
	}
	return id
}

// NextMessageId reserves the next id of this sender's message sequence.
func (pub *Publisher) NextMessageId() int64 {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	pub.messageId++
	return pub.messageId
}

// Post queues p for sending. The datagrams go out when the batch is full
// or on Flush. A single part message packet without a message id is
// assigned the next one; parts of a larger message go through
// PostMessage.
func (pub *Publisher) Post(p packet.Packet) error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.closed {
		return errors.ErrClosing
	}
	if mp := packet.AsMessagePacket(p); mp != nil && mp.IsConfirmationRequired() {
		id := mp.FromMessageId()
		if id == 0 {
			errors.Assert(mp.MessagePartCount() <= 1, "part %d of %d posted without a message id",
				mp.MessagePartIndex(), mp.MessagePartCount())
			pub.messageId++
			id = pub.messageId
		}
		pub.stampLocked(p, id)
	}
	return pub.postLocked(p, util.SafeTimeMillis())
}

// PostMessage assigns msg the next message id unless it has one, stamps
// the id on every part and queues the parts in order.
func (pub *Publisher) PostMessage(msg *message.Message) error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.closed {
		return errors.ErrClosing
	}
	id := msg.FromMessageId()
	if id == 0 {
		pub.messageId++
		id = pub.messageId
		msg.SetFromMessageId(id)
	}
	now := util.SafeTimeMillis()
	for _, p := range msg.Packets() {
		pub.stampLocked(p, id)
		if err := pub.postLocked(p, now); err != nil {
			return err
		}
	}
	return nil
}

// stampLocked sets the sender message id of p and, on the head of a
// message, the per recipient message ids not set yet.
func (pub *Publisher) stampLocked(p packet.Packet, id int64) {
	mp := packet.AsMessagePacket(p)
	mp.SetFromMessageId(id)
	if id > pub.messageId {
		pub.messageId = id
	}
	d, ok := p.(*packet.Directed)
	if !ok {
		return
	}
	if set := mp.ToMemberSet(); set != nil {
		for _, to := range set.ToIdArray() {
			if d.ToMessageIdFor(to) != 0 {
				continue
			}
			if m := pub.members.Member(to); m != nil {
				d.SetToMessageIdFor(to, m.NextDestinationMessageId())
			}
		}
		return
	}
	if d.ToMessageId() == 0 {
		if m := pub.members.Member(d.ToId()); m != nil {
			d.SetToMessageId(m.NextDestinationMessageId())
		}
	}
}

func (pub *Publisher) postLocked(p packet.Packet, now int64) error {
	mp := packet.AsMessagePacket(p)
	if mp == nil {
		m := pub.members.Member(p.ToId())
		if m == nil {
			return errors.ErrUnknownPeer.Wrap("member %d", p.ToId())
		}
		data, err := packet.Encode(p)
		if err != nil {
			return err
		}
		return pub.enqueueLocked(data, m, now)
	}

	var m *member.Member
	if mp.IsDeferrable() {
		if m = pub.members.Member(p.ToId()); m == nil {
			return errors.ErrUnknownPeer.Wrap("member %d", p.ToId())
		}
	}
	id := packetId(mp)
	errors.Assert(pub.outstanding[id] == nil, "packet %v posted twice", id)
	pub.outstanding[id] = p
	if mp.ResendTimeout() == 0 {
		mp.SetResendTimeout(now + pub.conf.ResendTimeout.Millis())
	}
	if m != nil {
		if fc := m.FlowControl(); fc != nil && !fc.IsSendable() {
			pub.deferLocked(mp, m)
			return nil
		}
	}
	return pub.sendLocked(p, mp, m, now)
}

func (pub *Publisher) deferLocked(mp *packet.MessagePacket, m *member.Member) {
	fc := m.FlowControl()
	if q := fc.DeferredQueue(); !q.IsOrdered() && q.Size() == 0 {
		// the first time this member gates a packet
		fc.SetDeferredComparator(packet.DeferredComparator)
	}
	mp.SetDeliveryState(packet.DeliveryDeferred, m)
	fc.DeferredQueue().Add(mp)
	pub.statsDeferred.Inc()
}

// sendLocked writes a message packet to m, or to each remaining recipient
// of a multipoint packet when m is nil.
func (pub *Publisher) sendLocked(p packet.Packet, mp *packet.MessagePacket, m *member.Member, now int64) error {
	data, err := packet.Encode(p)
	if err != nil {
		return err
	}
	mp.SetDeliveryState(packet.DeliveryOutstanding, m)
	mp.SetSentCount(mp.SentCount() + 1)
	mp.SetSentMillis(now)
	mp.SetResendScheduled(now + pub.conf.ResendInterval.Millis())
	id := packetId(mp)
	if m != nil {
		m.UpdateNewestToPacketId(id)
		return pub.enqueueLocked(data, m, now)
	}
	for _, toId := range mp.ToMemberSet().ToIdArray() {
		to := pub.members.Member(toId)
		if to == nil {
			glog.Debugf("Dropping departed member %d from %v", toId, p)
			mp.ToMemberSet().Remove(toId)
			continue
		}
		to.UpdateNewestToPacketId(id)
		if err = pub.enqueueLocked(data, to, now); err != nil {
			return err
		}
	}
	return nil
}

func (pub *Publisher) enqueueLocked(data []byte, m *member.Member, now int64) error {
	pub.batch = append(pub.batch, ipv4.Message{
		Buffers: [][]byte{data},
		Addr:    &net.UDPAddr{IP: m.Address(), Port: m.Port()},
	})
	m.AddStatsSent(1)
	m.SetLastOutgoingMillis(now)
	if len(pub.batch) >= pub.conf.BatchSize {
		return pub.flushLocked()
	}
	return nil
}

func (pub *Publisher) Flush() error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	return pub.flushLocked()
}

func (pub *Publisher) flushLocked() error {
	if len(pub.batch) == 0 {
		return nil
	}
	defer func() {
		for i := range pub.batch {
			pub.batch[i] = ipv4.Message{}
		}
		pub.batch = pub.batch[:0]
	}()
	if err := pub.conn.SetWriteDeadline(time.Now().Add(pub.conf.WriteTimeout.Duration)); err != nil {
		return err
	}
	for msgs := pub.batch; len(msgs) > 0; {
		n, err := pub.pc.WriteBatch(msgs, 0)
		if err != nil {
			// unconfirmed packets are resent by CheckResends
			pub.statsErrors.Inc()
			glog.Warningf("Datagram write on %s failed: %v", pub.conn.LocalAddr(), err)
			return err
		}
		pub.statsDatagrams.Add(int64(n))
		msgs = msgs[n:]
	}
	return nil
}

// OnAck confirms the packets acknowledged by from and sends what the
// freed flow control room allows. It returns the number of packets
// confirmed.
func (pub *Publisher) OnAck(ack *packet.Ack, from *member.Member) int {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	from.SetLastIncomingMillis(util.SafeTimeMillis())
	sent := from.NewestToPacketId().MessageId
	if c := ack.ContiguousFrom(); c.MessageId != 0 {
		if c = translateId(c, sent); c.Compare(from.ContiguousToPacketId()) > 0 {
			from.SetContiguousToPacketId(c)
		}
	}
	if nt := ack.NewestTo(); nt.MessageId != 0 {
		from.UpdateNewestFromPacketId(translateId(nt, from.NewestFromPacketId().MessageId))
	}
	from.SetPreferredAckSize(ack.PreferredAckSize())

	fc := from.FlowControl()
	n := 0
	for _, id := range ack.PacketIds() {
		id = translateId(id, sent)
		p := pub.outstanding[id]
		if p == nil {
			// a repeated ack
			continue
		}
		mp := packet.AsMessagePacket(p)
		deferrable := mp.IsDeferrable()
		if !mp.RegisterAck(from) {
			continue
		}
		n++
		if fc != nil {
			fc.OnConfirmed()
		}
		if !mp.IsResendNecessary() {
			delete(pub.outstanding, id)
			if deferrable {
				mp.SetDeliveryState(packet.DeliveryConfirmed, from)
			} else {
				mp.SetDeliveryState(packet.DeliveryConfirmed, nil)
			}
		}
	}
	pub.drainLocked(from)
	return n
}

func (pub *Publisher) drainLocked(m *member.Member) {
	fc := m.FlowControl()
	if fc == nil {
		return
	}
	now := util.SafeTimeMillis()
	q := fc.DeferredQueue()
	for fc.IsSendable() {
		d := q.Poll()
		if d == nil {
			break
		}
		mp := packet.AsMessagePacket(d)
		p := pub.outstanding[packetId(mp)]
		if p == nil {
			mp.SetDeliveryState(packet.DeliveryUnsent, m)
			continue
		}
		if err := pub.sendLocked(p, mp, m, now); err != nil {
			glog.Warningf("Unable to send deferred packet %v: %v", p, err)
		}
	}
}

// OnRequest resends at once the outstanding packets from asks for. Each
// early resend raises the packet's pending resend skips, so the resend
// that falls due on schedule is not taken for a loss. A requested packet
// still deferred keeps its place in the deferred queue.
func (pub *Publisher) OnRequest(req *packet.Request, from *member.Member) (n int) {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	now := util.SafeTimeMillis()
	from.SetLastIncomingMillis(now)
	sent := from.NewestToPacketId().MessageId
	for _, id := range req.PacketIds() {
		id = translateId(id, sent)
		p := pub.outstanding[id]
		if p == nil || !p.IsAddressedTo(from.Id()) {
			continue
		}
		mp := packet.AsMessagePacket(p)
		mp.SetPendingResendSkips(mp.PendingResendSkips() + 1)
		switch mp.DeliveryState() {
		case packet.DeliveryDeferred:
			// consumes the skip just raised
			from.FlowControl().DeferredQueue().Add(mp)
		case packet.DeliveryOutstanding:
			if err := pub.onLostLocked(p, now, false); err != nil {
				glog.Warningf("Unable to resend requested %v: %v", p, err)
				continue
			}
			n++
		}
	}
	if err := pub.flushLocked(); err != nil {
		glog.Warningf("Flushing requested resends: %v", err)
	}
	return
}

// OnLost resends p to its unconfirmed recipients, or defers it when the
// recipient's flow control has no room left.
func (pub *Publisher) OnLost(p packet.Packet) error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	return pub.onLostLocked(p, util.SafeTimeMillis(), true)
}

// onLostLocked resends p; only a resend that timed out counts against
// the recipient's flow control.
func (pub *Publisher) onLostLocked(p packet.Packet, now int64, timedOut bool) error {
	mp := packet.AsMessagePacket(p)
	if mp == nil || !mp.IsResendNecessary() || mp.DeliveryState() != packet.DeliveryOutstanding {
		return nil
	}
	pub.statsResent.Inc()
	if !mp.IsDeferrable() {
		for _, id := range mp.ToMemberSet().ToIdArray() {
			if m := pub.members.Member(id); m != nil {
				m.AddStatsResent(1)
				if fc := m.FlowControl(); fc != nil && timedOut {
					fc.OnLost()
				}
			}
		}
		return pub.sendLocked(p, mp, nil, now)
	}
	m := pub.members.Member(mp.ToId())
	if m == nil {
		pub.dropLocked(mp, nil)
		return errors.ErrUnknownPeer.Wrap("member %d", mp.ToId())
	}
	m.AddStatsResent(1)
	if fc := m.FlowControl(); fc != nil {
		if timedOut {
			fc.OnLost()
		}
		if !fc.IsSendable() {
			pub.deferLocked(mp, m)
			return nil
		}
	}
	return pub.sendLocked(p, mp, m, now)
}

func (pub *Publisher) dropLocked(mp *packet.MessagePacket, m *member.Member) {
	delete(pub.outstanding, packetId(mp))
	mp.SetDeliveryState(packet.DeliveryLost, m)
	mp.ClearRecipients()
}

// CheckResends resends the outstanding packets whose resend time has
// come and drops those unconfirmed for longer than ResendTimeout. It
// returns the number of packets resent.
func (pub *Publisher) CheckResends(now int64) (n int) {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, p := range pub.outstanding {
		mp := packet.AsMessagePacket(p)
		if mp.DeliveryState() != packet.DeliveryOutstanding || mp.ResendScheduled() > now {
			continue
		}
		if now >= mp.ResendTimeout() {
			var m *member.Member
			if mp.IsDeferrable() {
				if m = pub.members.Member(mp.ToId()); m != nil {
					m.SetLastTimeoutMillis(now)
				}
			}
			glog.Warningf("Dropping %v unconfirmed after %v", p, pub.conf.ResendTimeout.Duration)
			pub.statsTimeouts.Inc()
			pub.dropLocked(mp, m)
			continue
		}
		timedOut := true
		if skips := mp.PendingResendSkips(); skips > 0 {
			mp.SetPendingResendSkips(skips - 1)
			timedOut = false
		}
		if err := pub.onLostLocked(p, now, timedOut); err == nil {
			n++
		}
	}
	if err := pub.flushLocked(); err != nil {
		glog.Warningf("Flushing resends: %v", err)
	}
	return
}

// Close flushes the pending datagrams; later posts fail with ErrClosing.
// The socket belongs to the caller.
func (pub *Publisher) Close() error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	pub.closed = true
	return pub.flushLocked()
}

func (pub *Publisher) OutstandingCount() int {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	return len(pub.outstanding)
}

func (pub *Publisher) StatsDatagrams() int64 { return pub.statsDatagrams.Load() }
func (pub *Publisher) StatsResent() int64    { return pub.statsResent.Load() }
func (pub *Publisher) StatsDeferred() int64  { return pub.statsDeferred.Load() }
func (pub *Publisher) StatsTimeouts() int64  { return pub.statsTimeouts.Load() }
func (pub *Publisher) StatsErrors() int64    { return pub.statsErrors.Load() }
