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

package packet

import (
	"fmt"
	"strings"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// Header lengths of the fixed-size layouts.
const (
	directedOneHeaderLength = 23
	sequelOneHeaderLength   = 16
)

// MessagePacket carries all or part of a message. Incoming packets hold
// raw trint values in the message id and part fields; the receiver
// translates them against its watermarks.
type MessagePacket struct {
	Base

	fromMessageId    int64
	messagePartCount int
	partIndex        int
	serviceId        int
	messageType      int
	body             []byte
	owned            []byte

	deliveryState      DeliveryState
	pendingResendSkips int
	nackInProgress     bool
	resendScheduled    int64
	resendTimeout      int64
	toMemberSet        *member.DependentMemberSet
}

type messageCarrier interface {
	messagePacket() *MessagePacket
}

func (p *MessagePacket) messagePacket() *MessagePacket { return p }

// AsMessagePacket returns the message part of p, or nil when p carries no
// message.
func AsMessagePacket(p interface{}) *MessagePacket {
	if c, ok := p.(messageCarrier); ok {
		return c.messagePacket()
	}
	return nil
}

func (p *MessagePacket) FromMessageId() int64      { return p.fromMessageId }
func (p *MessagePacket) SetFromMessageId(n int64)  { p.fromMessageId = n }
func (p *MessagePacket) MessagePartCount() int     { return p.messagePartCount }
func (p *MessagePacket) SetMessagePartCount(n int) { p.messagePartCount = n }
func (p *MessagePacket) MessagePartIndex() int     { return p.partIndex }
func (p *MessagePacket) SetMessagePartIndex(n int) { p.partIndex = n }
func (p *MessagePacket) ServiceId() int            { return p.serviceId }
func (p *MessagePacket) SetServiceId(n int)        { p.serviceId = n }
func (p *MessagePacket) MessageType() int          { return p.messageType }
func (p *MessagePacket) SetMessageType(n int)      { p.messageType = n }
func (p *MessagePacket) Body() []byte              { return p.body }
func (p *MessagePacket) SetBody(b []byte)          { p.body = b }
func (p *MessagePacket) BodyLength() int           { return len(p.body) }

func (p *MessagePacket) PendingResendSkips() int     { return p.pendingResendSkips }
func (p *MessagePacket) SetPendingResendSkips(n int) { p.pendingResendSkips = n }
func (p *MessagePacket) IsNackInProgress() bool      { return p.nackInProgress }
func (p *MessagePacket) SetNackInProgress(b bool)    { p.nackInProgress = b }
func (p *MessagePacket) ResendScheduled() int64      { return p.resendScheduled }
func (p *MessagePacket) SetResendScheduled(t int64)  { p.resendScheduled = t }
func (p *MessagePacket) ResendTimeout() int64        { return p.resendTimeout }
func (p *MessagePacket) SetResendTimeout(t int64)    { p.resendTimeout = t }

func (p *MessagePacket) ToMemberSet() *member.DependentMemberSet { return p.toMemberSet }

func (p *MessagePacket) SetToMemberSet(s *member.DependentMemberSet) {
	p.toMemberSet = s
	if s != nil {
		p.toId = 0
	}
}

func (p *MessagePacket) IsConfirmationRequired() bool { return true }

func (p *MessagePacket) IsOutgoingMultipoint() bool {
	return p.IsOutgoing() && p.toMemberSet != nil
}

func (p *MessagePacket) IsDeferrable() bool {
	return p.IsConfirmationRequired() && !p.IsOutgoingMultipoint()
}

func (p *MessagePacket) IsAddressedTo(id int) bool {
	if p.toMemberSet != nil {
		return p.toMemberSet.Contains(id)
	}
	return p.toId == id
}

// recipients returns the addressed ids, in order.
func (p *MessagePacket) recipients() []int {
	if p.toMemberSet != nil {
		return p.toMemberSet.ToIdArray()
	}
	if p.toId != 0 {
		return []int{p.toId}
	}
	return nil
}

func (p *MessagePacket) DeliveryState() DeliveryState { return p.deliveryState }

// SetDeliveryState moves the packet to state, keeping the outstanding and
// deferred counts of m's flow control in step.
func (p *MessagePacket) SetDeliveryState(state DeliveryState, m *member.Member) {
	prev := p.deliveryState
	if prev == state {
		return
	}
	p.deliveryState = state
	if m == nil {
		return
	}
	fc := m.FlowControl()
	if fc == nil {
		return
	}
	switch prev {
	case DeliveryOutstanding:
		fc.AdjustOutstandingPacketCount(-1)
	case DeliveryDeferred:
		fc.AdjustDeferredPacketCount(-1)
	}
	switch state {
	case DeliveryOutstanding:
		fc.AdjustOutstandingPacketCount(1)
	case DeliveryDeferred:
		fc.AdjustDeferredPacketCount(1)
	}
}

// RegisterAck removes from as a recipient and reports whether it was
// one.
func (p *MessagePacket) RegisterAck(from *member.Member) bool {
	if p.toMemberSet == nil {
		if p.toId == 0 {
			return false
		}
		errors.Assert(p.toId == from.Id(), "ack from %d for packet to %d", from.Id(), p.toId)
		p.toId = 0
		return true
	}
	return p.toMemberSet.Remove(from.Id())
}

// ClearRecipients drops every outstanding recipient.
func (p *MessagePacket) ClearRecipients() {
	if p.toMemberSet != nil {
		p.toMemberSet.Clear()
	} else {
		p.toId = 0
	}
	p.sentMillis = util.SafeTimeMillis()
}

func (p *MessagePacket) IsResendNecessary() bool {
	if p.toMemberSet != nil {
		return !p.toMemberSet.IsEmpty()
	}
	return p.toId != 0
}

// Key identifies a message packet across resends.
type Key struct {
	FromId        int
	FromMessageId int64
	PartIndex     int
}

func (p *MessagePacket) Key() Key {
	return Key{FromId: p.fromId, FromMessageId: p.fromMessageId, PartIndex: p.partIndex}
}

func (p *MessagePacket) Equals(o *MessagePacket) bool {
	return o != nil && p.Key() == o.Key()
}

// Compare orders packets by scheduled resend time, then message id, then
// part index.
func (p *MessagePacket) Compare(o *MessagePacket) int {
	switch {
	case p.resendScheduled < o.resendScheduled:
		return -1
	case p.resendScheduled > o.resendScheduled:
		return 1
	case p.fromMessageId < o.fromMessageId:
		return -1
	case p.fromMessageId > o.fromMessageId:
		return 1
	case p.partIndex < o.partIndex:
		return -1
	case p.partIndex > o.partIndex:
		return 1
	}
	return 0
}

// DeferredComparator orders a flow control DeferredQueue of message
// packets.
func DeferredComparator(a, b member.Deferrable) int {
	return AsMessagePacket(a).Compare(AsMessagePacket(b))
}

// Release returns an owned body to mgr.
func (p *MessagePacket) Release(mgr util.BufferManager) {
	if p.owned != nil {
		mgr.Release(p.owned)
		p.owned = nil
	}
	p.body = nil
}

func (p *MessagePacket) describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FromMessageId=%d, MessagePartCount=%d, MessagePartIndex=%d, ServiceId=%d, MessageType=%d",
		p.fromMessageId, p.messagePartCount, p.partIndex, p.serviceId, p.messageType)
	if p.IsOutgoing() {
		fmt.Fprintf(&sb, ", DeliveryState=%s, ResendScheduled=%s, Timeout=%s, PendingResendSkips=%d",
			p.deliveryState, formatMillis(p.resendScheduled), formatMillis(p.resendTimeout), p.pendingResendSkips)
		if p.toMemberSet != nil {
			sb.WriteString(", ToMemberSet=")
			sb.WriteString(p.toMemberSet.String())
		}
	}
	body := p.body
	if len(body) > 64 {
		body = body[:64]
	}
	fmt.Fprintf(&sb, ", Body=0x%s", strings.ToUpper(util.ToHexString(body)))
	if len(body) < len(p.body) {
		sb.WriteString("...")
	}
	fmt.Fprintf(&sb, ", Body.length()=%d", len(p.body))
	return sb.String()
}

// CalcBodyLength returns the body bytes available after a header of cbHeader
// in a packet of the preferred length, allowing growth up to cbMax for small
// preferred lengths.
func CalcBodyLength(cbHeader, cbPref, cbMax int) int {
	return util.MinInt(util.MaxInt(cbHeader<<2, cbPref), util.MaxInt(cbPref, cbMax)) - cbHeader
}

// CalcMaxMembers returns the largest member id a DirectedMany packet of cb
// bytes can address while leaving room for its fixed fields.
func CalcMaxMembers(cb int) int {
	cb -= 21
	members := (cb / 100) * 32
	cb %= 100
	if cb >= 7 {
		members += (cb - 4) / 3
	}
	return util.MinInt(MaxMembers, members)
}

func wordCount(s memberset.Set) int {
	if s.IsEmpty() {
		return 0
	}
	return memberset.CalcByteOffset(s.LastId()) + 1
}

// CalcHeaderLength returns the header length of a directed or sequel
// packet of type typ addressed to s.
func CalcHeaderLength(typ Type, s memberset.Set) int {
	switch typ {
	case TypeDirectedOne:
		return directedOneHeaderLength
	case TypeDirectedFew:
		return 19 + 5*s.Size()
	case TypeDirectedMany:
		return 21 + 4*wordCount(s) + 3*s.Size()
	case TypeSequelOne:
		return sequelOneHeaderLength
	case TypeSequelFew:
		return 15 + 2*s.Size()
	case TypeSequelMany:
		return 15 + 4*wordCount(s)
	}
	panic(fmt.Sprintf("no header length for %s", typ))
}

// SelectType picks the directed or sequel layout addressing s with the
// smallest header. A nil or single member set uses the One layout.
func SelectType(sequel bool, s memberset.Set) Type {
	one, few, many := TypeDirectedOne, TypeDirectedFew, TypeDirectedMany
	if sequel {
		one, few, many = TypeSequelOne, TypeSequelFew, TypeSequelMany
	}
	if s == nil || s.Size() <= 1 {
		return one
	}
	if s.Size() <= maxFewRecipients && CalcHeaderLength(few, s) <= CalcHeaderLength(many, s) {
		return few
	}
	return many
}

func (p *MessagePacket) addressSet() memberset.Set {
	if p.toMemberSet == nil {
		return nil
	}
	return p.toMemberSet
}

// writeAddress writes the recipient list of a Few or Many layout.
func writeAddress(w *Writer, typ Type, s memberset.Set) {
	switch typ {
	case TypeDirectedFew, TypeSequelFew:
		ids := s.ToIdArray()
		w.WriteUint8(len(ids))
		for _, id := range ids {
			w.WriteUint16(id)
		}
	case TypeDirectedMany, TypeSequelMany:
		n := wordCount(s)
		words := s.Words()
		w.WriteUint8(n)
		for i := 0; i < n; i++ {
			var word uint32
			if i < len(words) {
				word = words[i]
			}
			w.WriteUint32(word)
		}
	}
}

// readAddress consumes the recipient list of a Few or Many layout. It
// returns the position of memberId among the recipients, or -1, and for
// the Few layout the number of recipients.
func readAddress(r *Reader, typ Type, memberId int) (index int, count int, err error) {
	index = -1
	switch typ {
	case TypeDirectedFew, TypeSequelFew:
		if count, err = r.ReadUint8(); err != nil {
			return
		}
		for i := 0; i < count; i++ {
			var id int
			if id, err = r.ReadUint16(); err != nil {
				return
			}
			if id == memberId {
				index = i
			}
		}
	case TypeDirectedMany, TypeSequelMany:
		var n int
		if n, err = r.ReadUint8(); err != nil {
			return
		}
		of, mask := memberset.CalcByteOffset(memberId), memberset.CalcByteMask(memberId)
		below := 0
		for i := 0; i < n; i++ {
			var word uint32
			if word, err = r.ReadUint32(); err != nil {
				return
			}
			switch {
			case i < of:
				below += memberset.CountBits(word)
			case i == of && word&mask != 0:
				index = below + memberset.CountBits(word&(mask-1))
			}
		}
	}
	return
}

func skipAddress(r *Reader, typ Type) error {
	switch typ {
	case TypeDirectedOne, TypeSequelOne:
		return r.Skip(2)
	case TypeDirectedFew, TypeSequelFew:
		n, err := r.ReadUint8()
		if err != nil {
			return err
		}
		return r.Skip(2 * n)
	default:
		n, err := r.ReadUint8()
		if err != nil {
			return err
		}
		return r.Skip(4 * n)
	}
}

func writeBody(w *Writer, body []byte) error {
	if len(body) > 0xFFFF {
		return NewProtocolError("message body too long")
	}
	w.WriteUint16(len(body))
	w.Write(body)
	return nil
}

func readBody(r *Reader) ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}
