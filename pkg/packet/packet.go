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
	stderrors "errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/stats"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// Packet is implemented by every packet kind. Decoding switches on the
// type tag once and yields one of *Broadcast, *Directed, *Sequel, *Ack,
// *Request or *Diagnostic.
type Packet interface {
	Type() Type
	ToId() int
	SetToId(id int)
	FromId() int
	SetFromId(id int)
	ReceivedMillis() int64
	IsIncoming() bool
	IsAddressedTo(id int) bool
	IsConfirmationRequired() bool
	IsOutgoingMultipoint() bool
	// Length is the largest encoded size of the packet.
	Length() int
	Write(w *Writer) error
	String() string

	base() *Base
	read(r *Reader, memberId int) error
}

// Base holds the fields common to all packets.
type Base struct {
	typ            Type
	toId           int
	fromId         int
	sentCount      int
	sentMillis     int64
	receivedMillis int64
}

func (p *Base) base() *Base { return p }

func (p *Base) Type() Type            { return p.typ }
func (p *Base) ToId() int             { return p.toId }
func (p *Base) SetToId(id int)        { p.toId = id }
func (p *Base) FromId() int           { return p.fromId }
func (p *Base) SetFromId(id int)      { p.fromId = id }
func (p *Base) ReceivedMillis() int64 { return p.receivedMillis }
func (p *Base) SentCount() int        { return p.sentCount }
func (p *Base) SetSentCount(n int)    { p.sentCount = n }
func (p *Base) SentMillis() int64     { return p.sentMillis }
func (p *Base) SetSentMillis(t int64) { p.sentMillis = t }

func (p *Base) IsIncoming() bool { return p.receivedMillis != 0 }
func (p *Base) IsOutgoing() bool { return p.receivedMillis == 0 }

func (p *Base) IsAddressedTo(id int) bool    { return p.toId == id }
func (p *Base) IsConfirmationRequired() bool { return false }
func (p *Base) IsOutgoingMultipoint() bool   { return false }

func formatMillis(t int64) string {
	if t == 0 {
		return "none"
	}
	return time.UnixMilli(t).Format("15:04:05") + "." + strconv.FormatInt(t%1000, 10)
}

func (p *Base) format(typ Type, name string, desc string) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString("{PacketType=0x")
	sb.WriteString(strings.ToUpper(strconv.FormatUint(uint64(uint32(typ))|1<<32, 16)[1:]))
	sb.WriteString(", ToId=")
	sb.WriteString(strconv.Itoa(p.toId))
	sb.WriteString(", FromId=")
	sb.WriteString(strconv.Itoa(p.fromId))
	sb.WriteString(", Direction=")
	if p.IsIncoming() {
		sb.WriteString("Incoming, ReceivedMillis=")
		sb.WriteString(formatMillis(p.receivedMillis))
	} else {
		sb.WriteString("Outgoing, SentCount=")
		sb.WriteString(strconv.Itoa(p.sentCount))
		sb.WriteString(", SentMillis=")
		sb.WriteString(formatMillis(p.sentMillis))
	}
	if desc != "" {
		sb.WriteString(", ")
		sb.WriteString(desc)
	}
	sb.WriteByte('}')
	return sb.String()
}

func isEOF(err error) bool {
	return stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF)
}

// Instantiate decodes the next packet of r for memberId. Every packet but
// a broadcast is addressed to memberId.
func Instantiate(r *Reader, memberId int) (Packet, error) {
	t, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	typ := Type(t)
	var p Packet
	switch typ {
	case TypeBroadcast:
		p = &Broadcast{}
	case TypeDirectedOne, TypeDirectedFew, TypeDirectedMany:
		p = &Directed{}
	case TypeSequelOne, TypeSequelFew, TypeSequelMany:
		p = &Sequel{}
	case TypeRequest:
		p = &Request{}
	case TypeAck:
		p = &Ack{}
	case TypeDiagnostic:
		p = &Diagnostic{}
	default:
		return nil, &UnknownTypeError{Type: typ}
	}
	b := p.base()
	b.typ = typ
	if typ != TypeBroadcast {
		b.toId = memberId
	}
	if err = p.read(r, memberId); err != nil {
		return nil, err
	}
	b.receivedMillis = util.SafeTimeMillis()
	return p, nil
}

// IsForCoherence reports whether r starts with a known packet tag. The
// reader position is unchanged.
func IsForCoherence(r *Reader) bool {
	if r.Available() < 4 {
		return false
	}
	r.Mark()
	t, _ := r.ReadInt32()
	r.Reset()
	switch Type(t) {
	case TypeBroadcast, TypeDirectedOne, TypeSequelOne, TypeRequest, TypeAck,
		TypeDirectedFew, TypeSequelFew, TypeDirectedMany, TypeSequelMany,
		TypeNameService, TypeTestMulticast:
		return true
	}
	return false
}

// IsForMember reports whether the packet at r is addressed to memberId,
// reading only as far as the addressing fields. Member id 0 accepts
// broadcasts only. The reader is left mid packet.
func IsForMember(r *Reader, memberId int) bool {
	t, err := r.ReadInt32()
	if err != nil {
		return false
	}
	typ := Type(t)
	if memberId == 0 {
		return typ == TypeBroadcast
	}
	switch typ {
	case TypeBroadcast:
		return true
	case TypeDirectedOne, TypeSequelOne, TypeRequest, TypeAck, TypeDiagnostic:
		id, err := r.ReadUint16()
		return err == nil && id == memberId
	case TypeDirectedFew, TypeSequelFew:
		n, err := r.ReadUint8()
		if err != nil {
			return false
		}
		for i := 0; i < n; i++ {
			id, err := r.ReadUint16()
			if err != nil {
				return false
			}
			if id == memberId {
				return true
			}
		}
	case TypeDirectedMany, TypeSequelMany:
		of := memberset.CalcByteOffset(memberId)
		n, err := r.ReadUint8()
		if err != nil || of >= n {
			return false
		}
		if r.Skip(of<<2) != nil {
			return false
		}
		w, err := r.ReadUint32()
		return err == nil && w&memberset.CalcByteMask(memberId) != 0
	}
	return false
}

// Skip advances past the packet at r. A packet truncated by the end of the
// buffer is skipped silently: a sender bundling for members with a larger
// packet length produces them.
func Skip(r *Reader) error {
	t, err := r.ReadInt32()
	if err != nil {
		r.SkipAll()
		return nil
	}
	typ := Type(t)
	switch typ {
	case TypeBroadcast:
		err = skipBroadcast(r)
	case TypeDirectedOne, TypeDirectedFew, TypeDirectedMany:
		err = skipDirected(r, typ)
	case TypeSequelOne, TypeSequelFew, TypeSequelMany:
		err = skipSequel(r, typ)
	case TypeRequest:
		err = skipRequest(r)
	case TypeAck:
		err = skipAck(r)
	case TypeDiagnostic:
		err = r.Skip(diagnosticBodyLength)
	case TypeTestMulticast:
		r.SkipAll()
	default:
		return &UnknownTypeError{Type: typ}
	}
	if err != nil && isEOF(err) {
		r.SkipAll()
		return nil
	}
	return err
}

// skipCounted skips a u16 count followed by count*width bytes.
func skipCounted(r *Reader, width int) error {
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	return r.Skip(n * width)
}

// Extract decodes the packets in a datagram addressed to memberId. The
// last message packet takes ownership of buf; bodies of earlier ones are
// copied into buffers from mgr. buf goes back to mgr when no packet takes
// it.
func Extract(src net.Addr, buf []byte, mgr util.BufferManager, memberId int) (packets []Packet, err error) {
	r := NewReader(buf)
	owned := false
	defer func() {
		if err != nil {
			for _, p := range packets {
				if mp := AsMessagePacket(p); mp != nil && mp.owned != nil {
					mgr.Release(mp.owned)
					mp.owned = nil
				}
			}
			packets = nil
		}
		if !owned {
			mgr.Release(buf)
		}
	}()

	for r.Available() > 0 {
		r.Mark()
		forMember := IsForMember(r, memberId)
		r.Reset()
		if !forMember {
			if err = Skip(r); err != nil {
				return
			}
			stats.PacketsSkipped.Inc()
			continue
		}
		var p Packet
		if p, err = Instantiate(r, memberId); err != nil {
			return
		}
		packets = append(packets, p)
		stats.PacketsExtracted.WithLabelValues(p.Type().String()).Inc()

		mp := AsMessagePacket(p)
		if mp == nil {
			continue
		}
		if b, ok := p.(*Broadcast); ok && src != nil {
			b.fromAddress = src
		}
		if r.Available() > 0 {
			body := mgr.Acquire(len(mp.body))
			copy(body, mp.body)
			mp.body = body
			mp.owned = body
		} else {
			mp.owned = buf
			owned = true
			break
		}
	}
	return
}

// Encode returns the wire form of p.
func Encode(p Packet) ([]byte, error) {
	w := NewWriter(make([]byte, 0, p.Length()))
	if err := p.Write(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeBundle writes packets back to back into buf.
func EncodeBundle(buf []byte, packets ...Packet) ([]byte, error) {
	w := NewWriter(buf)
	for _, p := range packets {
		if err := p.Write(w); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}
