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

	"github.com/oracle/coherence-sub033/pkg/member"
)

const (
	ackHeaderLength     = 30
	requestHeaderLength = 10
	packetIdLength      = 6
)

// Ack confirms receipt of message packets and reports the receiver's
// watermarks so the sender can reclaim and resend.
type Ack struct {
	Base

	newestTo         member.PacketId
	newestFrom       member.PacketId
	contiguousFrom   member.PacketId
	preferredAckSize int
	packets          []member.PacketId
}

func NewAck(toId int, fromId int) *Ack {
	p := &Ack{}
	p.typ = TypeAck
	p.toId, p.fromId = toId, fromId
	return p
}

func (p *Ack) NewestTo() member.PacketId            { return p.newestTo }
func (p *Ack) SetNewestTo(id member.PacketId)       { p.newestTo = id }
func (p *Ack) NewestFrom() member.PacketId          { return p.newestFrom }
func (p *Ack) SetNewestFrom(id member.PacketId)     { p.newestFrom = id }
func (p *Ack) ContiguousFrom() member.PacketId      { return p.contiguousFrom }
func (p *Ack) SetContiguousFrom(id member.PacketId) { p.contiguousFrom = id }
func (p *Ack) PreferredAckSize() int                { return p.preferredAckSize }
func (p *Ack) SetPreferredAckSize(n int)            { p.preferredAckSize = n }

// AddPacketId records a confirmed packet.
func (p *Ack) AddPacketId(id member.PacketId) {
	p.packets = append(p.packets, id)
}

func (p *Ack) PacketIds() []member.PacketId { return p.packets }
func (p *Ack) PacketCount() int             { return len(p.packets) }

// AckCapacity returns how many packet ids fit an Ack of cbMax bytes.
func AckCapacity(cbMax int) int {
	if cbMax <= ackHeaderLength {
		return 0
	}
	return (cbMax - ackHeaderLength) / packetIdLength
}

func (p *Ack) Length() int {
	return ackHeaderLength + packetIdLength*len(p.packets)
}

func writePacketId(w *Writer, id member.PacketId) {
	w.WriteTrint(id.MessageId)
	w.WriteTrint(int64(id.PartIndex))
}

func readPacketId(r *Reader) (id member.PacketId, err error) {
	var t int
	if t, err = r.ReadTrint(); err != nil {
		return
	}
	id.MessageId = int64(t)
	id.PartIndex, err = r.ReadTrint()
	return
}

func writePacketIds(w *Writer, ids []member.PacketId) error {
	if len(ids) > 0xFFFF {
		return NewProtocolError("too many packet ids")
	}
	w.WriteUint16(len(ids))
	for _, id := range ids {
		writePacketId(w, id)
	}
	return nil
}

func readPacketIds(r *Reader) ([]member.PacketId, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	ids := make([]member.PacketId, 0, n)
	for i := 0; i < n; i++ {
		id, err := readPacketId(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Ack) Write(w *Writer) error {
	w.WriteInt32(int32(TypeAck))
	w.WriteUint16(p.toId)
	w.WriteUint16(p.fromId)
	writePacketId(w, p.newestTo)
	writePacketId(w, p.newestFrom)
	writePacketId(w, p.contiguousFrom)
	w.WriteUint16(p.preferredAckSize)
	return writePacketIds(w, p.packets)
}

func (p *Ack) read(r *Reader, _ int) (err error) {
	if err = r.Skip(2); err != nil {
		return
	}
	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	if p.newestTo, err = readPacketId(r); err != nil {
		return
	}
	if p.newestFrom, err = readPacketId(r); err != nil {
		return
	}
	if p.contiguousFrom, err = readPacketId(r); err != nil {
		return
	}
	if p.preferredAckSize, err = r.ReadUint16(); err != nil {
		return
	}
	p.packets, err = readPacketIds(r)
	return
}

func skipAck(r *Reader) error {
	if err := r.Skip(24); err != nil {
		return err
	}
	return skipCounted(r, packetIdLength)
}

func formatPacketIds(ids []member.PacketId) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return "[" + strings.Join(s, ", ") + "]"
}

func (p *Ack) String() string {
	return p.format(TypeAck, "AckPacket", fmt.Sprintf(
		"NewestTo=%s, NewestFrom=%s, ContiguousFrom=%s, PreferredAckSize=%d, Packets=%s",
		p.newestTo, p.newestFrom, p.contiguousFrom, p.preferredAckSize, formatPacketIds(p.packets)))
}

// Request asks the receiver to resend the listed packets.
type Request struct {
	Base

	packets []member.PacketId
}

func NewRequest(toId int, fromId int) *Request {
	p := &Request{}
	p.typ = TypeRequest
	p.toId, p.fromId = toId, fromId
	return p
}

func (p *Request) AddPacketId(id member.PacketId) {
	p.packets = append(p.packets, id)
}

func (p *Request) PacketIds() []member.PacketId { return p.packets }

func (p *Request) Length() int {
	return requestHeaderLength + packetIdLength*len(p.packets)
}

func (p *Request) Write(w *Writer) error {
	w.WriteInt32(int32(TypeRequest))
	w.WriteUint16(p.toId)
	w.WriteUint16(p.fromId)
	return writePacketIds(w, p.packets)
}

func (p *Request) read(r *Reader, _ int) (err error) {
	if err = r.Skip(2); err != nil {
		return
	}
	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	p.packets, err = readPacketIds(r)
	return
}

func skipRequest(r *Reader) error {
	if err := r.Skip(4); err != nil {
		return err
	}
	return skipCounted(r, packetIdLength)
}

func (p *Request) String() string {
	return p.format(TypeRequest, "RequestPacket", "Packets="+formatPacketIds(p.packets))
}
