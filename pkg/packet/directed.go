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
	"strconv"
)

// Directed is the first packet of a point-to-point or multipoint message.
// Each recipient is sent the next message id in its own sequence.
type Directed struct {
	MessagePacket

	toMessageId  int64
	toMessageIds map[int]int64
}

func NewDirected() *Directed {
	p := &Directed{}
	p.typ = TypeDirectedOne
	return p
}

// Type of an outgoing packet follows its current recipients.
func (p *Directed) Type() Type {
	if p.IsIncoming() {
		return p.typ
	}
	return SelectType(false, p.addressSet())
}

// ToMessageId is the message id in this member's sequence for an incoming
// packet, or the single recipient's id for an outgoing one.
func (p *Directed) ToMessageId() int64 {
	return p.toMessageId
}

func (p *Directed) SetToMessageId(n int64) {
	p.toMessageId = n
}

func (p *Directed) ToMessageIdFor(id int) int64 {
	if p.toMessageIds != nil {
		return p.toMessageIds[id]
	}
	return p.toMessageId
}

func (p *Directed) SetToMessageIdFor(id int, n int64) {
	if p.toMemberSet == nil {
		p.toMessageId = n
		return
	}
	if p.toMessageIds == nil {
		p.toMessageIds = make(map[int]int64)
	}
	p.toMessageIds[id] = n
}

func (p *Directed) Length() int {
	return CalcHeaderLength(p.Type(), p.addressSet()) + len(p.body)
}

func (p *Directed) Write(w *Writer) error {
	typ := p.Type()
	w.WriteInt32(int32(typ))
	switch typ {
	case TypeDirectedOne:
		to := p.toId
		if p.toMemberSet != nil {
			to = p.toMemberSet.FirstId()
		}
		w.WriteUint16(to)
		w.WriteTrint(p.ToMessageIdFor(to))
	case TypeDirectedFew:
		ids := p.toMemberSet.ToIdArray()
		w.WriteUint8(len(ids))
		for _, id := range ids {
			w.WriteUint16(id)
		}
		for _, id := range ids {
			w.WriteTrint(p.ToMessageIdFor(id))
		}
	case TypeDirectedMany:
		writeAddress(w, typ, p.toMemberSet)
		ids := p.toMemberSet.ToIdArray()
		w.WriteUint16(len(ids))
		for _, id := range ids {
			w.WriteTrint(p.ToMessageIdFor(id))
		}
	}
	w.WriteUint16(p.fromId)
	w.WriteTrint(p.fromMessageId)
	w.WriteTrint(int64(p.messagePartCount))
	w.WriteUint16(p.serviceId)
	w.WriteUint16(p.messageType)
	return writeBody(w, p.body)
}

func (p *Directed) read(r *Reader, memberId int) (err error) {
	typ := p.typ
	index, count := 0, 1
	if typ == TypeDirectedOne {
		if err = r.Skip(2); err != nil {
			return
		}
	} else {
		if index, count, err = readAddress(r, typ, memberId); err != nil {
			return
		}
		if typ == TypeDirectedMany {
			if count, err = r.ReadUint16(); err != nil {
				return
			}
		}
	}
	for i := 0; i < count; i++ {
		t, err := r.ReadTrint()
		if err != nil {
			return err
		}
		if i == index {
			p.toMessageId = int64(t)
		}
	}

	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	t, err := r.ReadTrint()
	if err != nil {
		return
	}
	p.fromMessageId = int64(t)
	if p.messagePartCount, err = r.ReadTrint(); err != nil {
		return
	}
	if p.serviceId, err = r.ReadUint16(); err != nil {
		return
	}
	var mt int
	if mt, err = r.ReadUint16(); err != nil {
		return
	}
	p.messageType = int(int16(mt))
	p.body, err = readBody(r)
	return
}

func skipDirected(r *Reader, typ Type) error {
	switch typ {
	case TypeDirectedOne:
		if err := r.Skip(5); err != nil {
			return err
		}
	case TypeDirectedFew:
		n, err := r.ReadUint8()
		if err != nil {
			return err
		}
		if err = r.Skip(5 * n); err != nil {
			return err
		}
	default:
		if err := skipAddress(r, typ); err != nil {
			return err
		}
		if err := skipCounted(r, 3); err != nil {
			return err
		}
	}
	if err := r.Skip(12); err != nil {
		return err
	}
	return skipCounted(r, 1)
}

func (p *Directed) String() string {
	desc := p.describe()
	if p.IsIncoming() {
		desc = "ToMessageId=" + strconv.FormatInt(p.toMessageId, 10) + ", " + desc
	}
	return p.format(p.Type(), "DirectedPacket", desc)
}
