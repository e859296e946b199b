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

// Sequel carries part 1..n-1 of a message whose Directed packet did not
// hold it all.
type Sequel struct {
	MessagePacket
}

func NewSequel() *Sequel {
	p := &Sequel{}
	p.typ = TypeSequelOne
	return p
}

func (p *Sequel) Type() Type {
	if p.IsIncoming() {
		return p.typ
	}
	return SelectType(true, p.addressSet())
}

func (p *Sequel) Length() int {
	return CalcHeaderLength(p.Type(), p.addressSet()) + len(p.body)
}

func (p *Sequel) Write(w *Writer) error {
	typ := p.Type()
	w.WriteInt32(int32(typ))
	if typ == TypeSequelOne {
		to := p.toId
		if p.toMemberSet != nil {
			to = p.toMemberSet.FirstId()
		}
		w.WriteUint16(to)
	} else {
		writeAddress(w, typ, p.toMemberSet)
	}
	w.WriteUint16(p.fromId)
	w.WriteTrint(p.fromMessageId)
	w.WriteTrint(int64(p.partIndex))
	return writeBody(w, p.body)
}

func (p *Sequel) read(r *Reader, memberId int) (err error) {
	if p.typ == TypeSequelOne {
		err = r.Skip(2)
	} else {
		_, _, err = readAddress(r, p.typ, memberId)
	}
	if err != nil {
		return
	}
	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	t, err := r.ReadTrint()
	if err != nil {
		return
	}
	p.fromMessageId = int64(t)
	if p.partIndex, err = r.ReadTrint(); err != nil {
		return
	}
	p.body, err = readBody(r)
	return
}

func skipSequel(r *Reader, typ Type) error {
	if err := skipAddress(r, typ); err != nil {
		return err
	}
	if err := r.Skip(8); err != nil {
		return err
	}
	return skipCounted(r, 1)
}

func (p *Sequel) String() string {
	return p.format(p.Type(), "SequelPacket", p.describe())
}
