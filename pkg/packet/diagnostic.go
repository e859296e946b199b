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

	"github.com/oracle/coherence-sub033/pkg/util"
)

const (
	diagnosticHeaderLength = 13
	diagnosticBodyLength   = diagnosticHeaderLength - 4
)

// Diagnostic checks the path to a member; the receiver echoes it back
// while the time to live lasts.
type Diagnostic struct {
	Base

	ttl     int
	ldtSent int32
}

func NewDiagnostic(toId int, fromId int, ttl int) *Diagnostic {
	p := &Diagnostic{ttl: ttl}
	p.typ = TypeDiagnostic
	p.toId, p.fromId = toId, fromId
	return p
}

func (p *Diagnostic) TTL() int { return p.ttl }

// SentMillisLow is the low 32 bits of the originator's clock when sent.
func (p *Diagnostic) SentMillisLow() int32 { return p.ldtSent }

// Echo returns the reply to an incoming diagnostic, or nil once its time
// to live is spent.
func (p *Diagnostic) Echo() *Diagnostic {
	if p.ttl <= 0 {
		return nil
	}
	e := NewDiagnostic(p.fromId, p.toId, p.ttl-1)
	e.ldtSent = p.ldtSent
	return e
}

// RoundTripMillis measures an echo of a diagnostic sent by this member.
func (p *Diagnostic) RoundTripMillis() int64 {
	return int64(int32(util.SafeTimeMillis()) - p.ldtSent)
}

func (p *Diagnostic) Length() int { return diagnosticHeaderLength }

func (p *Diagnostic) Write(w *Writer) error {
	if p.ldtSent == 0 {
		p.ldtSent = int32(util.SafeTimeMillis())
	}
	w.WriteInt32(int32(TypeDiagnostic))
	w.WriteUint16(p.toId)
	w.WriteUint16(p.fromId)
	w.WriteUint8(p.ttl)
	w.WriteInt32(p.ldtSent)
	return nil
}

func (p *Diagnostic) read(r *Reader, _ int) (err error) {
	if err = r.Skip(2); err != nil {
		return
	}
	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	if p.ttl, err = r.ReadUint8(); err != nil {
		return
	}
	p.ldtSent, err = r.ReadInt32()
	return
}

func (p *Diagnostic) String() string {
	return p.format(TypeDiagnostic, "DiagnosticPacket", fmt.Sprintf("TTL=%d", p.ttl))
}
