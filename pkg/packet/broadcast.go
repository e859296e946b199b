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
	"net"
)

// Broadcast is an unacknowledged single packet message to every member of
// a cluster, including members not yet assigned an id.
type Broadcast struct {
	MessagePacket

	clusterName string
	fromAddress net.Addr
}

func NewBroadcast(clusterName string) *Broadcast {
	p := &Broadcast{clusterName: clusterName}
	p.typ = TypeBroadcast
	return p
}

func (p *Broadcast) ClusterName() string { return p.clusterName }

// FromAddress is the datagram source of an incoming broadcast.
func (p *Broadcast) FromAddress() net.Addr { return p.fromAddress }

func (p *Broadcast) IsConfirmationRequired() bool { return false }
func (p *Broadcast) IsDeferrable() bool           { return false }
func (p *Broadcast) IsOutgoingMultipoint() bool   { return false }
func (p *Broadcast) IsAddressedTo(int) bool       { return true }

func (p *Broadcast) Length() int {
	return 12 + len(p.clusterName) + len(p.body)
}

func (p *Broadcast) Write(w *Writer) error {
	w.WriteInt32(int32(TypeBroadcast))
	if err := w.WriteUTF(p.clusterName); err != nil {
		return err
	}
	w.WriteUint16(p.fromId)
	w.WriteUint16(p.messageType)
	return writeBody(w, p.body)
}

func (p *Broadcast) read(r *Reader, _ int) (err error) {
	if p.clusterName, err = r.ReadUTF(); err != nil {
		return
	}
	if p.fromId, err = r.ReadUint16(); err != nil {
		return
	}
	var mt int
	if mt, err = r.ReadUint16(); err != nil {
		return
	}
	p.messageType = int(int16(mt))
	p.messagePartCount = 1
	p.body, err = readBody(r)
	return
}

func skipBroadcast(r *Reader) error {
	if err := skipCounted(r, 1); err != nil {
		return err
	}
	if err := r.Skip(4); err != nil {
		return err
	}
	return skipCounted(r, 1)
}

func (p *Broadcast) String() string {
	desc := "ClusterName=" + p.clusterName
	if p.fromAddress != nil {
		desc += ", FromAddress=" + p.fromAddress.String()
	}
	return p.format(TypeBroadcast, "BroadcastPacket", desc+", "+p.describe())
}
