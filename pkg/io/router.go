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
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/packet"
)

// AckRouter hands acks and resend requests to the Publisher that sent
// the packets they name and every other packet to Next.
type AckRouter struct {
	Publisher *Publisher
	Members   MemberLookup
	Next      PacketHandler
}

func (r *AckRouter) OnPacket(p packet.Packet) {
	switch p := p.(type) {
	case *packet.Ack:
		if from := r.sender(p); from != nil {
			r.Publisher.OnAck(p, from)
		}
		return
	case *packet.Request:
		if from := r.sender(p); from != nil {
			r.Publisher.OnRequest(p, from)
		}
		return
	}
	if r.Next != nil {
		r.Next.OnPacket(p)
	}
}

func (r *AckRouter) sender(p packet.Packet) *member.Member {
	from := r.Members.Member(p.FromId())
	if from == nil {
		glog.Debugf("Ignoring %v from unknown member", p)
	}
	return from
}
