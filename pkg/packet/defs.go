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

// Package packet implements the TCMP datagram packet formats: the wire
// layouts of every packet kind, identification of packets addressed to a
// member within a bundle, and extraction into Packet values.
package packet

import (
	"fmt"
	"strconv"
)

type Type int32

const (
	TypeDiagnostic    = Type(0x0DDF00D0)
	TypeAck           = Type(0x0DDF00D1)
	TypeBroadcast     = Type(0x0DDF00D2)
	TypeDirectedFew   = Type(0x0DDF00D3)
	TypeDirectedMany  = Type(0x0DDF00D4)
	TypeDirectedOne   = Type(0x0DDF00D5)
	TypeRequest       = Type(0x0DDF00D6)
	TypeSequelFew     = Type(0x0DDF00D7)
	TypeSequelMany    = Type(0x0DDF00D8)
	TypeSequelOne     = Type(0x0DDF00D9)
	TypeNameService   = Type(0x0DDF00DA)
	TypeTestMulticast = Type(1952805748) // "test"
)

var typeNames = map[Type]string{
	TypeDiagnostic:    "Diagnostic",
	TypeAck:           "Ack",
	TypeBroadcast:     "Broadcast",
	TypeDirectedFew:   "DirectedFew",
	TypeDirectedMany:  "DirectedMany",
	TypeDirectedOne:   "DirectedOne",
	TypeRequest:       "Request",
	TypeSequelFew:     "SequelFew",
	TypeSequelMany:    "SequelMany",
	TypeSequelOne:     "SequelOne",
	TypeNameService:   "NameService",
	TypeTestMulticast: "TestMulticast",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

func (t Type) IsDirected() bool {
	return t == TypeDirectedOne || t == TypeDirectedFew || t == TypeDirectedMany
}

func (t Type) IsSequel() bool {
	return t == TypeSequelOne || t == TypeSequelFew || t == TypeSequelMany
}

// DeliveryState tracks an outgoing message packet through the publisher.
type DeliveryState int

const (
	DeliveryUnsent DeliveryState = iota
	DeliveryOutstanding
	DeliveryDeferred
	DeliveryLost
	DeliveryConfirmed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryUnsent:
		return "unsent"
	case DeliveryOutstanding:
		return "outstanding"
	case DeliveryDeferred:
		return "deferred"
	case DeliveryLost:
		return "lost"
	case DeliveryConfirmed:
		return "confirmed"
	}
	return "<unknown>"
}

const (
	// MaxMembers is the largest member id a packet can address.
	MaxMembers = 8160

	maxFewRecipients = 255
)

type ProtocolError struct {
	what string
}

func NewProtocolError(what string) *ProtocolError {
	return &ProtocolError{what: what}
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.what
}

// UnknownTypeError reports a type tag outside the packet enumeration.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown packet type: %d", int32(e.Type))
}

// ErrUnknownPacketType matches any *UnknownTypeError through errors.Is.
var ErrUnknownPacketType = &UnknownTypeError{}

func (e *UnknownTypeError) Is(target error) bool {
	_, ok := target.(*UnknownTypeError)
	return ok
}
