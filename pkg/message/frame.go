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

package message

import (
	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/packet"
)

// Frame flags.
const (
	FlagCompressed = 0x01
	FlagResponse   = 0x02
)

const frameHeaderLength = 5

var (
	ErrShortFrame   = errors.NewError("short message frame", errors.KErrMalformedFrame)
	ErrCompressed   = errors.NewError("compressed frame without a filter", errors.KErrMalformedFrame)
	ErrUnknownFlags = errors.NewError("unknown frame flags", errors.KErrMalformedFrame)
)

// Codec turns a message payload into a body and back.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte, v interface{}) error
}

type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Unmarshal(b []byte, v interface{}) error {
	return msgpack.Unmarshal(b, v)
}

// Filter transforms serialized bodies on the way out and back in.
type Filter interface {
	// Encode returns the filtered body, or body itself and false when
	// filtering does not pay.
	Encode(body []byte) ([]byte, bool)
	Decode(body []byte) ([]byte, error)
}

// SnappyFilter compresses bodies of at least Threshold bytes.
type SnappyFilter struct {
	Threshold int
}

func (f SnappyFilter) Encode(body []byte) ([]byte, bool) {
	if f.Threshold <= 0 || len(body) < f.Threshold {
		return body, false
	}
	c := snappy.Encode(nil, body)
	if len(c) >= len(body) {
		return body, false
	}
	return c, true
}

func (f SnappyFilter) Decode(body []byte) ([]byte, error) {
	return snappy.Decode(nil, body)
}

// FrameHeader precedes the body of a message sent over the bus:
// serviceId u16, messageType i16, flags u8 and, for a response, the poll
// id as a trint.
type FrameHeader struct {
	ServiceId   int
	MessageType int
	Flags       int
	ToPollId    int64
}

// EncodeFrame prefixes body with the frame header of m, filtering it
// first when filter is not nil.
func EncodeFrame(m *Message, body []byte, filter Filter) ([]byte, error) {
	flags := 0
	if filter != nil {
		if b, ok := filter.Encode(body); ok {
			body = b
			flags |= FlagCompressed
		}
	}
	if m.toPollId != 0 {
		flags |= FlagResponse
	}
	w := packet.NewWriter(make([]byte, 0, frameHeaderLength+3+len(body)))
	serviceId := 0
	if m.service != nil {
		serviceId = m.service.ServiceId()
	}
	w.WriteUint16(serviceId)
	w.WriteUint16(m.messageType)
	w.WriteUint8(flags)
	if flags&FlagResponse != 0 {
		w.WriteTrint(m.toPollId)
	}
	w.Write(body)
	return w.Bytes(), nil
}

// DecodeFrame splits b into its header and unfiltered body. The poll id
// is the raw trint.
func DecodeFrame(b []byte, filter Filter) (hdr FrameHeader, body []byte, err error) {
	r := packet.NewReader(b)
	if r.Available() < frameHeaderLength {
		err = ErrShortFrame
		return
	}
	hdr.ServiceId, _ = r.ReadUint16()
	mt, _ := r.ReadUint16()
	hdr.MessageType = int(int16(mt))
	hdr.Flags, _ = r.ReadUint8()
	if hdr.Flags&^(FlagCompressed|FlagResponse) != 0 {
		err = ErrUnknownFlags
		return
	}
	if hdr.Flags&FlagResponse != 0 {
		var t int
		if t, err = r.ReadTrint(); err != nil {
			err = ErrShortFrame
			return
		}
		hdr.ToPollId = int64(t)
	}
	body, _ = r.ReadBytes(r.Available())
	if hdr.Flags&FlagCompressed != 0 {
		if filter == nil {
			err = ErrCompressed
			return
		}
		body, err = filter.Decode(body)
	}
	return
}

// Serialize encodes the payload of m with codec into a frame.
func Serialize(m *Message, codec Codec, filter Filter) ([]byte, error) {
	body, err := codec.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(m, body, filter)
}

// Deserialize decodes a frame into v.
func Deserialize(b []byte, codec Codec, filter Filter, v interface{}) (FrameHeader, error) {
	hdr, body, err := DecodeFrame(b, filter)
	if err != nil {
		return hdr, err
	}
	return hdr, codec.Unmarshal(body, v)
}
