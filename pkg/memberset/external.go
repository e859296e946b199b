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

package memberset

import (
	"encoding/binary"
	goerrors "errors"
	"fmt"
	"io"

	"github.com/oracle/coherence-sub033/pkg/errors"
)

const (
	// manyThreshold is the cardinality from which the raw word layout is
	// written instead of an id list.
	manyThreshold = 255
	// MaxWords is the largest word count the one-byte word count allows.
	MaxWords = 255
	// MaxMembers is the highest member id the wire format can carry.
	MaxMembers = MaxWords * 32
)

var ErrMalformedMemberSet = goerrors.New("malformed member set")

// WriteExternal writes s in the member set wire layout:
//
//	count:u16
//	count == 1:          id:u16
//	2 <= count < 255:    count:u8, count*id:u16
//	count >= 255:        words:u8, words*bits:i32 (trailing zero words dropped)
//
// All values are big-endian. The layout is computed from one snapshot of
// the set, so concurrent changes never produce an inconsistent encoding.
func WriteExternal(w io.Writer, s Set) error {
	words := s.Words()
	count := 0
	for _, n := range words {
		count += CountBits(n)
	}
	var buf []byte
	buf = binary.BigEndian.AppendUint16(buf, uint16(count))
	switch {
	case count == 0:
	case count == 1:
		buf = binary.BigEndian.AppendUint16(buf, uint16(idsOf(words)[0]))
	case count < manyThreshold:
		buf = append(buf, byte(count))
		for _, id := range idsOf(words) {
			buf = binary.BigEndian.AppendUint16(buf, uint16(id))
		}
	default:
		c := len(words)
		for c > 0 && words[c-1] == 0 {
			c--
		}
		if c > MaxWords {
			return fmt.Errorf("member set too large to encode: %d words", c)
		}
		buf = append(buf, byte(c))
		for _, n := range words[:c] {
			buf = binary.BigEndian.AppendUint32(buf, n)
		}
	}
	_, err := w.Write(buf)
	return err
}

func (s *MemberSet) WriteExternal(w io.Writer) error {
	return WriteExternal(w, s)
}

func (s *SingleMemberSet) WriteExternal(w io.Writer) error {
	return WriteExternal(w, s)
}

// ReadExternal reads a set written by WriteExternal. The set must be empty.
func (s *MemberSet) ReadExternal(r io.Reader) error {
	errors.Assert(s.IsEmpty(), "ReadExternal into a non-empty member set")
	var scratch [4]byte

	readShort := func() (int, error) {
		if _, err := io.ReadFull(r, scratch[:2]); err != nil {
			return 0, err
		}
		return int(binary.BigEndian.Uint16(scratch[:2])), nil
	}
	readByte := func() (int, error) {
		if _, err := io.ReadFull(r, scratch[:1]); err != nil {
			return 0, err
		}
		return int(scratch[0]), nil
	}

	count, err := readShort()
	if err != nil {
		return err
	}
	switch {
	case count == 0:
		return nil
	case count == 1:
		id, err := readShort()
		if err != nil {
			return err
		}
		if id != 0 {
			s.Add(id)
		}
		return nil
	case count < manyThreshold:
		c, err := readByte()
		if err != nil {
			return err
		}
		for i := 0; i < c; i++ {
			id, err := readShort()
			if err != nil {
				return err
			}
			if id == 0 {
				return ErrMalformedMemberSet
			}
			s.Add(id)
		}
		return nil
	default:
		c, err := readByte()
		if err != nil {
			return err
		}
		if c == 0 {
			return ErrMalformedMemberSet
		}
		words := make([]uint32, c)
		for i := range words {
			if _, err := io.ReadFull(r, scratch[:4]); err != nil {
				return err
			}
			words[i] = binary.BigEndian.Uint32(scratch[:4])
		}
		s.mu.Lock()
		s.bits = words
		s.mu.Unlock()
		return nil
	}
}

// ReadMemberSet reads a new MemberSet from r.
func ReadMemberSet(r io.Reader) (*MemberSet, error) {
	s := NewMemberSet()
	if err := s.ReadExternal(r); err != nil {
		return nil, err
	}
	return s, nil
}
