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
	"strconv"
	"sync/atomic"

	"github.com/oracle/coherence-sub033/pkg/errors"
)

// SingleMemberSet holds at most one member id. It is used where a message
// has exactly one destination and a full bitset would be wasted.
type SingleMemberSet struct {
	id int32
}

// EmptySet is a shared empty Set.
var EmptySet Set = &SingleMemberSet{}

func NewSingleMemberSet(id int) *SingleMemberSet {
	if id != 0 {
		assertId(id)
	}
	return &SingleMemberSet{id: int32(id)}
}

// Instantiate returns a SingleMemberSet holding m, or an empty one if m
// is nil.
func Instantiate(m Addressable) *SingleMemberSet {
	if m == nil {
		return &SingleMemberSet{}
	}
	return NewSingleMemberSet(m.Id())
}

func (s *SingleMemberSet) Id() int {
	return int(atomic.LoadInt32(&s.id))
}

// Add panics if the set already holds a different id.
func (s *SingleMemberSet) Add(id int) bool {
	assertId(id)
	if atomic.CompareAndSwapInt32(&s.id, 0, int32(id)) {
		return true
	}
	cur := s.Id()
	errors.Assert(cur == id, "SingleMemberSet already holds %d; cannot add %d", cur, id)
	return false
}

func (s *SingleMemberSet) Remove(id int) bool {
	assertId(id)
	return atomic.CompareAndSwapInt32(&s.id, int32(id), 0)
}

func (s *SingleMemberSet) Clear() {
	atomic.StoreInt32(&s.id, 0)
}

func (s *SingleMemberSet) Contains(id int) bool {
	assertId(id)
	return s.Id() == id
}

func (s *SingleMemberSet) Size() int {
	if s.Id() == 0 {
		return 0
	}
	return 1
}

func (s *SingleMemberSet) IsEmpty() bool {
	return s.Id() == 0
}

func (s *SingleMemberSet) FirstId() int {
	return s.Id()
}

func (s *SingleMemberSet) LastId() int {
	return s.Id()
}

func (s *SingleMemberSet) NextId(id int) int {
	if cur := s.Id(); cur > id {
		return cur
	}
	return 0
}

func (s *SingleMemberSet) PrevId(id int) int {
	if cur := s.Id(); cur != 0 && cur < id {
		return cur
	}
	return 0
}

func (s *SingleMemberSet) ToIdArray() []int {
	if cur := s.Id(); cur != 0 {
		return []int{cur}
	}
	return nil
}

func (s *SingleMemberSet) Words() []uint32 {
	cur := s.Id()
	if cur == 0 {
		return nil
	}
	w := make([]uint32, CalcByteOffset(cur)+1)
	w[CalcByteOffset(cur)] = CalcByteMask(cur)
	return w
}

func (s *SingleMemberSet) String() string {
	if cur := s.Id(); cur != 0 {
		return "SingleMemberSet(" + strconv.Itoa(cur) + ")"
	}
	return "SingleMemberSet()"
}
