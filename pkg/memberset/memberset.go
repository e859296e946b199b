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

// Package memberset implements the compact bitset used to address cluster
// members by id.
//
// Bit i of word w represents member id 32*w+i+1; id 0 is never
// representable and means "unknown".
package memberset

import (
	"bytes"
	"math/rand"
	"strconv"
	"sync"

	"github.com/oracle/coherence-sub033/pkg/errors"
)

// Set is the read side shared by MemberSet and SingleMemberSet.
type Set interface {
	Contains(id int) bool
	Size() int
	IsEmpty() bool
	FirstId() int
	LastId() int
	NextId(id int) int
	PrevId(id int) int
	ToIdArray() []int
	// Words returns a copy of the backing bitset.
	Words() []uint32
}

// Addressable is anything carrying a member id, typically *member.Member.
type Addressable interface {
	Id() int
}

// Factory creates the empty set used to hold a derived result.
type Factory func() *MemberSet

// MemberSet is a mutex guarded, growable bitset over member ids. The zero
// value is an empty set ready for use.
type MemberSet struct {
	mu   sync.Mutex
	bits []uint32
}

func NewMemberSet() *MemberSet {
	return &MemberSet{}
}

// NewMemberSetOf returns a set holding ids.
func NewMemberSetOf(ids ...int) *MemberSet {
	s := &MemberSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func assertId(id int) {
	errors.Assert(id > 0, "invalid member id %d", id)
}

// setWord stores n at word i, growing the bitset when i is out of range.
// Called with s.mu held.
func (s *MemberSet) setWord(i int, n uint32) {
	if i >= len(s.bits) {
		if n == 0 {
			return
		}
		grown := make([]uint32, i+2)
		copy(grown, s.bits)
		s.bits = grown
	}
	s.bits[i] = n
}

func (s *MemberSet) word(i int) uint32 {
	if i < len(s.bits) {
		return s.bits[i]
	}
	return 0
}

// Add returns true if id was not already present.
func (s *MemberSet) Add(id int) bool {
	assertId(id)
	i, mask := CalcByteOffset(id), CalcByteMask(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.word(i)
	if n&mask != 0 {
		return false
	}
	s.setWord(i, n|mask)
	return true
}

func (s *MemberSet) AddMember(m Addressable) bool {
	return s.Add(m.Id())
}

// Remove returns true if id was present.
func (s *MemberSet) Remove(id int) bool {
	assertId(id)
	i, mask := CalcByteOffset(id), CalcByteMask(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.word(i)
	if n&mask == 0 {
		return false
	}
	s.bits[i] = n &^ mask
	return true
}

func (s *MemberSet) RemoveMember(m Addressable) bool {
	return s.Remove(m.Id())
}

func (s *MemberSet) Contains(id int) bool {
	assertId(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.word(CalcByteOffset(id))&CalcByteMask(id) != 0
}

func (s *MemberSet) ContainsMember(m Addressable) bool {
	return s.Contains(m.Id())
}

// AddAll is the union; it returns true if the set changed.
func (s *MemberSet) AddAll(other Set) bool {
	words := other.Words()
	s.mu.Lock()
	defer s.mu.Unlock()
	modified := false
	for i := len(words) - 1; i >= 0; i-- {
		n := s.word(i)
		merged := n | words[i]
		if merged != n {
			s.setWord(i, merged)
			modified = true
		}
	}
	return modified
}

// RemoveAll is the difference; it returns true if the set changed.
func (s *MemberSet) RemoveAll(other Set) bool {
	words := other.Words()
	s.mu.Lock()
	defer s.mu.Unlock()
	modified := false
	for i := 0; i < len(words) && i < len(s.bits); i++ {
		n := s.bits[i]
		diff := n &^ words[i]
		if diff != n {
			s.bits[i] = diff
			modified = true
		}
	}
	return modified
}

// RetainAll is the intersection; it returns true if the set changed.
func (s *MemberSet) RetainAll(other Set) bool {
	words := other.Words()
	s.mu.Lock()
	defer s.mu.Unlock()
	modified := false
	for i, n := range s.bits {
		var keep uint32
		if i < len(words) {
			keep = n & words[i]
		}
		if keep != n {
			s.bits[i] = keep
			modified = true
		}
	}
	return modified
}

func (s *MemberSet) ContainsAll(other Set) bool {
	words := other.Words()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range words {
		if n != 0 && s.word(i)&n != n {
			return false
		}
	}
	return true
}

func (s *MemberSet) Clear() {
	s.mu.Lock()
	s.bits = nil
	s.mu.Unlock()
}

func (s *MemberSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := 0
	for _, n := range s.bits {
		c += CountBits(n)
	}
	return c
}

func (s *MemberSet) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.bits {
		if n != 0 {
			return false
		}
	}
	return true
}

// FirstId returns the lowest id in the set, or 0 if it is empty.
func (s *MemberSet) FirstId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.bits {
		if n != 0 {
			return i<<5 + RightmostBit(n) + 1
		}
	}
	return 0
}

// LastId returns the highest id in the set, or 0 if it is empty.
func (s *MemberSet) LastId() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.bits) - 1; i >= 0; i-- {
		if n := s.bits[i]; n != 0 {
			return i<<5 + LeftmostBit(n) + 1
		}
	}
	return 0
}

// NextId returns the lowest id greater than id, or 0 if there is none.
func (s *MemberSet) NextId(id int) int {
	if id <= 0 {
		return s.FirstId()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mask := ^(CalcByteMask(id)<<1 - 1)
	for i := CalcByteOffset(id); i < len(s.bits); i++ {
		if n := s.bits[i] & mask; n != 0 {
			return i<<5 + RightmostBit(n) + 1
		}
		mask = 0xFFFFFFFF
	}
	return 0
}

// PrevId returns the highest id lower than id, or 0 if there is none.
func (s *MemberSet) PrevId(id int) int {
	if id <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := CalcByteOffset(id)
	mask := CalcByteMask(id) - 1
	if i >= len(s.bits) {
		i = len(s.bits) - 1
		mask = 0xFFFFFFFF
	}
	for ; i >= 0; i-- {
		if n := s.bits[i] & mask; n != 0 {
			return i<<5 + LeftmostBit(n) + 1
		}
		mask = 0xFFFFFFFF
	}
	return 0
}

// Random picks a random non-empty word and then a random member within
// it. Members sharing a word with few others are therefore more likely to
// be chosen than members in dense words. Returns 0 for an empty set.
func (s *MemberSet) Random() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonEmpty := 0
	for _, n := range s.bits {
		if n != 0 {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	for {
		i := rand.Intn(len(s.bits))
		n := s.bits[i]
		if n == 0 {
			continue
		}
		iters := rand.Intn(CountBits(n)) + 1
		for b := 0; b < 32; b++ {
			if n&(1<<uint(b)) != 0 {
				iters--
				if iters == 0 {
					return i<<5 + b + 1
				}
			}
		}
	}
}

// ToIdArray returns the ids in ascending order.
func (s *MemberSet) ToIdArray() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return idsOf(s.bits)
}

func idsOf(words []uint32) []int {
	var ids []int
	for i, n := range words {
		for n != 0 {
			b := RightmostBit(n)
			ids = append(ids, i<<5+b+1)
			n &^= 1 << uint(b)
		}
	}
	return ids
}

// Iterate calls fn for each id in ascending order until it returns false.
// It works on a snapshot, so fn may modify the set.
func (s *MemberSet) Iterate(fn func(id int) bool) {
	for _, id := range s.ToIdArray() {
		if !fn(id) {
			return
		}
	}
}

func (s *MemberSet) Words() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := make([]uint32, len(s.bits))
	copy(w, s.bits)
	return w
}

func (s *MemberSet) Equals(other Set) bool {
	if other == nil {
		return false
	}
	return s.Size() == other.Size() && s.ContainsAll(other)
}

func (s *MemberSet) Clone() *MemberSet {
	return &MemberSet{bits: s.Words()}
}

// IdList returns the ids as a comma separated string, e.g. "1,33,64".
func (s *MemberSet) IdList() string {
	return formatIds(s.ToIdArray(), ",")
}

func formatIds(ids []int, sep string) string {
	var buf bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(strconv.Itoa(id))
	}
	return buf.String()
}

func (s *MemberSet) String() string {
	ids := s.ToIdArray()
	return "MemberSet(Size=" + strconv.Itoa(len(ids)) + ", ids=[" + formatIds(ids, ", ") + "])"
}
