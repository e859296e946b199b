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
	"bytes"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteOffsetAndMask(t *testing.T) {
	assert.Equal(t, 0, CalcByteOffset(1))
	assert.Equal(t, uint32(1), CalcByteMask(1))
	assert.Equal(t, 1, CalcByteOffset(33))
	assert.Equal(t, uint32(1), CalcByteMask(33))
	assert.Equal(t, 0, CalcByteOffset(32))
	assert.Equal(t, uint32(1<<31), CalcByteMask(32))

	for id := 1; id <= MaxMembers; id++ {
		if TranslateBit(CalcByteOffset(id), CalcByteMask(id)) != id {
			t.Fatalf("translate mismatch for %d", id)
		}
	}
}

func TestTranslateBitPanics(t *testing.T) {
	assert.Panics(t, func() { TranslateBit(0, 0x3) })
	assert.Panics(t, func() { TranslateBit(2, 0) })
	assert.Panics(t, func() { TranslateBit(1, 0x00010100) }, "bits in two bytes")
}

func TestLeftRightmostBit(t *testing.T) {
	assert.Equal(t, -1, LeftmostBit(0))
	assert.Equal(t, -1, RightmostBit(0))
	assert.Equal(t, 31, LeftmostBit(0x80000001))
	assert.Equal(t, 0, RightmostBit(0x80000001))
	assert.Equal(t, 4, CountBits(0xF0))
}

func TestBitTablesMatchWordScan(t *testing.T) {
	words := []uint32{0, 1, 0x80, 0x100, 0x8000, 0x10000, 0x800000, 0x1000000, 0xFFFFFFFF, 0x00F00F00}
	for b := uint32(0); b < 256; b++ {
		words = append(words, b, b<<8, b<<16, b<<24)
	}
	r := rand.New(rand.NewSource(33))
	for i := 0; i < 1000; i++ {
		words = append(words, r.Uint32())
	}
	for _, n := range words {
		require.Equal(t, bits.OnesCount32(n), CountBits(n), "count 0x%08x", n)
		if n == 0 {
			continue
		}
		require.Equal(t, 31-bits.LeadingZeros32(n), LeftmostBit(n), "leftmost 0x%08x", n)
		require.Equal(t, bits.TrailingZeros32(n), RightmostBit(n), "rightmost 0x%08x", n)
	}
}

func TestAddRemoveContains(t *testing.T) {
	s := NewMemberSet()
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Add(5))
	assert.False(t, s.Add(5))
	assert.True(t, s.Add(100))
	assert.True(t, s.Contains(5))
	assert.True(t, s.Contains(100))
	assert.False(t, s.Contains(6))
	assert.False(t, s.Contains(1000))
	assert.Equal(t, 2, s.Size())

	assert.True(t, s.Remove(5))
	assert.False(t, s.Remove(5))
	assert.False(t, s.Remove(4000))
	assert.Equal(t, 1, s.Size())

	s.Clear()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.FirstId())

	assert.Panics(t, func() { s.Add(0) })
	assert.Panics(t, func() { s.Contains(-1) })
}

func TestSetAlgebra(t *testing.T) {
	a := NewMemberSetOf(1, 2, 3, 40, 70)
	b := NewMemberSetOf(3, 40, 200)

	u := a.Clone()
	assert.True(t, u.AddAll(b))
	assert.False(t, u.AddAll(b))
	assert.Equal(t, []int{1, 2, 3, 40, 70, 200}, u.ToIdArray())

	d := a.Clone()
	assert.True(t, d.RemoveAll(b))
	assert.Equal(t, []int{1, 2, 70}, d.ToIdArray())

	i := a.Clone()
	assert.True(t, i.RetainAll(b))
	assert.False(t, i.RetainAll(b))
	assert.Equal(t, []int{3, 40}, i.ToIdArray())

	assert.True(t, a.ContainsAll(i))
	assert.False(t, a.ContainsAll(b))
	assert.True(t, i.Equals(NewMemberSetOf(40, 3)))
	assert.False(t, i.Equals(a))

	// retainAll with a shorter set zeroes the high words
	big := NewMemberSetOf(1, 500)
	assert.True(t, big.RetainAll(NewSingleMemberSet(1)))
	assert.Equal(t, []int{1}, big.ToIdArray())
}

// Navigation must agree with a linear scan of Contains.
func TestNavigationMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		s := NewMemberSet()
		limit := 1 + r.Intn(400)
		n := r.Intn(60)
		for i := 0; i < n; i++ {
			s.Add(1 + r.Intn(limit))
		}
		max := 32 * (len(s.Words()) + 1)

		var present []int
		for id := 1; id <= max; id++ {
			if s.Contains(id) {
				present = append(present, id)
			}
		}
		assert.Equal(t, present, s.ToIdArray())

		if len(present) == 0 {
			assert.Equal(t, 0, s.FirstId())
			assert.Equal(t, 0, s.LastId())
			continue
		}
		assert.Equal(t, present[0], s.FirstId())
		assert.Equal(t, present[len(present)-1], s.LastId())

		for id := 0; id <= max; id++ {
			next, prev := 0, 0
			for _, p := range present {
				if p > id && next == 0 {
					next = p
				}
				if p < id {
					prev = p
				}
			}
			require.Equalf(t, next, s.NextId(id), "next after %d in %v", id, present)
			require.Equalf(t, prev, s.PrevId(id), "prev before %d in %v", id, present)
		}
	}
}

func TestNextIdAtWordBoundary(t *testing.T) {
	s := NewMemberSetOf(32, 33, 64, 65)
	assert.Equal(t, 33, s.NextId(32))
	assert.Equal(t, 64, s.NextId(33))
	assert.Equal(t, 65, s.NextId(64))
	assert.Equal(t, 0, s.NextId(65))
	assert.Equal(t, 64, s.PrevId(65))
	assert.Equal(t, 32, s.PrevId(33))
	assert.Equal(t, 65, s.PrevId(1000))
	assert.Equal(t, 0, s.PrevId(0))
}

func TestRandom(t *testing.T) {
	assert.Equal(t, 0, NewMemberSet().Random())

	s := NewMemberSetOf(3, 77, 500)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		id := s.Random()
		require.True(t, s.Contains(id))
		seen[id] = true
	}
	assert.Len(t, seen, 3)
}

func roundTrip(t *testing.T, s Set) *MemberSet {
	var buf bytes.Buffer
	require.NoError(t, WriteExternal(&buf, s))
	out, err := ReadMemberSet(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len(), "trailing bytes")
	return out
}

func TestExternalLayouts(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewMemberSet().WriteExternal(&buf))
	assert.Equal(t, []byte{0, 0}, buf.Bytes())

	buf.Reset()
	require.NoError(t, NewMemberSetOf(300).WriteExternal(&buf))
	assert.Equal(t, []byte{0, 1, 0x01, 0x2C}, buf.Bytes())

	buf.Reset()
	few := NewMemberSetOf(1, 33, 64, 300)
	require.NoError(t, few.WriteExternal(&buf))
	assert.Equal(t, []byte{0, 4, 4, 0, 1, 0, 33, 0, 64, 0x01, 0x2C}, buf.Bytes())
	assert.True(t, few.Equals(roundTrip(t, few)))

	many := NewMemberSet()
	for id := 1; id <= 600; id += 2 {
		many.Add(id)
	}
	require.Equal(t, 300, many.Size())
	buf.Reset()
	require.NoError(t, many.WriteExternal(&buf))
	words := CalcByteOffset(599) + 1
	assert.Equal(t, 2+1+4*words, buf.Len())
	assert.Equal(t, byte(words), buf.Bytes()[2])
	assert.True(t, many.Equals(roundTrip(t, many)))
}

func TestExternalTrimsTrailingWords(t *testing.T) {
	s := NewMemberSet()
	for id := 1; id <= 300; id++ {
		s.Add(id)
	}
	s.Add(1000)
	s.Remove(1000)
	var buf bytes.Buffer
	require.NoError(t, s.WriteExternal(&buf))
	assert.Equal(t, byte(10), buf.Bytes()[2])
	assert.True(t, s.Equals(roundTrip(t, s)))
}

func TestExternalRoundTripSizes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 254, 255, 1000} {
		s := NewMemberSet()
		for id := 1; id <= n; id++ {
			s.Add(id * 3)
		}
		out := roundTrip(t, s)
		assert.Equal(t, n, out.Size())
		assert.True(t, s.Equals(out))
	}
}

func TestReadExternalMalformed(t *testing.T) {
	// 300 members claimed, zero words
	_, err := ReadMemberSet(bytes.NewReader([]byte{0x01, 0x2C, 0}))
	assert.ErrorIs(t, err, ErrMalformedMemberSet)

	_, err = ReadMemberSet(bytes.NewReader([]byte{0, 3, 3, 0, 1}))
	assert.Error(t, err)

	// a single id of zero is ignored
	s, err := ReadMemberSet(bytes.NewReader([]byte{0, 1, 0, 0}))
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestSingleMemberSet(t *testing.T) {
	s := NewSingleMemberSet(0)
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Add(40))
	assert.False(t, s.Add(40))
	assert.Panics(t, func() { s.Add(41) })
	assert.Equal(t, 40, s.FirstId())
	assert.Equal(t, 40, s.NextId(39))
	assert.Equal(t, 0, s.NextId(40))
	assert.Equal(t, 40, s.PrevId(41))
	assert.Equal(t, []int{40}, s.ToIdArray())

	full := NewMemberSetOf(40)
	assert.True(t, full.Equals(s))
	assert.True(t, full.Equals(roundTrip(t, s)))

	assert.True(t, s.Remove(40))
	assert.True(t, s.IsEmpty())
	assert.Nil(t, s.Words())
	assert.True(t, EmptySet.IsEmpty())
}

type fakeMember int

func (f fakeMember) Id() int { return int(f) }

func TestInstantiate(t *testing.T) {
	assert.True(t, Instantiate(nil).IsEmpty())
	assert.Equal(t, 9, Instantiate(fakeMember(9)).FirstId())

	s := NewMemberSet()
	assert.True(t, s.AddMember(fakeMember(9)))
	assert.True(t, s.ContainsMember(fakeMember(9)))
	assert.True(t, s.RemoveMember(fakeMember(9)))
}

func TestIdListAndString(t *testing.T) {
	s := NewMemberSetOf(64, 1, 33)
	assert.Equal(t, "1,33,64", s.IdList())
	assert.Equal(t, "MemberSet(Size=3, ids=[1, 33, 64])", s.String())
}

func TestBarriers(t *testing.T) {
	s := NewMemberSetOf(1, 2, 65)
	done := make(chan int)
	value := 0
	go func() {
		value = 42
		s.WriteBarrier()
		done <- 1
	}()
	<-done
	s.ReadBarrier()
	assert.Equal(t, 42, value)
	WriteBarrier(7)
	ReadBarrier(7)
}
