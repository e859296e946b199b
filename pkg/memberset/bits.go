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
	"github.com/oracle/coherence-sub033/pkg/errors"
)

// Per byte lookup tables. bitId is the 1-based position of the only set
// bit, 0 when the byte has none or several; bitLeftmost and bitRightmost
// are -1 for the zero byte.
var (
	bitCount     [256]int8
	bitId        [256]int8
	bitLeftmost  [256]int8
	bitRightmost [256]int8
)

func init() {
	bitLeftmost[0], bitRightmost[0] = -1, -1
	for b := 1; b < 256; b++ {
		bitCount[b] = bitCount[b>>1] + int8(b&1)
		if b&1 == 0 {
			bitRightmost[b] = bitRightmost[b>>1] + 1
		}
		bitLeftmost[b] = bitLeftmost[b>>1] + 1
	}
	for i := 0; i < 8; i++ {
		bitId[1<<uint(i)] = int8(i + 1)
	}
}

// CalcByteOffset returns the index of the 32-bit word holding id.
func CalcByteOffset(id int) int {
	return (id - 1) >> 5
}

// CalcByteMask returns the single-bit mask of id within its word.
func CalcByteMask(id int) uint32 {
	return 1 << uint((id-1)&0x1F)
}

func CountBits(n uint32) int {
	return int(bitCount[n&0xFF]) + int(bitCount[n>>8&0xFF]) +
		int(bitCount[n>>16&0xFF]) + int(bitCount[n>>24])
}

// LeftmostBit returns the index (0..31) of the highest set bit, or -1.
func LeftmostBit(n uint32) int {
	for of := uint(24); n != 0; of -= 8 {
		if b := (n >> of) & 0xFF; b != 0 {
			return int(of) + int(bitLeftmost[b])
		}
	}
	return -1
}

// RightmostBit returns the index (0..31) of the lowest set bit, or -1.
func RightmostBit(n uint32) int {
	for of := uint(0); n != 0 && of < 32; of += 8 {
		if b := (n >> of) & 0xFF; b != 0 {
			return int(of) + int(bitRightmost[b])
		}
	}
	return -1
}

// TranslateBit maps a single-bit mask in word wordIndex back to its
// member id. Exactly one bit must be set.
func TranslateBit(wordIndex int, mask uint32) int {
	errors.Assert(mask != 0, "no bit was set: word=%d", wordIndex)
	id, base := 0, wordIndex<<5
	for m := mask; m != 0; m >>= 8 {
		if b := m & 0xFF; b != 0 {
			n := int(bitId[b])
			errors.Assert(id == 0 && n != 0, "more than one bit was set: word=%d mask=0x%08x", wordIndex, mask)
			id = base + n
		}
		base += 8
	}
	return id
}
