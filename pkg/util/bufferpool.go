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

package util

import (
	"sync"
)

// BufferManager hands out pooled byte buffers. A buffer returned by
// Acquire has length size; its capacity may be larger.
type BufferManager interface {
	Acquire(size int) []byte
	Release(buf []byte)
}

const (
	minBufferClassShift = 6  // 64B
	maxBufferClassShift = 17 // 128KiB
	numBufferClasses    = maxBufferClassShift - minBufferClassShift + 1
)

// SyncBufferManager keeps one sync.Pool per power-of-two size class.
// Requests larger than the largest class are allocated directly and
// dropped on release.
type SyncBufferManager struct {
	pools    [numBufferClasses]sync.Pool
	acquired AtomicInt64Counter
	released AtomicInt64Counter
}

func NewSyncBufferManager() *SyncBufferManager {
	m := &SyncBufferManager{}
	for i := range m.pools {
		size := 1 << (minBufferClassShift + i)
		m.pools[i].New = func() interface{} {
			b := make([]byte, size)
			return &b
		}
	}
	return m
}

func bufferClass(size int) int {
	for i := 0; i < numBufferClasses; i++ {
		if size <= 1<<(minBufferClassShift+i) {
			return i
		}
	}
	return -1
}

func (m *SyncBufferManager) Acquire(size int) []byte {
	m.acquired.Add(1)
	c := bufferClass(size)
	if c < 0 {
		return make([]byte, size)
	}
	bp := m.pools[c].Get().(*[]byte)
	return (*bp)[:size]
}

func (m *SyncBufferManager) Release(buf []byte) {
	if buf == nil {
		return
	}
	m.released.Add(1)
	c := cap(buf)
	if c < 1<<minBufferClassShift || c > 1<<maxBufferClassShift || c&(c-1) != 0 {
		return
	}
	b := buf[:c]
	m.pools[bufferClass(c)].Put(&b)
}

// Outstanding returns the number of acquired buffers not yet released.
func (m *SyncBufferManager) Outstanding() int64 {
	return m.acquired.Get() - m.released.Get()
}

// HeapBufferManager allocates every buffer and ignores releases. It is
// handy for tools that decode a single datagram.
type HeapBufferManager struct{}

func (HeapBufferManager) Acquire(size int) []byte { return make([]byte, size) }
func (HeapBufferManager) Release([]byte)          {}
