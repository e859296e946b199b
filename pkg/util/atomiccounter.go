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
	"sync/atomic"
)

type AtomicInt64Counter struct {
	cnt int64
}

func (c *AtomicInt64Counter) Get() int64 {
	return atomic.LoadInt64(&c.cnt)
}

func (c *AtomicInt64Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.cnt, delta)
}

func (c *AtomicInt64Counter) Reset() {
	atomic.StoreInt64(&c.cnt, 0)
}

func (c *AtomicInt64Counter) Set(cnt int64) {
	atomic.StoreInt64(&c.cnt, cnt)
}

// SetMax raises the counter to cnt if it is currently lower, as used
// for "newest seen" watermarks.
func (c *AtomicInt64Counter) SetMax(cnt int64) {
	for {
		cur := atomic.LoadInt64(&c.cnt)
		if cnt <= cur || atomic.CompareAndSwapInt64(&c.cnt, cur, cnt) {
			return
		}
	}
}

// AtomicBool is a flag readable across goroutines without a lock.
type AtomicBool struct {
	v int32
}

func (b *AtomicBool) Get() bool {
	return atomic.LoadInt32(&b.v) != 0
}

func (b *AtomicBool) Set(v bool) {
	if v {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}

// CompareAndSet returns true if the flag was old and is now v.
func (b *AtomicBool) CompareAndSet(old, v bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if v {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, n)
}
