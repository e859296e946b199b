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

/*
Package util implements some utility functions.
*/
package util

import (
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
)

func Murmur3Hash(data []byte) uint32 {
	return murmur3.Sum32(data)
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() (text []byte, err error) {
	text = []byte(d.Duration.String())
	return
}

// Millis returns the duration in whole milliseconds.
func (d Duration) Millis() int64 {
	return d.Duration.Milliseconds()
}

var lastSafeMillis int64

// SafeTimeMillis returns the wall clock in milliseconds, never moving
// backwards even if the system clock does.
func SafeTimeMillis() int64 {
	now := time.Now().UnixMilli()
	for {
		last := atomic.LoadInt64(&lastSafeMillis)
		if now <= last {
			return last
		}
		if atomic.CompareAndSwapInt64(&lastSafeMillis, last, now) {
			return now
		}
	}
}

// ComputeSafeWaitTime returns the number of milliseconds left before
// the deadline ldtTimeout, or -1 once it has passed. A zero timeout
// means "no timeout" and yields 0.
func ComputeSafeWaitTime(ldtTimeout int64) int64 {
	if ldtTimeout == 0 {
		return 0
	}
	remain := ldtTimeout - SafeTimeMillis()
	if remain <= 0 {
		return -1
	}
	return remain
}

func ToHexString(b []byte) string {
	return hex.EncodeToString(b)
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
