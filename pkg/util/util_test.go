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
	"fmt"
	"testing"
	"time"
)

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatal(err)
	}
	if d.Millis() != 1500 {
		t.Error(fmt.Sprintf("expected 1500ms, got %d", d.Millis()))
	}
	text, _ := d.MarshalText()
	if string(text) != "1.5s" {
		t.Errorf("unexpected text %s", text)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error")
	}
}

func TestSafeTimeMillisMonotonic(t *testing.T) {
	prev := SafeTimeMillis()
	for i := 0; i < 1000; i++ {
		now := SafeTimeMillis()
		if now < prev {
			t.Fatalf("time went backwards: %d < %d", now, prev)
		}
		prev = now
	}
}

func TestComputeSafeWaitTime(t *testing.T) {
	if ComputeSafeWaitTime(0) != 0 {
		t.Error("zero deadline must mean no timeout")
	}
	if ComputeSafeWaitTime(SafeTimeMillis()-10) != -1 {
		t.Error("expired deadline must yield -1")
	}
	if w := ComputeSafeWaitTime(SafeTimeMillis() + 10000); w <= 0 || w > 10000 {
		t.Errorf("unexpected wait %d", w)
	}
}

func TestSyncBufferManager(t *testing.T) {
	m := NewSyncBufferManager()
	b := m.Acquire(100)
	if len(b) != 100 || cap(b) != 128 {
		t.Errorf("len=%d cap=%d", len(b), cap(b))
	}
	if m.Outstanding() != 1 {
		t.Errorf("outstanding %d", m.Outstanding())
	}
	m.Release(b)
	if m.Outstanding() != 0 {
		t.Errorf("outstanding %d", m.Outstanding())
	}

	big := m.Acquire(1 << 20)
	if len(big) != 1<<20 {
		t.Errorf("len=%d", len(big))
	}
	m.Release(big)
	m.Release(nil)
}

func TestAtomicBool(t *testing.T) {
	var b AtomicBool
	if b.Get() {
		t.Error("zero value must be false")
	}
	if !b.CompareAndSet(false, true) || !b.Get() {
		t.Error("CompareAndSet false->true failed")
	}
	if b.CompareAndSet(false, true) {
		t.Error("CompareAndSet must fail when old value differs")
	}
}

func TestAtomicInt64SetMax(t *testing.T) {
	var c AtomicInt64Counter
	c.SetMax(10)
	c.SetMax(5)
	if c.Get() != 10 {
		t.Errorf("got %d", c.Get())
	}
}

func TestTimerWrapper(t *testing.T) {
	tw := NewTimerWrapper(time.Hour)
	if tw.GetTimeoutCh() != nil {
		t.Error("stopped timer must return nil channel")
	}
	tw.Reset(time.Millisecond)
	select {
	case <-tw.GetTimeoutCh():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
	tw.Stop()
	if !tw.IsStopped() {
		t.Error("expected stopped")
	}
}
