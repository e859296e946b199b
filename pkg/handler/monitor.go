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


package handler

import (
	"context"
	"sync"
	"time"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// monitor is a broadcast wakeup: every waiter holding the channel
// returned by wait is released by the next notifyAll.
type monitor struct {
	mu sync.Mutex
	ch chan struct{}
}

func newMonitor() *monitor {
	return &monitor{ch: make(chan struct{})}
}

func (m *monitor) wait() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

func (m *monitor) notifyAll() {
	m.mu.Lock()
	close(m.ch)
	m.ch = make(chan struct{})
	m.mu.Unlock()
}

// await blocks while blocked() holds. ldtTimeout is the deadline in safe
// time milliseconds, zero for none.
func (m *monitor) await(ctx context.Context, blocked func() bool, ldtTimeout int64) error {
	var timer *util.TimerWrapper
	for {
		ch := m.wait()
		if !blocked() {
			return nil
		}
		if ldtTimeout != 0 {
			remain := util.ComputeSafeWaitTime(ldtTimeout)
			if remain < 0 {
				return errors.ErrRequestTimeout
			}
			if timer == nil {
				timer = util.NewTimerWrapper(0)
				defer timer.Stop()
			}
			timer.Reset(millis(remain))
		}
		var timeout <-chan time.Time
		if timer != nil {
			timeout = timer.GetTimeoutCh()
		}
		select {
		case <-ch:
		case <-timeout:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
