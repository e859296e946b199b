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
	"sync"
	"time"
)

// Guardable is watched by a guardian until its context is released.
type Guardable interface {
	Context() GuardContext
	SetContext(ctx GuardContext)
	Terminate()
}

type GuardContext interface {
	Release()
}

// TimerGuardian terminates a guarded target whose context is not
// released within its timeout.
type TimerGuardian struct {
	mu      sync.Mutex
	guarded map[Guardable]*timerContext
}

func NewTimerGuardian() *TimerGuardian {
	return &TimerGuardian{guarded: make(map[Guardable]*timerContext)}
}

type timerContext struct {
	g      *TimerGuardian
	target Guardable
	timer  *time.Timer
	once   sync.Once
}

// Guard replaces any earlier guard of target.
func (g *TimerGuardian) Guard(target Guardable, timeout time.Duration) {
	ctx := &timerContext{g: g, target: target}
	g.mu.Lock()
	if prev := g.guarded[target]; prev != nil {
		prev.timer.Stop()
	}
	g.guarded[target] = ctx
	ctx.timer = time.AfterFunc(timeout, ctx.expire)
	g.mu.Unlock()
	target.SetContext(ctx)
}

func (g *TimerGuardian) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.guarded)
}

func (c *timerContext) remove() bool {
	g := c.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.guarded[c.target] != c {
		return false
	}
	delete(g.guarded, c.target)
	return true
}

func (c *timerContext) expire() {
	if c.remove() {
		c.target.Terminate()
	}
}

func (c *timerContext) Release() {
	c.once.Do(func() {
		c.timer.Stop()
		if c.remove() {
			c.target.SetContext(nil)
		}
	})
}
