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
	"sync"
)

const numMonitors = 64

// Common monitors give happens-before edges for per-member state that is
// written by one goroutine and read by others without holding a lock for
// the whole access. Id 0 is the monitor shared by whole-set operations.
var monitors [numMonitors]sync.RWMutex

func monitorFor(id int) *sync.RWMutex {
	return &monitors[id&(numMonitors-1)]
}

// WriteBarrier publishes writes made before the call to any goroutine
// that later calls ReadBarrier for the same id.
func WriteBarrier(id int) {
	m := monitorFor(id)
	m.Lock()
	m.Unlock()
}

// ReadBarrier makes writes published by WriteBarrier for id visible.
func ReadBarrier(id int) {
	m := monitorFor(id)
	m.RLock()
	m.RUnlock()
}

// WriteBarrier publishes writes for every member of the set and for the
// shared monitor.
func (s *MemberSet) WriteBarrier() {
	WriteBarrier(0)
	s.Iterate(func(id int) bool {
		WriteBarrier(id)
		return true
	})
}

func (s *MemberSet) ReadBarrier() {
	ReadBarrier(0)
	s.Iterate(func(id int) bool {
		ReadBarrier(id)
		return true
	})
}
