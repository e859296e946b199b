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


package bus

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/v2/lists/doublylinkedlist"
)

// EventQueue is an unbounded FIFO of events. Ready fires at least once
// after each Add; a consumer polls until the queue is empty before
// waiting on Ready again.
type EventQueue struct {
	mu    sync.Mutex
	list  *doublylinkedlist.List[Event]
	ready chan struct{}
}

func NewEventQueue() *EventQueue {
	return &EventQueue{
		list:  doublylinkedlist.New[Event](),
		ready: make(chan struct{}, 1),
	}
}

func (q *EventQueue) Add(e Event) {
	q.mu.Lock()
	q.list.Add(e)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Poll removes and returns the oldest event without blocking.
func (q *EventQueue) Poll() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.list.Get(0)
	if ok {
		q.list.Remove(0)
	}
	return e, ok
}

// Take blocks until an event is available or ctx is done.
func (q *EventQueue) Take(ctx context.Context) (Event, error) {
	for {
		if e, ok := q.Poll(); ok {
			return e, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *EventQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *EventQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Size()
}
