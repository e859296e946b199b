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

package member

import (
	"sync"

	"github.com/emirpasic/gods/v2/lists/doublylinkedlist"
	"github.com/emirpasic/gods/v2/trees/redblacktree"
)

// Deferrable is a packet that can wait in a DeferredQueue.
type Deferrable interface {
	PendingResendSkips() int
	SetPendingResendSkips(n int)
}

// Comparator orders deferred packets; zero means the same packet.
type Comparator func(a, b Deferrable) int

// DeferredQueue is an ordered set of packets held back by flow control.
type DeferredQueue struct {
	mu   sync.Mutex
	tree *redblacktree.Tree[Deferrable, struct{}]
	seq  map[Deferrable]uint64
	next uint64
}

// NewDeferredQueue orders by c, or by insertion when c is nil.
func NewDeferredQueue(c Comparator) *DeferredQueue {
	q := &DeferredQueue{}
	if c == nil {
		q.seq = make(map[Deferrable]uint64)
		c = q.insertionOrder
	}
	q.tree = redblacktree.NewWith[Deferrable, struct{}](func(a, b Deferrable) int { return c(a, b) })
	return q
}

// IsOrdered reports whether the queue was given a comparator.
func (q *DeferredQueue) IsOrdered() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq == nil
}

func (q *DeferredQueue) insertionOrder(a, b Deferrable) int {
	x, y := q.seq[a], q.seq[b]
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// Add inserts p and reports whether p is now the last element. Adding a
// packet already held consumes one of its pending resend skips instead.
func (q *DeferredQueue) Add(p Deferrable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.contains(p) {
		if n := p.PendingResendSkips(); n > 0 {
			p.SetPendingResendSkips(n - 1)
		}
	} else {
		if q.seq != nil {
			q.next++
			q.seq[p] = q.next
		}
		q.tree.Put(p, struct{}{})
	}
	return q.tree.Right().Key == p
}

func (q *DeferredQueue) contains(p Deferrable) bool {
	if q.seq != nil {
		_, ok := q.seq[p]
		return ok
	}
	_, ok := q.tree.Get(p)
	return ok
}

func (q *DeferredQueue) Contains(p Deferrable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.contains(p)
}

func (q *DeferredQueue) Remove(p Deferrable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.contains(p) {
		return false
	}
	q.tree.Remove(p)
	if q.seq != nil {
		delete(q.seq, p)
	}
	return true
}

// Peek returns the first packet or nil.
func (q *DeferredQueue) Peek() Deferrable {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := q.tree.Left(); n != nil {
		return n.Key
	}
	return nil
}

// Poll removes and returns the first packet, or nil when empty.
func (q *DeferredQueue) Poll() Deferrable {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.tree.Left()
	if n == nil {
		return nil
	}
	p := n.Key
	q.tree.Remove(p)
	if q.seq != nil {
		delete(q.seq, p)
	}
	return p
}

func (q *DeferredQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Size()
}

func (q *DeferredQueue) Snapshot() []Deferrable {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Keys()
}

// SentQueue is the FIFO of packets recently sent to a member.
type SentQueue struct {
	mu   sync.Mutex
	list *doublylinkedlist.List[interface{}]
}

func NewSentQueue() *SentQueue {
	return &SentQueue{list: doublylinkedlist.New[interface{}]()}
}

func (q *SentQueue) Add(p interface{}) {
	q.mu.Lock()
	q.list.Add(p)
	q.mu.Unlock()
}

func (q *SentQueue) Remove(p interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.list.IndexOf(p)
	if i < 0 {
		return false
	}
	q.list.Remove(i)
	return true
}

// Poll removes and returns the oldest packet, or nil when empty.
func (q *SentQueue) Poll() interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.list.Get(0)
	if !ok {
		return nil
	}
	q.list.Remove(0)
	return p
}

func (q *SentQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Size()
}

func (q *SentQueue) Snapshot() []interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Values()
}
