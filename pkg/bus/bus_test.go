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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueOrder(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.Poll()
	assert.False(t, ok)

	for _, typ := range []EventType{EventConnect, EventMessage, EventDisconnect} {
		q.Add(NewEvent(typ, Name("peer"), nil))
	}
	assert.Equal(t, 3, q.Size())
	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not signalled")
	}
	for _, want := range []EventType{EventConnect, EventMessage, EventDisconnect} {
		e, ok := q.Poll()
		require.True(t, ok)
		assert.Equal(t, want, e.Type())
	}
	assert.Equal(t, 0, q.Size())
}

func TestEventQueueTake(t *testing.T) {
	q := NewEventQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Add(NewEvent(EventOpen, nil, nil))
	}()
	e, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventOpen, e.Type())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessageEventDisposesOnce(t *testing.T) {
	disposed := 0
	bufs := NewBufferSequence(func() { disposed++ }, []byte("ab"), []byte("cde"))
	assert.Equal(t, int64(5), bufs.Length())
	assert.Equal(t, "abcde", string(Bytes(bufs)))

	e := NewEvent(EventMessage, Name("peer"), bufs)
	e.Dispose()
	e.Dispose()
	bufs.Dispose()
	assert.Equal(t, 1, disposed)
	assert.Equal(t, "peer", e.EndPoint().CanonicalName())
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "BACKLOG_EXCESSIVE", EventBacklogExcessive.String())
	assert.Equal(t, "MESSAGE", EventMessage.String())
	assert.Equal(t, "EventType(42)", EventType(42).String())
	assert.Equal(t, 9, int(EventMessage))
}
