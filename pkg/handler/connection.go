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
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/packet"
	"github.com/oracle/coherence-sub033/pkg/stats"
	"github.com/oracle/coherence-sub033/pkg/util"
)

type ConnectionState int

// A Connection only moves forward through these states.
const (
	StateInitial ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
	StateReleased
)

var stateNames = [...]string{"INITIAL", "CONNECTING", "CONNECTED", "DISCONNECTING", "DISCONNECTED", "RELEASED"}

func (s ConnectionState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("<unknown> %d", int(s))
}

// Connection is the bus connection to one service member.
type Connection struct {
	handler *MessageHandler
	peer    bus.EndPoint
	member  *member.Member

	mu            sync.Mutex
	state         ConnectionState
	established   bool
	cause         error
	releaseAction func()
	guard         GuardContext

	sentMessages     atomic.Int64
	receivedReceipts atomic.Int64

	// written by the service goroutine only
	suspectReceipts    atomic.Int64
	suspectTimeout     atomic.Int64
	lastHealthy        atomic.Int64
	lastHeuristicDeath atomic.Int64
}

func newConnection(h *MessageHandler, peer bus.EndPoint, m *member.Member) *Connection {
	errors.Assert(peer != nil, "nil peer")
	c := &Connection{handler: h, peer: peer, member: m}
	stats.Connections.WithLabelValues(StateInitial.String()).Inc()
	return c
}

func (c *Connection) Peer() bus.EndPoint     { return c.peer }
func (c *Connection) Member() *member.Member { return c.member }

func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setStateLocked(s ConnectionState) {
	if s == c.state {
		return
	}
	stats.Connections.WithLabelValues(c.state.String()).Dec()
	if s != StateReleased {
		stats.Connections.WithLabelValues(s.String()).Inc()
	}
	c.state = s
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	c.setStateLocked(s)
	c.mu.Unlock()
}

func (c *Connection) IsEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// Establish latches the connection as having carried inbound messages.
// It fails once the connection is being released.
func (c *Connection) Establish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state < StateDisconnecting {
		if !c.established {
			if glog.LOG_DEBUG {
				glog.Debugf("Connection established with %s", c.peer.CanonicalName())
			}
			c.established = true
		}
		return true
	}
	return false
}

func (c *Connection) IsReleased() bool {
	return c.State() >= StateDisconnecting
}

func (c *Connection) DisconnectCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Connection) SentMessageCount() int64     { return c.sentMessages.Load() }
func (c *Connection) ReceivedReceiptCount() int64 { return c.receivedReceipts.Load() }
func (c *Connection) LastHealthyMillis() int64    { return c.lastHealthy.Load() }
func (c *Connection) LastHeuristicDeath() int64   { return c.lastHeuristicDeath.Load() }
func (c *Connection) SuspectTimeoutMillis() int64 { return c.suspectTimeout.Load() }

// moreImportant reports whether the peer should outlive this member when
// both sides detect a problem.
func (c *Connection) moreImportant() bool {
	if c.member == nil {
		return false
	}
	svc := c.handler.service
	imp := svc.CompareImportance(c.member)
	if imp > 0 {
		return true
	}
	this := svc.ServiceMemberSet().ThisMember()
	return imp == 0 && this != nil && this.Timestamp() < c.member.Timestamp()
}

// DeliveryTimeout is slightly longer for peers that should survive a
// mutual timeout, so that only one side acts.
func (c *Connection) DeliveryTimeout() time.Duration {
	d := c.handler.conf.DeliveryTimeout.Duration
	if c.moreImportant() {
		d += d / 20
	}
	return d
}

// OnInterval checks for delivery progress; now is the safe time in
// milliseconds.
func (c *Connection) OnInterval(now int64) {
	recNow := c.ReceivedReceiptCount()
	recLast := c.suspectReceipts.Swap(recNow)

	switch {
	case recNow > recLast:
		if last := c.suspectTimeout.Load(); last != 0 {
			glog.Infof("Connection with %s recovered from a stalled delivery", c.peer.CanonicalName())
			if now-last > c.DeliveryTimeout().Milliseconds()/2 {
				c.lastHeuristicDeath.Store(now)
				if c.member != nil {
					c.member.SetLastHeuristicDeathMillis(now)
				}
			}
		}
		c.suspectTimeout.Store(0)
		c.lastHealthy.Store(now)
	case recNow < c.SentMessageCount():
		if deadline := c.suspectTimeout.Load(); deadline == 0 {
			c.suspectTimeout.Store(now + c.DeliveryTimeout().Milliseconds())
		} else if now > deadline {
			c.onDeliveryTimeout()
		}
	}
}

func (c *Connection) onDeliveryTimeout() {
	if c.State() < StateDisconnecting {
		glog.Infof("Disconnecting with %s after failing to deliver a message for %v",
			c.peer.CanonicalName(), c.handler.conf.DeliveryTimeout.Duration)
		stats.DeliveryTimeouts.Inc()
		c.handler.bus.Disconnect(c.peer)
	}
}

// guardTimeout shrinks as more machines are disconnected at once.
func (c *Connection) guardTimeout() time.Duration {
	h := c.handler
	max := h.conf.DeliveryTimeout.Duration * 3 / 2
	min := h.conf.GuardTimeout.Duration * 3 / 2
	d := max
	if min != 0 {
		d = max >> uint(h.hungMachineCount())
		if d < min {
			d = min
		}
	}
	if c.moreImportant() {
		d += d / 2
	}
	return d
}

func (c *Connection) onDisconnect(reason error) {
	h := c.handler
	if c.State() != StateDisconnecting && !h.IsClosing() {
		// the peer left but the departure has not been announced yet
		timeout := c.guardTimeout()
		why := "n/a"
		if reason != nil {
			why = reason.Error()
		}
		glog.Infof("Detected disconnect (%s) of %v awaiting ServiceLeft notification with timeout of %v based on %d concurrent disconnects",
			why, c, timeout, h.disconnects.Load())
		h.service.Guard(c, timeout)
	}
	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.cause = reason
	c.mu.Unlock()
}

func (c *Connection) onReleased() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		glog.Warningf("Unexpected RELEASE event: %v", c.describeLocked())
	}
	c.setStateLocked(StateReleased)
	guard := c.guard
	action := c.releaseAction
	c.releaseAction = nil
	c.mu.Unlock()

	if guard != nil {
		guard.Release()
	}
	if action != nil {
		action()
	}
}

// Release starts releasing the connection. cont runs once the peer can
// have no more messages in flight: right away when the connection never
// carried any, otherwise on the RELEASE event. Only the first call takes
// effect; a connection already releasing ignores later calls along with
// their continuations.
func (c *Connection) Release(cont func()) {
	c.mu.Lock()
	if c.state >= StateDisconnecting {
		glog.Debugf("Ignoring repeated release of %s", c.describeLocked())
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnecting)
	established := c.established
	if established {
		c.releaseAction = cont
	}
	c.mu.Unlock()

	if !established && cont != nil {
		cont()
	}
	c.handler.bus.Release(c.peer)
}

// prepareMessage creates the incoming message for a bus message. It
// returns nil for a message of a service not running here.
func (c *Connection) prepareMessage(bufs bus.BufferSequence) (*message.Message, error) {
	data := bus.Bytes(bufs)
	r := packet.NewReader(data)
	serviceId, err := r.ReadUint16()
	if err != nil {
		return nil, c.corrupted(data, err)
	}
	mt, err := r.ReadUint16()
	if err != nil {
		return nil, c.corrupted(data, err)
	}
	msgType := int(int16(mt))

	svc := c.handler.service
	if serviceId != svc.ServiceId() {
		glog.Warningf("Ignoring message from %v for locally stopped service %d; message type %d", c, serviceId, msgType)
		return nil, nil
	}
	msg := svc.InstantiateMessage(msgType)
	if msg == nil {
		return nil, c.corrupted(data, fmt.Errorf("unknown message type %d", msgType))
	}
	msg.SetFromMember(c.member)
	msg.SetReadBuffer(data)
	msg.SetDeserializationRequired(true)
	return msg, nil
}

func (c *Connection) corrupted(data []byte, err error) error {
	if len(data) > 1024 {
		data = data[:1024]
	}
	glog.Errorf("Received corrupted message from %v content 0x%s", c, util.ToHexString(data))
	return err
}

func (c *Connection) Context() GuardContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guard
}

// SetContext also tracks the machines this member is hung on.
func (c *Connection) SetContext(ctx GuardContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.member != nil {
		addr := c.member.Address().String()
		switch {
		case c.guard == nil && ctx != nil:
			c.handler.addHungMachine(addr)
		case c.guard != nil && ctx == nil:
			c.handler.removeHungMachine(addr)
		}
	}
	c.guard = ctx
}

// Terminate stops the service when the departure of a disconnected peer
// was never announced.
func (c *Connection) Terminate() {
	h := c.handler
	glog.Errorf("This member has been unexpectedly disconnected from members on %d machines running service %s; stopping service",
		util.MaxInt(1, h.hungMachineCount()), h.service.ServiceName())
	if cause := c.DisconnectCause(); cause != nil {
		glog.Error(cause)
	}
	h.service.Stop()
}

func (c *Connection) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.describeLocked()
}

func (c *Connection) describeLocked() string {
	now := util.SafeTimeMillis()
	id := 0
	if c.member != nil {
		id = c.member.Id()
	}
	state := c.state.String()
	if c.state == StateDisconnected && c.cause != nil {
		state += "(" + c.cause.Error() + ")"
	}
	kv := logging.NewKVBufferForLog()
	kv.Add("Peer", c.peer.CanonicalName()).
		Add("Service", c.handler.service.ServiceName()).
		AddInt("Member", id)
	if !c.established {
		kv.AddRaw("Not established")
	}
	kv.Add("State", state)
	if last := c.lastHealthy.Load(); last != 0 {
		kv.Add("lastAck", millis(now-last).String())
	}
	if stuck := c.lastHeuristicDeath.Load(); stuck != 0 {
		kv.Add("lastStuck", millis(now-stuck).String())
	}
	if next := c.suspectTimeout.Load(); next != 0 {
		kv.Add("pendingAckTimeout", millis(util.MaxInt64(0, next-now)).String())
	}
	kv.AddRaw(c.handler.bus.Describe(c.peer))
	return "Connection{" + kv.String() + "}"
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
