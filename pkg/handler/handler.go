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


// Package handler carries service messages over a MessageBus. A
// MessageHandler keeps one Connection per peer endpoint, hands messages
// that cannot use the bus to a parent publisher, and turns bus backlog
// into flow control for the senders.
package handler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/atomic"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
	"github.com/oracle/coherence-sub033/pkg/member"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/message"
	"github.com/oracle/coherence-sub033/pkg/stats"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// Service is the grid service a MessageHandler carries messages for.
type Service interface {
	message.Service
	ServiceName() string
	ServiceMemberSet() *member.ServiceMemberSet
	// InstantiateMessage returns nil for an unknown message type.
	InstantiateMessage(messageType int) *message.Message
	// DeserializeMessage returns false if the message is to be dropped.
	// It is expected to release the incoming buffers of the message, as
	// MessageHandler.DeserializeMessage does.
	DeserializeMessage(m *message.Message) bool
	OnMessage(m *message.Message)
	// CompareImportance is positive when m is more important than this
	// member.
	CompareImportance(m *member.Member) int
	Guard(g Guardable, timeout time.Duration)
	Stop()
	Flush()
	OnException(err error)
}

// Publisher takes outgoing messages. The packet publisher serves as the
// parent of a MessageHandler, and handlers may be layered.
type Publisher interface {
	Post(m *message.Message) bool
	Flush()
	DrainOverflow(ctx context.Context, set *memberset.MemberSet, timeout time.Duration) (time.Duration, error)
}

type MessageHandler struct {
	conf      Config
	service   Service
	bus       bus.MessageBus
	parent    Publisher
	codec     message.Codec
	filter    message.Filter
	collector *EventCollector
	incoming  *bus.EventQueue

	mu          sync.RWMutex
	connections map[string]*Connection

	hmu     sync.Mutex
	hungIPs map[string]struct{}

	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once

	globalBacklog atomic.Bool
	localBacklog  atomic.Bool
	globalMonitor *monitor
	localMonitor  *monitor
	peerMonitors  sync.Map

	pendingParentFlush atomic.Bool
	disconnects        atomic.Int64

	statsBusSends            atomic.Int64
	statsBusReceives         atomic.Int64
	statsBusBytesIn          atomic.Int64
	statsBusBytesOut         atomic.Int64
	statsBusBytesOutBuffered atomic.Int64
	statsBacklogGlobal       atomic.Int64
	statsBacklogLocal        atomic.Int64
	statsBacklogDirect       atomic.Int64
	statsDrainMillis         atomic.Int64

	dmu       sync.Mutex
	drainHist *hdrhistogram.Histogram
}

func NewMessageHandler(conf Config) *MessageHandler {
	conf.SetDefaultIfNotDefined()
	h := &MessageHandler{
		conf:          conf,
		codec:         message.MsgpackCodec{},
		filter:        message.SnappyFilter{Threshold: conf.CompressionThreshold},
		incoming:      bus.NewEventQueue(),
		connections:   make(map[string]*Connection),
		hungIPs:       make(map[string]struct{}),
		closed:        make(chan struct{}),
		globalMonitor: newMonitor(),
		localMonitor:  newMonitor(),
		drainHist:     hdrhistogram.New(1, 3600*1000, 3),
	}
	h.collector = &EventCollector{handler: h}
	return h
}

// Initialize attaches the handler to its service and opens the bus. The
// parent may be nil when every member is reachable over the bus.
func (h *MessageHandler) Initialize(service Service, b bus.MessageBus, parent Publisher) error {
	errors.Assert(h.service == nil, "Already initialized")
	h.service = service
	h.bus = b
	h.parent = parent
	b.SetEventCollector(h.collector)
	return b.Open()
}

func (h *MessageHandler) Service() Service              { return h.service }
func (h *MessageHandler) MessageBus() bus.MessageBus    { return h.bus }
func (h *MessageHandler) EventCollector() bus.Collector { return h.collector }
func (h *MessageHandler) IsClosing() bool               { return h.closing.Load() }
func (h *MessageHandler) IsGlobalBacklog() bool         { return h.globalBacklog.Load() }
func (h *MessageHandler) IsLocalBacklog() bool          { return h.localBacklog.Load() }

// Connection returns nil if peer is not registered.
func (h *MessageHandler) Connection(peer bus.EndPoint) *Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections[peer.CanonicalName()]
}

func (h *MessageHandler) Connections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		out = append(out, c)
	}
	return out
}

func (h *MessageHandler) removeConnection(peer bus.EndPoint) *Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := peer.CanonicalName()
	c := h.connections[name]
	delete(h.connections, name)
	return c
}

// Connect registers a connection to the member at peer. It returns false
// when the bus cannot reach peer, in which case the member keeps using
// the parent publisher.
func (h *MessageHandler) Connect(m *member.Member, peer bus.EndPoint) bool {
	name := peer.CanonicalName()
	h.mu.Lock()
	_, dup := h.connections[name]
	var conn *Connection
	if !dup {
		conn = newConnection(h, peer, m)
		conn.setState(StateConnecting)
		h.connections[name] = conn
	}
	h.mu.Unlock()
	errors.Assert(!dup, "Connect request out of order: %s", name)

	if err := h.bus.Connect(peer); err != nil {
		local := h.bus.LocalEndPoint().CanonicalName()
		if stderrors.Is(err, errors.ErrIncompatible) {
			glog.Infof("Unable to connect to %s using %s (%v), falling back on default cluster transport", name, local, err)
		} else {
			glog.Warningf("Unable to connect to %s using %s: %v", name, local, err)
		}
		h.removeConnection(peer)
		conn.setState(StateReleased)
		return false
	}
	glog.Infof("Registered %v", conn)
	return true
}

// ConnectAll connects to every service member that advertises a bus
// endpoint and is not connected yet.
func (h *MessageHandler) ConnectAll() {
	set := h.service.ServiceMemberSet()
	this := set.ThisMember()
	for _, m := range set.Members() {
		id := m.Id()
		if m == this || set.ServiceEndPoint(id) != nil {
			continue
		}
		var peer bus.EndPoint
		if name := set.ServiceEndPointName(id); name != "" {
			p, err := h.bus.Resolve(name)
			if err != nil {
				glog.Warningf("Unable to resolve endpoint %s of member %d: %v", name, id, err)
			} else {
				peer = p
				if h.Connect(m, p) {
					set.SetServiceEndPoint(id, p)
				}
			}
		}
		canonical := ""
		if peer != nil {
			canonical = peer.CanonicalName()
		}
		set.SetServiceEndPointName(id, canonical)
	}
}

func (h *MessageHandler) checkReleased(peer bus.EndPoint) bool {
	conn := h.Connection(peer)
	return conn == nil || conn.IsReleased()
}

// Post sends msg to its recipients. Recipients without a bus endpoint
// are handed to the parent publisher.
func (h *MessageHandler) Post(msg *message.Message) bool {
	if h.IsClosing() {
		return false
	}
	to := msg.ToMemberSet()
	errors.Assert(to != nil, "MessageBus cannot be used to broadcast")

	switch to.Size() {
	case 0:
		return false
	case 1:
		peer := h.service.ServiceMemberSet().ServiceEndPoint(to.FirstId())
		if peer == nil {
			return h.postParent(msg)
		}
		bufs, err := h.serializeMessage(msg)
		if err != nil {
			h.service.OnException(err)
			return false
		}
		n := bufs.Length()
		h.addBuffered(n)
		if !h.send(peer, bufs, msg) {
			h.addBuffered(-n)
			return false
		}
		h.statsBusSends.Inc()
		h.statsBusBytesOut.Add(n)
		stats.BusSends.Inc()
		stats.BusBytesOut.Add(float64(n))
		return true
	default:
		return h.postMulti(msg)
	}
}

// send reports whether the bus accepted bufs. A failure caused by a
// concurrent release is expected, any other is passed to the service.
func (h *MessageHandler) send(peer bus.EndPoint, bufs bus.BufferSequence, msg *message.Message) bool {
	conn := h.Connection(peer)
	var err error
	if conn == nil {
		err = errors.ErrUnknownPeer.Wrap("%s", peer.CanonicalName())
	} else {
		err = h.bus.Send(peer, bufs, msg)
	}
	if err != nil {
		msg.ReleaseOutgoing(true)
		if !h.IsClosing() && !h.checkReleased(peer) {
			h.service.OnException(err)
		}
		return false
	}
	conn.sentMessages.Inc()
	return true
}

func (h *MessageHandler) postParent(msg *message.Message) bool {
	if h.parent != nil && h.parent.Post(msg) {
		h.pendingParentFlush.Store(true)
		return true
	}
	return false
}

func (h *MessageHandler) postMulti(msg *message.Message) bool {
	svcSet := h.service.ServiceMemberSet()
	to := msg.ToMemberSet()
	var (
		bufs   bus.BufferSequence
		sent   bool
		cbSent int64
		cbMsg  int64
	)
	for _, id := range to.ToIdArray() {
		errors.Assert(id != 0, "member id 0 in %v", to)
		peer := svcSet.ServiceEndPoint(id)
		if peer == nil {
			continue
		}
		if bufs == nil {
			var err error
			if bufs, err = h.serializeMessage(msg); err != nil {
				h.service.OnException(err)
				return sent
			}
			cbMsg = bufs.Length()
		}
		// the bus now owns this recipient
		to.Remove(id)
		if h.send(peer, bufs, msg) {
			cbSent += cbMsg
			sent = true
		}
	}
	if cbSent != 0 {
		h.statsBusSends.Inc()
		h.statsBusBytesOut.Add(cbSent)
		h.addBuffered(cbSent)
		stats.BusSends.Inc()
		stats.BusBytesOut.Add(float64(cbSent))
	}
	if !to.IsEmpty() && h.postParent(msg) {
		sent = true
	}
	return sent
}

// serializeMessage serializes msg once, whatever the number of
// recipients; the buffers are released after the last receipt.
func (h *MessageHandler) serializeMessage(msg *message.Message) (bus.BufferSequence, error) {
	if bufs, ok := msg.BufferController().(bus.BufferSequence); ok {
		// already serialized by a layered handler
		return bufs, nil
	}
	data, err := message.Serialize(msg, h.codec, h.filter)
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", msg.Name(), err)
	}
	mgr := h.service.BufferManager()
	buf := mgr.Acquire(len(data))
	copy(buf, data)
	bufs := bus.NewBufferSequence(func() { mgr.Release(buf) }, buf)
	msg.SetBufferController(bufs, msg.ToMemberSet().Size())
	return bufs, nil
}

// DeserializeMessage decodes an incoming message into v, or into its
// Payload when v is nil, and releases its buffers.
func (h *MessageHandler) DeserializeMessage(msg *message.Message, v interface{}) error {
	defer msg.ReleaseIncoming()
	if v == nil {
		v = &msg.Payload
	}
	hdr, err := message.Deserialize(msg.ReadBuffer(), h.codec, h.filter, v)
	if err != nil {
		return err
	}
	if hdr.ToPollId != 0 {
		msg.SetToPollId(hdr.ToPollId)
	}
	msg.SetDeserializationRequired(false)
	return nil
}

func (h *MessageHandler) addBuffered(n int64) {
	h.statsBusBytesOutBuffered.Add(n)
	stats.BusBytesOutBuffered.Add(float64(n))
}

func (h *MessageHandler) peerMonitor(peer bus.EndPoint) *monitor {
	if m, ok := h.peerMonitors.Load(peer.CanonicalName()); ok {
		return m.(*monitor)
	}
	m, _ := h.peerMonitors.LoadOrStore(peer.CanonicalName(), newMonitor())
	return m.(*monitor)
}

// DrainOverflow blocks until no backlog applies to the members of set,
// for at most timeout (zero waits forever). It returns the time left.
func (h *MessageHandler) DrainOverflow(ctx context.Context, set *memberset.MemberSet, timeout time.Duration) (time.Duration, error) {
	if set.Size() == 1 && !h.globalBacklog.Load() && !h.localBacklog.Load() {
		svcSet := h.service.ServiceMemberSet()
		id := set.FirstId()
		if svcSet.ServiceEndPoint(id) != nil && !svcSet.IsServiceBacklogged(id) {
			return timeout, nil
		}
	}
	start := util.SafeTimeMillis()
	remain, err := h.drainOverflowComplex(ctx, set, timeout)
	if d := util.SafeTimeMillis() - start; d > 0 {
		h.statsDrainMillis.Add(d)
		h.dmu.Lock()
		h.drainHist.RecordValue(d)
		h.dmu.Unlock()
		stats.DrainOverflowSeconds.Observe(float64(d) / 1000)
	}
	return remain, err
}

func (h *MessageHandler) drainOverflowComplex(ctx context.Context, set *memberset.MemberSet, timeout time.Duration) (time.Duration, error) {
	var ldtTimeout int64
	if timeout > 0 {
		ldtTimeout = util.SafeTimeMillis() + util.MaxInt64(1, timeout.Milliseconds())
	}
	if h.globalBacklog.Load() {
		if err := h.globalMonitor.await(ctx, h.globalBacklog.Load, ldtTimeout); err != nil {
			return 0, err
		}
	}
	if h.localBacklog.Load() {
		if err := h.localMonitor.await(ctx, h.localBacklog.Load, ldtTimeout); err != nil {
			return 0, err
		}
	}

	svcSet := h.service.ServiceMemberSet()
	parent := false
	for _, id := range set.ToIdArray() {
		peer := svcSet.ServiceEndPoint(id)
		if peer == nil {
			parent = true
			continue
		}
		backlogged := func() bool { return svcSet.IsServiceBacklogged(id) }
		if backlogged() {
			if err := h.peerMonitor(peer).await(ctx, backlogged, ldtTimeout); err != nil {
				return 0, err
			}
		}
	}

	remain := util.ComputeSafeWaitTime(ldtTimeout)
	if remain < 0 {
		return 0, errors.ErrRequestTimeout
	}
	if parent && h.parent != nil {
		return h.parent.DrainOverflow(ctx, set, millis(remain))
	}
	return millis(remain), nil
}

func (h *MessageHandler) Flush() {
	h.bus.Flush()
	if h.pendingParentFlush.CAS(true, false) && h.parent != nil {
		h.parent.Flush()
	}
}

// Release releases the connection to peer; cont runs once no message of
// the peer can still be in flight.
func (h *MessageHandler) Release(peer bus.EndPoint, cont func()) error {
	conn := h.Connection(peer)
	if conn == nil {
		return errors.ErrNoConnection.Wrap("No connection to: %s", peer.CanonicalName())
	}
	conn.Release(cont)
	return nil
}

// OnInterval runs the delivery timeout check of every connection. It is
// called on the service goroutine every IntervalPeriod.
func (h *MessageHandler) OnInterval() {
	now := util.SafeTimeMillis()
	for _, c := range h.Connections() {
		c.OnInterval(now)
	}
}

func (h *MessageHandler) postEvent(e bus.Event) {
	h.incoming.Add(e)
}

// EventsReady fires when bus events wait for ProcessEvents.
func (h *MessageHandler) EventsReady() <-chan struct{} {
	return h.incoming.Ready()
}

// ProcessEvents handles the queued bus events on the calling (service)
// goroutine and returns how many were handled.
func (h *MessageHandler) ProcessEvents() (n int) {
	for {
		e, ok := h.incoming.Poll()
		if !ok {
			return
		}
		h.OnBusEvent(e)
		n++
	}
}

// OnBusEvent handles one event on the service goroutine.
func (h *MessageHandler) OnBusEvent(e bus.Event) {
	defer e.Dispose()
	switch e.Type() {
	case bus.EventOpen:
	case bus.EventClose:
		h.onClose()
	case bus.EventConnect:
		h.onConnect(e.EndPoint())
	case bus.EventMessage:
		if err := h.onMessage(e); err != nil {
			h.service.OnException(err)
		}
	case bus.EventDisconnect:
		reason, _ := e.Content().(error)
		h.onDisconnect(e.EndPoint(), reason)
	case bus.EventRelease:
		h.onReleased(e.EndPoint())
	case bus.EventBacklogExcessive:
		h.onBacklog(e.EndPoint(), true)
	case bus.EventBacklogNormal:
		h.onBacklog(e.EndPoint(), false)
	}
}

func (h *MessageHandler) onClose() {
	h.onBacklog(h.bus.LocalEndPoint(), false)
	h.onBacklog(nil, false)
	h.closeOnce.Do(func() { close(h.closed) })
}

func (h *MessageHandler) onConnect(peer bus.EndPoint) {
	conn := h.Connection(peer)
	if conn == nil {
		// a rogue connection, or a member that left the service
		// while this one was joining
		h.bus.Release(peer)
		return
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	switch conn.state {
	case StateConnecting:
		conn.setStateLocked(StateConnected)
	case StateDisconnecting:
		// released before the CONNECT event was processed
	default:
		errors.Fatalf("Unexpected Connect event: %s", conn.describeLocked())
	}
}

func (h *MessageHandler) onDisconnect(peer bus.EndPoint, reason error) {
	if conn := h.Connection(peer); conn != nil {
		conn.onDisconnect(reason)
	}
}

func (h *MessageHandler) onReleased(peer bus.EndPoint) {
	h.onBacklog(peer, false)
	if conn := h.removeConnection(peer); conn != nil {
		conn.onReleased()
		if glog.LOG_DEBUG {
			glog.Debugf("Unregistered %v", conn)
		}
	}
}

// onMessage handles a message that arrived before its connection was
// registered.
func (h *MessageHandler) onMessage(e bus.Event) error {
	conn := h.Connection(e.EndPoint())
	if conn == nil {
		glog.Debugf("Discarding a message from disconnected or unknown peer: %s", e.EndPoint().CanonicalName())
		return nil
	}
	if !conn.IsEstablished() && !conn.Establish() {
		glog.Debugf("Ignoring delayed message from departing %v", conn)
		return nil
	}
	return h.deliver(conn, e)
}

func (h *MessageHandler) deliver(conn *Connection, e bus.Event) error {
	bufs, _ := e.Content().(bus.BufferSequence)
	msg, err := conn.prepareMessage(bufs)
	if err != nil || msg == nil {
		e.Dispose()
		return err
	}
	// the event is disposed with the incoming buffers of the message
	msg.SetBufferController(e, 1)
	if h.service.DeserializeMessage(msg) {
		h.service.OnMessage(msg)
	}
	return nil
}

// processMessage handles a MESSAGE event on the bus goroutine.
func (h *MessageHandler) processMessage(e bus.Event) error {
	bufs, ok := e.Content().(bus.BufferSequence)
	if !ok {
		e.Dispose()
		return fmt.Errorf("MESSAGE event without content from %v", e.EndPoint())
	}
	n := bufs.Length()
	h.statsBusReceives.Inc()
	h.statsBusBytesIn.Add(n)
	stats.BusReceives.Inc()
	stats.BusBytesIn.Add(float64(n))

	conn := h.Connection(e.EndPoint())
	if conn == nil {
		// not accepted yet, the service has not called Connect for
		// this endpoint
		h.postEvent(e)
		return nil
	}
	if !conn.IsEstablished() && !conn.Establish() {
		glog.Debugf("Ignoring delayed message from departing %v", conn)
		e.Dispose()
		return nil
	}
	return h.deliver(conn, e)
}

func (h *MessageHandler) processReceipt(peer bus.EndPoint, msg *message.Message, suspect bool) {
	if msg == nil {
		glog.Warning("received a delivery receipt for a null message")
		return
	}
	bufs, ok := msg.BufferController().(bus.BufferSequence)
	if !ok {
		glog.Warningf("received a delivery receipt for a disposed message: %v", msg)
		return
	}
	h.addBuffered(-bufs.Length())
	if conn := h.Connection(peer); conn != nil {
		conn.receivedReceipts.Inc()
	}
	msg.ReleaseOutgoing(suspect)
}

func (h *MessageHandler) onBacklog(peer bus.EndPoint, excessive bool) {
	switch {
	case peer == nil:
		h.setBacklog(&h.globalBacklog, h.globalMonitor, excessive, &h.statsBacklogGlobal, stats.ScopeGlobal)
	case peer.CanonicalName() == h.bus.LocalEndPoint().CanonicalName():
		h.setBacklog(&h.localBacklog, h.localMonitor, excessive, &h.statsBacklogLocal, stats.ScopeLocal)
	default:
		conn := h.Connection(peer)
		if conn == nil || conn.member == nil {
			return
		}
		set := h.service.ServiceMemberSet()
		id := conn.member.Id()
		if excessive {
			set.SetServiceBacklogged(id, true)
			h.statsBacklogDirect.Inc()
			stats.BacklogEvents.WithLabelValues(stats.ScopeDirect).Inc()
			if glog.LOG_DEBUG {
				glog.Debugf("Backlog on %s (member %d)", peer.CanonicalName(), id)
			}
		} else if set.IsServiceBacklogged(id) {
			set.SetServiceBacklogged(id, false)
			h.peerMonitor(conn.peer).notifyAll()
		}
	}
}

func (h *MessageHandler) setBacklog(flag *atomic.Bool, mon *monitor, excessive bool, counter *atomic.Int64, scope string) {
	if excessive {
		flag.Store(true)
		counter.Inc()
		stats.BacklogEvents.WithLabelValues(scope).Inc()
		if glog.LOG_DEBUG {
			glog.Debugf("Entering %s backlog", scope)
		}
	} else if flag.Swap(false) {
		if glog.LOG_DEBUG {
			glog.Debugf("Leaving %s backlog", scope)
		}
		mon.notifyAll()
	}
}

// Close closes the bus and handles the remaining disconnect and release
// events until the bus reports CLOSE. It is called on the service
// goroutine.
func (h *MessageHandler) Close(ctx context.Context) error {
	if h.closing.CAS(false, true) {
		if err := h.bus.Close(); err != nil {
			return err
		}
	}
	for {
		if e, ok := h.incoming.Poll(); ok {
			switch t := e.Type(); t {
			case bus.EventDisconnect, bus.EventRelease:
				h.OnBusEvent(e)
			case bus.EventClose:
				h.OnBusEvent(e)
				return nil
			default:
				e.Dispose()
			}
			continue
		}
		select {
		case <-h.incoming.Ready():
		case <-h.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *MessageHandler) addHungMachine(addr string) {
	h.hmu.Lock()
	h.hungIPs[addr] = struct{}{}
	h.hmu.Unlock()
}

func (h *MessageHandler) removeHungMachine(addr string) {
	h.hmu.Lock()
	delete(h.hungIPs, addr)
	h.hmu.Unlock()
}

func (h *MessageHandler) hungMachineCount() int {
	h.hmu.Lock()
	defer h.hmu.Unlock()
	return len(h.hungIPs)
}

func (h *MessageHandler) StatsBusSends() int64            { return h.statsBusSends.Load() }
func (h *MessageHandler) StatsBusReceives() int64         { return h.statsBusReceives.Load() }
func (h *MessageHandler) StatsBusBytesIn() int64          { return h.statsBusBytesIn.Load() }
func (h *MessageHandler) StatsBusBytesOut() int64         { return h.statsBusBytesOut.Load() }
func (h *MessageHandler) StatsBusBytesOutBuffered() int64 { return h.statsBusBytesOutBuffered.Load() }
func (h *MessageHandler) StatsBacklogGlobal() int64       { return h.statsBacklogGlobal.Load() }
func (h *MessageHandler) StatsBacklogLocal() int64        { return h.statsBacklogLocal.Load() }
func (h *MessageHandler) StatsBacklogDirect() int64       { return h.statsBacklogDirect.Load() }
func (h *MessageHandler) StatsDrainOverflowMillis() int64 { return h.statsDrainMillis.Load() }

// DrainOverflowPercentile returns the q-th percentile, in milliseconds,
// of the time senders were blocked on backlog.
func (h *MessageHandler) DrainOverflowPercentile(q float64) int64 {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	return h.drainHist.ValueAtQuantile(q)
}

// ResetStats keeps the buffered byte count, which tracks live buffers.
func (h *MessageHandler) ResetStats() {
	h.statsBusSends.Store(0)
	h.statsBusReceives.Store(0)
	h.statsBusBytesIn.Store(0)
	h.statsBusBytesOut.Store(0)
	h.statsBacklogGlobal.Store(0)
	h.statsBacklogLocal.Store(0)
	h.statsBacklogDirect.Store(0)
	h.statsDrainMillis.Store(0)
	h.dmu.Lock()
	h.drainHist.Reset()
	h.dmu.Unlock()
}

func (h *MessageHandler) String() string {
	h.mu.RLock()
	n := len(h.connections)
	h.mu.RUnlock()
	closing := ""
	if h.IsClosing() {
		closing = ", closing"
	}
	return fmt.Sprintf("MessageHandler{Service=%s%s, connections=%d, disconnectedIPs=%d, backlogs=(%d/%d/%d), bus=%v}",
		h.service.ServiceName(), closing, n, h.hungMachineCount(),
		h.StatsBacklogGlobal(), h.StatsBacklogLocal(), h.StatsBacklogDirect(), h.bus)
}
