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

// Package member implements the cluster member model: identity, point
// to point statistics, flow control and the member registries.
package member

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/util"
)

const (
	DefaultPreferredPacketLength = 1468
	DefaultPreferredAckSize      = 32
)

// Identity carries the descriptive names a member is configured with.
type Identity struct {
	ClusterName string
	SiteName    string
	RackName    string
	MachineName string
	ProcessName string
	MemberName  string
	RoleName    string
	Priority    int
}

// PacketId identifies a packet by message id and part index.
type PacketId struct {
	MessageId int64
	PartIndex int
}

func (p PacketId) Compare(o PacketId) int {
	if c := cmp64(p.MessageId, o.MessageId); c != 0 {
		return c
	}
	return cmp64(int64(p.PartIndex), int64(o.PartIndex))
}

func (p PacketId) String() string {
	return strconv.FormatInt(p.MessageId, 10) + ":" + strconv.Itoa(p.PartIndex)
}

// Member is a cluster node as seen from this node. Identity fields are
// assign-once; counters and timestamps are safe for concurrent update.
type Member struct {
	mu         sync.RWMutex
	id         int
	byteOffset int
	byteMask   uint32
	uuid       UUID
	address    net.IP
	port       int
	machineId  int
	timestamp  int64
	identity   Identity

	dead    atomic.Bool
	deaf    atomic.Bool
	leaving atomic.Bool

	statsSent     atomic.Int64
	statsResent   atomic.Int64
	statsReceived atomic.Int64
	statsRepeated atomic.Int64
	statsReset    atomic.Int64

	lastInMillis             atomic.Int64
	lastOutMillis            atomic.Int64
	lastSlowMillis           atomic.Int64
	lastHeuristicDeathMillis atomic.Int64
	lastTimeoutMillis        atomic.Int64

	preferredPacketLength atomic.Int32
	preferredAckSize      atomic.Int32
	nextMessageId         atomic.Int64

	wmu                    sync.Mutex
	contiguousFromPacketId PacketId
	newestFromPacketId     PacketId
	contiguousToPacketId   PacketId
	newestToPacketId       PacketId

	flowControl *FlowControl
	sentQueue   *SentQueue
}

// NewMember creates an unconfigured member. A FlowControl is attached
// only when fc is non nil and enabled.
func NewMember(fc *FlowControlConfig) *Member {
	m := &Member{
		sentQueue: NewSentQueue(),
	}
	m.statsReset.Store(util.SafeTimeMillis())
	m.preferredPacketLength.Store(DefaultPreferredPacketLength)
	m.preferredAckSize.Store(DefaultPreferredAckSize)
	if fc != nil && fc.Enabled {
		m.flowControl = newFlowControl(m, fc)
	}
	return m
}

func CalcByteOffset(id int) int {
	return memberset.CalcByteOffset(id)
}

func CalcByteMask(id int) uint32 {
	return memberset.CalcByteMask(id)
}

func (m *Member) Id() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

func (m *Member) ByteOffset() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byteOffset
}

func (m *Member) ByteMask() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byteMask
}

// SetId assigns the member id. Setting a different id once assigned
// panics.
func (m *Member) SetId(id int) {
	errors.Assert(id > 0, "invalid member id %d", id)
	m.mu.Lock()
	defer m.mu.Unlock()
	errors.Assert(m.id == 0 || m.id == id, "member id already assigned: %d, new %d", m.id, id)
	m.id = id
	m.byteOffset = CalcByteOffset(id)
	m.byteMask = CalcByteMask(id)
}

func (m *Member) UUID() UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uuid
}

func (m *Member) SetUUID(u UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errors.Assert(m.uuid.IsZero() || m.uuid.Equals(u), "member uuid already assigned")
	m.uuid = u
}

func (m *Member) Address() net.IP {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

func (m *Member) Port() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.port
}

func (m *Member) MachineId() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.machineId
}

func (m *Member) Timestamp() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timestamp
}

func (m *Member) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

func (m *Member) ClusterName() string { return m.Identity().ClusterName }
func (m *Member) MachineName() string { return m.Identity().MachineName }
func (m *Member) MemberName() string  { return m.Identity().MemberName }
func (m *Member) RoleName() string    { return m.Identity().RoleName }

// SocketAddress returns "host:port" for the member's datagram endpoint.
func (m *Member) SocketAddress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host := ""
	if m.address != nil {
		host = m.address.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(m.port))
}

func (m *Member) setAddress(addr net.IP) {
	errors.Assert(addr != nil, "nil member address")
	errors.Assert(m.address == nil || m.address.Equal(addr),
		"member address already assigned: %s, new %s", m.address, addr)
	m.address = addr
}

func (m *Member) setPort(port int) {
	errors.Assert(port >= 0 && port <= 0xFFFF, "invalid port %d", port)
	errors.Assert(m.port == 0 || m.port == port, "member port already assigned: %d, new %d", m.port, port)
	m.port = port
}

func (m *Member) setMachineId(id int) {
	errors.Assert(id >= 0 && id <= 0xFFFF, "invalid machine id %d", id)
	errors.Assert(m.machineId == 0 || m.machineId == id,
		"member machine id already assigned: %d, new %d", m.machineId, id)
	m.machineId = id
}

func setOnce(field *string, name string, v string) {
	errors.Assert(*field == "" || *field == v, "member %s already assigned: %q, new %q", name, *field, v)
	*field = v
}

func (m *Member) setIdentity(id Identity) {
	setOnce(&m.identity.ClusterName, "cluster name", id.ClusterName)
	setOnce(&m.identity.SiteName, "site name", id.SiteName)
	setOnce(&m.identity.RackName, "rack name", id.RackName)
	setOnce(&m.identity.MachineName, "machine name", id.MachineName)
	setOnce(&m.identity.ProcessName, "process name", id.ProcessName)
	setOnce(&m.identity.MemberName, "member name", id.MemberName)
	setOnce(&m.identity.RoleName, "role name", id.RoleName)
	m.identity.Priority = id.Priority
}

func (m *Member) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPort(port)
}

func (m *Member) SetMachineId(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setMachineId(id)
}

// Configure sets the descriptive identity and address of the local
// member. A nil address means the unspecified address.
func (m *Member) Configure(identity Identity, addr net.IP) {
	if addr == nil {
		addr = net.IPv4zero
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAddress(addr)
	m.timestamp = util.SafeTimeMillis()
	m.setIdentity(identity)
}

// ConfigureFromUUID takes timestamp, address, port and machine id from u.
// Without an included address the member must not have an id yet.
func (m *Member) ConfigureFromUUID(u UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, port, machineId := net.IPv4zero, 0, 0
	if m.id > 0 || u.IsAddressIncluded() {
		if a := u.Address(); a != nil {
			addr = a
		}
		port = u.Port()
		machineId = u.Count() & 0xFFFF
	}
	m.timestamp = u.Timestamp()
	m.setAddress(addr)
	m.setPort(port)
	m.setMachineId(machineId)
	errors.Assert(m.uuid.IsZero() || m.uuid.Equals(u), "member uuid already assigned")
	m.uuid = u
}

// ConfigureFrom copies the identity of other; ldt overrides the
// timestamp when positive.
func (m *Member) ConfigureFrom(other *Member, ldt int64) {
	other.mu.RLock()
	addr, port, machineId, ts, identity, u := other.address, other.port, other.machineId,
		other.timestamp, other.identity, other.uuid
	other.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if ldt <= 0 {
		ldt = ts
	}
	m.timestamp = ldt
	if addr != nil {
		m.setAddress(addr)
	}
	m.setPort(port)
	m.setMachineId(machineId)
	m.setIdentity(identity)
	if m.uuid.IsZero() {
		m.uuid = u
	}
}

// ConfigureDead describes a member known only by id and uuid that died
// at ldtDeath.
func (m *Member) ConfigureDead(id int, u UUID, ldtDeath int64) {
	m.SetId(id)
	m.ConfigureFromUUID(u)
	m.SetDead(true)
	m.mu.Lock()
	m.timestamp = ldtDeath
	m.mu.Unlock()
}

func (m *Member) IsDead() bool {
	return m.dead.Load()
}

// SetDead marks the member dead. Only true is accepted; the first call
// refreshes the timestamp and every call clears the deaf flag.
func (m *Member) SetDead(dead bool) {
	errors.Assert(dead, "a dead member cannot be revived")
	if m.dead.CAS(false, true) {
		m.mu.Lock()
		m.timestamp = util.SafeTimeMillis()
		m.mu.Unlock()
	}
	m.deaf.Store(false)
}

func (m *Member) IsDeaf() bool {
	return m.deaf.Load()
}

func (m *Member) SetDeaf(deaf bool) {
	m.deaf.Store(deaf)
}

// DeclareZombie marks a dead member which keeps emitting heartbeats.
func (m *Member) DeclareZombie() {
	errors.Assert(m.IsDead(), "only a dead member can become a zombie")
	m.mu.Lock()
	m.timestamp = util.SafeTimeMillis()
	m.mu.Unlock()
	m.deaf.Store(true)
}

func (m *Member) IsZombie() bool {
	return m.IsDead() && m.IsDeaf()
}

func (m *Member) IsLeaving() bool {
	return m.leaving.Load()
}

func (m *Member) SetLeaving(leaving bool) {
	m.leaving.Store(leaving)
}

func (m *Member) IsCollocated(other *Member) bool {
	a := m.Address()
	return a != nil && a.Equal(other.Address())
}

func (m *Member) FlowControl() *FlowControl {
	return m.flowControl
}

func (m *Member) RecentPacketQueue() *SentQueue {
	return m.sentQueue
}

func (m *Member) StatsSent() int64     { return m.statsSent.Load() }
func (m *Member) StatsResent() int64   { return m.statsResent.Load() }
func (m *Member) StatsReceived() int64 { return m.statsReceived.Load() }
func (m *Member) StatsRepeated() int64 { return m.statsRepeated.Load() }
func (m *Member) StatsReset() int64    { return m.statsReset.Load() }

func (m *Member) AddStatsSent(n int64)     { m.statsSent.Add(n) }
func (m *Member) AddStatsResent(n int64)   { m.statsResent.Add(n) }
func (m *Member) AddStatsReceived(n int64) { m.statsReceived.Add(n) }
func (m *Member) AddStatsRepeated(n int64) { m.statsRepeated.Add(n) }

func (m *Member) PublisherSuccessRate() float64 {
	sent := m.StatsSent()
	if sent == 0 {
		return 1.0
	}
	return 1.0 - float64(m.StatsResent())/float64(sent)
}

func (m *Member) ReceiverSuccessRate() float64 {
	received := m.StatsReceived()
	if received == 0 {
		return 1.0
	}
	return 1.0 - float64(m.StatsRepeated())/float64(received)
}

func (m *Member) ResetStats() {
	if fc := m.flowControl; fc != nil {
		fc.ResetStats()
	}
	m.statsSent.Store(0)
	m.statsResent.Store(0)
	m.statsReceived.Store(0)
	m.statsRepeated.Store(0)
	m.statsReset.Store(util.SafeTimeMillis())
}

func (m *Member) LastIncomingMillis() int64       { return m.lastInMillis.Load() }
func (m *Member) LastOutgoingMillis() int64       { return m.lastOutMillis.Load() }
func (m *Member) LastSlowMillis() int64           { return m.lastSlowMillis.Load() }
func (m *Member) LastHeuristicDeathMillis() int64 { return m.lastHeuristicDeathMillis.Load() }
func (m *Member) LastTimeoutMillis() int64        { return m.lastTimeoutMillis.Load() }

func (m *Member) SetLastIncomingMillis(ldt int64)       { m.lastInMillis.Store(ldt) }
func (m *Member) SetLastOutgoingMillis(ldt int64)       { m.lastOutMillis.Store(ldt) }
func (m *Member) SetLastSlowMillis(ldt int64)           { m.lastSlowMillis.Store(ldt) }
func (m *Member) SetLastHeuristicDeathMillis(ldt int64) { m.lastHeuristicDeathMillis.Store(ldt) }
func (m *Member) SetLastTimeoutMillis(ldt int64)        { m.lastTimeoutMillis.Store(ldt) }

func (m *Member) IsTimedOut() bool {
	return m.LastTimeoutMillis() != 0
}

func (m *Member) PreferredPacketLength() int {
	return int(m.preferredPacketLength.Load())
}

// SetPreferredPacketLength ignores non positive lengths.
func (m *Member) SetPreferredPacketLength(n int) {
	if n > 0 {
		m.preferredPacketLength.Store(int32(n))
	}
}

func (m *Member) PreferredAckSize() int {
	return int(m.preferredAckSize.Load())
}

func (m *Member) SetPreferredAckSize(n int) {
	if n > 0 {
		m.preferredAckSize.Store(int32(n))
	}
}

// NextDestinationMessageId returns the next message id addressed to this
// member, starting at 1.
func (m *Member) NextDestinationMessageId() int64 {
	return m.nextMessageId.Inc()
}

func (m *Member) ContiguousFromPacketId() PacketId {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.contiguousFromPacketId
}

func (m *Member) SetContiguousFromPacketId(p PacketId) {
	m.wmu.Lock()
	m.contiguousFromPacketId = p
	m.wmu.Unlock()
}

func (m *Member) NewestFromPacketId() PacketId {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.newestFromPacketId
}

// UpdateNewestFromPacketId raises the watermark to p if p is newer.
func (m *Member) UpdateNewestFromPacketId(p PacketId) {
	m.wmu.Lock()
	if p.Compare(m.newestFromPacketId) > 0 {
		m.newestFromPacketId = p
	}
	m.wmu.Unlock()
}

func (m *Member) ContiguousToPacketId() PacketId {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.contiguousToPacketId
}

func (m *Member) SetContiguousToPacketId(p PacketId) {
	m.wmu.Lock()
	m.contiguousToPacketId = p
	m.wmu.Unlock()
}

func (m *Member) NewestToPacketId() PacketId {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.newestToPacketId
}

func (m *Member) UpdateNewestToPacketId(p PacketId) {
	m.wmu.Lock()
	if p.Compare(m.newestToPacketId) > 0 {
		m.newestToPacketId = p
	}
	m.wmu.Unlock()
}

// Equals compares members by uuid.
func (m *Member) Equals(o *Member) bool {
	if m == o {
		return true
	}
	if o == nil {
		return false
	}
	return m.UUID().Equals(o.UUID())
}

func (m *Member) Compare(o *Member) int {
	return m.UUID().Compare(o.UUID())
}

// LocationInfo renders the non empty location names as
// "site:s,rack:r,machine:m,process:p,member:n".
func (m *Member) LocationInfo() string {
	id := m.Identity()
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+":"+v)
		}
	}
	add("site", id.SiteName)
	add("rack", id.RackName)
	add("machine", id.MachineName)
	add("process", id.ProcessName)
	add("member", id.MemberName)
	return strings.Join(parts, ",")
}

// formatRate truncates d to four decimal places.
func formatRate(d float64) string {
	return strconv.FormatFloat(float64(int64(d*10000))/10000, 'f', -1, 64)
}

func sinceMillis(now, ldt int64) string {
	if ldt == 0 {
		return "n/a"
	}
	return strconv.FormatInt(now-ldt, 10) + "ms"
}

// FormatStats returns the point to point statistics of communication with
// this member.
func (m *Member) FormatStats() string {
	now := util.SafeTimeMillis()
	b := logging.NewKVBufferForLog()
	b.Add("PublisherSuccessRate", formatRate(m.PublisherSuccessRate()))
	b.Add("ReceiverSuccessRate", formatRate(m.ReceiverSuccessRate()))
	if fc := m.flowControl; fc != nil {
		b.AddRaw(fc.FormatStats(true))
	}
	b.Add("LastIn", sinceMillis(now, m.LastIncomingMillis()))
	b.Add("LastOut", sinceMillis(now, m.LastOutgoingMillis()))
	b.Add("LastSlow", sinceMillis(now, m.LastSlowMillis()))
	b.Add("LastHeuristicDeath", sinceMillis(now, m.LastHeuristicDeathMillis()))
	return b.String()
}

func (m *Member) String() string {
	return m.toString(false)
}

// Describe is String with the point to point statistics appended.
func (m *Member) Describe() string {
	return m.toString(true)
}

func (m *Member) toString(withStats bool) string {
	var buf bytes.Buffer
	m.mu.RLock()
	addr := "n/a"
	if m.address != nil {
		addr = m.address.String()
	}
	fmt.Fprintf(&buf, "Member(Id=%d, Timestamp=%s, Address=%s:%d, MachineId=%d",
		m.id, time.UnixMilli(m.timestamp).Format("2006-01-02 15:04:05.000"),
		addr, m.port, m.machineId)
	role := m.identity.RoleName
	m.mu.RUnlock()
	if loc := m.LocationInfo(); loc != "" {
		buf.WriteString(", Location=")
		buf.WriteString(loc)
	}
	if role != "" {
		buf.WriteString(", Role=")
		buf.WriteString(role)
	}
	if withStats {
		buf.WriteString(", ")
		buf.WriteString(m.FormatStats())
	}
	buf.WriteByte(')')
	return buf.String()
}

// FindWeakestMember returns the member with the worst ratio of traffic
// to errors, or nil when no member has errors.
func FindWeakestMember(members []*Member) *Member {
	var (
		worst     *Member
		worstRate int64 = 1<<63 - 1
	)
	for _, m := range members {
		if m == nil {
			continue
		}
		errs := m.StatsResent() + m.StatsRepeated()
		if errs <= 0 {
			continue
		}
		rate := (m.StatsSent() + m.StatsReceived()) / errs
		if rate < worstRate {
			worstRate = rate
			worst = m
		}
	}
	return worst
}
