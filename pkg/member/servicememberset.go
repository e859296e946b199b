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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oracle/coherence-sub033/pkg/bus"
	"github.com/oracle/coherence-sub033/pkg/memberset"
	"github.com/oracle/coherence-sub033/pkg/util"
)

// ServiceState is the membership state of a member within a service.
type ServiceState int

const (
	ServiceNew ServiceState = iota
	ServiceJoining
	ServiceJoined
	ServiceLeaving
)

func (s ServiceState) String() string {
	switch s {
	case ServiceNew:
		return "NEW"
	case ServiceJoining:
		return "JOINING"
	case ServiceJoined:
		return "JOINED"
	case ServiceLeaving:
		return "LEAVING"
	}
	return "<unknown>"
}

type serviceInfo struct {
	endPoint     bus.EndPoint
	endPointName string
	joinTime     int64
	state        ServiceState
	backlogged   util.AtomicBool
}

// ServiceMemberSet is the authoritative registry of the members running
// a service, with the bus endpoint and backlog state of each.
type ServiceMemberSet struct {
	*ActualMemberSet

	imu          sync.RWMutex
	info         map[int]*serviceInfo
	serviceId    int
	serviceName  string
	thisMember   *Member
	oldestMember *Member
	lastJoinTime int64
}

func NewServiceMemberSet(serviceId int, serviceName string) *ServiceMemberSet {
	return &ServiceMemberSet{
		ActualMemberSet: NewActualMemberSet(),
		info:            make(map[int]*serviceInfo),
		serviceId:       serviceId,
		serviceName:     serviceName,
	}
}

func (s *ServiceMemberSet) ServiceId() int      { return s.serviceId }
func (s *ServiceMemberSet) ServiceName() string { return s.serviceName }

func (s *ServiceMemberSet) ensureInfo(id int) *serviceInfo {
	s.imu.Lock()
	defer s.imu.Unlock()
	si, ok := s.info[id]
	if !ok {
		si = &serviceInfo{}
		s.info[id] = si
	}
	return si
}

func (s *ServiceMemberSet) getInfo(id int) *serviceInfo {
	s.imu.RLock()
	defer s.imu.RUnlock()
	return s.info[id]
}

// Add registers m; its join time defaults to now.
func (s *ServiceMemberSet) Add(m *Member) bool {
	added := s.ActualMemberSet.Add(m)
	si := s.ensureInfo(m.Id())
	s.imu.Lock()
	if si.joinTime == 0 {
		si.joinTime = util.SafeTimeMillis()
	}
	s.updateOldest(m, si.joinTime)
	s.imu.Unlock()
	return added
}

func (s *ServiceMemberSet) updateOldest(m *Member, joinTime int64) {
	if joinTime > s.lastJoinTime {
		s.lastJoinTime = joinTime
	}
	if s.oldestMember == nil {
		s.oldestMember = m
		return
	}
	if old := s.info[s.oldestMember.Id()]; old == nil || joinTime < old.joinTime {
		s.oldestMember = m
	}
}

func (s *ServiceMemberSet) Remove(id int) bool {
	if !s.ActualMemberSet.Remove(id) {
		return false
	}
	s.imu.Lock()
	defer s.imu.Unlock()
	delete(s.info, id)
	if s.oldestMember != nil && s.oldestMember.Id() == id {
		s.oldestMember = nil
		for mid, si := range s.info {
			m := s.ActualMemberSet.Member(mid)
			if m == nil {
				continue
			}
			if s.oldestMember == nil || si.joinTime < s.info[s.oldestMember.Id()].joinTime {
				s.oldestMember = m
			}
		}
	}
	return true
}

func (s *ServiceMemberSet) RemoveMember(m *Member) bool {
	return s.Remove(m.Id())
}

func (s *ServiceMemberSet) ThisMember() *Member {
	s.imu.RLock()
	defer s.imu.RUnlock()
	return s.thisMember
}

func (s *ServiceMemberSet) SetThisMember(m *Member) {
	s.imu.Lock()
	s.thisMember = m
	s.imu.Unlock()
}

// OldestMember is the member with the earliest service join time.
func (s *ServiceMemberSet) OldestMember() *Member {
	s.imu.RLock()
	defer s.imu.RUnlock()
	return s.oldestMember
}

func (s *ServiceMemberSet) LastJoinTime() int64 {
	s.imu.RLock()
	defer s.imu.RUnlock()
	return s.lastJoinTime
}

// ServiceEndPoint returns nil for members using the datagram transport.
func (s *ServiceMemberSet) ServiceEndPoint(id int) bus.EndPoint {
	if si := s.getInfo(id); si != nil {
		s.imu.RLock()
		defer s.imu.RUnlock()
		return si.endPoint
	}
	return nil
}

// SetServiceEndPoint also clears the backlogged flag of the member.
func (s *ServiceMemberSet) SetServiceEndPoint(id int, point bus.EndPoint) {
	si := s.ensureInfo(id)
	s.imu.Lock()
	si.endPoint = point
	s.imu.Unlock()
	si.backlogged.Set(false)
}

func (s *ServiceMemberSet) ServiceEndPointName(id int) string {
	if si := s.getInfo(id); si != nil {
		s.imu.RLock()
		defer s.imu.RUnlock()
		return si.endPointName
	}
	return ""
}

func (s *ServiceMemberSet) SetServiceEndPointName(id int, name string) {
	si := s.ensureInfo(id)
	s.imu.Lock()
	si.endPointName = name
	s.imu.Unlock()
}

func (s *ServiceMemberSet) IsServiceBacklogged(id int) bool {
	if si := s.getInfo(id); si != nil {
		return si.backlogged.Get()
	}
	return false
}

func (s *ServiceMemberSet) SetServiceBacklogged(id int, backlogged bool) {
	s.ensureInfo(id).backlogged.Set(backlogged)
}

func (s *ServiceMemberSet) ServiceJoinTime(id int) int64 {
	if si := s.getInfo(id); si != nil {
		s.imu.RLock()
		defer s.imu.RUnlock()
		return si.joinTime
	}
	return 0
}

func (s *ServiceMemberSet) SetServiceJoinTime(id int, ldt int64) {
	si := s.ensureInfo(id)
	s.imu.Lock()
	defer s.imu.Unlock()
	si.joinTime = ldt
	if m := s.ActualMemberSet.Member(id); m != nil {
		s.updateOldest(m, ldt)
	}
}

func (s *ServiceMemberSet) State(id int) ServiceState {
	if si := s.getInfo(id); si != nil {
		s.imu.RLock()
		defer s.imu.RUnlock()
		return si.state
	}
	return ServiceNew
}

func (s *ServiceMemberSet) SetState(id int, state ServiceState) {
	si := s.ensureInfo(id)
	s.imu.Lock()
	si.state = state
	s.imu.Unlock()
}

func (s *ServiceMemberSet) IsServiceJoined(id int) bool  { return s.State(id) == ServiceJoined }
func (s *ServiceMemberSet) IsServiceJoining(id int) bool { return s.State(id) == ServiceJoining }
func (s *ServiceMemberSet) IsServiceLeaving(id int) bool { return s.State(id) == ServiceLeaving }

// CompareSeniority orders a before b when a joined the service first.
func (s *ServiceMemberSet) CompareSeniority(a, b *Member) int64 {
	return s.ServiceJoinTime(a.Id()) - s.ServiceJoinTime(b.Id())
}

// FormatEndPoint names the shared transport when name is empty.
func FormatEndPoint(name string) string {
	if name == "" {
		return "shared"
	}
	return name
}

func (s *ServiceMemberSet) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "ServiceMemberSet(\n  OldestMember=%v", s.OldestMember())
	for _, m := range s.Members() {
		id := m.Id()
		fmt.Fprintf(&buf, "\n  Member(Id=%d, JoinTime=%s, State=%s, EndPoint=%s)",
			id, time.UnixMilli(s.ServiceJoinTime(id)).Format("2006-01-02 15:04:05.000"),
			s.State(id), FormatEndPoint(s.ServiceEndPointName(id)))
	}
	buf.WriteString("\n  )")
	return buf.String()
}

// DependentMemberSet is a plain member set whose members are resolved
// through a base ServiceMemberSet. Multipoint packets address their
// recipients with one.
type DependentMemberSet struct {
	*memberset.MemberSet
	base *ServiceMemberSet
}

func NewDependentMemberSet(base *ServiceMemberSet) *DependentMemberSet {
	return &DependentMemberSet{MemberSet: memberset.NewMemberSet(), base: base}
}

func (s *DependentMemberSet) Base() *ServiceMemberSet {
	return s.base
}

// Member returns nil unless id is in the set and known to the base.
func (s *DependentMemberSet) Member(id int) *Member {
	if s.base == nil || !s.Contains(id) {
		return nil
	}
	return s.base.Member(id)
}

// Members returns the members of the set known to the base, in id order.
func (s *DependentMemberSet) Members() []*Member {
	var out []*Member
	if s.base == nil {
		return out
	}
	s.Iterate(func(id int) bool {
		if m := s.base.Member(id); m != nil {
			out = append(out, m)
		}
		return true
	})
	return out
}

func (s *DependentMemberSet) Clone() *DependentMemberSet {
	return &DependentMemberSet{MemberSet: s.MemberSet.Clone(), base: s.base}
}
