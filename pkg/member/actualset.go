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
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/memberset"
)

// ActualMemberSet is a member set that also holds the members it names.
type ActualMemberSet struct {
	mu      sync.RWMutex
	ids     *memberset.MemberSet
	members map[int]*Member
}

func NewActualMemberSet() *ActualMemberSet {
	return &ActualMemberSet{
		ids:     memberset.NewMemberSet(),
		members: make(map[int]*Member),
	}
}

// Add stores m under its id, replacing an older member with the same id.
func (s *ActualMemberSet) Add(m *Member) bool {
	id := m.Id()
	errors.Assert(id > 0, "member without id: %s", m)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.members[id]
	s.members[id] = m
	s.ids.Add(id)
	return old != m
}

func (s *ActualMemberSet) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	s.ids.Remove(id)
	return true
}

func (s *ActualMemberSet) RemoveMember(m *Member) bool {
	return s.Remove(m.Id())
}

// Member returns nil for an id not in the set.
func (s *ActualMemberSet) Member(id int) *Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[id]
}

// Members returns the members in id order.
func (s *ActualMemberSet) Members() []*Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id() < out[j].Id() })
	return out
}

func (s *ActualMemberSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = make(map[int]*Member)
	s.ids.Clear()
}

func (s *ActualMemberSet) Contains(id int) bool { return s.ids.Contains(id) }
func (s *ActualMemberSet) Size() int            { return s.ids.Size() }
func (s *ActualMemberSet) IsEmpty() bool        { return s.ids.IsEmpty() }
func (s *ActualMemberSet) FirstId() int         { return s.ids.FirstId() }
func (s *ActualMemberSet) LastId() int          { return s.ids.LastId() }
func (s *ActualMemberSet) NextId(id int) int    { return s.ids.NextId(id) }
func (s *ActualMemberSet) PrevId(id int) int    { return s.ids.PrevId(id) }
func (s *ActualMemberSet) ToIdArray() []int     { return s.ids.ToIdArray() }
func (s *ActualMemberSet) Words() []uint32      { return s.ids.Words() }

// IdSet returns a copy of the ids.
func (s *ActualMemberSet) IdSet() *memberset.MemberSet {
	return s.ids.Clone()
}

// GetOtherMembers returns the ids of every member but m in a set made by
// factory. The receiver is not modified.
func (s *ActualMemberSet) GetOtherMembers(m *Member, factory memberset.Factory) *memberset.MemberSet {
	if factory == nil {
		factory = memberset.NewMemberSet
	}
	out := factory()
	out.AddAll(s.ids)
	if m != nil {
		out.Remove(m.Id())
	}
	return out
}

// GetDistantMembers returns the ids of the members running on a machine
// other than the one m runs on.
func (s *ActualMemberSet) GetDistantMembers(m *Member, factory memberset.Factory) *memberset.MemberSet {
	if factory == nil {
		factory = memberset.NewMemberSet
	}
	out := factory()
	machineId := m.MachineId()
	for _, other := range s.Members() {
		if other.MachineId() != machineId {
			out.Add(other.Id())
		}
	}
	return out
}

func (s *ActualMemberSet) String() string {
	var parts []string
	for _, m := range s.Members() {
		parts = append(parts, "\n  "+m.String())
	}
	return "MemberSet(Size=" + strconv.Itoa(len(parts)) + strings.Join(parts, "") + "\n  )"
}
