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

var (
	DefaultFlowControlConfig = FlowControlConfig{
		Enabled:                  true,
		AggressionFactor:         20,
		SuccessGoal:              200,
		PacketThreshold:          -1,
		OutstandingPacketMinimum: 64,
		OutstandingPacketMaximum: 4096,
		LostPacketThreshold:      16,
	}
)

type FlowControlConfig struct {
	Enabled bool
	// AggressionFactor is the divisor applied to the current threshold
	// to get the adjustment step.
	AggressionFactor int
	// SuccessGoal is the number of sequential confirmations required
	// before the threshold may grow.
	SuccessGoal int
	// PacketThreshold is the initial outstanding packet threshold; -1
	// starts halfway between the minimum and maximum.
	PacketThreshold          int
	OutstandingPacketMinimum int
	OutstandingPacketMaximum int
	// LostPacketThreshold is the number of sequential losses after which
	// the member is considered paused.
	LostPacketThreshold int
}

func (conf *FlowControlConfig) SetDefaultIfNotDefined() (set bool) {
	if conf.AggressionFactor < 1 {
		set = true
		conf.AggressionFactor = DefaultFlowControlConfig.AggressionFactor
	}
	if conf.SuccessGoal < 1 {
		set = true
		conf.SuccessGoal = DefaultFlowControlConfig.SuccessGoal
	}
	if conf.PacketThreshold == 0 {
		set = true
		conf.PacketThreshold = DefaultFlowControlConfig.PacketThreshold
	}
	if conf.OutstandingPacketMinimum <= 0 {
		set = true
		conf.OutstandingPacketMinimum = DefaultFlowControlConfig.OutstandingPacketMinimum
	}
	if conf.OutstandingPacketMaximum <= 0 {
		set = true
		conf.OutstandingPacketMaximum = DefaultFlowControlConfig.OutstandingPacketMaximum
	}
	if conf.OutstandingPacketMaximum < conf.OutstandingPacketMinimum {
		set = true
		conf.OutstandingPacketMaximum = conf.OutstandingPacketMinimum
	}
	if conf.LostPacketThreshold <= 0 {
		set = true
		conf.LostPacketThreshold = DefaultFlowControlConfig.LostPacketThreshold
	}
	return
}

// InitialThreshold returns the threshold a new FlowControl starts with.
func (conf *FlowControlConfig) InitialThreshold() int {
	if conf.PacketThreshold < 0 {
		return (conf.OutstandingPacketMaximum + conf.OutstandingPacketMinimum) / 2
	}
	return conf.PacketThreshold
}
