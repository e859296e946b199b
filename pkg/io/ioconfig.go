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

package io

import (
	"time"

	"github.com/oracle/coherence-sub033/pkg/util"
)

var (
	DefaultDatagramConfig = DatagramConfig{
		ListenAddr:            ":8088",
		PreferredPacketLength: 1468,
		MaxPacketLength:       65535,
		BatchSize:             32,
		ReadBufferSize:        1 << 20,
		WriteTimeout:          util.Duration{Duration: 500 * time.Millisecond},
		ResendInterval:        util.Duration{Duration: 200 * time.Millisecond},
		ResendTimeout:         util.Duration{Duration: 5 * time.Minute},
	}
)

type (
	DatagramConfig struct {
		ListenAddr            string
		PreferredPacketLength int
		MaxPacketLength       int
		BatchSize             int
		ReadBufferSize        int
		WriteTimeout          util.Duration
		// ResendInterval is the time after which an unconfirmed packet is
		// considered lost and rescheduled.
		ResendInterval util.Duration
		// ResendTimeout is the time after which an unconfirmed packet is
		// dropped along with the member that failed to confirm it.
		ResendTimeout util.Duration
	}
)

func (conf *DatagramConfig) SetDefaultIfNotDefined() (set bool) {
	if conf.ListenAddr == "" {
		set = true
		conf.ListenAddr = DefaultDatagramConfig.ListenAddr
	}
	if conf.PreferredPacketLength == 0 {
		set = true
		conf.PreferredPacketLength = DefaultDatagramConfig.PreferredPacketLength
	}
	if conf.MaxPacketLength == 0 {
		set = true
		conf.MaxPacketLength = DefaultDatagramConfig.MaxPacketLength
	}
	if conf.MaxPacketLength < conf.PreferredPacketLength {
		set = true
		conf.MaxPacketLength = conf.PreferredPacketLength
	}
	if conf.BatchSize == 0 {
		set = true
		conf.BatchSize = DefaultDatagramConfig.BatchSize
	}
	if conf.ReadBufferSize == 0 {
		set = true
		conf.ReadBufferSize = DefaultDatagramConfig.ReadBufferSize
	}
	if conf.WriteTimeout.Duration == 0 {
		set = true
		conf.WriteTimeout = DefaultDatagramConfig.WriteTimeout
	}
	if conf.ResendInterval.Duration == 0 {
		set = true
		conf.ResendInterval = DefaultDatagramConfig.ResendInterval
	}
	if conf.ResendTimeout.Duration == 0 {
		set = true
		conf.ResendTimeout = DefaultDatagramConfig.ResendTimeout
	}
	return
}
