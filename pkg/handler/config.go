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
	"time"

	"github.com/oracle/coherence-sub033/pkg/util"
)

var (
	DefaultConfig = Config{
		DeliveryTimeout:      util.Duration{Duration: 5 * time.Minute},
		GuardTimeout:         util.Duration{Duration: time.Minute},
		IntervalPeriod:       util.Duration{Duration: 250 * time.Millisecond},
		CompressionThreshold: 0,
		BufferSize:           64 * 1024,
	}
)

type Config struct {
	// DeliveryTimeout is how long a peer may leave sent messages
	// unacknowledged before it is disconnected.
	DeliveryTimeout util.Duration
	// GuardTimeout bounds how long a disconnected connection may wait for
	// its member to be declared departed before the service is stopped.
	GuardTimeout   util.Duration
	IntervalPeriod util.Duration
	// CompressionThreshold enables snappy compression of message bodies of
	// at least this many bytes. Zero disables it.
	CompressionThreshold int
	BufferSize           int
}

func (conf *Config) SetDefaultIfNotDefined() (set bool) {
	if conf.DeliveryTimeout.Duration == 0 {
		set = true
		conf.DeliveryTimeout = DefaultConfig.DeliveryTimeout
	}
	if conf.GuardTimeout.Duration == 0 {
		set = true
		conf.GuardTimeout = DefaultConfig.GuardTimeout
	}
	if conf.IntervalPeriod.Duration == 0 {
		set = true
		conf.IntervalPeriod = DefaultConfig.IntervalPeriod
	}
	if conf.CompressionThreshold < 0 {
		set = true
		conf.CompressionThreshold = 0
	}
	if conf.BufferSize == 0 {
		set = true
		conf.BufferSize = DefaultConfig.BufferSize
	}
	return
}
