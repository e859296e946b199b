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

package packet

import (
	"github.com/oracle/coherence-sub033/pkg/errors"
	"github.com/oracle/coherence-sub033/pkg/logging/glog"
)

// A trint is the low 24 bits of an ever increasing counter, sent in three
// bytes and reconstructed by the receiver relative to a current value.
const (
	TrintDomainSpan  = int64(1) << 24
	TrintMaxValue    = 0xFFFFFF
	TrintMaxVariance = int64(1) << 23
)

func MakeTrint(n int64) int {
	return int(n & TrintMaxValue)
}

// TranslateTrint returns the value within TrintMaxVariance of current
// whose low 24 bits are trint. Values are never below 1; a candidate
// that would be is moved up by one domain span.
func TranslateTrint(trint int, current int64) int64 {
	lo := current - TrintMaxVariance
	hi := current + TrintMaxVariance

	t := int64(trint & TrintMaxValue)
	base := int64(uint64(current) >> 24)
	for i := int64(-1); i <= 1; i++ {
		guess := ((base + i) << 24) | t
		if guess < lo || guess > hi {
			continue
		}
		if guess < 1 {
			if current > 0x800 && glog.LOG_DEBUG {
				glog.Debugf("Large gap while initializing packet translation; current=%d packet=%d value=%d",
					current, t, guess)
			}
			guess += TrintDomainSpan
			errors.Assert(guess >= 1, "translated trint %d below one", guess)
		}
		return guess
	}
	errors.Fatalf("translateTrint failed: trint=%d, current=%d", t, current)
	return 0
}
