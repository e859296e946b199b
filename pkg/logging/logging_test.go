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

package logging

import (
	"testing"
)

func TestKVBufferForLog(t *testing.T) {
	b := NewKVBufferForLog()
	b.AddFloat("PauseRate", 0.5, 4).AddInt("Threshold", 12).AddIf("Empty", "").AddBool("Paused", false)
	if got := b.String(); got != "PauseRate=0.5000, Threshold=12, Paused=false" {
		t.Errorf("got %q", got)
	}
}

func TestKVBuffer(t *testing.T) {
	b := NewKVBuffer()
	b.Add("a", "1").AddInt64("b", -2).AddUInt64("c", 3)
	if got := b.String(); got != "a=1&b=-2&c=3" {
		t.Errorf("got %q", got)
	}
}
