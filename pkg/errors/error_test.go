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

package errors

import (
	goerrors "errors"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := ErrRequestTimeout.Wrap("after %d ms", 100)
	if !goerrors.Is(err, ErrRequestTimeout) {
		t.Error("wrapped error must match its sentinel")
	}
	if goerrors.Is(err, ErrClosing) {
		t.Error("different errno must not match")
	}
	if err.ErrNo() != KErrRequestTimeout {
		t.Errorf("errno %d", err.ErrNo())
	}
}

func TestAssert(t *testing.T) {
	defer func() {
		r := recover()
		if _, ok := r.(*AssertionError); !ok {
			t.Errorf("expected AssertionError, got %v", r)
		}
	}()
	Assert(true, "never raised")
	Assert(false, "count=%d", -1)
	t.Error("Assert(false) did not panic")
}
