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
	"fmt"
)

type Error struct {
	what  string
	errno uint32
}

const (
	KErrNone uint32 = iota
	KErrRequestTimeout
	KErrClosing
	KErrUnknownPeer
	KErrNoConnection
	KErrIncompatible
	KErrMalformedFrame
)

var (
	ErrRequestTimeout = NewError("Request timed out", KErrRequestTimeout)
	ErrClosing        = NewError("message handler is closing", KErrClosing)
	ErrUnknownPeer    = NewError("unknown peer", KErrUnknownPeer)
	ErrNoConnection   = NewError("no connection to peer", KErrNoConnection)
	ErrIncompatible   = NewError("incompatible protocol", KErrIncompatible)
)

func NewError(what string, errno uint32) *Error {
	return &Error{what: what, errno: errno}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error: %s (%d) ", e.what, e.errno)
}

func (e *Error) ErrNo() uint32 {
	return e.errno
}

// Is matches any *Error carrying the same errno, so errors.Is works
// against the package sentinels after wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.errno == e.errno
	}
	return false
}

// Wrap returns an error carrying errno with extra context in the text.
func (e *Error) Wrap(format string, a ...interface{}) *Error {
	return &Error{what: e.what + ": " + fmt.Sprintf(format, a...), errno: e.errno}
}
