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
	"bytes"
	"strconv"
)

// KeyValueBuffer builds "k=v, k=v" style diagnostic strings.
type KeyValueBuffer struct {
	bytes.Buffer
	delimiter     byte
	pairDelimiter byte
	spaced        bool
}

// NewKVBufferForLog returns a buffer producing "Key=Value, Key=Value".
func NewKVBufferForLog() *KeyValueBuffer {
	return &KeyValueBuffer{
		delimiter:     '=',
		pairDelimiter: ',',
		spaced:        true,
	}
}

// NewKVBuffer returns a buffer producing "key=value&key=value".
func NewKVBuffer() *KeyValueBuffer {
	return &KeyValueBuffer{
		pairDelimiter: '&',
		delimiter:     '=',
	}
}

func (b *KeyValueBuffer) startPair() {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
		if b.spaced {
			b.WriteByte(' ')
		}
	}
}

func (b *KeyValueBuffer) Add(key string, value string) *KeyValueBuffer {
	b.startPair()
	b.WriteString(key)
	b.WriteByte(b.delimiter)
	b.WriteString(value)
	return b
}

func (b *KeyValueBuffer) AddInt(key string, value int) *KeyValueBuffer {
	return b.Add(key, strconv.Itoa(value))
}

func (b *KeyValueBuffer) AddInt64(key string, value int64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatInt(value, 10))
}

func (b *KeyValueBuffer) AddUInt64(key string, value uint64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatUint(value, 10))
}

func (b *KeyValueBuffer) AddBool(key string, value bool) *KeyValueBuffer {
	return b.Add(key, strconv.FormatBool(value))
}

// AddFloat writes value with prec digits after the decimal point.
func (b *KeyValueBuffer) AddFloat(key string, value float64, prec int) *KeyValueBuffer {
	return b.Add(key, strconv.FormatFloat(value, 'f', prec, 64))
}

// AddRaw appends an already formatted fragment as the next pair.
func (b *KeyValueBuffer) AddRaw(s string) *KeyValueBuffer {
	b.startPair()
	b.WriteString(s)
	return b
}

// AddIf skips the pair when value is empty.
func (b *KeyValueBuffer) AddIf(key string, value string) *KeyValueBuffer {
	if value != "" {
		b.Add(key, value)
	}
	return b
}
