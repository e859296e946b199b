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
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// Reader is a big-endian cursor over a byte slice. Slices it returns
// alias the underlying buffer.
type Reader struct {
	buf  []byte
	off  int
	mark int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Available() int {
	return len(r.buf) - r.off
}

func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) Mark() {
	r.mark = r.off
}

func (r *Reader) Reset() {
	r.off = r.mark
}

// Skip advances n bytes. A short buffer is consumed entirely and reported
// as io.ErrUnexpectedEOF.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return NewProtocolError("negative skip")
	}
	if n > r.Available() {
		r.off = len(r.buf)
		return io.ErrUnexpectedEOF
	}
	r.off += n
	return nil
}

func (r *Reader) SkipAll() {
	r.off = len(r.buf)
}

func (r *Reader) next(n int) ([]byte, error) {
	if n > r.Available() {
		r.off = len(r.buf)
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.Available() == 0 {
		return 0, io.EOF
	}
	n = copy(p, r.buf[r.off:])
	r.off += n
	return
}

func (r *Reader) ReadUint8() (int, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return int(b[0]), nil
}

func (r *Reader) ReadUint16() (int, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadTrint reads three bytes as an unsigned 24 bit value.
func (r *Reader) ReadTrint() (int, error) {
	b, err := r.next(3)
	if err != nil {
		return 0, err
	}
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2]), nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.next(n)
}

// ReadUTF reads a u16 length prefixed string.
func (r *Reader) ReadUTF() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", NewProtocolError("malformed UTF string")
	}
	return string(b), nil
}

// Writer appends big-endian values to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter appends to b[:0].
func NewWriter(b []byte) *Writer {
	return &Writer{buf: b[:0]}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *Writer) WriteUint8(n int) {
	w.buf = append(w.buf, byte(n))
}

func (w *Writer) WriteUint16(n int) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
}

func (w *Writer) WriteInt32(n int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
}

func (w *Writer) WriteUint32(n uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, n)
}

// WriteTrint writes the low 24 bits of n.
func (w *Writer) WriteTrint(n int64) {
	t := MakeTrint(n)
	w.buf = append(w.buf, byte(t>>16), byte(t>>8), byte(t))
}

func (w *Writer) WriteUTF(s string) error {
	if len(s) > 0xFFFF {
		return NewProtocolError("string too long")
	}
	w.WriteUint16(len(s))
	w.buf = append(w.buf, s...)
	return nil
}
